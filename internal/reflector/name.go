// Package reflector derives stable names for Go types and caches them.
package reflector

import (
	"reflect"
	"sync"
)

var names sync.Map // reflect.Type -> string

// Named is implemented by types that choose their own name.
type Named interface {
	EventType() string
}

// NameFor returns the name of T: the result of its EventType method when T
// or *T implements Named, its fully qualified Go name otherwise.
func NameFor[T any]() string {
	return NameOf(reflect.TypeFor[T]())
}

// NameOf is NameFor for a reflect.Type. Pointer types are named after their
// element type.
func NameOf(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if n, ok := names.Load(t); ok {
		return n.(string)
	}

	name := t.PkgPath() + "." + t.Name()
	if n, ok := named(t); ok {
		name = n
	}
	n, _ := names.LoadOrStore(t, name)
	return n.(string)
}

func named(t reflect.Type) (string, bool) {
	namedType := reflect.TypeFor[Named]()
	ptr := reflect.New(t)
	if t.Implements(namedType) {
		return ptr.Elem().Interface().(Named).EventType(), true
	}
	if ptr.Type().Implements(namedType) {
		return ptr.Interface().(Named).EventType(), true
	}
	return "", false
}
