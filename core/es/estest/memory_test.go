package estest_test

import (
	"testing"

	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/core/es/estest"
)

func TestMemoryAdapter(t *testing.T) {
	estest.RunAdapterSuite(t, func(t *testing.T) (es.Adapter, func() es.Adapter) {
		a := es.NewMemoryAdapter()
		return a, func() es.Adapter { return a }
	})
}
