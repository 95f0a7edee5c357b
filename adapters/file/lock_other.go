//go:build !unix

package file

import "io/fs"

// lockFile is a no-op where flock is unavailable; writers are only
// serialized within the process.
func lockFile(string, fs.FileMode) (func(), error) {
	return func() {}, nil
}
