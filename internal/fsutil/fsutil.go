// Package fsutil implements the file-system collaborator the registry
// owns alongside the HTTP client and concatenator (spec §3's "the
// service registry exclusively owns configuration and long-lived
// clients (HTTP client, concatenator wrapper, file-system wrapper)").
// internal/orchestrator already takes its disk operations as
// injectable fields (readLocal, mkTempDir, copyFile) for testability;
// FileSystem gives the real-disk implementation of those a named type
// the registry can register and resolve, rather than the orchestrator
// reaching for os.ReadFile directly.
package fsutil

import "os"

// FileSystem wraps the local-disk operations the orchestrator needs
// for its "local playlist file" source (spec §4.7 step 2).
type FileSystem struct{}

// New returns the default, real-disk FileSystem.
func New() *FileSystem { return &FileSystem{} }

// ReadFile reads path's full contents. Signature matches
// orchestrator.WithReadLocal's collaborator type.
func (*FileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
