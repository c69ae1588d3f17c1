// Package storage persists artifacts produced during a run, such as
// screenshots, abstracting away the where and how of writing them.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FilePersister writes artifact data to a destination path.
type FilePersister interface {
	Persist(ctx context.Context, path string, data io.Reader) error
}

// LocalFilePersister writes artifacts to the local disk, creating
// parent directories as needed and truncating existing files.
type LocalFilePersister struct{}

// Persist writes the contents of data to path on the local disk.
func (l *LocalFilePersister) Persist(_ context.Context, path string, data io.Reader) (err error) {
	cp := filepath.Clean(path)

	dir := filepath.Dir(cp)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating a local directory %q: %w", dir, err)
	}

	f, err := os.OpenFile(cp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec
	if err != nil {
		return fmt.Errorf("creating a local file %q: %w", cp, err)
	}
	defer func() {
		closeErr := f.Close()
		// Only surface the close error if nothing failed earlier.
		if closeErr != nil && err == nil {
			err = fmt.Errorf("closing the local file %q: %w", cp, closeErr)
		}
	}()

	_, err = io.Copy(f, data)

	return err
}
