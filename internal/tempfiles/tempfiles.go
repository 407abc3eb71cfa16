// Package tempfiles manages scratch files for export downloads. Exports are
// staged to disk so large workbooks never sit in memory while a client
// streams them; the file is removed as soon as the download closes.
package tempfiles

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Create makes a temp file in dir, creating the directory if needed.
func Create(dir string, pattern string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create export dir %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create export file: %w", err)
	}
	return f, nil
}

// NewDeleteOnClose wraps an open file and removes it from disk when the
// reader is closed. Close is idempotent.
func NewDeleteOnClose(file *os.File) io.ReadCloser {
	return &deleteOnClose{file: file, path: file.Name()}
}

type deleteOnClose struct {
	file *os.File
	path string
	once sync.Once
}

func (d *deleteOnClose) Read(p []byte) (int, error) {
	return d.file.Read(p)
}

func (d *deleteOnClose) Close() error {
	var closeErr, removeErr error
	d.once.Do(func() {
		closeErr = d.file.Close()
		if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
			removeErr = err
		}
	})
	if closeErr != nil {
		return closeErr
	}
	return removeErr
}
