package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time check that FileSystem implements Storage.
var _ Storage = (*FileSystem)(nil)

// ErrNotFound is returned by Retrieve when the blob does not exist.
var ErrNotFound = errors.New("blob not found")

// FileSystem implements Storage using the local filesystem.
// Blobs are stored at <basePath>/<sessionID>/<blobID>.
type FileSystem struct {
	basePath string
}

// NewFileSystem creates a new FileSystem storage rooted at basePath.
func NewFileSystem(basePath string) *FileSystem {
	return &FileSystem{basePath: basePath}
}

// validKey rejects empty keys and anything that could escape basePath.
func validKey(k string) error {
	if k == "" || k == "." || k == ".." || strings.ContainsAny(k, `/\`) {
		return fmt.Errorf("invalid storage key %q", k)
	}
	return nil
}

func (fs *FileSystem) sessionPath(sessionID string) string {
	return filepath.Join(fs.basePath, sessionID)
}

func (fs *FileSystem) blobPath(sessionID, blobID string) string {
	return filepath.Join(fs.sessionPath(sessionID), blobID)
}

// Store writes data from the reader to disk using atomic write (temp file + rename).
// It returns the number of bytes written.
func (fs *FileSystem) Store(sessionID, blobID string, data io.Reader) (int64, error) {
	if err := validKey(sessionID); err != nil {
		return 0, err
	}
	if err := validKey(blobID); err != nil {
		return 0, err
	}

	dir := fs.sessionPath(sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, data)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing data: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file: %w", err)
	}

	dst := fs.blobPath(sessionID, blobID)
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("renaming temp file to %s: %w", dst, err)
	}

	// Rename succeeded; prevent deferred cleanup from removing the final file.
	tmpPath = ""

	return n, nil
}

// Retrieve opens the stored blob and returns an io.ReadCloser.
func (fs *FileSystem) Retrieve(sessionID, blobID string) (io.ReadCloser, error) {
	if err := validKey(sessionID); err != nil {
		return nil, err
	}
	if err := validKey(blobID); err != nil {
		return nil, err
	}
	path := fs.blobPath(sessionID, blobID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, sessionID, blobID)
		}
		return nil, fmt.Errorf("opening file %s: %w", path, err)
	}
	return f, nil
}

// Delete removes a single blob. Deleting a missing blob is not an error.
func (fs *FileSystem) Delete(sessionID, blobID string) error {
	if err := validKey(sessionID); err != nil {
		return err
	}
	if err := validKey(blobID); err != nil {
		return err
	}
	path := fs.blobPath(sessionID, blobID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file %s: %w", path, err)
	}
	return nil
}

// DeleteSession removes the entire <sessionID>/ directory.
// It is idempotent: deleting a non-existent session returns no error.
func (fs *FileSystem) DeleteSession(sessionID string) error {
	if err := validKey(sessionID); err != nil {
		return err
	}
	dir := fs.sessionPath(sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing directory %s: %w", dir, err)
	}
	return nil
}

// Exists checks whether the blob exists on disk.
func (fs *FileSystem) Exists(sessionID, blobID string) (bool, error) {
	if err := validKey(sessionID); err != nil {
		return false, err
	}
	if err := validKey(blobID); err != nil {
		return false, err
	}
	path := fs.blobPath(sessionID, blobID)
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking file %s: %w", path, err)
}
