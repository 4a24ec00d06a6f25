package storage

import "io"

// Storage defines the interface for session-scoped blob storage.
type Storage interface {
	// Store writes blob data and returns the number of bytes written.
	Store(sessionID, blobID string, data io.Reader) (int64, error)

	// Retrieve returns a ReadCloser for the stored blob.
	Retrieve(sessionID, blobID string) (io.ReadCloser, error)

	// Delete removes a single blob.
	Delete(sessionID, blobID string) error

	// DeleteSession removes every blob held by a session.
	DeleteSession(sessionID string) error

	// Exists checks whether a blob exists in storage.
	Exists(sessionID, blobID string) (bool, error)
}
