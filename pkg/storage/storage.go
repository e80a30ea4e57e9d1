// Package storage is the persistence façade for conversation threads. Two
// backends exist: a file-per-thread disk store and a MongoDB document store.
// The document store is the one active in production; the disk store remains
// available for deployments without a database.
package storage

import (
	"context"
	"errors"
	"os"

	"frevagpt/pkg/chatbot"
)

// ErrThreadNotFound is returned by Read when no thread with the given id is
// stored.
var ErrThreadNotFound = errors.New("thread not found")

// Store is the façade the rest of the backend depends on. No locking is
// promised across Read and Append; the stream engine is the only writer per
// thread, so concurrent readers may at worst observe a prefix.
type Store interface {
	// Append atomically appends frames to the stored conversation, creating
	// a new record if none exists. Cleanup is applied before writing.
	Append(ctx context.Context, threadID, userID string, content chatbot.Conversation) error

	// Read returns the full stored conversation, or ErrThreadNotFound.
	Read(ctx context.Context, threadID string) (chatbot.Conversation, error)
}

// diskStore adapts FileStore's os-error semantics to the façade's
// ErrThreadNotFound contract.
type diskStore struct {
	*FileStore
}

func (s diskStore) Read(ctx context.Context, threadID string) (chatbot.Conversation, error) {
	conv, err := s.FileStore.Read(ctx, threadID)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrThreadNotFound
	}
	return conv, err
}

// NewDiskStore returns the file-backed Store rooted at dir.
func NewDiskStore(dir string) (Store, error) {
	fs, err := NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	return diskStore{fs}, nil
}
