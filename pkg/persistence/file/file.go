// Package file provides file-based persistence for collaboration requests and batches.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/gofrs/flock"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Several processes may share one root: every mutation holds an exclusive flock on
// <root>/.lock in addition to the in-process mutex.
type Persistence struct {
	root        string
	lock        *storeLock
	requestRepo *RequestRepository
	batchRepo   *BatchRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := filepath.Clean(strings.TrimPrefix(root, "file://"))
	lock := newStoreLock(cleanRoot)

	return &Persistence{
		root:        cleanRoot,
		lock:        lock,
		requestRepo: NewRequestRepository(cleanRoot, lock),
		batchRepo:   NewBatchRepository(cleanRoot, lock),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	info, err := os.Stat(fp.root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", fp.root)
	}

	return nil
}

func (fp *Persistence) RequestRepository() persistence.RequestRepository {
	return fp.requestRepo
}

func (fp *Persistence) BatchRepository() persistence.BatchRepository {
	return fp.batchRepo
}

// storeLock serializes writers inside the process (mutex) and across processes (flock).
// The mutex is taken first because a flock.Flock is not reentrant per goroutine.
type storeLock struct {
	root string
	mu   sync.Mutex
	file *flock.Flock
}

func newStoreLock(root string) *storeLock {
	return &storeLock{
		root: root,
		file: flock.New(filepath.Join(root, ".lock")),
	}
}

func (l *storeLock) acquire() (func(), error) {
	l.mu.Lock()

	if err := os.MkdirAll(l.root, 0750); err != nil {
		l.mu.Unlock()

		return nil, fmt.Errorf("failed to create store root %s: %w", l.root, err)
	}

	if err := l.file.Lock(); err != nil {
		l.mu.Unlock()

		return nil, fmt.Errorf("failed to lock store %s: %w", l.root, err)
	}

	return func() {
		_ = l.file.Unlock()
		l.mu.Unlock()
	}, nil
}
