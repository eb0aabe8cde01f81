// Package keywatch reloads a Mesher's accepted-signer key set from a
// directory of raw public key files whenever that directory changes,
// without requiring a process restart.
package keywatch

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/mesher/mesher"
	"github.com/kenneth/mesher/meshcrypto"
)

// Watcher watches a directory for changes and keeps a Mesher's accepted
// signer set in sync with its contents. Each regular file directly inside
// the directory is expected to hold exactly one raw 32-byte Ed25519 public
// key; anything else is skipped.
type Watcher struct {
	dir    string
	mesher *mesher.Mesher
	logger *logrus.Logger

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
}

// New creates a Watcher over dir and performs an initial load of its
// contents into m's accepted signer set before returning.
func New(dir string, m *mesher.Mesher, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("keywatch: creating fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("keywatch: watching %s: %w", dir, err)
	}

	w := &Watcher{
		dir:       dir,
		mesher:    m,
		logger:    logger,
		fsWatcher: fsWatcher,
		done:      make(chan struct{}),
	}
	if err := w.reload(); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// reload reads every key file in the watched directory and replaces the
// Mesher's accepted signer set with what it finds.
func (w *Watcher) reload() error {
	signers, err := loadSigners(w.dir)
	if err != nil {
		return err
	}
	w.mesher.SetAcceptedSigners(signers)
	w.logger.WithField("count", len(signers)).Info("reloaded accepted signers")
	return nil
}

func loadSigners(dir string) ([]meshcrypto.SignPublicKey, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("keywatch: reading %s: %w", dir, err)
	}

	var signers []meshcrypto.SignPublicKey
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("keywatch: reading %s: %w", entry.Name(), err)
		}
		if len(raw) != ed25519.PublicKeySize {
			continue
		}
		var key meshcrypto.SignPublicKey
		copy(key[:], raw)
		signers = append(signers, key)
	}
	return signers, nil
}

// Run starts watching for filesystem events on a background goroutine,
// reloading the accepted signer set on every create, write, remove, or
// rename. It returns immediately; call Close to stop.
func (w *Watcher) Run() {
	go func() {
		for {
			select {
			case event, ok := <-w.fsWatcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := w.reload(); err != nil {
					w.logger.WithError(err).Warn("failed to reload accepted signers")
				}
			case err, ok := <-w.fsWatcher.Errors:
				if !ok {
					return
				}
				w.logger.WithError(err).Warn("fsnotify error watching key directory")
			case <-w.done:
				return
			}
		}
	}()
}

// Close stops the background watch goroutine and releases the underlying
// fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}
