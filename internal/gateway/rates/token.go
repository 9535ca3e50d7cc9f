package rates

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chartfeed/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// TokenWatcher hot-reloads the bearer token from a credentials file so a
// rotated token reaches the client without a restart.
type TokenWatcher struct {
	path   string
	client *Client
}

func NewTokenWatcher(path string, client *Client) *TokenWatcher {
	return &TokenWatcher{path: filepath.Clean(strings.TrimSpace(path)), client: client}
}

// Run loads the token once, then watches the file's directory (editors and
// secret managers replace files atomically, so watching the file itself
// misses renames) until ctx is cancelled.
func (w *TokenWatcher) Run(ctx context.Context) error {
	if w == nil || w.path == "." || w.path == "" {
		return fmt.Errorf("token watcher requires a file path")
	}
	w.reload()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("[rates] token watcher error: %v", err)
		}
	}
}

func (w *TokenWatcher) reload() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		logger.Warnf("[rates] reading token file %s failed: %v", w.path, err)
		return
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		logger.Warnf("[rates] token file %s is empty, keeping previous token", w.path)
		return
	}
	w.client.UpdateToken(token)
	logger.Infof("[rates] bearer token reloaded from %s", w.path)
}
