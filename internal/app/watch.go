package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/ctxlog"
	"github.com/vk/flowsync/internal/orchestrator"
)

// DefaultDebounce is how long Watch waits for a burst of file events to
// settle before writing.
const DefaultDebounce = 300 * time.Millisecond

// Watch writes the document at path once, then again every time the file
// changes, until ctx is cancelled. A document that fails to parse is logged
// and skipped. Only connection loss stops the watch early.
func (a *App) Watch(ctx context.Context, path string, debounce time.Duration, opts ...orchestrator.RunOption) error {
	if err := a.requireStore(); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, logger := ctxlog.With(a.Context(ctx), "document", path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("👀 Watching document.")

	apply := func() error {
		doc, err := ReadDocument(path)
		if err != nil {
			logger.Warn("Skipping unreadable document.", "error", err)
			return nil
		}
		report, err := a.Write(ctx, doc, opts...)
		if errors.Is(err, attrstore.ErrConnectionLost) {
			return err
		}
		if err != nil {
			logger.Error("Write failed.", "error", err)
			return nil
		}
		logger.Info("Document written.", "report_id", report.ID, "ok", report.OK(), "failed_sections", report.Failed())
		return nil
	}
	if err := apply(); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("🏁 Watch stopped.")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				logger.Debug("Document changed.", "op", event.Op.String())
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)
		case <-timer.C:
			if err := apply(); err != nil {
				return err
			}
		}
	}
}
