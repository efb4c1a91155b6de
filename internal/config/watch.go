package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the rules file whenever it changes, until ctx is done.
// The parent directory is watched so editors that replace the file still trigger.
func (h *RulesHolder) Watch(ctx context.Context, logger zerolog.Logger) error {
	if h.path == "" {
		return nil
	}
	log := logger.With().Str("service", "rules").Str("path", h.path).Logger()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(h.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		target := filepath.Clean(h.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := h.Reload(); err != nil {
					log.Warn().Err(err).Msg("rules reload rejected, keeping previous snapshot")
					continue
				}
				log.Info().Msg("rules reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("rules watcher error")
			}
		}
	}()
	return nil
}
