package gallery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SweepBlobs removes blob files in dir last modified before cutoff. Files
// for which keep returns true are left alone; keep may be nil.
func SweepBlobs(dir string, cutoff time.Time, keep func(path string) bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".blob") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if keep != nil && keep(path) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// StartBlobSweeper removes orphaned blob files older than retention every
// interval until ctx is done.
func StartBlobSweeper(
	ctx context.Context,
	dir string,
	interval time.Duration,
	retention time.Duration,
	keep func(path string) bool,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := SweepBlobs(dir, time.Now().Add(-retention), keep)
				if err != nil {
					log.Error("failed to sweep image blobs", zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Info("swept image blobs", zap.Int("removed", removed))
				}
			}
		}
	}()
}
