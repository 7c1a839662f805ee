package backup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Downloader streams media bytes to the archive. Safe for concurrent
// use; every download writes a distinct path.
type Downloader struct {
	client *http.Client
	root   string
	log    *zap.Logger
}

// NewDownloader writes files under root using client.
func NewDownloader(client *http.Client, root string, logger *zap.Logger) *Downloader {
	return &Downloader{client: client, root: root, log: logger.Named("download")}
}

// Fetch downloads url into the file at rel (relative to the archive
// root), stamping modTime when known. Partial files are removed on
// failure so a rerun retries cleanly.
func (d *Downloader) Fetch(ctx context.Context, url, rel string, modTime time.Time) error {
	abs := filepath.Join(d.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("failed to create folder for %s: %w", rel, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", rel, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s returned status %d", rel, resp.StatusCode)
	}

	f, err := os.Create(abs)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", rel, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(abs)
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(abs)
		return fmt.Errorf("failed to close %s: %w", rel, err)
	}

	if !modTime.IsZero() {
		if err := os.Chtimes(abs, modTime, modTime); err != nil {
			// File is fine, only the timestamp is off.
			d.log.Debug("Failed to set file time", zap.String("file", rel), zap.Error(err))
		}
	}
	return nil
}

// Exists reports whether rel is already present in the archive.
func (d *Downloader) Exists(rel string) bool {
	_, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(rel)))
	return err == nil
}
