// Package backup crawls a user's Google Photos library and mirrors it
// into the local archive: originals, thumbnails, database rows and
// album membership. A crawl resumes from the persisted page cursor, so
// interrupting it costs at most one page of work.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/halfdata/gphoto-backup/internal/config"
	"github.com/halfdata/gphoto-backup/internal/photosapi"
	"github.com/halfdata/gphoto-backup/internal/store"
)

// Per-user options the crawler persists between runs.
const (
	optNextPageToken = "next-page-token"
	optCurrentCycle  = "current-cycle"
)

const albumPageSize = 50

// ErrWatchdog reports that the progress consumer stopped reading, so
// the crawl was terminated rather than left running unattended.
var ErrWatchdog = errors.New("progress consumer gone, crawl terminated")

// Photos is the slice of the API client the crawler needs.
type Photos interface {
	ListMediaItems(ctx context.Context, pageSize int, pageToken string) (*photosapi.MediaItemsPage, error)
	ListAlbums(ctx context.Context, pageSize int, pageToken string) (*photosapi.AlbumsPage, error)
	SearchAlbumItems(ctx context.Context, albumID string, pageSize int, pageToken string) (*photosapi.MediaItemsPage, error)
}

// Runner performs one full backup pass for one user.
type Runner struct {
	cfg      config.BackupConfig
	store    *store.Store
	photos   Photos
	files    *Downloader
	lock     *Lock
	user     store.User
	thumbDir string
	log      *zap.Logger

	cycle int64
}

// NewRunner wires a runner for user. files downloads media bytes and
// must not carry OAuth headers beyond what baseUrl downloads need (the
// URLs are self-authorizing).
func NewRunner(
	cfg config.BackupConfig,
	storageCfg config.StorageConfig,
	st *store.Store,
	photos Photos,
	files *Downloader,
	lock *Lock,
	user store.User,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		cfg:      cfg,
		store:    st,
		photos:   photos,
		files:    files,
		lock:     lock,
		user:     user,
		thumbDir: storageCfg.ThumbnailsFolder,
		log:      logger.Named("backup").With(zap.String("user", user.Email)),
	}
}

// UserRoot is the per-user archive folder under the storage root.
func UserRoot(storageCfg config.StorageConfig, user store.User) string {
	return filepath.Join(storageCfg.Path, user.Email)
}

// Run executes one backup pass: all remaining media pages, then an
// album sync. Progress lines go to progress; if the consumer stops
// reading for longer than the watchdog timeout the crawl terminates
// with ErrWatchdog.
func (r *Runner) Run(ctx context.Context, progress chan<- string) error {
	if !r.lock.TryAcquire() {
		if err := r.emit(ctx, progress, "Waiting for termination of other crawling process."); err != nil {
			return err
		}
		if err := r.lock.Acquire(ctx); err != nil {
			return err
		}
	}
	defer r.lock.Release()

	if _, err := r.store.Option(r.user.ID, optCurrentCycle, &r.cycle); err != nil {
		return err
	}
	if err := r.emit(ctx, progress, "Start downloading..."); err != nil {
		return err
	}

	for {
		done, err := r.processNextPage(ctx, progress)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	if err := r.syncAlbums(ctx, progress); err != nil {
		return err
	}
	return r.emit(ctx, progress, "Backup pass complete.")
}

// emit delivers one progress line, logging it as well. The send is
// bounded by the watchdog timeout: a gone consumer must not leave a
// crawl running forever.
func (r *Runner) emit(ctx context.Context, progress chan<- string, msg string) error {
	r.log.Info(msg)
	select {
	case progress <- msg:
		return nil
	case <-time.After(r.cfg.WatchdogTimeout):
		return ErrWatchdog
	case <-ctx.Done():
		return ctx.Err()
	}
}

// job carries one media item through planning and download.
type job struct {
	item     photosapi.MediaItem
	rowID    int64
	rel      string
	thumbRel string
	err      error
}

// processNextPage fetches one library page, records its items and
// downloads what is missing. It reports done once the library is
// exhausted.
func (r *Runner) processNextPage(ctx context.Context, progress chan<- string) (bool, error) {
	var token string
	if _, err := r.store.Option(r.user.ID, optNextPageToken, &token); err != nil {
		return false, err
	}

	page, err := r.photos.ListMediaItems(ctx, r.cfg.PageSize, token)
	if err != nil {
		return false, fmt.Errorf("failed to fetch library page: %w", err)
	}

	var jobs []*job
	for _, item := range page.MediaItems {
		j, skip, err := r.planItem(item)
		if err != nil {
			return false, err
		}
		if skip != "" {
			if err := r.emit(ctx, progress, item.Filename+" - "+skip); err != nil {
				return false, err
			}
			continue
		}
		jobs = append(jobs, j)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			j.err = r.download(gctx, j)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for _, j := range jobs {
		msg := j.item.Filename + " - downloaded"
		if j.err != nil {
			r.log.Warn("Download failed", zap.String("file", j.rel), zap.Error(j.err))
			msg = j.item.Filename + " - failed to download"
		}
		if err := r.emit(ctx, progress, msg); err != nil {
			return false, err
		}
	}

	if page.NextPageToken != "" {
		return false, r.store.SetOption(r.user.ID, optNextPageToken, page.NextPageToken)
	}
	// Library exhausted: clear the cursor and open the next cycle.
	if err := r.store.SetOption(r.user.ID, optNextPageToken, nil); err != nil {
		return false, err
	}
	r.cycle++
	return true, r.store.SetOption(r.user.ID, optCurrentCycle, r.cycle)
}

// planItem reconciles one API item against the database and decides
// whether anything needs downloading. A non-empty skip names the
// reason for doing nothing.
func (r *Runner) planItem(item photosapi.MediaItem) (*job, string, error) {
	if !item.VideoReady() {
		return nil, "not ready", nil
	}

	existing, err := r.store.MediaItemByUID(r.user.ID, item.ID)
	if err != nil {
		return nil, "", err
	}

	thumbRel := path.Join(r.thumbDir, item.ID+".jpg")
	if existing != nil {
		if err := r.store.TouchMediaItem(existing.ID, r.cycle); err != nil {
			return nil, "", err
		}
		if existing.Filename != "" && r.files.Exists(existing.Filename) {
			return nil, "already downloaded", nil
		}
		rel := existing.Filename
		if rel == "" {
			rel = r.uniquePath(item)
		}
		return &job{item: item, rowID: existing.ID, rel: rel, thumbRel: thumbRel}, "", nil
	}

	rel := r.uniquePath(item)
	rowID, err := r.store.AddMediaItem(&store.MediaItem{
		UserID:           r.user.ID,
		UID:              item.ID,
		Type:             mediaType(item),
		MimeType:         item.MimeType,
		ProductURL:       item.ProductURL,
		CreationTime:     item.MediaMetadata.CreationTime,
		OriginalFilename: item.Filename,
		Filename:         rel,
		Width:            parseDimension(item.MediaMetadata.Width),
		Height:           parseDimension(item.MediaMetadata.Height),
		LastSeen:         r.cycle,
	})
	if err != nil {
		return nil, "", err
	}
	return &job{item: item, rowID: rowID, rel: rel, thumbRel: thumbRel}, "", nil
}

func (r *Runner) uniquePath(item photosapi.MediaItem) string {
	return uniqueFilename(item.MediaMetadata.CreationTime, item.Filename, func(rel string) bool {
		if r.files.Exists(rel) {
			return true
		}
		m, err := r.store.MediaItemByFilename(r.user.ID, rel)
		return err == nil && m != nil
	})
}

// download fetches the original and its thumbnail, then marks the row
// complete.
func (r *Runner) download(ctx context.Context, j *job) error {
	suffix := "=d"
	if j.item.IsVideo() {
		suffix = "=dv"
	}
	modTime := creationTimestamp(j.item.MediaMetadata.CreationTime)
	if err := r.files.Fetch(ctx, j.item.BaseURL+suffix, j.rel, modTime); err != nil {
		return err
	}
	thumbURL := fmt.Sprintf("%s=w%d-h%d", j.item.BaseURL, r.cfg.ThumbnailSize, r.cfg.ThumbnailSize)
	if err := r.files.Fetch(ctx, thumbURL, j.thumbRel, modTime); err != nil {
		return err
	}
	return r.store.UpdateMediaItem(j.rowID, j.rel, j.thumbRel, r.cycle)
}

// syncAlbums refreshes the album list and membership. Albums are small
// compared to the library, so they resync fully on every pass instead
// of keeping their own cursor.
func (r *Runner) syncAlbums(ctx context.Context, progress chan<- string) error {
	token := ""
	for {
		page, err := r.photos.ListAlbums(ctx, albumPageSize, token)
		if err != nil {
			return fmt.Errorf("failed to fetch albums page: %w", err)
		}
		for _, album := range page.Albums {
			if err := r.syncAlbum(ctx, album); err != nil {
				return err
			}
			if err := r.emit(ctx, progress, "Album: "+album.Title+" - synced"); err != nil {
				return err
			}
		}
		if page.NextPageToken == "" {
			return nil
		}
		token = page.NextPageToken
	}
}

func (r *Runner) syncAlbum(ctx context.Context, album photosapi.Album) error {
	total, _ := strconv.ParseInt(album.MediaItemsCount, 10, 64)
	if err := r.store.UpsertAlbum(&store.Album{
		UserID:     r.user.ID,
		UID:        album.ID,
		Title:      album.Title,
		CoverUID:   album.CoverPhotoMediaItemID,
		TotalItems: total,
		LastSeen:   r.cycle,
	}); err != nil {
		return err
	}

	token := ""
	for {
		page, err := r.photos.SearchAlbumItems(ctx, album.ID, albumPageSize, token)
		if err != nil {
			return fmt.Errorf("failed to fetch contents of album %q: %w", album.Title, err)
		}
		for _, item := range page.MediaItems {
			if err := r.store.SetAlbumItem(album.ID, item.ID); err != nil {
				return err
			}
		}
		if page.NextPageToken == "" {
			return nil
		}
		token = page.NextPageToken
	}
}

func mediaType(item photosapi.MediaItem) string {
	if item.IsVideo() {
		return "video"
	}
	return "photo"
}

// parseDimension converts the API's decimal-string pixel sizes.
func parseDimension(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// creationTimestamp parses an RFC 3339 creation time; zero when
// missing or malformed.
func creationTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
