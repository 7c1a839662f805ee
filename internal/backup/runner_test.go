package backup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/halfdata/gphoto-backup/internal/config"
	"github.com/halfdata/gphoto-backup/internal/photosapi"
	"github.com/halfdata/gphoto-backup/internal/store"
)

// fakePhotos serves canned pages keyed by page token.
type fakePhotos struct {
	media      map[string]*photosapi.MediaItemsPage
	albums     *photosapi.AlbumsPage
	albumItems map[string]*photosapi.MediaItemsPage
}

func (f *fakePhotos) ListMediaItems(_ context.Context, _ int, token string) (*photosapi.MediaItemsPage, error) {
	if page, ok := f.media[token]; ok {
		return page, nil
	}
	return &photosapi.MediaItemsPage{}, nil
}

func (f *fakePhotos) ListAlbums(_ context.Context, _ int, _ string) (*photosapi.AlbumsPage, error) {
	if f.albums != nil {
		return f.albums, nil
	}
	return &photosapi.AlbumsPage{}, nil
}

func (f *fakePhotos) SearchAlbumItems(_ context.Context, albumID string, _ int, _ string) (*photosapi.MediaItemsPage, error) {
	if page, ok := f.albumItems[albumID]; ok {
		return page, nil
	}
	return &photosapi.MediaItemsPage{}, nil
}

func photoItem(id, filename, created, baseURL string) photosapi.MediaItem {
	return photosapi.MediaItem{
		ID:       id,
		Filename: filename,
		MimeType: "image/jpeg",
		BaseURL:  baseURL + "/" + id,
		MediaMetadata: photosapi.MediaMetadata{
			CreationTime: created,
			Width:        "4000",
			Height:       "3000",
			Photo:        &photosapi.PhotoMetadata{},
		},
	}
}

func videoItem(id, filename, created, baseURL, status string) photosapi.MediaItem {
	return photosapi.MediaItem{
		ID:       id,
		Filename: filename,
		MimeType: "video/mp4",
		BaseURL:  baseURL + "/" + id,
		MediaMetadata: photosapi.MediaMetadata{
			CreationTime: created,
			Video:        &photosapi.VideoMetadata{Status: status},
		},
	}
}

func newTestEnv(t *testing.T) (*store.Store, store.User, config.StorageConfig) {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "db.sqlite3"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	id, err := st.AddUser("google-uid", "user@example.com", "")
	require.NoError(t, err)
	user, err := st.UserByID(id)
	require.NoError(t, err)
	return st, *user, config.StorageConfig{
		Path:             root,
		DatabaseFile:     "db.sqlite3",
		ThumbnailsFolder: "thumbnails",
	}
}

func testBackupConfig() config.BackupConfig {
	return config.BackupConfig{
		PageSize:        10,
		Concurrency:     3,
		WatchdogTimeout: time.Second,
		ThumbnailSize:   256,
	}
}

func newTestRunner(st *store.Store, fp Photos, user store.User, storageCfg config.StorageConfig, client *http.Client, cfg config.BackupConfig) *Runner {
	files := NewDownloader(client, UserRoot(storageCfg, user), zap.NewNop())
	return NewRunner(cfg, storageCfg, st, fp, files, NewLock(), user, zap.NewNop())
}

// runCollect drives one pass and gathers every progress line.
func runCollect(t *testing.T, r *Runner) []string {
	t.Helper()
	progress := make(chan string)
	var msgs []string
	done := make(chan struct{})
	go func() {
		for m := range progress {
			msgs = append(msgs, m)
		}
		close(done)
	}()
	err := r.Run(context.Background(), progress)
	close(progress)
	<-done
	require.NoError(t, err)
	return msgs
}

func TestRunnerFullPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes for " + r.URL.Path))
	}))
	defer srv.Close()

	st, user, storageCfg := newTestEnv(t)
	fp := &fakePhotos{
		media: map[string]*photosapi.MediaItemsPage{
			"": {
				MediaItems: []photosapi.MediaItem{
					photoItem("m1", "IMG_001.jpg", "2021-07-15T10:31:00Z", srv.URL),
					videoItem("v1", "MOV_001.mp4", "2021-07-16T08:00:00Z", srv.URL, "PROCESSING"),
				},
				NextPageToken: "p2",
			},
			"p2": {
				MediaItems: []photosapi.MediaItem{
					// Same original filename in the same month: must
					// land next to m1 with a -2 suffix.
					photoItem("m2", "IMG_001.jpg", "2021-07-20T12:00:00Z", srv.URL),
				},
			},
		},
		albums: &photosapi.AlbumsPage{Albums: []photosapi.Album{{
			ID:                    "a1",
			Title:                 "Summer",
			CoverPhotoMediaItemID: "m1",
			MediaItemsCount:       "2",
		}}},
		albumItems: map[string]*photosapi.MediaItemsPage{
			"a1": {MediaItems: []photosapi.MediaItem{{ID: "m1"}, {ID: "m2"}}},
		},
	}
	runner := newTestRunner(st, fp, user, storageCfg, srv.Client(), testBackupConfig())

	msgs := runCollect(t, runner)
	joined := strings.Join(msgs, "\n")
	assert.Contains(t, joined, "MOV_001.mp4 - not ready")
	assert.Contains(t, joined, "IMG_001.jpg - downloaded")
	assert.Contains(t, joined, "Album: Summer - synced")

	userRoot := UserRoot(storageCfg, user)
	for _, rel := range []string{
		"2021/07/IMG_001.jpg",
		"2021/07/IMG_001-2.jpg",
		"thumbnails/m1.jpg",
		"thumbnails/m2.jpg",
	} {
		assert.FileExists(t, filepath.Join(userRoot, filepath.FromSlash(rel)), rel)
	}

	m1, err := st.MediaItemByUID(user.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, m1)
	assert.Equal(t, "2021/07/IMG_001.jpg", m1.Filename)
	assert.Equal(t, "thumbnails/m1.jpg", m1.Thumbnail)
	assert.Equal(t, int64(4000), m1.Width)

	m2, err := st.MediaItemByUID(user.ID, "m2")
	require.NoError(t, err)
	require.NotNil(t, m2)
	assert.Equal(t, "2021/07/IMG_001-2.jpg", m2.Filename)

	// The not-ready video must not have been recorded.
	v1, err := st.MediaItemByUID(user.ID, "v1")
	require.NoError(t, err)
	assert.Nil(t, v1)

	// Cursor cleared, cycle advanced.
	var token string
	found, err := st.Option(user.ID, optNextPageToken, &token)
	require.NoError(t, err)
	assert.False(t, found)
	var cycle int64
	found, err = st.Option(user.ID, optCurrentCycle, &cycle)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), cycle)

	count, err := st.AlbumItemCount("a1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Second pass: everything is already on disk.
	runner = newTestRunner(st, fp, user, storageCfg, srv.Client(), testBackupConfig())
	msgs = runCollect(t, runner)
	joined = strings.Join(msgs, "\n")
	assert.Contains(t, joined, "IMG_001.jpg - already downloaded")
	for _, m := range msgs {
		assert.NotEqual(t, "IMG_001.jpg - downloaded", m, "nothing should be refetched")
	}

	m1, err = st.MediaItemByUID(user.ID, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m1.LastSeen, "second pass must refresh last_seen")
}

func TestRunnerDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	st, user, storageCfg := newTestEnv(t)
	fp := &fakePhotos{
		media: map[string]*photosapi.MediaItemsPage{
			"": {MediaItems: []photosapi.MediaItem{
				photoItem("bad1", "BROKEN.jpg", "2021-07-15T10:31:00Z", srv.URL),
			}},
		},
	}
	runner := newTestRunner(st, fp, user, storageCfg, srv.Client(), testBackupConfig())

	msgs := runCollect(t, runner)
	assert.Contains(t, strings.Join(msgs, "\n"), "BROKEN.jpg - failed to download")

	// Row exists so the filename stays reserved, but it is not marked
	// complete and the next pass retries it.
	m, err := st.MediaItemByUID(user.ID, "bad1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Empty(t, m.Thumbnail)
}

func TestRunnerWatchdog(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	st, user, storageCfg := newTestEnv(t)
	cfg := testBackupConfig()
	cfg.WatchdogTimeout = 20 * time.Millisecond
	runner := newTestRunner(st, &fakePhotos{}, user, storageCfg, http.DefaultClient, cfg)

	progress := make(chan string) // nobody reads
	err := runner.Run(context.Background(), progress)
	require.ErrorIs(t, err, ErrWatchdog)
}

func TestRunnerWaitsForBusyLock(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	st, user, storageCfg := newTestEnv(t)
	lock := NewLock()
	require.True(t, lock.TryAcquire())
	defer lock.Release()

	files := NewDownloader(http.DefaultClient, UserRoot(storageCfg, user), zap.NewNop())
	runner := NewRunner(testBackupConfig(), storageCfg, st, &fakePhotos{}, files, lock, user, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	progress := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		<-progress // the waiting notice
		cancel()
		close(done)
	}()

	err := runner.Run(ctx, progress)
	require.ErrorIs(t, err, context.Canceled)
	<-done
}
