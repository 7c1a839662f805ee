package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halfdata/gphoto-backup/internal/auth"
	"github.com/halfdata/gphoto-backup/internal/config"
	"github.com/halfdata/gphoto-backup/internal/store"
)

const testClientSecret = `{
	"web": {
		"client_id": "client-id.apps.googleusercontent.com",
		"client_secret": "shhh",
		"auth_uri": "https://accounts.google.com/o/oauth2/auth",
		"token_uri": "https://oauth2.googleapis.com/token",
		"redirect_uris": ["http://localhost:8080/callback"]
	}
}`

type testEnv struct {
	server  *Server
	handler http.Handler
	store   *store.Store
	user    store.User
	cookie  *http.Cookie
	root    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	st, err := store.Open(filepath.Join(root, "db.sqlite3"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	id, err := st.AddUser("google-uid", "user@example.com", "")
	require.NoError(t, err)
	user, err := st.UserByID(id)
	require.NoError(t, err)

	secretPath := filepath.Join(root, "client_secret.json")
	require.NoError(t, os.WriteFile(secretPath, []byte(testClientSecret), 0o600))
	flow, err := auth.NewFlow(secretPath, "http://localhost:8080/callback",
		[]string{"openid"}, zap.NewNop())
	require.NoError(t, err)

	sessions, err := auth.NewSessions("test-key", time.Hour)
	require.NoError(t, err)
	session, err := sessions.Issue(user.ID)
	require.NoError(t, err)

	cfg := &config.Config{
		Server:  config.ServerConfig{ListenAddr: "localhost:0", ExternalURL: "http://localhost:8080"},
		Storage: config.StorageConfig{Path: root, DatabaseFile: "db.sqlite3", ThumbnailsFolder: "thumbnails"},
		Backup:  config.BackupConfig{PageSize: 10, Concurrency: 2, WatchdogTimeout: time.Second, ThumbnailSize: 256},
		Gallery: config.GalleryConfig{ItemsPerPage: 2, ContainerWidth: 800},
	}

	srv, err := New(cfg, st, flow, sessions, zap.NewNop())
	require.NoError(t, err)

	return &testEnv{
		server:  srv,
		handler: srv.Handler(),
		store:   st,
		user:    *user,
		cookie:  &http.Cookie{Name: auth.CookieName, Value: session},
		root:    root,
	}
}

func (e *testEnv) get(t *testing.T, path string, signedIn bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if signedIn {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedMedia(t *testing.T, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := e.store.AddMediaItem(&store.MediaItem{
			UserID:           e.user.ID,
			UID:              fmt.Sprintf("uid-%d", i),
			Type:             "photo",
			CreationTime:     fmt.Sprintf("2021-07-%02dT10:00:00Z", i),
			OriginalFilename: fmt.Sprintf("IMG_%03d.jpg", i),
			Filename:         fmt.Sprintf("2021/07/IMG_%03d.jpg", i),
			Thumbnail:        fmt.Sprintf("thumbnails/uid-%d.jpg", i),
			Width:            4000,
			Height:           3000,
		})
		require.NoError(t, err)
	}
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in with Google")

	rec = env.get(t, "/", true)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, fmt.Sprintf("/users/%d/mediaitems", env.user.ID), rec.Header().Get("Location"))
}

func TestAuthorizeRedirectsToGoogle(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/authorize", false)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "accounts.google.com")
}

func TestGalleryPage(t *testing.T) {
	env := newTestEnv(t)
	env.seedMedia(t, 5) // 3 pages at 2 per page

	base := fmt.Sprintf("/users/%d/mediaitems", env.user.ID)

	rec := env.get(t, base, true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "/library/")
	assert.Contains(t, body, "of 3", "pager should show the page count")

	rec = env.get(t, base+"/3", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.get(t, base+"/4", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.get(t, base+"/0", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.get(t, base+"/abc", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGalleryAccessControl(t *testing.T) {
	env := newTestEnv(t)
	env.seedMedia(t, 1)

	base := fmt.Sprintf("/users/%d/mediaitems", env.user.ID)

	rec := env.get(t, base, false)
	assert.Equal(t, http.StatusFound, rec.Code, "anonymous visitors go to the sign-in page")

	rec = env.get(t, fmt.Sprintf("/users/%d/mediaitems", env.user.ID+1), true)
	assert.Equal(t, http.StatusForbidden, rec.Code, "galleries are private per account")
}

func TestGotoClampsAndRedirects(t *testing.T) {
	env := newTestEnv(t)
	env.seedMedia(t, 5) // 3 pages

	base := fmt.Sprintf("/users/%d/mediaitems", env.user.ID)

	rec := env.get(t, base+"/goto?page=999", true)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, base+"/3", rec.Header().Get("Location"))

	rec = env.get(t, base+"/goto?page=0", true)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, base+"/1", rec.Header().Get("Location"))

	// Garbage resets the field without navigating anywhere.
	rec = env.get(t, base+"/goto?page=abc", true)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, base, rec.Header().Get("Location"))
}

func TestThumbnailServing(t *testing.T) {
	env := newTestEnv(t)
	env.seedMedia(t, 1)

	thumb := filepath.Join(env.root, env.user.Email, "thumbnails", "uid-1.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(thumb), 0o755))
	require.NoError(t, os.WriteFile(thumb, []byte("jpeg bytes"), 0o644))

	item, err := env.store.MediaItemByUID(env.user.ID, "uid-1")
	require.NoError(t, err)
	require.NotNil(t, item)

	rec := env.get(t, fmt.Sprintf("/library/%d/thumbnails/%d", env.user.ID, item.ID), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg bytes", rec.Body.String())

	// Unknown item.
	rec = env.get(t, fmt.Sprintf("/library/%d/thumbnails/99999", env.user.ID), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlbumPages(t *testing.T) {
	env := newTestEnv(t)
	env.seedMedia(t, 2)
	require.NoError(t, env.store.UpsertAlbum(&store.Album{
		UserID: env.user.ID, UID: "album-1", Title: "Holidays", CoverUID: "uid-1", TotalItems: 2,
	}))
	require.NoError(t, env.store.SetAlbumItem("album-1", "uid-1"))
	require.NoError(t, env.store.SetAlbumItem("album-1", "uid-2"))

	rec := env.get(t, fmt.Sprintf("/users/%d/albums", env.user.ID), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Holidays")

	albums, err := env.store.AlbumPage(env.user.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, albums, 1)
	album := albums[0]

	rec = env.get(t, fmt.Sprintf("/users/%d/albums/%d/mediaitems", env.user.ID, album.ID), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Holidays")

	rec = env.get(t, fmt.Sprintf("/users/%d/albums/99999/mediaitems", env.user.ID), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/no/such/page", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found")
}
