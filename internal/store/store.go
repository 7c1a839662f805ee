// Package store persists users, media items and albums in a local
// sqlite database.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store wraps the sqlite connection. sqlite allows one writer, so all
// access funnels through a single connection guarded by a RWMutex.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	log *zap.Logger
}

// Open opens (creating if necessary) the database at path and runs the
// migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, log: logger.Named("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL,
			email TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE TABLE IF NOT EXISTS options (
			user_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS media (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			mediaitem_uid TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			mime_type TEXT NOT NULL DEFAULT '',
			product_url TEXT NOT NULL DEFAULT '',
			creation_time TEXT NOT NULL DEFAULT '',
			original_filename TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL DEFAULT '',
			thumbnail TEXT NOT NULL DEFAULT '',
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			last_seen INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_media_uid ON media(user_id, mediaitem_uid)`,
		`CREATE INDEX IF NOT EXISTS idx_media_filename ON media(user_id, filename)`,
		`CREATE INDEX IF NOT EXISTS idx_media_creation_time ON media(creation_time)`,
		`CREATE TABLE IF NOT EXISTS albums (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			album_uid TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			cover_uid TEXT NOT NULL DEFAULT '',
			total_items INTEGER NOT NULL DEFAULT 0,
			last_seen INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_albums_uid ON albums(user_id, album_uid)`,
		`CREATE TABLE IF NOT EXISTS album_items (
			album_uid TEXT NOT NULL,
			mediaitem_uid TEXT NOT NULL,
			PRIMARY KEY (album_uid, mediaitem_uid)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// -- Users --

const userColumns = "id, uid, email, image_url"

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.UID, &u.Email, &u.ImageURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// UserByID returns the user with the given id, or nil when absent.
func (s *Store) UserByID(id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// UserByUID returns the user with the given Google account id, or
// nil.
func (s *Store) UserByUID(uid string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE uid = ? LIMIT 1`, uid))
}

// UserByEmail returns the user with the given email, or nil.
func (s *Store) UserByEmail(email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email))
}

// AddUser inserts a new user and returns its id.
func (s *Store) AddUser(uid, email, imageURL string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO users (uid, email, image_url) VALUES (?, ?, ?)`,
		uid, email, imageURL)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	return res.LastInsertId()
}

// Users lists every known user.
func (s *Store) Users() ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.UID, &u.Email, &u.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// -- Options --

// Option unmarshals the JSON-encoded per-user option into out and
// reports whether the key existed.
func (s *Store) Option(userID int64, key string, out any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw string
	err := s.db.QueryRow(
		`SELECT value FROM options WHERE user_id = ? AND key = ?`,
		userID, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get option %q: %w", key, err)
	}
	if err := json.UnmarshalFromString(raw, out); err != nil {
		// Unreadable values behave like missing ones; the caller's
		// default applies.
		s.log.Warn("Discarding malformed option value",
			zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// SetOption JSON-encodes value under key. A nil value deletes the key.
func (s *Store) SetOption(userID int64, key string, value any) error {
	if value == nil {
		return s.DeleteOption(userID, key)
	}
	encoded, err := json.MarshalToString(value)
	if err != nil {
		return fmt.Errorf("failed to encode option %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO options (user_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value`,
		userID, key, encoded)
	if err != nil {
		return fmt.Errorf("failed to set option %q: %w", key, err)
	}
	return nil
}

// DeleteOption removes key for the user. Missing keys are fine.
func (s *Store) DeleteOption(userID int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`DELETE FROM options WHERE user_id = ? AND key = ?`, userID, key); err != nil {
		return fmt.Errorf("failed to delete option %q: %w", key, err)
	}
	return nil
}

// -- Media items --

const mediaColumns = `id, user_id, mediaitem_uid, type, mime_type, product_url,
	creation_time, original_filename, filename, thumbnail, width, height, last_seen`

func scanMediaItem(scan func(dest ...any) error) (*MediaItem, error) {
	var m MediaItem
	err := scan(&m.ID, &m.UserID, &m.UID, &m.Type, &m.MimeType, &m.ProductURL,
		&m.CreationTime, &m.OriginalFilename, &m.Filename, &m.Thumbnail,
		&m.Width, &m.Height, &m.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan media item: %w", err)
	}
	return &m, nil
}

// MediaItemByID returns the user's media item with the given row id.
func (s *Store) MediaItemByID(userID, id int64) (*MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(
		`SELECT `+mediaColumns+` FROM media WHERE user_id = ? AND id = ?`,
		userID, id)
	return scanMediaItem(row.Scan)
}

// MediaItemByUID returns the user's media item with the given Photos
// API id.
func (s *Store) MediaItemByUID(userID int64, uid string) (*MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(
		`SELECT `+mediaColumns+` FROM media WHERE user_id = ? AND mediaitem_uid = ? LIMIT 1`,
		userID, uid)
	return scanMediaItem(row.Scan)
}

// MediaItemByFilename looks a media item up by its relative file path.
func (s *Store) MediaItemByFilename(userID int64, filename string) (*MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(
		`SELECT `+mediaColumns+` FROM media WHERE user_id = ? AND filename = ? LIMIT 1`,
		userID, filename)
	return scanMediaItem(row.Scan)
}

// AddMediaItem inserts m and returns its id.
func (s *Store) AddMediaItem(m *MediaItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO media (user_id, mediaitem_uid, type, mime_type, product_url,
			creation_time, original_filename, filename, thumbnail, width, height, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, m.UID, m.Type, m.MimeType, m.ProductURL,
		m.CreationTime, m.OriginalFilename, m.Filename, m.Thumbnail,
		m.Width, m.Height, m.LastSeen)
	if err != nil {
		return 0, fmt.Errorf("failed to insert media item: %w", err)
	}
	return res.LastInsertId()
}

// UpdateMediaItem rewrites the mutable columns of a media row.
func (s *Store) UpdateMediaItem(id int64, filename, thumbnail string, lastSeen int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`UPDATE media SET filename = ?, thumbnail = ?, last_seen = ? WHERE id = ?`,
		filename, thumbnail, lastSeen, id); err != nil {
		return fmt.Errorf("failed to update media item %d: %w", id, err)
	}
	return nil
}

// TouchMediaItem marks a media row as seen in the given cycle.
func (s *Store) TouchMediaItem(id, lastSeen int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`UPDATE media SET last_seen = ? WHERE id = ?`, lastSeen, id); err != nil {
		return fmt.Errorf("failed to touch media item %d: %w", id, err)
	}
	return nil
}

// MediaCount returns how many media items the user has.
func (s *Store) MediaCount(userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM media WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count media items: %w", err)
	}
	return n, nil
}

// MediaPage returns one gallery page of the user's media items, newest
// first.
func (s *Store) MediaPage(userID int64, offset, limit int) ([]MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(
		`SELECT `+mediaColumns+` FROM media WHERE user_id = ?
		 ORDER BY creation_time DESC, id DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query media page: %w", err)
	}
	defer rows.Close()
	return collectMediaItems(rows)
}

func collectMediaItems(rows *sql.Rows) ([]MediaItem, error) {
	var items []MediaItem
	for rows.Next() {
		m, err := scanMediaItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	return items, rows.Err()
}

// -- Albums --

const albumColumns = "id, user_id, album_uid, title, cover_uid, total_items, last_seen"

// AlbumByID returns the user's album with the given row id, or nil.
func (s *Store) AlbumByID(userID, id int64) (*Album, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var a Album
	err := s.db.QueryRow(
		`SELECT `+albumColumns+` FROM albums WHERE user_id = ? AND id = ?`,
		userID, id).Scan(&a.ID, &a.UserID, &a.UID, &a.Title, &a.CoverUID, &a.TotalItems, &a.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}
	return &a, nil
}

// UpsertAlbum inserts or refreshes an album row keyed by its API id.
func (s *Store) UpsertAlbum(a *Album) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO albums (user_id, album_uid, title, cover_uid, total_items, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		a.UserID, a.UID, a.Title, a.CoverUID, a.TotalItems, a.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to insert album: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE albums SET title = ?, cover_uid = ?, total_items = ?, last_seen = ?
		 WHERE user_id = ? AND album_uid = ?`,
		a.Title, a.CoverUID, a.TotalItems, a.LastSeen, a.UserID, a.UID)
	if err != nil {
		return fmt.Errorf("failed to update album: %w", err)
	}
	return nil
}

// AlbumCount returns how many albums the user has.
func (s *Store) AlbumCount(userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM albums WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count albums: %w", err)
	}
	return n, nil
}

// AlbumPage returns one page of the user's albums.
func (s *Store) AlbumPage(userID int64, offset, limit int) ([]Album, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(
		`SELECT `+albumColumns+` FROM albums WHERE user_id = ?
		 ORDER BY title, id LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query album page: %w", err)
	}
	defer rows.Close()

	var albums []Album
	for rows.Next() {
		var a Album
		if err := rows.Scan(&a.ID, &a.UserID, &a.UID, &a.Title, &a.CoverUID,
			&a.TotalItems, &a.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan album row: %w", err)
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// -- Album contents --

// SetAlbumItem records that a media item belongs to an album.
func (s *Store) SetAlbumItem(albumUID, mediaUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT INTO album_items (album_uid, mediaitem_uid) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`, albumUID, mediaUID); err != nil {
		return fmt.Errorf("failed to insert album item: %w", err)
	}
	return nil
}

// AlbumItemCount returns how many media items the album holds locally.
func (s *Store) AlbumItemCount(albumUID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM album_items WHERE album_uid = ?`, albumUID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count album items: %w", err)
	}
	return n, nil
}

// AlbumItemPage returns one page of an album's media items.
func (s *Store) AlbumItemPage(userID int64, albumUID string, offset, limit int) ([]MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// media.* keeps the column order of the CREATE TABLE statement,
	// which is the scan order; unqualified names would be ambiguous
	// against album_items.mediaitem_uid.
	rows, err := s.db.Query(
		`SELECT media.* FROM media
		 JOIN album_items ON album_items.mediaitem_uid = media.mediaitem_uid
		 WHERE media.user_id = ? AND album_items.album_uid = ?
		 ORDER BY media.creation_time DESC, media.id DESC LIMIT ? OFFSET ?`,
		userID, albumUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query album item page: %w", err)
	}
	defer rows.Close()

	var items []MediaItem
	for rows.Next() {
		var m MediaItem
		if err := rows.Scan(&m.ID, &m.UserID, &m.UID, &m.Type, &m.MimeType,
			&m.ProductURL, &m.CreationTime, &m.OriginalFilename, &m.Filename,
			&m.Thumbnail, &m.Width, &m.Height, &m.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan album media row: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
