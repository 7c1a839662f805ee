package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/halfdata/gphoto-backup/internal/backup"
	"github.com/halfdata/gphoto-backup/internal/gallery"
	"github.com/halfdata/gphoto-backup/internal/store"
)

// pathUser parses {user} and checks it is the signed-in account.
// Galleries are private even on a multi-account install.
func (s *Server) pathUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	id, err := strconv.ParseInt(r.PathValue("user"), 10, 64)
	if err != nil {
		s.notFound(w, r)
		return nil, false
	}
	current := s.currentUser(r)
	if current == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return nil, false
	}
	if current.ID != id {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return current, true
}

// pathPage parses the optional {page} segment. A missing segment is
// page one; a malformed or out-of-range one is a 404, since the URL is
// an address, not an input field.
func (s *Server) pathPage(w http.ResponseWriter, r *http.Request, pages int) (int, bool) {
	raw := r.PathValue("page")
	page := 1
	if raw != "" {
		var err error
		if page, err = strconv.Atoi(raw); err != nil {
			s.notFound(w, r)
			return 0, false
		}
	}
	if page < 1 || page > pages {
		s.notFound(w, r)
		return 0, false
	}
	return page, true
}

func (s *Server) handleMediaItems(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	total, err := s.store.MediaCount(user.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	perPage := s.cfg.Gallery.ItemsPerPage
	pages := gallery.PageCount(total, perPage)
	page, ok := s.pathPage(w, r, pages)
	if !ok {
		return
	}
	items, err := s.store.MediaPage(user.ID, (page-1)*perPage, perPage)
	if err != nil {
		s.internalError(w, err)
		return
	}

	base := fmt.Sprintf("/users/%d/mediaitems", user.ID)
	s.render(w, http.StatusOK, "gallery.html", galleryPage{
		baseView: baseView{Title: "Library", User: user},
		Heading:  "Library",
		Items:    s.buildMediaViews(user, items),
		Pager:    newPager(base, page, pages),
	})
}

func (s *Server) handleAlbums(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	total, err := s.store.AlbumCount(user.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	perPage := s.cfg.Gallery.ItemsPerPage
	pages := gallery.PageCount(total, perPage)
	page, ok := s.pathPage(w, r, pages)
	if !ok {
		return
	}
	albums, err := s.store.AlbumPage(user.ID, (page-1)*perPage, perPage)
	if err != nil {
		s.internalError(w, err)
		return
	}

	views := make([]albumView, len(albums))
	for i, a := range albums {
		views[i] = albumView{
			Title:      a.Title,
			ItemsURL:   fmt.Sprintf("/users/%d/albums/%d/mediaitems", user.ID, a.ID),
			TotalItems: a.TotalItems,
		}
		if a.CoverUID != "" {
			cover, err := s.store.MediaItemByUID(user.ID, a.CoverUID)
			if err == nil && cover != nil && cover.Thumbnail != "" {
				views[i].CoverURL = fmt.Sprintf("/library/%d/thumbnails/%d", user.ID, cover.ID)
			}
		}
	}

	base := fmt.Sprintf("/users/%d/albums", user.ID)
	s.render(w, http.StatusOK, "albums.html", albumsPage{
		baseView: baseView{Title: "Albums", User: user},
		Albums:   views,
		Pager:    newPager(base, page, pages),
	})
}

func (s *Server) handleAlbumItems(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	albumID, err := strconv.ParseInt(r.PathValue("album"), 10, 64)
	if err != nil {
		s.notFound(w, r)
		return
	}
	album, err := s.store.AlbumByID(user.ID, albumID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if album == nil {
		s.notFound(w, r)
		return
	}

	total, err := s.store.AlbumItemCount(album.UID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	perPage := s.cfg.Gallery.ItemsPerPage
	pages := gallery.PageCount(total, perPage)
	page, ok := s.pathPage(w, r, pages)
	if !ok {
		return
	}
	items, err := s.store.AlbumItemPage(user.ID, album.UID, (page-1)*perPage, perPage)
	if err != nil {
		s.internalError(w, err)
		return
	}

	base := fmt.Sprintf("/users/%d/albums/%d/mediaitems", user.ID, album.ID)
	s.render(w, http.StatusOK, "gallery.html", galleryPage{
		baseView: baseView{Title: album.Title, User: user},
		Heading:  album.Title,
		Items:    s.buildMediaViews(user, items),
		Pager:    newPager(base, page, pages),
	})
}

// -- page-number jumps --

// gotoPage applies the page-input rules to whatever was typed into the
// pager form and redirects. Garbage resets to page one, out-of-range
// values clamp.
func (s *Server) gotoPage(w http.ResponseWriter, r *http.Request, baseURL string, pages int) {
	p := gallery.Paginator{Max: pages, BaseURL: baseURL}
	res := p.HandleKey(gallery.KeyEnter, r.URL.Query().Get("page"))
	target := res.Navigate
	if target == "" {
		target = baseURL
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleMediaItemsGoto(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	total, err := s.store.MediaCount(user.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	base := fmt.Sprintf("/users/%d/mediaitems", user.ID)
	s.gotoPage(w, r, base, gallery.PageCount(total, s.cfg.Gallery.ItemsPerPage))
}

func (s *Server) handleAlbumsGoto(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	total, err := s.store.AlbumCount(user.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	base := fmt.Sprintf("/users/%d/albums", user.ID)
	s.gotoPage(w, r, base, gallery.PageCount(total, s.cfg.Gallery.ItemsPerPage))
}

func (s *Server) handleAlbumItemsGoto(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	albumID, err := strconv.ParseInt(r.PathValue("album"), 10, 64)
	if err != nil {
		s.notFound(w, r)
		return
	}
	album, err := s.store.AlbumByID(user.ID, albumID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if album == nil {
		s.notFound(w, r)
		return
	}
	total, err := s.store.AlbumItemCount(album.UID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	base := fmt.Sprintf("/users/%d/albums/%d/mediaitems", user.ID, album.ID)
	s.gotoPage(w, r, base, gallery.PageCount(total, s.cfg.Gallery.ItemsPerPage))
}

// -- file serving --

// serveMediaFile resolves {item} to a stored relative path and serves
// it from the user's archive folder. Paths come from the database, not
// the request, so there is nothing to sanitize.
func (s *Server) serveMediaFile(w http.ResponseWriter, r *http.Request, thumbnail bool) {
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(r.PathValue("item"), 10, 64)
	if err != nil {
		s.notFound(w, r)
		return
	}
	item, err := s.store.MediaItemByID(user.ID, itemID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if item == nil {
		s.notFound(w, r)
		return
	}

	rel := item.Filename
	if thumbnail {
		rel = item.Thumbnail
	}
	if rel == "" {
		s.notFound(w, r)
		return
	}
	if !thumbnail && item.OriginalFilename != "" {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("inline; filename=%q", item.OriginalFilename))
	}
	root := backup.UserRoot(s.cfg.Storage, *user)
	http.ServeFile(w, r, filepath.Join(root, filepath.FromSlash(rel)))
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	s.serveMediaFile(w, r, true)
}

func (s *Server) handleOriginal(w http.ResponseWriter, r *http.Request) {
	s.serveMediaFile(w, r, false)
}
