package server

import (
	"fmt"

	"github.com/halfdata/gphoto-backup/internal/gallery"
	"github.com/halfdata/gphoto-backup/internal/store"
)

// baseView carries what the shared layout needs on every page.
type baseView struct {
	Title string
	User  *store.User
}

// pagerView renders the prev / page-input / next strip. The form posts
// to BaseURL/goto, which clamps whatever was typed and redirects.
type pagerView struct {
	Page    int
	Pages   int
	BaseURL string
	PrevURL string
	NextURL string
}

func newPager(baseURL string, page, pages int) pagerView {
	p := pagerView{Page: page, Pages: pages, BaseURL: baseURL}
	if page > 1 {
		p.PrevURL = fmt.Sprintf("%s/%d", baseURL, page-1)
	}
	if page < pages {
		p.NextURL = fmt.Sprintf("%s/%d", baseURL, page+1)
	}
	return p
}

// mediaView is one thumbnail cell. Width and Height are the display
// size the layout engine assigned for the configured container width.
type mediaView struct {
	Title      string
	ThumbURL   string
	MediaURL   string
	ProductURL string
	IsVideo    bool
	Width      int
	Height     int
}

type galleryPage struct {
	baseView
	Heading string
	Items   []mediaView
	Pager   pagerView
}

type albumView struct {
	Title      string
	ItemsURL   string
	CoverURL   string
	TotalItems int64
}

type albumsPage struct {
	baseView
	Albums []albumView
	Pager  pagerView
}

type usersPage struct {
	baseView
	Users []store.User
}

// buildMediaViews runs the layout engine over one gallery page and
// attaches serving URLs. Aspect ratios come from the stored pixel
// dimensions; items without dimensions fall back to square.
func (s *Server) buildMediaViews(user *store.User, items []store.MediaItem) []mediaView {
	group := make([]*gallery.Image, len(items))
	for i, m := range items {
		group[i] = &gallery.Image{AspectRatio: m.AspectRatio()}
	}
	s.engine.Flow(float64(s.cfg.Gallery.ContainerWidth), group)

	views := make([]mediaView, len(items))
	for i, m := range items {
		h := group[i].DisplayHeight
		views[i] = mediaView{
			Title:      m.OriginalFilename,
			ThumbURL:   fmt.Sprintf("/library/%d/thumbnails/%d", user.ID, m.ID),
			MediaURL:   fmt.Sprintf("/library/%d/mediaitems/%d", user.ID, m.ID),
			ProductURL: m.ProductURL,
			IsVideo:    m.Type == "video",
			Width:      int(h*m.AspectRatio() + 0.5),
			Height:     int(h + 0.5),
		}
	}
	return views
}
