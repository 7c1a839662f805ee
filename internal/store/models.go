package store

// User is an authorized Google account the tool backs up.
type User struct {
	ID       int64  `json:"id"`
	UID      string `json:"uid"`
	Email    string `json:"email"`
	ImageURL string `json:"image_url"`
}

// MediaItem is one photo or video of a user's library.
type MediaItem struct {
	ID               int64  `json:"id"`
	UserID           int64  `json:"user_id"`
	UID              string `json:"mediaitem_uid"`
	Type             string `json:"type"`
	MimeType         string `json:"mime_type"`
	ProductURL       string `json:"product_url"`
	CreationTime     string `json:"creation_time"`
	OriginalFilename string `json:"original_filename"`
	Filename         string `json:"filename"`
	Thumbnail        string `json:"thumbnail"`
	Width            int64  `json:"width"`
	Height           int64  `json:"height"`
	LastSeen         int64  `json:"last_seen"`
}

// AspectRatio is natural width over natural height, the value the
// layout engine packs rows with. Items without known dimensions fall
// back to square.
func (m MediaItem) AspectRatio() float64 {
	if m.Width <= 0 || m.Height <= 0 {
		return 1
	}
	return float64(m.Width) / float64(m.Height)
}

// Album is one Google Photos album.
type Album struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	UID        string `json:"album_uid"`
	Title      string `json:"title"`
	CoverUID   string `json:"cover_uid"`
	TotalItems int64  `json:"total_items"`
	LastSeen   int64  `json:"last_seen"`
}
