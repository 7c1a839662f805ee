package photosapi

// Wire types for the Google Photos Library API v1. Dimensions arrive
// as decimal strings, matching the JSON the API emits.

// MediaMetadata carries creation time, pixel dimensions and
// type-specific sub-objects.
type MediaMetadata struct {
	CreationTime string         `json:"creationTime"`
	Width        string         `json:"width,omitempty"`
	Height       string         `json:"height,omitempty"`
	Photo        *PhotoMetadata `json:"photo,omitempty"`
	Video        *VideoMetadata `json:"video,omitempty"`
}

// PhotoMetadata is present for photos. Camera fields are unused here
// but kept so decoding stays lossless for debugging.
type PhotoMetadata struct {
	CameraMake  string `json:"cameraMake,omitempty"`
	CameraModel string `json:"cameraModel,omitempty"`
}

// VideoMetadata is present for videos. Status is "READY" once the
// video has finished server-side processing.
type VideoMetadata struct {
	Status string `json:"status,omitempty"`
	FPS    any    `json:"fps,omitempty"`
}

// MediaItem is one library entry.
type MediaItem struct {
	ID            string        `json:"id"`
	ProductURL    string        `json:"productUrl"`
	BaseURL       string        `json:"baseUrl"`
	MimeType      string        `json:"mimeType"`
	Filename      string        `json:"filename"`
	MediaMetadata MediaMetadata `json:"mediaMetadata"`
}

// IsVideo reports whether the item's MIME type marks it as a video.
func (m MediaItem) IsVideo() bool {
	return len(m.MimeType) >= 5 && m.MimeType[:5] == "video"
}

// VideoReady reports whether a video item can be downloaded yet.
// Photos are always ready.
func (m MediaItem) VideoReady() bool {
	if !m.IsVideo() {
		return true
	}
	return m.MediaMetadata.Video != nil && m.MediaMetadata.Video.Status == "READY"
}

// Album is one Google Photos album.
type Album struct {
	ID                    string `json:"id"`
	Title                 string `json:"title"`
	ProductURL            string `json:"productUrl"`
	CoverPhotoBaseURL     string `json:"coverPhotoBaseUrl"`
	CoverPhotoMediaItemID string `json:"coverPhotoMediaItemId"`
	MediaItemsCount       string `json:"mediaItemsCount"`
}

// MediaItemsPage is one page of mediaItems.list or mediaItems:search.
type MediaItemsPage struct {
	MediaItems    []MediaItem `json:"mediaItems"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

// AlbumsPage is one page of albums.list.
type AlbumsPage struct {
	Albums        []Album `json:"albums"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

type searchRequest struct {
	AlbumID   string `json:"albumId"`
	PageSize  int    `json:"pageSize"`
	PageToken string `json:"pageToken,omitempty"`
}
