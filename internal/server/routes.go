package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Handler builds the route table. Gallery pages follow the
// /users/{user}/... scheme; raw files are served under /library/ so
// browser caching rules can differ from the HTML pages.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /authorize", s.handleAuthorize)
	mux.HandleFunc("GET /callback", s.handleCallback)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET /revoke", s.handleRevoke)

	mux.HandleFunc("GET /run", s.handleRunPage)
	mux.HandleFunc("GET /run/events", s.handleRunEvents)

	mux.HandleFunc("GET /users", s.handleUsers)
	mux.HandleFunc("GET /users/{user}/mediaitems", s.handleMediaItems)
	mux.HandleFunc("GET /users/{user}/mediaitems/goto", s.handleMediaItemsGoto)
	mux.HandleFunc("GET /users/{user}/mediaitems/{page}", s.handleMediaItems)
	mux.HandleFunc("GET /users/{user}/albums", s.handleAlbums)
	mux.HandleFunc("GET /users/{user}/albums/goto", s.handleAlbumsGoto)
	mux.HandleFunc("GET /users/{user}/albums/{page}", s.handleAlbums)
	mux.HandleFunc("GET /users/{user}/albums/{album}/mediaitems", s.handleAlbumItems)
	mux.HandleFunc("GET /users/{user}/albums/{album}/mediaitems/goto", s.handleAlbumItemsGoto)
	mux.HandleFunc("GET /users/{user}/albums/{album}/mediaitems/{page}", s.handleAlbumItems)

	mux.HandleFunc("GET /library/{user}/thumbnails/{item}", s.handleThumbnail)
	mux.HandleFunc("GET /library/{user}/mediaitems/{item}", s.handleOriginal)

	mux.HandleFunc("/", s.notFound)

	return s.withLogging(mux)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}
