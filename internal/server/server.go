// Package server is the local web UI: Google sign-in, paginated
// galleries of the mirrored library, and a live backup trigger.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/halfdata/gphoto-backup/internal/auth"
	"github.com/halfdata/gphoto-backup/internal/backup"
	"github.com/halfdata/gphoto-backup/internal/config"
	"github.com/halfdata/gphoto-backup/internal/gallery"
	"github.com/halfdata/gphoto-backup/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageNames lists the content templates; each one pairs with the
// shared layout.
var pageNames = []string{
	"login.html",
	"users.html",
	"gallery.html",
	"albums.html",
	"run.html",
	"notfound.html",
}

// Server carries the handler dependencies. Construct with New.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	flow     *auth.Flow
	sessions *auth.Sessions
	engine   gallery.Engine
	lock     *backup.Lock
	log      *zap.Logger
	pages    map[string]*template.Template
}

// New builds a server around an open store and a prepared OAuth flow.
func New(cfg *config.Config, st *store.Store, flow *auth.Flow, sessions *auth.Sessions, logger *zap.Logger) (*Server, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Server{
		cfg:      cfg,
		store:    st,
		flow:     flow,
		sessions: sessions,
		engine:   gallery.NewEngine(),
		lock:     backup.NewLock(),
		log:      logger.Named("server"),
		pages:    pages,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("Web UI listening",
		zap.String("addr", s.cfg.Server.ListenAddr),
		zap.String("url", s.cfg.Server.ExternalURL))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.log.Info("Shutting down web UI")
	return srv.Shutdown(shutdownCtx)
}

// render executes a page template into a buffer first, so a template
// error becomes a clean 500 instead of a torn page.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	t, ok := s.pages[name]
	if !ok {
		s.log.Error("Unknown template", zap.String("name", name))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.log.Error("Template execution failed", zap.String("name", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusNotFound, "notfound.html", baseView{Title: "Not found", User: s.currentUser(r)})
}
