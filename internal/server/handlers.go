package server

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/halfdata/gphoto-backup/internal/auth"
	"github.com/halfdata/gphoto-backup/internal/backup"
	"github.com/halfdata/gphoto-backup/internal/photosapi"
	"github.com/halfdata/gphoto-backup/internal/store"
)

// currentUser resolves the session cookie to a user row; nil when not
// signed in.
func (s *Server) currentUser(r *http.Request) *store.User {
	id := s.sessions.UserID(r)
	if id == 0 {
		return nil
	}
	user, err := s.store.UserByID(id)
	if err != nil {
		s.log.Error("Failed to load session user", zap.Int64("user_id", id), zap.Error(err))
		return nil
	}
	return user
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(r)
	if user == nil {
		s.render(w, http.StatusOK, "login.html", baseView{Title: "Google Photos Backup"})
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/users/%d/mediaitems", user.ID), http.StatusFound)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.flow.AuthURL(), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("error") != "" || q.Get("code") == "" {
		// User backed out of the consent screen.
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	token, err := s.flow.Exchange(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		s.log.Warn("Authorization failed", zap.Error(err))
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}
	info, err := s.flow.Userinfo(r.Context(), token)
	if err != nil {
		s.log.Warn("Failed to fetch account info", zap.Error(err))
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	// Key accounts on the Google account id; emails can change.
	user, err := s.store.UserByUID(info.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if user == nil {
		id, err := s.store.AddUser(info.ID, info.Email, info.Picture)
		if err != nil {
			s.internalError(w, err)
			return
		}
		if user, err = s.store.UserByID(id); err != nil || user == nil {
			s.internalError(w, err)
			return
		}
		s.log.Info("New account authorized", zap.String("email", info.Email))
	}

	if err := auth.SaveToken(s.store, user.ID, token); err != nil {
		s.internalError(w, err)
		return
	}
	session, err := s.sessions.Issue(user.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.sessions.SetCookie(w, session)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleRevoke drops the stored token and asks Google to invalidate
// it, then signs the user out.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	token, err := auth.LoadToken(s.store, user.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if token != nil {
		s.flow.Revoke(r.Context(), token)
	}
	if err := auth.ClearToken(s.store, user.ID); err != nil {
		s.internalError(w, err)
		return
	}
	s.sessions.ClearCookie(w)
	s.log.Info("Access revoked", zap.String("email", user.Email))
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	users, err := s.store.Users()
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.render(w, http.StatusOK, "users.html", usersPage{
		baseView: baseView{Title: "Accounts", User: user},
		Users:    users,
	})
}

func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	s.render(w, http.StatusOK, "run.html", baseView{Title: "Backup", User: user})
}

// handleRunEvents starts a backup pass and streams its progress as
// server-sent events. The crawl's watchdog fires if this client stops
// reading, so closing the tab also stops the crawl.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(r)
	if user == nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	token, err := auth.LoadToken(s.store, user.ID)
	if err != nil || token == nil {
		fmt.Fprint(w, "data: Account is not authorized. Revoke and sign in again.\n\nevent: done\ndata: error\n\n")
		flusher.Flush()
		return
	}

	httpClient := s.flow.HTTPClient(r.Context(), s.store, user.ID, token, photosapi.NewTransport())
	photos := photosapi.New(httpClient, s.log,
		photosapi.WithRateLimit(s.cfg.Backup.RequestsPerSecond))
	files := backup.NewDownloader(httpClient, backup.UserRoot(s.cfg.Storage, *user), s.log)
	runner := backup.NewRunner(s.cfg.Backup, s.cfg.Storage, s.store, photos, files, s.lock, *user, s.log)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	progress := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Run(ctx, progress)
	}()

	for {
		select {
		case msg := <-progress:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case err := <-errCh:
			if err != nil {
				s.log.Warn("Backup pass failed", zap.String("email", user.Email), zap.Error(err))
				fmt.Fprintf(w, "data: Backup failed: %v\n\n", err)
			}
			fmt.Fprint(w, "event: done\ndata: ok\n\n")
			flusher.Flush()
			return
		}
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("Request failed", zap.Error(err))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
