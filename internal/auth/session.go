package auth

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName carries the session JWT.
const CookieName = "gphoto_session"

// Sessions issues and verifies the login cookie. The cookie value is
// a signed JWT whose subject is the local user id; there is no
// server-side session table.
type Sessions struct {
	key []byte
	ttl time.Duration
}

// NewSessions builds a session manager. An empty signing key gets a
// random one; sessions then do not survive a restart and users sign
// in again.
func NewSessions(signingKey string, ttl time.Duration) (*Sessions, error) {
	key := []byte(signingKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{key: key, ttl: ttl}, nil
}

// Issue signs a session token for the user.
func (s *Sessions) Issue(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Verify parses a session token and returns the user id it names.
func (s *Sessions) Verify(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, fmt.Errorf("invalid session token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, fmt.Errorf("session token carries no subject")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed session subject: %w", err)
	}
	return userID, nil
}

// SetCookie attaches the session cookie to a response.
func (s *Sessions) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie drops the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserID extracts and verifies the session from a request. Zero means
// no (valid) session.
func (s *Sessions) UserID(r *http.Request) int64 {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return 0
	}
	userID, err := s.Verify(cookie.Value)
	if err != nil {
		return 0
	}
	return userID
}
