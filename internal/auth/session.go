package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/septivank/solar-dashboard/internal/metrics"
	"go.uber.org/zap"
)

const (
	// CookieName is the name of the session cookie
	CookieName = "dashboard_session"

	// LoginPath is where unauthenticated browsers are sent
	LoginPath = "/login"

	issuer = "solar-dashboard"
)

// ErrNoSession is returned when a request carries no usable session
var ErrNoSession = errors.New("no valid session")

// ErrSessionRevoked is returned for a token issued before the latest logout
var ErrSessionRevoked = errors.New("session revoked by logout")

type principalKey struct{}

// SessionClaims are the claims carried by the session token
type SessionClaims struct {
	jwt.RegisteredClaims
	// Generation is the logout count at issue time
	Generation uint64 `json:"gen"`
}

// SessionManager issues and validates signed session cookies
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	// incremented by Logout; tokens of older generations are rejected
	generation atomic.Uint64
}

// NewSessionManager creates a session manager signing with secret
func NewSessionManager(secret string, ttl time.Duration, logger *zap.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Issue creates a signed token for username
func (m *SessionManager) Issue(username string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Generation: m.generation.Load(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates a token and returns its subject
func (m *SessionManager) Parse(tokenString string) (string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrNoSession
	}
	if claims.Generation != m.generation.Load() {
		return "", ErrSessionRevoked
	}
	return claims.Subject, nil
}

// Login writes a session cookie for username
func (m *SessionManager) Login(w http.ResponseWriter, r *http.Request, username string) error {
	token, expiresAt, err := m.Issue(username)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessionCookie(r, token, expiresAt, int(m.ttl.Seconds())))
	return nil
}

// Logout clears the session cookie and revokes every token issued so far.
// There is a single admin principal, so logging out anywhere ends all sessions.
// Revocation is held in memory and does not survive a restart.
func (m *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	m.generation.Add(1)
	clearCookie(w, r)
}

// Authenticate returns the session principal of r
func (m *SessionManager) Authenticate(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSession
	}
	return m.Parse(cookie.Value)
}

// RequireSession redirects requests without a valid session to the login page
func (m *SessionManager) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.Authenticate(r)
		if err != nil {
			metrics.AuthFailures.WithLabelValues("session").Inc()
			if !errors.Is(err, ErrNoSession) {
				m.logger.Warn("rejected session token", zap.Error(err), zap.String("path", r.URL.Path))
				clearCookie(w, r)
			}
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext returns the authenticated username set by RequireSession
func PrincipalFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok
}

func clearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, sessionCookie(r, "", time.Unix(0, 0), -1))
}

func sessionCookie(r *http.Request, value string, expires time.Time, maxAge int) *http.Cookie {
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" || strings.HasPrefix(r.URL.Scheme, "https")

	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteStrictMode
	}

	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
}
