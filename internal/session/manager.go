package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const CookieName = "oauth_relay_sid"

type Options struct {
	Secret []byte
	TTL    time.Duration
	Secure bool
	Now    func() time.Time
}

// Manager binds browser cookies to records in a Store.
type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(
	store Store,
	opts Options,
) (
	*Manager,
	error,
) {
	secret := opts.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("couldn't generate session secret: %w", err)
		}
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:  store,
		secret: secret,
		ttl:    ttl,
		secure: opts.Secure,
		now:    now,
	}, nil
}

func (m *Manager) Store() Store {
	return m.store
}

// SessionID returns the id carried by the request's session cookie, or ""
// when the cookie is absent or its signature does not verify.
func (m *Manager) SessionID(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	id, sig, ok := strings.Cut(cookie.Value, ".")
	if !ok || id == "" {
		return ""
	}
	expected := m.sign(id)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ""
	}
	return id
}

// Begin reuses the request's live session or creates a new one, and sets the
// cookie on w.
func (m *Manager) Begin(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
) (
	string,
	error,
) {
	if id := m.SessionID(r); id != "" {
		if _, err := m.Load(ctx, id); err == nil {
			return id, nil
		}
	}

	rec := &Record{
		ID:      uuid.NewString(),
		Expires: m.now().Add(m.ttl),
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("couldn't save session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    rec.ID + "." + m.sign(rec.ID),
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return rec.ID, nil
}

// Load returns the live record for id. Expired records are reported as
// ErrNoSession.
func (m *Manager) Load(
	ctx context.Context,
	id string,
) (
	*Record,
	error,
) {
	if id == "" {
		return nil, ErrNoSession
	}
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Expired(m.now()) {
		return nil, ErrNoSession
	}
	return rec, nil
}

func (m *Manager) Destroy(
	ctx context.Context,
	id string,
) error {
	if id == "" {
		return nil
	}
	if err := m.store.Destroy(ctx, id); err != nil && !errors.Is(err, ErrNoSession) {
		return fmt.Errorf("couldn't destroy session: %w", err)
	}
	return nil
}

func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) sign(id string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
