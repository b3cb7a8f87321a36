package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "clubspace:session:"

// FlashMessage is a one-shot notice shown on the next rendered page.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionTokens are the identity provider credentials bound to a browser session.
type SessionTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionManager keeps browser sessions in Redis behind an opaque cookie.
// Idle sessions expire after ttl; every committed request slides the expiry.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session is the per-request view of a stored session.
type Session struct {
	ID string

	state     sessionState
	previous  string
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionState struct {
	Values  map[string]string `json:"values,omitempty"`
	UserID  string            `json:"user_id,omitempty"`
	Tokens  SessionTokens     `json:"tokens"`
	Flashes []FlashMessage    `json:"flashes,omitempty"`
}

// NewSessionManager builds a manager. A zero ttl keeps sessions until logout
// and issues browser-session cookies.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{client: client, cookieName: cookieName, ttl: ttl, secure: secure}
}

// CookieName returns the session cookie name.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Load resolves the request cookie to a stored session. Missing, unknown or
// expired ids yield a fresh session with a server generated id.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if errors.Is(err, http.ErrNoCookie) || (err == nil && cookie.Value == "") {
		return newSession(), nil
	}
	if err != nil {
		return nil, err
	}

	raw, err := sm.client.Get(ctx, sm.key(cookie.Value)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return newSession(), nil
	case err != nil:
		return nil, fmt.Errorf("session: load: %w", err)
	}

	sess := &Session{ID: cookie.Value}
	if err := json.Unmarshal(raw, &sess.state); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return sess, nil
}

// Commit writes pending changes and the cookie. A renewed session drops its
// previous id in the same Redis transaction that stores the new one.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, _ *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.key(sess.ID)).Err(); err != nil {
			return fmt.Errorf("session: destroy: %w", err)
		}
		sm.writeCookie(w, "", -1)
		return nil
	}

	var data []byte
	if sess.dirty || sess.isNew {
		encoded, err := json.Marshal(sess.state)
		if err != nil {
			return fmt.Errorf("session: encode: %w", err)
		}
		data = encoded
	}

	_, err := sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if sess.previous != "" {
			pipe.Del(ctx, sm.key(sess.previous))
		}
		if data != nil {
			pipe.Set(ctx, sm.key(sess.ID), data, sm.ttl)
		} else if sm.ttl > 0 {
			pipe.Expire(ctx, sm.key(sess.ID), sm.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}

	sess.previous = ""
	sess.dirty = false
	sess.isNew = false
	sm.writeCookie(w, sess.ID, int(sm.ttl/time.Second))
	return nil
}

// Destroy marks the session for deletion on commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess != nil {
		sess.destroyed = true
	}
}

// Renew moves the session to a new id. Call it whenever the authenticated
// user changes.
func (sm *SessionManager) Renew(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.isNew {
		sess.previous = sess.ID
	}
	sess.ID = uuid.NewString()
	sess.dirty = true
}

func (sm *SessionManager) writeCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (sm *SessionManager) key(id string) string {
	return sessionKeyPrefix + id
}

func newSession() *Session {
	return &Session{ID: uuid.NewString(), isNew: true, dirty: true}
}

// Set stores a value.
func (s *Session) Set(key, value string) {
	if s.state.Values == nil {
		s.state.Values = make(map[string]string)
	}
	s.state.Values[key] = value
	s.dirty = true
}

// Get returns a stored value or "".
func (s *Session) Get(key string) string {
	return s.state.Values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if _, ok := s.state.Values[key]; !ok {
		return
	}
	delete(s.state.Values, key)
	s.dirty = true
}

// SetUser binds the session to a user id.
func (s *Session) SetUser(id string) {
	s.state.UserID = id
	s.dirty = true
}

// User returns the bound user id.
func (s *Session) User() string {
	return s.state.UserID
}

// SetTokens stores identity provider tokens.
func (s *Session) SetTokens(tokens SessionTokens) {
	s.state.Tokens = tokens
	s.dirty = true
}

// Tokens returns the stored identity provider tokens.
func (s *Session) Tokens() SessionTokens {
	return s.state.Tokens
}

// Clear signs the user out but keeps the session and its values.
func (s *Session) Clear() {
	s.state.UserID = ""
	s.state.Tokens = SessionTokens{}
	s.dirty = true
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.state.Flashes = append(s.state.Flashes, msg)
	s.dirty = true
}

// PopFlash removes and returns the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.state.Flashes) == 0 {
		return nil
	}
	msg := s.state.Flashes[0]
	s.state.Flashes = s.state.Flashes[1:]
	s.dirty = true
	return &msg
}

type sessionContextKey struct{}

// ContextWithSession stores the session in ctx.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the request session or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
