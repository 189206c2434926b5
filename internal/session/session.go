// Package session provides the Valkey-backed current-user accessor feeding
// template permission checks and per-user cache partitioning. Sessions are
// identified by a secure cookie and stored as JSON in Valkey with automatic
// TTL expiry.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"geekscore/internal/requestctx"
)

const (
	// CookieName is the name of the session cookie sent to the browser.
	CookieName = "gcl_session"

	// DefaultTTL is how long a session lives in Valkey before automatic expiry.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces session keys in Valkey to avoid collisions.
	keyPrefix = "session:"

	// idLength is the byte length of the random session ID (32 bytes = 64 hex chars).
	idLength = 32
)

// Data holds the session payload stored in Valkey: the visitor identity
// the permission check and per-user caching need.
type Data struct {
	UserID       int       `json:"user_id"`
	Roles        []string  `json:"roles"`
	LanguageCode string    `json:"language_code"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store manages session lifecycle in Valkey. A nil client means sessions
// are disabled and every visitor resolves as anonymous.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a session store backed by the given Valkey client.
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		ttl:    DefaultTTL,
	}
}

// Create generates a new session, stores it in Valkey, and sets the
// session cookie on the response. Returns the session ID.
func (s *Store) Create(ctx context.Context, w http.ResponseWriter, data *Data) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("session store not configured")
	}

	id, err := generateID()
	if err != nil {
		return "", fmt.Errorf("session create: %w", err)
	}

	data.CreatedAt = time.Now()

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("session marshal: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+id, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("session store: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ttl.Seconds()),
	})

	return id, nil
}

// Get retrieves session data by session ID. Returns nil on miss.
func (s *Store) Get(ctx context.Context, id string) (*Data, error) {
	if s.client == nil || id == "" {
		return nil, nil
	}

	payload, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var data Data
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("session unmarshal: %w", err)
	}
	return &data, nil
}

// Destroy removes a session from Valkey.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if s.client == nil || id == "" {
		return nil
	}
	return s.client.Del(ctx, keyPrefix+id).Err()
}

// ResolveUser fills the user and language fields of a request context from
// its session cookie. Missing or expired sessions leave the context
// anonymous; lookup errors do too, since serving a page without
// personalization beats serving an error.
func (s *Store) ResolveUser(ctx context.Context, rc *requestctx.Context) {
	id := rc.Cookies[CookieName]
	data, err := s.Get(ctx, id)
	if err != nil {
		return
	}
	if data == nil {
		return
	}

	rc.User = requestctx.User{
		ID:       data.UserID,
		Roles:    data.Roles,
		LoggedIn: data.UserID > 0,
	}
	if rc.LanguageCode == "" {
		rc.LanguageCode = data.LanguageCode
	}
}

// generateID produces a cryptographically random session identifier.
func generateID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
