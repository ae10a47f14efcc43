// Package action issues and verifies signed links that let a notification
// channel without interactive buttons (email) complete or snooze a reminder.
//
// A token is [24-byte nonce][XChaCha20-Poly1305 ciphertext] encoded as
// unpadded base64url. The plaintext is the JSON claims.
package action

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/dukerupert/nudge/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid action token")
	ErrExpiredToken = errors.New("action token expired")
)

const keyInfo = "nudge action links v1"

// Claims is what a token carries.
type Claims struct {
	ReminderID string    `json:"rid"`
	Kind       string    `json:"k"`
	Minutes    int       `json:"m,omitempty"`
	Expires    time.Time `json:"exp"`
}

// Sealer seals and opens action tokens.
type Sealer struct {
	key     []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewSealer derives the token key from secret. An empty secret gets a random
// key, which means links stop working after a restart.
func NewSealer(secret, baseURL string, ttl time.Duration) (*Sealer, error) {
	ikm := []byte(secret)
	if secret == "" {
		ikm = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, ikm); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sealer{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Seal encrypts c into a token.
func (s *Sealer) Seal(c Claims) (string, error) {
	plaintext, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("create aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts and checks a token.
func (s *Sealer) Open(token string) (Claims, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return Claims{}, fmt.Errorf("create aead: %w", err)
	}
	if len(data) < aead.NonceSize()+aead.Overhead() {
		return Claims{}, ErrInvalidToken
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var c Claims
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if c.ReminderID == "" || (c.Kind != model.ActionComplete && c.Kind != model.ActionSnooze) {
		return Claims{}, ErrInvalidToken
	}
	if !s.now().Before(c.Expires) {
		return Claims{}, ErrExpiredToken
	}
	return c, nil
}

// URL returns the link that performs kind on a reminder.
func (s *Sealer) URL(reminderID, kind string, minutes int) (string, error) {
	token, err := s.Seal(Claims{
		ReminderID: reminderID,
		Kind:       kind,
		Minutes:    minutes,
		Expires:    s.now().Add(s.ttl),
	})
	if err != nil {
		return "", err
	}
	return s.baseURL + "/actions/" + token, nil
}
