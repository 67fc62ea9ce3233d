// Package credentials stores the bot's secrets in the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// Environment variables always take precedence; the keyring is the fallback
// for interactive installs where secrets were entered with `recap auth set`.
package credentials

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// keyringService is the service name used in the system keyring.
const keyringService = "recap-bot"

// Secret names a stored credential.
type Secret string

const (
	SecretFirefliesAPIKey    Secret = "fireflies_api_key"
	SecretSlackBotToken      Secret = "slack_bot_token"
	SecretSlackSigningSecret Secret = "slack_signing_secret"
)

// Secrets lists every known secret in display order.
func Secrets() []Secret {
	return []Secret{SecretFirefliesAPIKey, SecretSlackBotToken, SecretSlackSigningSecret}
}

// ParseSecret accepts a secret name with dashes or underscores.
func ParseSecret(name string) (Secret, error) {
	s := Secret(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	for _, known := range Secrets() {
		if s == known {
			return s, nil
		}
	}
	names := make([]string, 0, len(Secrets()))
	for _, known := range Secrets() {
		names = append(names, string(known))
	}
	sort.Strings(names)
	return "", fmt.Errorf("unknown secret %q (expected one of %s)", name, strings.Join(names, ", "))
}

// Common errors.
var (
	// ErrNoCredential is returned when a secret is not stored.
	ErrNoCredential = errors.New("credential not stored")
	// ErrKeyringUnavailable indicates the system keyring is not available.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")
	// ErrEmptyCredential is returned when saving an empty value.
	ErrEmptyCredential = errors.New("credential value is empty")
)

// Store reads and writes secrets in the system keyring.
type Store struct {
	mu      sync.Mutex
	service string
}

// NewStore returns a store using the default keyring service name.
func NewStore() *Store {
	return &Store{service: keyringService}
}

// Get returns the stored value of s.
func (st *Store) Get(s Secret) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	v, err := keyring.Get(st.service, string(s))
	if err != nil {
		return "", wrapKeyringErr(s, err)
	}
	return v, nil
}

// Set stores value under s, replacing any previous value.
func (st *Store) Set(s Secret, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmptyCredential
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if err := keyring.Set(st.service, string(s), value); err != nil {
		return fmt.Errorf("%w: storing %s: %v", ErrKeyringUnavailable, s, err)
	}
	return nil
}

// Delete removes s. Deleting a missing secret returns ErrNoCredential.
func (st *Store) Delete(s Secret) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := keyring.Delete(st.service, string(s)); err != nil {
		return wrapKeyringErr(s, err)
	}
	return nil
}

// Lookup is Get that reports absence as ok=false instead of an error.
// It is the shape config uses for its keyring fallback.
func (st *Store) Lookup(s Secret) (string, bool) {
	v, err := st.Get(s)
	if err != nil {
		return "", false
	}
	return v, true
}

// Status describes one secret without revealing it.
type Status struct {
	Secret Secret `json:"secret"`
	Stored bool   `json:"stored"`
	Masked string `json:"masked,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StatusAll reports every known secret.
func (st *Store) StatusAll() []Status {
	out := make([]Status, 0, len(Secrets()))
	for _, s := range Secrets() {
		status := Status{Secret: s}
		v, err := st.Get(s)
		switch {
		case err == nil:
			status.Stored = true
			status.Masked = MaskCredential(v)
		case !errors.Is(err, ErrNoCredential):
			status.Error = err.Error()
		}
		out = append(out, status)
	}
	return out
}

func wrapKeyringErr(s Secret, err error) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNoCredential, s)
	}
	return fmt.Errorf("%w: %s: %v", ErrKeyringUnavailable, s, err)
}

// IsKeyringAvailable checks if the system keyring is accessible.
func IsKeyringAvailable() bool {
	_, err := keyring.Get(keyringService, "probe")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

// MaskCredential returns a masked version of the credential for display.
func MaskCredential(cred string) string {
	if len(cred) <= 8 {
		return strings.Repeat("*", len(cred))
	}
	return cred[:4] + strings.Repeat("*", len(cred)-8) + cred[len(cred)-4:]
}
