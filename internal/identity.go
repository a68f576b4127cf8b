package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const guestAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Identity is the self-declared user of this client. It is sent as user_id with
// every request and is never verified by the server.
type Identity struct {
	Nickname  string    `yaml:"nickname"`
	Guest     bool      `yaml:"guest"`
	CreatedAt time.Time `yaml:"created_at"`
}

// IdentityStore persists the current identity as a YAML file
type IdentityStore struct {
	path string
}

// NewIdentityStore creates an identity store rooted at dataDir
func NewIdentityStore(dataDir string) *IdentityStore {
	return &IdentityStore{path: filepath.Join(dataDir, "identity.yaml")}
}

// Path returns the location of the identity file
func (s *IdentityStore) Path() string {
	return s.path
}

// Load returns the stored identity, or ErrNoIdentity when none has been saved
func (s *IdentityStore) Load() (*Identity, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}

	var id Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("failed to parse identity %s: %w", s.path, err)
	}
	if strings.TrimSpace(id.Nickname) == "" {
		return nil, ErrNoIdentity
	}
	return &id, nil
}

// Save writes the identity, creating the data directory if needed
func (s *IdentityStore) Save(id *Identity) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := yaml.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	return os.WriteFile(s.path, data, 0600)
}

// Clear removes the stored identity. A missing file is not an error.
func (s *IdentityStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Login stores nickname as the current identity. A blank nickname logs in as a
// generated guest.
func Login(store *IdentityStore, nickname string) (*Identity, error) {
	nickname = strings.TrimSpace(nickname)
	id := &Identity{Nickname: nickname, CreatedAt: time.Now().UTC()}
	if nickname == "" {
		guest, err := GuestNickname()
		if err != nil {
			return nil, err
		}
		id.Nickname = guest
		id.Guest = true
	}
	if err := store.Save(id); err != nil {
		return nil, err
	}
	LogDebug("Logged in as %s (guest=%v)", id.Nickname, id.Guest)
	return id, nil
}

// GuestNickname returns a pseudo-random name of the form user_xxxxx
func GuestNickname() (string, error) {
	var sb strings.Builder
	sb.WriteString("user_")
	max := big.NewInt(int64(len(guestAlphabet)))
	for i := 0; i < 5; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate guest name: %w", err)
		}
		sb.WriteByte(guestAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
