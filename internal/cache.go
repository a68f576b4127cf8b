package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const cacheVersion = "2.0"

// CacheManager keeps the last known copy of Session Store records on disk
type CacheManager struct {
	cacheDir string
}

// CacheMetadata stores metadata about the cache
type CacheMetadata struct {
	UserID       string    `json:"user_id" yaml:"user_id"`
	CacheVersion string    `json:"cache_version" yaml:"cache_version"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// SessionIndexEntry represents a session entry in the index
type SessionIndexEntry struct {
	ID           string `yaml:"id"`
	FirstMessage string `yaml:"first_message,omitempty"`
	Timestamp    string `yaml:"timestamp,omitempty"`
	LastUpdated  string `yaml:"last_updated,omitempty"`
	MessageCount int    `yaml:"message_count"`
}

// SessionIndex represents the YAML index of all cached sessions
type SessionIndex struct {
	Sessions []SessionIndexEntry `yaml:"sessions"`
	Metadata CacheMetadata       `yaml:"metadata"`
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string) *CacheManager {
	return &CacheManager{
		cacheDir: cacheDir,
	}
}

// EnsureCacheDir ensures the cache directory exists
func (cm *CacheManager) EnsureCacheDir() error {
	return os.MkdirAll(cm.cacheDir, 0700)
}

// GetIndexPath returns the path to the session index YAML file
func (cm *CacheManager) GetIndexPath() string {
	return filepath.Join(cm.cacheDir, "sessions.yaml")
}

// GetSessionPath returns the path to a session's cache file
func (cm *CacheManager) GetSessionPath(sessionID string) string {
	return filepath.Join(cm.cacheDir, fmt.Sprintf("session_%s.json", sessionID))
}

// GetCacheDir returns the cache directory path
func (cm *CacheManager) GetCacheDir() string {
	return cm.cacheDir
}

// IsCacheValid reports whether the cached index belongs to userID
func (cm *CacheManager) IsCacheValid(userID string) bool {
	index, err := cm.LoadIndex()
	if err != nil {
		return false
	}
	return index.Metadata.UserID == userID && index.Metadata.CacheVersion == cacheVersion
}

// LoadIndex loads the session index
func (cm *CacheManager) LoadIndex() (*SessionIndex, error) {
	indexPath := cm.GetIndexPath()
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, &CacheError{Path: indexPath, Op: "read", Err: err}
	}

	var index SessionIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, &CacheError{Path: indexPath, Op: "decode", Err: err}
	}

	return &index, nil
}

// SaveIndex saves the session index
func (cm *CacheManager) SaveIndex(index *SessionIndex) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return &CacheError{Path: cm.cacheDir, Op: "mkdir", Err: err}
	}

	indexPath := cm.GetIndexPath()
	data, err := yaml.Marshal(index)
	if err != nil {
		return &CacheError{Path: indexPath, Op: "encode", Err: err}
	}

	if err := os.WriteFile(indexPath, data, 0600); err != nil {
		return &CacheError{Path: indexPath, Op: "write", Err: err}
	}
	return nil
}

// SaveSession saves a single session to its cache file
func (cm *CacheManager) SaveSession(session *Session) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return &CacheError{Path: cm.cacheDir, Op: "mkdir", Err: err}
	}

	sessionPath := cm.GetSessionPath(session.ID)
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return &CacheError{Path: sessionPath, Op: "encode", Err: err}
	}

	if err := os.WriteFile(sessionPath, data, 0600); err != nil {
		return &CacheError{Path: sessionPath, Op: "write", Err: err}
	}
	return nil
}

// LoadSession loads a single session from its cache file
func (cm *CacheManager) LoadSession(sessionID string) (*Session, error) {
	sessionPath := cm.GetSessionPath(sessionID)
	data, err := os.ReadFile(sessionPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, &CacheError{Path: sessionPath, Op: "read", Err: err}
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, &CacheError{Path: sessionPath, Op: "decode", Err: err}
	}

	return &session, nil
}

// LoadAllSessions loads every session listed in the index
func (cm *CacheManager) LoadAllSessions() ([]Session, error) {
	index, err := cm.LoadIndex()
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(index.Sessions))
	for _, entry := range index.Sessions {
		session, err := cm.LoadSession(entry.ID)
		if err != nil {
			LogDebug("Skipping cached session %s: %v", entry.ID, err)
			continue
		}
		sessions = append(sessions, *session)
	}

	return sessions, nil
}

// SaveSessionAndUpdateIndex saves a single session and adds or replaces its index entry
func (cm *CacheManager) SaveSessionAndUpdateIndex(session *Session, userID string) error {
	index, err := cm.LoadIndex()
	if err != nil || index.Metadata.UserID != userID || index.Metadata.CacheVersion != cacheVersion {
		index = newSessionIndex(userID, 1)
	}
	index.Metadata.UpdatedAt = time.Now()

	if err := cm.SaveSession(session); err != nil {
		return err
	}

	entry := indexEntry(session)
	found := false
	for i := range index.Sessions {
		if index.Sessions[i].ID == session.ID {
			index.Sessions[i] = entry
			found = true
			break
		}
	}
	if !found {
		index.Sessions = append(index.Sessions, entry)
	}

	return cm.SaveIndex(index)
}

// SaveSessions replaces the index with sessions and writes each one to disk
func (cm *CacheManager) SaveSessions(sessions []Session, userID string) error {
	index := newSessionIndex(userID, len(sessions))

	for i := range sessions {
		if err := cm.SaveSession(&sessions[i]); err != nil {
			LogWarn("Failed to save session %s: %v", sessions[i].ID, err)
			continue
		}
		index.Sessions = append(index.Sessions, indexEntry(&sessions[i]))
	}

	return cm.SaveIndex(index)
}

// ClearCache removes the index and every session file it lists
func (cm *CacheManager) ClearCache() error {
	indexPath := cm.GetIndexPath()

	index, err := cm.LoadIndex()
	if err == nil {
		for _, entry := range index.Sessions {
			_ = os.Remove(cm.GetSessionPath(entry.ID))
		}
	}

	if err := os.Remove(indexPath); err != nil && !os.IsNotExist(err) {
		return &CacheError{Path: indexPath, Op: "remove", Err: err}
	}

	return nil
}

func newSessionIndex(userID string, capacity int) *SessionIndex {
	now := time.Now()
	return &SessionIndex{
		Sessions: make([]SessionIndexEntry, 0, capacity),
		Metadata: CacheMetadata{
			UserID:       userID,
			CacheVersion: cacheVersion,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}

func indexEntry(session *Session) SessionIndexEntry {
	return SessionIndexEntry{
		ID:           session.ID,
		FirstMessage: session.FirstMessage,
		Timestamp:    session.Timestamp.String(),
		LastUpdated:  session.LastUpdated.String(),
		MessageCount: len(session.Messages),
	}
}
