// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownCode reports a short code with no registry entry. Callers
// that know the registry location should add it when presenting the
// error.
var ErrUnknownCode = errors.New("unknown room code")

// Entry is one saved room.
type Entry struct {
	// Ticket is the full encoded ticket text.
	Ticket string `yaml:"ticket"`

	// Label is an optional human name for the room.
	Label string `yaml:"label,omitempty"`

	// CreatedAt records when the room was saved.
	CreatedAt time.Time `yaml:"created_at"`
}

// Store persists the code → room mapping. Admission logic never
// touches a store; only the CLI resolves and registers codes.
type Store interface {
	Load() (map[string]Entry, error)
	Save(map[string]Entry) error
}

// Register saves t in the store under its derived short code,
// preserving other entries, and returns the code.
func Register(store Store, t Ticket, label string, now time.Time) (string, error) {
	code, err := t.ShortCode()
	if err != nil {
		return "", err
	}
	text, err := t.Encode()
	if err != nil {
		return "", err
	}
	entries, err := store.Load()
	if err != nil {
		return "", err
	}
	entries[code] = Entry{Ticket: text, Label: label, CreatedAt: now}
	if err := store.Save(entries); err != nil {
		return "", err
	}
	return code, nil
}

// Resolve maps join input to a ticket: short codes go through the
// store, anything else parses as ticket text.
func Resolve(store Store, input string) (Ticket, error) {
	trimmed := strings.TrimSpace(input)
	if !IsShortCode(trimmed) {
		return Parse(trimmed)
	}
	entries, err := store.Load()
	if err != nil {
		return Ticket{}, err
	}
	entry, ok := entries[strings.ToLower(trimmed)]
	if !ok {
		return Ticket{}, fmt.Errorf("%w %q", ErrUnknownCode, trimmed)
	}
	return Parse(entry.Ticket)
}

// FileStore keeps the registry in one YAML file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path. The file
// need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the standard registry location under the user
// config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("ticket: locate config directory: %w", err)
	}
	return filepath.Join(dir, "telescreen", "rooms.yaml"), nil
}

// Path returns the backing file location, for error messages.
func (s *FileStore) Path() string { return s.path }

// Load reads the registry. A missing file is an empty registry, not an
// error.
func (s *FileStore) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticket: read registry %s: %w", s.path, err)
	}
	var entries map[string]Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("ticket: parse registry %s: %w", s.path, err)
	}
	if entries == nil {
		entries = map[string]Entry{}
	}
	return entries, nil
}

// Save atomically replaces the registry file: write to a temporary
// file in the same directory, sync, rename into place, sync the parent
// directory. Readers never see a partial write. Mode 0600: tickets
// admit whoever holds them.
func (s *FileStore) Save(entries map[string]Entry) error {
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("ticket: encode registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("ticket: create registry directory: %w", err)
	}

	temporaryPath := s.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("ticket: create temporary registry file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("ticket: write temporary registry file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("ticket: sync temporary registry file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("ticket: close temporary registry file: %w", err)
	}
	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("ticket: rename registry into place: %w", err)
	}

	// Make the rename durable across power loss.
	if parent, err := os.Open(filepath.Dir(s.path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]Entry{}}
}

// Load returns a copy of the stored entries.
func (s *MemoryStore) Load() (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make(map[string]Entry, len(s.entries))
	for code, entry := range s.entries {
		entries[code] = entry
	}
	return entries, nil
}

// Save replaces the stored entries with a copy of entries.
func (s *MemoryStore) Save(entries map[string]Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry, len(entries))
	for code, entry := range entries {
		s.entries[code] = entry
	}
	return nil
}
