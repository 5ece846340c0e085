// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "rooms.yaml"))
	entries, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "rooms.yaml")
	store := NewFileStore(path)

	saved := map[string]Entry{
		"abc23de7": {
			Ticket:    "sometickettext",
			Label:     "standup",
			CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		},
		"xyzzy234": {
			Ticket:    "othertickettext",
			CreatedAt: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
		},
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded, saved) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", loaded, saved)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("registry mode = %o, want 600", perm)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Error("temporary file left behind")
	}
}

func TestFileStoreSaveReplacesWhole(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "rooms.yaml"))
	if err := store.Save(map[string]Entry{"abc23de7": {Ticket: "old"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(map[string]Entry{"xyzzy234": {Ticket: "new"}}); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, found := loaded["abc23de7"]; found {
		t.Error("replaced entry survived")
	}
	if loaded["xyzzy234"].Ticket != "new" {
		t.Errorf("entry = %+v", loaded["xyzzy234"])
	}
}

func TestRegisterAndResolve(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	original := makeTicket(t)
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	code, err := Register(store, original, "standup", now)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(code) != ShortCodeLength {
		t.Fatalf("code length = %d, want %d", len(code), ShortCodeLength)
	}

	entries, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if entry := entries[code]; entry.Label != "standup" || !entry.CreatedAt.Equal(now) {
		t.Errorf("entry = %+v", entry)
	}

	resolved, err := Resolve(store, code)
	if err != nil {
		t.Fatalf("Resolve code: %v", err)
	}
	if !reflect.DeepEqual(resolved, original) {
		t.Error("code resolved to a different ticket")
	}
}

func TestRegisterKeepsOtherRooms(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	first := makeTicket(t)
	second := makeTicket(t)
	now := time.Now()

	firstCode, err := Register(store, first, "", now)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := Register(store, second, "", now); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	resolved, err := Resolve(store, firstCode)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(resolved, first) {
		t.Error("first room lost after second registration")
	}
}

func TestResolveFullTicketText(t *testing.T) {
	t.Parallel()

	original := makeTicket(t)
	text, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// A full ticket never consults the store.
	resolved, err := Resolve(NewMemoryStore(), text)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(resolved, original) {
		t.Error("ticket text resolved to a different ticket")
	}
}

func TestResolveUnknownCode(t *testing.T) {
	t.Parallel()

	_, err := Resolve(NewMemoryStore(), "abc23de7")
	if !errors.Is(err, ErrUnknownCode) {
		t.Errorf("err = %v, want ErrUnknownCode", err)
	}
}

func TestResolveUppercasedCode(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	original := makeTicket(t)
	code, err := Register(store, original, "", time.Now())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	resolved, err := Resolve(store, "  "+strings.ToUpper(code)+" ")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(resolved, original) {
		t.Error("uppercased code resolved to a different ticket")
	}
}
