// Package allowlist stores the user IDs permitted to run the clear command.
//
// The list is a plain text file with one numeric ID per line. Every operation
// reads (and, for writes, rewrites or appends to) the whole file.
package allowlist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

var (
	// ErrNoFile is returned when the list file has not been created yet.
	ErrNoFile = errors.New("allow-list file not found")
	// ErrNotFound is returned when removing an ID that is not in the list.
	ErrNotFound = errors.New("user is not in the allow-list")
	// ErrAlreadyAllowed is returned when adding an ID that is already in the list.
	ErrAlreadyAllowed = errors.New("user is already in the allow-list")
)

// Store is a file-backed allow-list.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store backed by the file at path. The file is created on the first Add.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// read returns the IDs in file order. A missing file yields ErrNoFile.
func (s *Store) read() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoFile
		}
		return nil, fmt.Errorf("read allow-list: %w", err)
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		if id := strings.TrimSpace(line); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Contains reports whether userID is in the list. A missing file means nobody is allowed.
func (s *Store) Contains(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.read()
	if errors.Is(err, ErrNoFile) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// Add appends userID to the list.
func (s *Store) Add(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.read()
	if err != nil && !errors.Is(err, ErrNoFile) {
		return err
	}
	for _, id := range ids {
		if id == userID {
			return ErrAlreadyAllowed
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open allow-list: %w", err)
	}
	defer f.Close()

	line := userID + "\n"
	if unterminated, err := endsWithoutNewline(f); err != nil {
		return err
	} else if unterminated {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append to allow-list: %w", err)
	}
	return nil
}

// endsWithoutNewline reports whether a non-empty file lacks a trailing newline,
// which happens when the file was edited by hand.
func endsWithoutNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat allow-list: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("read allow-list: %w", err)
	}
	return last[0] != '\n', nil
}

// Remove deletes userID from the list and rewrites the file.
func (s *Store) Remove(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.read()
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(ids))
	found := false
	for _, id := range ids {
		if id == userID {
			found = true
			continue
		}
		kept = append(kept, id)
	}
	if !found {
		return ErrNotFound
	}

	var content string
	if len(kept) > 0 {
		content = strings.Join(kept, "\n") + "\n"
	}
	if err := os.WriteFile(s.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("rewrite allow-list: %w", err)
	}
	return nil
}

// List returns all IDs in file order.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}
