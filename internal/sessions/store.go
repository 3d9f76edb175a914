package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"live-transcriber/internal/domain"
)

// ErrNotFound is returned when a session id has no stored archive.
var ErrNotFound = errors.New("session not found")

// Store defines persistence operations for session archives.
type Store interface {
	Save(domain.SessionArchive) error
	Load(id string) (domain.SessionArchive, error)
	List() ([]domain.SessionArchive, error)
	Rename(id, title string) error
	Delete(id string) error
	ApplyText(sessionID, segmentID, text string) error
	ApplyTranslation(sessionID, segmentID, text string) error
}

// JSONStore persists each session as one JSON file under a directory.
// Writes are whole-file and last-write-wins; durability is best effort.
type JSONStore struct {
	dir string
}

// NewJSONStore creates a directory-backed session store.
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{dir: dir}
}

// Save writes one session archive, creating the directory when missing.
func (s *JSONStore) Save(archive domain.SessionArchive) error {
	if strings.TrimSpace(archive.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path(archive.ID), data, 0o644)
}

// Load reads one session archive by id.
func (s *JSONStore) Load(id string) (domain.SessionArchive, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.SessionArchive{}, ErrNotFound
		}
		return domain.SessionArchive{}, err
	}

	var archive domain.SessionArchive
	if err := json.Unmarshal(data, &archive); err != nil {
		return domain.SessionArchive{}, err
	}
	return archive, nil
}

// List returns all stored sessions, newest first.
func (s *JSONStore) List() ([]domain.SessionArchive, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	archives := make([]domain.SessionArchive, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		archive, err := s.Load(id)
		if err != nil {
			// Skip unreadable archives rather than failing the listing.
			continue
		}
		archives = append(archives, archive)
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].CreatedAt.After(archives[j].CreatedAt)
	})
	return archives, nil
}

// Rename updates the stored title of one session.
func (s *JSONStore) Rename(id, title string) error {
	archive, err := s.Load(id)
	if err != nil {
		return err
	}
	archive.Title = strings.TrimSpace(title)
	return s.Save(archive)
}

// Delete removes one stored session.
func (s *JSONStore) Delete(id string) error {
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// ApplyText writes a polished text into a stored segment by id.
func (s *JSONStore) ApplyText(sessionID, segmentID, text string) error {
	return s.applySegment(sessionID, segmentID, func(seg *domain.TranscriptionSegment) {
		seg.Text = text
	})
}

// ApplyTranslation writes a translation into a stored segment by id.
func (s *JSONStore) ApplyTranslation(sessionID, segmentID, text string) error {
	return s.applySegment(sessionID, segmentID, func(seg *domain.TranscriptionSegment) {
		seg.TranslatedText = text
	})
}

// applySegment rewrites one segment field inside a stored archive.
func (s *JSONStore) applySegment(sessionID, segmentID string, fn func(*domain.TranscriptionSegment)) error {
	archive, err := s.Load(sessionID)
	if err != nil {
		return err
	}

	for i := range archive.Segments {
		if archive.Segments[i].ID == segmentID {
			fn(&archive.Segments[i])
			return s.Save(archive)
		}
	}
	return fmt.Errorf("segment %s not in session %s: %w", segmentID, sessionID, ErrNotFound)
}

// path maps a session id to its archive file.
func (s *JSONStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
