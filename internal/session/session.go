package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/datasage-cli/internal/utils"
)

const sessionFileName = "session.json"

// ErrNotFound is returned when no session matches a reference.
var ErrNotFound = errors.New("session not found")

// Session is a named dataset kept on disk together with its metadata.
type Session struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	DatasetFile string    `json:"dataset_file,omitempty" yaml:"dataset_file,omitempty"`
	SourcePath  string    `json:"source_path,omitempty" yaml:"source_path,omitempty"`
	Rows        int       `json:"rows" yaml:"rows"`
	Columns     int       `json:"columns" yaml:"columns"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`

	// Not serialized: on-disk location of the session.json
	rootDir string
}

// New constructs an in-memory session under root/<id>. Call Save() to persist.
func New(root, name, description string) *Session {
	id := uuid.NewString()
	now := time.Now().UTC()
	return &Session{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
		rootDir:     filepath.Join(root, id),
	}
}

// Load reads a session.json from the provided directory.
func Load(dir string) (*Session, error) {
	path := filepath.Join(dir, sessionFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("session not found at %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	s.rootDir = dir
	return &s, nil
}

// RootDir returns the on-disk session directory path.
func (s *Session) RootDir() string { return s.rootDir }

// Save writes session.json using atomic write.
func (s *Session) Save() error {
	if s.rootDir == "" {
		return errors.New("session root directory not set")
	}
	if err := utils.EnsureDir(s.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()
	data, err := utils.PrettyJSON(s)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(s.rootDir, sessionFileName), data)
}

// AttachDataset copies src into the session directory and records it.
func (s *Session) AttachDataset(src string) error {
	if s.rootDir == "" {
		return errors.New("session root directory not set")
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat dataset: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("dataset %s is a directory", src)
	}
	name := "dataset" + strings.ToLower(filepath.Ext(src))
	if err := utils.CopyFile(src, filepath.Join(s.rootDir, name)); err != nil {
		return fmt.Errorf("copy dataset: %w", err)
	}
	if abs, err := filepath.Abs(src); err == nil {
		src = abs
	}
	s.DatasetFile = name
	s.SourcePath = src
	return nil
}

// DatasetPath returns the absolute path of the attached dataset copy, or ""
// when none is attached.
func (s *Session) DatasetPath() string {
	if s.DatasetFile == "" {
		return ""
	}
	return filepath.Join(s.rootDir, s.DatasetFile)
}

// Touch records the dataset's current shape.
func (s *Session) Touch(rows, cols int) {
	s.Rows = rows
	s.Columns = cols
	s.UpdatedAt = time.Now().UTC()
}

// Delete removes the session directory.
func (s *Session) Delete() error {
	if s.rootDir == "" {
		return errors.New("session root directory not set")
	}
	if err := os.RemoveAll(s.rootDir); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// List loads every session under root, newest first. Directories without a
// readable session.json are skipped.
func List(root string) ([]*Session, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}
	var out []*Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, err := Load(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Find resolves ref as a session ID, then as a case-insensitive name.
// Ambiguous names are an error.
func Find(root, ref string) (*Session, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("find session: empty reference: %w", ErrNotFound)
	}
	if _, err := uuid.Parse(ref); err == nil {
		if s, err := Load(filepath.Join(root, ref)); err == nil {
			return s, nil
		}
	}
	all, err := List(root)
	if err != nil {
		return nil, err
	}
	var matches []*Session
	for _, s := range all {
		if s.ID == ref || strings.EqualFold(s.Name, ref) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("find session %q: %w", ref, ErrNotFound)
	case 1:
		return matches[0], nil
	}
	return nil, fmt.Errorf("find session %q: %d sessions share this name, use the ID", ref, len(matches))
}
