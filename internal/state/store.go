package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/config"
)

// FileStore keeps one watermark per category in a file outside the process.
// Read-then-write is advisory: concurrent runs against one file are not supported.
type FileStore struct {
	path           string
	layout         string
	legacyCategory string
	mu             sync.Mutex
}

// NewFileStore creates a file-backed store.
// legacyCategory receives the watermark found in a bare-identifier file.
func NewFileStore(path, layout, legacyCategory string) *FileStore {
	if layout == "" {
		layout = config.LayoutJSON
	}
	return &FileStore{path: path, layout: layout, legacyCategory: legacyCategory}
}

// Load returns the category's watermark. A missing or corrupt file means no watermark.
func (s *FileStore) Load(ctx context.Context, category string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marks, err := s.read()
	if err != nil {
		return "", false, err
	}
	id, ok := marks[category]
	return id, ok, nil
}

// Save records the category's watermark.
func (s *FileStore) Save(ctx context.Context, category, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.layout == config.LayoutLegacy {
		if category != s.legacyCategory {
			return fmt.Errorf("legacy state layout only holds %q, not %q", s.legacyCategory, category)
		}
		return s.write([]byte(id + "\n"))
	}

	marks, err := s.read()
	if err != nil {
		return err
	}
	marks[category] = id
	return s.writeJSON(marks)
}

// All returns every stored watermark.
func (s *FileStore) All(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Delete forgets a category's watermark, so its next run behaves like a first run.
func (s *FileStore) Delete(ctx context.Context, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	marks, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := marks[category]; !ok {
		return nil
	}
	delete(marks, category)

	if s.layout == config.LayoutLegacy {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove state file: %w", err)
		}
		return nil
	}
	return s.writeJSON(marks)
}

func (s *FileStore) read() (map[string]string, error) {
	marks := map[string]string{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return marks, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	switch {
	case content == "":
		return marks, nil
	case strings.HasPrefix(content, "{"):
		if err := json.Unmarshal([]byte(content), &marks); err != nil {
			// Keep the corrupt file for diagnosis and start over.
			brokenPath := s.path + ".broken"
			_ = os.WriteFile(brokenPath, data, 0644)
			log.Printf("State file %s is corrupt (%v); copied to %s, treating watermarks as absent", s.path, err, brokenPath)
			return map[string]string{}, nil
		}
		return marks, nil
	default:
		if s.legacyCategory == "" {
			log.Printf("State file %s holds a bare identifier but no category owns it; ignoring", s.path)
			return marks, nil
		}
		marks[s.legacyCategory] = content
		return marks, nil
	}
}

func (s *FileStore) writeJSON(marks map[string]string) error {
	data, err := json.MarshalIndent(marks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.write(append(data, '\n'))
}

// write replaces the state file atomically through a temp file.
func (s *FileStore) write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp state file: %w", err)
	}

	return nil
}

// MemoryStore keeps watermarks for the lifetime of the process only.
type MemoryStore struct {
	mu    sync.Mutex
	marks map[string]string
}

// NewMemoryStore creates a per-run store, optionally seeded.
func NewMemoryStore(seed map[string]string) *MemoryStore {
	marks := make(map[string]string, len(seed))
	for k, v := range seed {
		marks[k] = v
	}
	return &MemoryStore{marks: marks}
}

func (s *MemoryStore) Load(ctx context.Context, category string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.marks[category]
	return id, ok, nil
}

func (s *MemoryStore) Save(ctx context.Context, category, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[category] = id
	return nil
}

func (s *MemoryStore) All(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.marks))
	for k, v := range s.marks {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.marks, category)
	return nil
}

// SortedCategories returns the keys of a watermark map in lexical order.
func SortedCategories(marks map[string]string) []string {
	keys := make([]string, 0, len(marks))
	for k := range marks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
