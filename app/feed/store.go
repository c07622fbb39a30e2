package feed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const documentExt = ".xml"

var ErrFeedNotFound = errors.New("feed not found")

// DocumentStore persists one feed document per author handle. Load returns
// nil without error when no document exists yet.
type DocumentStore interface {
	Load(handle string) (*Document, error)
	Save(handle string, doc *Document) (string, error)
}

var _ DocumentStore = (*FileStore)(nil)

// FileStore keeps documents as <dir>/<handle>.xml.
type FileStore struct {
	dir       string
	parser    *Parser
	generator *Generator
}

func NewFileStore(dir string, generator *Generator) *FileStore {
	return &FileStore{
		dir:       dir,
		parser:    NewParser(),
		generator: generator,
	}
}

func (s *FileStore) Path(handle string) string {
	return filepath.Join(s.dir, handle+documentExt)
}

func (s *FileStore) Load(handle string) (*Document, error) {
	data, err := os.ReadFile(s.Path(handle))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", handle, err)
	}

	doc, err := s.parser.Run(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed %s: %w", handle, err)
	}
	return doc, nil
}

// Save renders doc and replaces the stored document in one rename, so
// readers see either the old or the new file and never a partial one.
func (s *FileStore) Save(handle string, doc *Document) (string, error) {
	rendered, err := s.generator.Run(handle, doc)
	if err != nil {
		return "", fmt.Errorf("failed to render feed %s: %w", handle, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := s.Path(handle)
	if err := writeFileAtomic(path, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("failed to write feed %s: %w", handle, err)
	}
	return path, nil
}

// Read returns the raw stored document for serving.
func (s *FileStore) Read(handle string) ([]byte, time.Time, error) {
	path := s.Path(handle)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, ErrFeedNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to stat feed %s: %w", handle, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read feed %s: %w", handle, err)
	}
	return data, info.ModTime(), nil
}

// Handles lists the authors that have a stored document, sorted.
func (s *FileStore) Handles() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}

	var handles []string
	for _, entry := range dirEntries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, documentExt) {
			continue
		}
		handles = append(handles, strings.TrimSuffix(name, documentExt))
	}
	sort.Strings(handles)
	return handles, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
