package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrSourceNotFound is returned by a Source whose backing configuration does not exist.
var ErrSourceNotFound = errors.New("action source not found")

// Source loads action definitions from an external structured configuration.
type Source interface {
	Load(ctx context.Context) ([]Action, error)
	Describe() string
}

// Persister is implemented by sources that can store a generated default set.
type Persister interface {
	Save(ctx context.Context, doc *Document) error
}

// FileSource reads actions from a YAML or JSON file.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Describe() string { return s.path }

// Path returns the file the source reads from.
func (s *FileSource) Path() string { return s.path }

// Exists reports whether the backing file is present.
func (s *FileSource) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *FileSource) Load(_ context.Context) ([]Action, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.path)
		}
		return nil, fmt.Errorf("read actions file %s: %w", s.path, err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse actions file %s: %w", s.path, err)
	}
	return doc.Actions()
}

// Save writes doc to the file, as JSON when the path ends in .json and YAML otherwise.
func (s *FileSource) Save(_ context.Context, doc *Document) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(s.path), ".json") {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = yaml.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("encode actions file: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create actions dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write actions file %s: %w", s.path, err)
	}
	return nil
}

// ParseDocument decodes an actions document. JSON input is accepted since it is valid YAML.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
