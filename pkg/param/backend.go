package param

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Document is the persisted form of the store.
type Document struct {
	Nodes []NodeDoc `yaml:"nodes"`
}

// NodeDoc holds one node's parameters in display order.
type NodeDoc struct {
	Path   string     `yaml:"path"`
	Params []ParamDoc `yaml:"params"`
}

// ParamDoc is a single persisted parameter. Label is informational; only
// Key and Value are read back.
type ParamDoc struct {
	Key   string  `yaml:"key"`
	Label string  `yaml:"label,omitempty"`
	Value float64 `yaml:"value"`
}

// Backend persists documents outside the process.
type Backend interface {
	Load() (Document, error)
	Save(Document) error
}

// FileBackend stores the document as YAML in a single file.
type FileBackend struct {
	Path string
}

// NewFileBackend returns a backend for the YAML file at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

// Load reads the file. A missing file is an empty document.
func (b *FileBackend) Load() (Document, error) {
	return ReadFile(b.Path)
}

// Save writes the document via a temporary file and rename so readers never
// see a partial file.
func (b *FileBackend) Save(doc Document) error {
	return WriteFile(b.Path, doc)
}

// ReadFile decodes a parameter document from path.
func ReadFile(path string) (Document, error) {
	var doc Document

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, errors.Wrap(err, "failed to read parameter file")
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, errors.Wrap(err, "failed to parse parameter file")
	}
	return doc, nil
}

// WriteFile encodes doc to path.
func WriteFile(path string, doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal parameters")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".params-*.yaml")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary parameter file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write parameter file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to write parameter file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "failed to replace parameter file")
	}
	return nil
}

// MemoryBackend keeps the last saved document in memory.
type MemoryBackend struct {
	Doc   Document
	Saves int
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load() (Document, error) { return b.Doc, nil }

func (b *MemoryBackend) Save(doc Document) error {
	b.Doc = doc
	b.Saves++
	return nil
}
