package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Format selects the on-disk encoding of a file collection.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

const documentVersion = "1.0"

// fileDocument is the top-level structure of a collection file.
type fileDocument[T any] struct {
	Version string       `yaml:"version" json:"version"`
	Records map[string]T `yaml:"records" json:"records"`
}

type fileCollection[T any] struct {
	path   string
	format Format
	mu     sync.Mutex
}

// NewFileCollection returns a Collection stored in a single file at
// dir/name.{yaml,json}. Saves go through a temp file and a rename so a failed
// write leaves the previous contents in place.
func NewFileCollection[T any](dir, name string, format Format) Collection[T] {
	if format == "" {
		format = FormatYAML
	}
	return &fileCollection[T]{
		path:   filepath.Join(dir, name+"."+string(format)),
		format: format,
	}
}

// Path returns the file backing the collection.
func (c *fileCollection[T]) Path() string {
	return c.path
}

func (c *fileCollection[T]) Lock() (func() error, error) {
	c.mu.Lock()
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("locking %s: creating directory: %w", c.path, err)
	}
	unlock, err := lockFile(c.path + ".lock")
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("locking %s: %w", c.path, err)
	}
	return func() error {
		defer c.mu.Unlock()
		return unlock()
	}, nil
}

func (c *fileCollection[T]) LoadAll() (map[string]T, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]T), nil
		}
		return nil, fmt.Errorf("loading %s: %w", c.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return make(map[string]T), nil
	}

	var doc fileDocument[T]
	switch c.format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, corrupt(c.path, err)
	}
	if doc.Records == nil {
		doc.Records = make(map[string]T)
	}
	return doc.Records, nil
}

func (c *fileCollection[T]) SaveAll(records map[string]T) error {
	if records == nil {
		records = make(map[string]T)
	}
	doc := fileDocument[T]{Version: documentVersion, Records: records}

	var (
		data []byte
		err  error
	)
	switch c.format {
	case FormatJSON:
		data, err = json.MarshalIndent(&doc, "", "  ")
	default:
		data, err = yaml.Marshal(&doc)
	}
	if err != nil {
		return fmt.Errorf("saving %s: encoding: %w", c.path, err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("saving %s: creating directory: %w", c.path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("saving %s: creating temp file: %w", c.path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("saving %s: writing temp file: %w", c.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("saving %s: syncing temp file: %w", c.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving %s: closing temp file: %w", c.path, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("saving %s: setting permissions: %w", c.path, err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("saving %s: replacing file: %w", c.path, err)
	}
	return nil
}
