package rag

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
	"github.com/xhad/ragdesk/pkg/processor"
)

var scopeDirRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DocumentStore keeps each scope's source files in its own directory under
// Root.
type DocumentStore struct {
	Root string
}

func NewDocumentStore(root string) (*DocumentStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	return &DocumentStore{Root: root}, nil
}

func (d *DocumentStore) dir(scope string) string {
	name := scopeDirRe.ReplaceAllString(scope, "_")
	if name == "" || name == "." || name == ".." {
		name = "_default"
	}
	return filepath.Join(d.Root, name)
}

// Path returns where name is stored for scope. name must already be valid.
func (d *DocumentStore) Path(scope, name string) string {
	return filepath.Join(d.dir(scope), name)
}

// CheckName rejects anything that is not a plain file name with a supported
// extension.
func CheckName(name string) error {
	if name == "" || strings.TrimSpace(name) != name {
		return &ValidationError{Field: "filename", Message: "a file name is required"}
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return &ValidationError{Field: "filename", Message: fmt.Sprintf("invalid file name %q", name)}
	}
	if !processor.IsSupported(name) {
		return &ValidationError{
			Field:   "filename",
			Message: "Unsupported file format. Allowed: " + strings.Join(processor.SupportedExtensions, ","),
		}
	}
	return nil
}

// List returns the scope's supported documents sorted by name.
func (d *DocumentStore) List(scope string) ([]models.DocumentInfo, error) {
	entries, err := os.ReadDir(d.dir(scope))
	if errors.Is(err, fs.ErrNotExist) {
		return []models.DocumentInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	out := []models.DocumentInfo{}
	for _, e := range entries {
		if e.IsDir() || !processor.IsSupported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, models.DocumentInfo{Name: e.Name(), SizeBytes: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save writes content atomically, replacing any file of the same name.
func (d *DocumentStore) Save(scope, name string, content []byte) error {
	if err := CheckName(name); err != nil {
		return err
	}
	dir := d.dir(scope)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scope dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

func (d *DocumentStore) Delete(scope, name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return types.ErrNotFound
	}
	err := os.Remove(d.Path(scope, name))
	if errors.Is(err, fs.ErrNotExist) {
		return types.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}
