package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

//go:embed families/*.yaml
var builtin embed.FS

// Registry holds schemas by family name. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	families map[string]*Schema
}

func NewRegistry() *Registry {
	return &Registry{families: map[string]*Schema{}}
}

// Default returns a registry with the built-in families.
func Default() (*Registry, error) {
	r := NewRegistry()
	if err := r.loadFS(builtin, "families"); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadDir adds every *.yaml / *.yml schema of dir. A family loaded later
// replaces one with the same name.
func (r *Registry) LoadDir(dir string) error {
	return r.loadFS(os.DirFS(dir), ".")
}

func (r *Registry) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("schema: read %s: %w", root, err)
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		name := e.Name()
		if root != "." {
			name = root + "/" + name
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("schema: read %s: %w", name, err)
		}
		s, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		r.Add(s)
	}
	return nil
}

func (r *Registry) Add(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[s.Family] = s
}

func (r *Registry) Get(family string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.families[family]
	return s, ok
}

// Families lists the registered family names, sorted.
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.families))
	for name := range r.families {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
