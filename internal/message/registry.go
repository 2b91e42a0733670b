// Package message resolves Redfish message identifiers against registry
// documents and renders their templates.
package message

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed registries/*.yaml
var builtin embed.FS

// Entry is one message definition in a registry.
type Entry struct {
	Message    string `yaml:"message"`
	Severity   string `yaml:"severity"`
	Args       int    `yaml:"args"`
	Resolution string `yaml:"resolution"`
}

// Registry is a named set of message definitions.
type Registry struct {
	Prefix   string           `yaml:"prefix"`
	Version  string           `yaml:"version"`
	Messages map[string]Entry `yaml:"messages"`
}

// Catalog indexes registries by prefix. It is read-only after construction.
type Catalog struct {
	registries map[string]*Registry
}

// NewCatalog returns a catalog holding the given registries.
func NewCatalog(regs ...*Registry) *Catalog {
	c := &Catalog{registries: make(map[string]*Registry, len(regs))}
	for _, r := range regs {
		c.Add(r)
	}
	return c
}

// Default returns a catalog with the registries compiled into the binary.
func Default() (*Catalog, error) {
	c := NewCatalog()
	if err := c.loadFS(builtin, "registries"); err != nil {
		return nil, err
	}
	return c, nil
}

// Add registers r, replacing any registry with the same prefix.
func (c *Catalog) Add(r *Registry) {
	c.registries[r.Prefix] = r
}

// LoadDir adds every *.yaml registry document found in dir.
func (c *Catalog) LoadDir(dir string) error {
	return c.loadFS(os.DirFS(dir), ".")
}

func (c *Catalog) loadFS(fsys fs.FS, root string) error {
	matches, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(root, "*.yaml")))
	if err != nil {
		return fmt.Errorf("list registries: %w", err)
	}
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read registry %s: %w", name, err)
		}
		var r Registry
		if err := yaml.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("parse registry %s: %w", name, err)
		}
		if r.Prefix == "" {
			return fmt.Errorf("registry %s: missing prefix", name)
		}
		c.Add(&r)
	}
	return nil
}

// Lookup returns the entry for key in the named registry.
func (c *Catalog) Lookup(registry, key string) (Entry, bool) {
	r, ok := c.registries[registry]
	if !ok {
		return Entry{}, false
	}
	e, ok := r.Messages[key]
	return e, ok
}

// Prefixes lists the registry prefixes known to the catalog, sorted.
func (c *Catalog) Prefixes() []string {
	out := make([]string, 0, len(c.registries))
	for p := range c.registries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HasPrefix reports whether a registry named prefix is loaded.
func (c *Catalog) HasPrefix(prefix string) bool {
	_, ok := c.registries[strings.TrimSpace(prefix)]
	return ok
}

// IDs lists the full message ids of the registry named prefix, sorted. The
// id version is the major and minor part of the registry version.
func (c *Catalog) IDs(prefix string) []string {
	r, ok := c.registries[prefix]
	if !ok {
		return nil
	}
	major, rest, _ := strings.Cut(r.Version, ".")
	minor, _, _ := strings.Cut(rest, ".")
	if major == "" {
		major = "1"
	}
	if minor == "" {
		minor = "0"
	}
	out := make([]string, 0, len(r.Messages))
	for key := range r.Messages {
		out = append(out, r.Prefix+"."+major+"."+minor+"."+key)
	}
	sort.Strings(out)
	return out
}
