package aggregate

import (
	_ "embed"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yml
var languagesYML []byte

// Category labels used by the catalog.
const (
	categoryProse       = "prose"
	categoryProgramming = "programming"
	categoryMarkup      = "markup"
	categoryData        = "data"
)

// language is one resolved catalog entry.
type language struct {
	Name     string
	Category string
	Fence    string // Fence tag for code blocks; empty for prose entries.
}

// prose reports whether the entry's content is emitted as plain
// Markdown rather than inside a fenced block.
func (l *language) prose() bool {
	return l.Category == categoryProse
}

type languageSpec struct {
	Type       string   `yaml:"type"`
	Fence      string   `yaml:"fence"`
	Extensions []string `yaml:"extensions"`
	Filenames  []string `yaml:"filenames"`
}

// Catalog maps extensions and exact filenames to language entries. It
// doubles as the extension allow-list: names it cannot resolve are not
// processable text.
type Catalog struct {
	byExtension map[string]*language
	byFilename  map[string]*language
}

var (
	catalogOnce sync.Once
	catalogInst *Catalog
	catalogErr  error
)

// loadCatalog parses the embedded catalog once per process.
func loadCatalog() (*Catalog, error) {
	catalogOnce.Do(func() {
		catalogInst, catalogErr = parseCatalog(languagesYML)
	})
	return catalogInst, catalogErr
}

func parseCatalog(raw []byte) (*Catalog, error) {
	var specs map[string]languageSpec
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("parsing language catalog: %w", err)
	}

	c := &Catalog{
		byExtension: make(map[string]*language),
		byFilename:  make(map[string]*language),
	}
	for name, spec := range specs {
		lang := &language{Name: name, Category: spec.Type, Fence: spec.Fence}
		for _, ext := range spec.Extensions {
			ext = strings.ToLower(ext)
			if _, dup := c.byExtension[ext]; !dup {
				c.byExtension[ext] = lang
			}
		}
		for _, fname := range spec.Filenames {
			if _, dup := c.byFilename[fname]; !dup {
				c.byFilename[fname] = lang
			}
		}
	}
	return c, nil
}

// Lookup resolves a file name to its catalog entry. Exact filename
// matches (Dockerfile, Makefile) win over extension matches.
func (c *Catalog) Lookup(name string) (*language, bool) {
	base := path.Base(filepath.ToSlash(name))
	if lang, ok := c.byFilename[base]; ok {
		return lang, true
	}
	if ext := strings.ToLower(path.Ext(base)); ext != "" {
		if lang, ok := c.byExtension[ext]; ok {
			return lang, true
		}
	}
	return nil, false
}

// Supported reports whether the file name resolves to a processable
// text format.
func (c *Catalog) Supported(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}
