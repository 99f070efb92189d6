package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/schuanhe/crawl-orch/internal/domain"
)

// DefinitionFile is the per-crawler metadata file name
const DefinitionFile = "config.json"

// DefaultEntryPoint is assumed when a definition does not name one
const DefaultEntryPoint = "main.py"

// ErrNotFound is returned when no usable crawler exists for an ID
var ErrNotFound = errors.New("crawler not found")

// Registry discovers installed crawlers from the directory convention:
// every subdirectory of the crawlers root that contains a definition file
// and an entry-point file is a crawler, identified by its directory name.
// Definitions are read fresh from disk on every query.
type Registry struct {
	root string
}

// New creates a Registry rooted at dir
func New(dir string) *Registry {
	return &Registry{root: dir}
}

// Root returns the crawlers root directory
func (r *Registry) Root() string {
	return r.root
}

// List returns the definitions of all installed crawlers. A malformed
// definition is logged and skipped, never fatal to the listing.
func (r *Registry) List() ([]*domain.CrawlerDefinition, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading crawlers dir: %w", err)
	}

	var defs []*domain.CrawlerDefinition
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		def, err := r.load(entry.Name())
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Printf("registry: skipping crawler %s: %v", entry.Name(), err)
			}
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Get returns the definition for a crawler ID, or ErrNotFound
func (r *Registry) Get(id string) (*domain.CrawlerDefinition, error) {
	def, err := r.load(id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("registry: reading crawler %s: %v", id, err)
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return def, nil
}

func (r *Registry) load(id string) (*domain.CrawlerDefinition, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	dir := filepath.Join(r.root, id)
	data, err := os.ReadFile(filepath.Join(dir, DefinitionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	def := &domain.CrawlerDefinition{Version: "1.0"}
	if err := json.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", DefinitionFile, err)
	}

	def.ID = id
	def.Dir = dir
	if def.Name == "" {
		def.Name = id
	}
	if def.EntryPoint == "" {
		def.EntryPoint = DefaultEntryPoint
	}

	if _, err := os.Stat(filepath.Join(dir, def.EntryPoint)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s has no entry point %s", ErrNotFound, id, def.EntryPoint)
		}
		return nil, err
	}

	return def, nil
}
