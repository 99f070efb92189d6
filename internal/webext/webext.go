// Package webext mounts companion web UIs for crawlers that declare
// web_support. Extensions are statically compiled handlers selected per
// crawler ID at refresh time; there is no dynamic code loading.
package webext

import (
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schuanhe/crawl-orch/internal/domain"
)

// Extension is the fixed capability set a crawler web UI can provide
type Extension interface {
	// Index serves the extension's landing page
	Index(w http.ResponseWriter, r *http.Request)
	// Data serves the extension's data endpoint
	Data(w http.ResponseWriter, r *http.Request)
}

// Factory builds an Extension for one crawler
type Factory func(crawlerID, dir string) Extension

// Registry maps crawler IDs to mounted extensions. Factories are registered
// at startup; Refresh re-resolves the mounts from the current definitions.
type Registry struct {
	factories map[string]Factory
	fallback  Factory

	mounted map[string]Extension
	mu      sync.RWMutex
}

// NewRegistry creates a Registry whose fallback factory serves the
// crawler's bundled static files.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		fallback:  NewStaticExtension,
		mounted:   make(map[string]Extension),
	}
}

// Register installs a purpose-built extension factory for a crawler ID
func (r *Registry) Register(crawlerID string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[crawlerID] = f
}

// Refresh rebuilds the mount table from the given definitions. Crawlers
// without web_support are unmounted; removed crawlers disappear.
func (r *Registry) Refresh(defs []*domain.CrawlerDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mounted := make(map[string]Extension)
	for _, def := range defs {
		if !def.WebSupport {
			continue
		}
		factory := r.factories[def.ID]
		if factory == nil {
			factory = r.fallback
		}
		mounted[def.ID] = factory(def.ID, def.Dir)
	}
	r.mounted = mounted
}

// Get returns the mounted extension for a crawler ID
func (r *Registry) Get(crawlerID string) (Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.mounted[crawlerID]
	return ext, ok
}

// Handler serves mounted extensions under /crawler/{id}/ with the data
// endpoint at /crawler/{id}/data.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/crawler/")
		id, sub, _ := strings.Cut(rest, "/")

		ext, ok := r.Get(id)
		if !ok {
			http.NotFound(w, req)
			return
		}

		switch sub {
		case "", "index.html":
			ext.Index(w, req)
		case "data":
			ext.Data(w, req)
		default:
			http.NotFound(w, req)
		}
	})
}

// StaticExtension is the default extension: it serves web/index.html and
// data.json out of the crawler's own directory.
type StaticExtension struct {
	crawlerID string
	dir       string
}

// NewStaticExtension builds the default extension for a crawler directory
func NewStaticExtension(crawlerID, dir string) Extension {
	return &StaticExtension{crawlerID: crawlerID, dir: dir}
}

func (s *StaticExtension) Index(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.dir, "web", "index.html"))
}

func (s *StaticExtension) Data(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, filepath.Join(s.dir, "data.json"))
}
