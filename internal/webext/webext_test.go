package webext

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/schuanhe/crawl-orch/internal/domain"
)

type fakeExtension struct {
	id string
}

func (f *fakeExtension) Index(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "index:%s", f.id)
}

func (f *fakeExtension) Data(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "data:%s", f.id)
}

func TestRegistry_RefreshAndRoute(t *testing.T) {
	reg := NewRegistry()
	reg.Register("news", func(id, dir string) Extension { return &fakeExtension{id: id} })

	reg.Refresh([]*domain.CrawlerDefinition{
		{ID: "news", WebSupport: true},
		{ID: "plain", WebSupport: false},
	})

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/crawler/news/")
	if err != nil {
		t.Fatal(err)
	}
	body := make([]byte, 64)
	n, _ := resp.Body.Read(body)
	resp.Body.Close()
	if got := string(body[:n]); got != "index:news" {
		t.Errorf("index body = %q", got)
	}

	resp, err = http.Get(srv.URL + "/crawler/news/data")
	if err != nil {
		t.Fatal(err)
	}
	n, _ = resp.Body.Read(body)
	resp.Body.Close()
	if got := string(body[:n]); got != "data:news" {
		t.Errorf("data body = %q", got)
	}

	// No web_support means no mount
	resp, err = http.Get(srv.URL + "/crawler/plain/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("plain crawler status = %d, want 404", resp.StatusCode)
	}
}

func TestRegistry_RefreshDropsRemoved(t *testing.T) {
	reg := NewRegistry()
	reg.Refresh([]*domain.CrawlerDefinition{{ID: "a", WebSupport: true, Dir: "/tmp/a"}})

	if _, ok := reg.Get("a"); !ok {
		t.Fatal("extension not mounted")
	}

	reg.Refresh(nil)
	if _, ok := reg.Get("a"); ok {
		t.Error("extension survived removal refresh")
	}
}

func TestStaticExtension(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "web"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "web", "index.html"), []byte("<h1>hi</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data.json"), []byte(`{"items": 3}`), 0644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry()
	reg.Refresh([]*domain.CrawlerDefinition{{ID: "s", WebSupport: true, Dir: dir}})

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/crawler/s/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("index status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/crawler/s/data")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("data status = %d", resp.StatusCode)
	}
}
