package httpprovider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a-h/bpm/internal/catalog"
)

// index renders a minimal directory listing: one <a> per entry, directory
// names ending in a trailing slash with no ".".
func index(entries ...string) string {
	html := "<html><body>\n"
	for _, e := range entries {
		html += `<a href="` + e + `">` + e + "</a>\n"
	}
	html += "</body></html>"
	return html
}

func TestScanFlatLayout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(index("foo_1.0.0_amd64.bpm", "foo_1.1.0_amd64.bpm")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New(srv.URL, catalog.ParseArchMatcher("*"), 4, nil)
	result, err := p.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := result.PackageCount(); got != 1 {
		t.Fatalf("PackageCount = %d, want 1", got)
	}
	if got := result.VersionCount(); got != 2 {
		t.Fatalf("VersionCount = %d, want 2", got)
	}
}

func TestScanNamedLayout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(index("foo/")))
	})
	mux.HandleFunc("/foo/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(index("foo_1.0.0_amd64.bpm", "channels.json", "channel_beta/")))
	})
	mux.HandleFunc("/foo/channels.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stable": ["1.0.0"]}`))
	})
	mux.HandleFunc("/foo/channel_beta/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(index("foo_2.0.0_amd64.bpm")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New(srv.URL, catalog.ParseArchMatcher("*"), 4, nil)
	result, err := p.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pkg := result.Packages["foo"]
	if pkg == nil {
		t.Fatal("expected foo package")
	}
	if !pkg.HasVersion("1.0.0") || !pkg.HasVersion("2.0.0") {
		t.Errorf("expected both versions, got %+v", pkg.Versions)
	}
	if !pkg.HasChannel("stable") {
		t.Error("expected stable channel from channels.json")
	}
	if !pkg.HasChannel("beta") {
		t.Error("expected beta channel from channel_beta directory")
	}
}

func TestScanSkipsBrokenSubtree(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(index("foo/", "bar/")))
	})
	mux.HandleFunc("/foo/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/bar/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(index("bar_1.0.0_amd64.bpm")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New(srv.URL, catalog.ParseArchMatcher("*"), 4, nil)
	result, err := p.Scan(context.Background())
	if err != nil {
		t.Fatalf("expected broken subtree to be skipped, not abort: %v", err)
	}
	if _, ok := result.Packages["bar"]; !ok {
		t.Error("expected bar to still be scanned despite foo failing")
	}
}
