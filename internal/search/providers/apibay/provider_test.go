package apibay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSearchParsesResults(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "big buck bunny" {
			t.Errorf("q = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != defaultUserAgent {
			t.Errorf("User-Agent = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"1","name":"Big Buck Bunny 1080p","info_hash":"C0FFEE00000000000000000000000000000000AA","size":"734003200","seeders":"120","leechers":"4"},
			{"id":"2","name":"Big Buck Bunny 720p","info_hash":"DEADBEEF000000000000000000000000000000BB","size":"367001600","seeders":"60","leechers":"2"}
		]`))
	}))
	defer upstream.Close()

	p := New(Config{Endpoint: upstream.URL, Client: upstream.Client()})
	results, err := p.Search(context.Background(), "big buck bunny", 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	first := results[0]
	if first.Title != "Big Buck Bunny 1080p" {
		t.Errorf("title = %q", first.Title)
	}
	if first.SizeBytes != 734003200 || first.Seeders != 120 || first.Leechers != 4 {
		t.Errorf("numeric fields = %+v", first)
	}
	if first.Provider != "apibay" {
		t.Errorf("provider = %q", first.Provider)
	}
	if !strings.HasPrefix(first.Magnet, "magnet:?xt=urn:btih:c0ffee00000000000000000000000000000000aa") {
		t.Errorf("magnet = %q", first.Magnet)
	}
	if !strings.Contains(first.Magnet, "&dn=Big+Buck+Bunny+1080p") {
		t.Errorf("magnet missing display name: %q", first.Magnet)
	}
	if !strings.Contains(first.Magnet, "&tr=") {
		t.Errorf("magnet missing trackers: %q", first.Magnet)
	}
}

func TestSearchEmptyResultObject(t *testing.T) {
	// The API answers an empty query result with a single placeholder
	// object instead of an empty array.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total_found":"0"}`))
	}))
	defer upstream.Close()

	p := New(Config{Endpoint: upstream.URL, Client: upstream.Client()})
	results, err := p.Search(context.Background(), "zzzzz", 25)
	if err != nil {
		t.Fatalf("empty result must not be an error, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestSearchSkipsPlaceholderRows(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"0","name":"No results returned","info_hash":"0000000000000000000000000000000000000000","size":"0","seeders":"0","leechers":"0"},
			{"id":"1","name":"Real Result.mkv","info_hash":"C0FFEE00000000000000000000000000000000AA","size":"100","seeders":"1","leechers":"0"}
		]`))
	}))
	defer upstream.Close()

	p := New(Config{Endpoint: upstream.URL, Client: upstream.Client()})
	results, err := p.Search(context.Background(), "rare", 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Title != "Real Result.mkv" {
		t.Errorf("results = %+v, want only the real row", results)
	}
}

func TestSearchAppliesLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"1","name":"a","info_hash":"A100000000000000000000000000000000000000","seeders":"1"},
			{"id":"2","name":"b","info_hash":"B100000000000000000000000000000000000000","seeders":"2"},
			{"id":"3","name":"c","info_hash":"C100000000000000000000000000000000000000","seeders":"3"}
		]`))
	}))
	defer upstream.Close()

	p := New(Config{Endpoint: upstream.URL, Client: upstream.Client()})
	results, err := p.Search(context.Background(), "x", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestSearchUpstreamHTTPError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer upstream.Close()

	p := New(Config{Endpoint: upstream.URL, Client: upstream.Client()})
	if _, err := p.Search(context.Background(), "x", 25); err == nil {
		t.Fatal("expected an error for an upstream 502")
	}
}

func TestSearchGarbagePayload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer upstream.Close()

	p := New(Config{Endpoint: upstream.URL, Client: upstream.Client()})
	if _, err := p.Search(context.Background(), "x", 25); err == nil {
		t.Fatal("expected an error for a non-JSON payload")
	}
}
