package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newListingServer(t *testing.T, failPage int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		var n int
		if _, err := fmt.Sscanf(r.URL.Path, "/Latest-Energy-News/World-News/Page-%d.html", &n); err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if n == failPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<html><body>page %d</body></html>", n)
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func TestPageURLsFollowTemplate(t *testing.T) {
	urls := PageURLs("https://oilprice.com/", 3)
	want := []string{
		"https://oilprice.com/Latest-Energy-News/World-News/Page-1.html",
		"https://oilprice.com/Latest-Energy-News/World-News/Page-2.html",
		"https://oilprice.com/Latest-Energy-News/World-News/Page-3.html",
	}
	if len(urls) != len(want) {
		t.Fatalf("got %d urls, want %d", len(urls), len(want))
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestFetchPagesReturnsAllPages(t *testing.T) {
	for _, mode := range []FetchMode{Concurrent, Sequential} {
		ts, hits := newListingServer(t, -1)
		f := NewListingFetcher(ts.URL, mode, 5*time.Second)

		pages, err := f.FetchPages(context.Background(), 4)
		if err != nil {
			t.Fatalf("%s: FetchPages error: %v", mode, err)
		}
		if len(pages) != 4 {
			t.Fatalf("%s: got %d pages, want 4", mode, len(pages))
		}
		if atomic.LoadInt32(hits) != 4 {
			t.Fatalf("%s: server hits = %d, want 4", mode, *hits)
		}

		got := make([]string, 0, len(pages))
		for _, p := range pages {
			got = append(got, p.SourceURL)
			if !strings.Contains(p.HTML, "page") {
				t.Fatalf("%s: unexpected html %q", mode, p.HTML)
			}
		}
		sort.Strings(got)
		want := PageURLs(ts.URL, 4)
		sort.Strings(want)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: source urls = %v, want %v", mode, got, want)
			}
		}
	}
}

func TestFetchPagesSequentialKeepsOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer ts.Close()

	f := NewListingFetcher(ts.URL, Sequential, 5*time.Second)
	if _, err := f.FetchPages(context.Background(), 3); err != nil {
		t.Fatalf("FetchPages error: %v", err)
	}
	for i, p := range order {
		want := fmt.Sprintf("/Latest-Energy-News/World-News/Page-%d.html", i+1)
		if p != want {
			t.Fatalf("request %d = %q, want %q", i, p, want)
		}
	}
}

func TestFetchPagesSingleFailureFailsBatch(t *testing.T) {
	for _, mode := range []FetchMode{Concurrent, Sequential} {
		ts, _ := newListingServer(t, 2)
		f := NewListingFetcher(ts.URL, mode, 5*time.Second)

		pages, err := f.FetchPages(context.Background(), 3)
		if err == nil {
			t.Fatalf("%s: expected error when one page fails", mode)
		}
		if !errors.Is(err, ErrFetch) {
			t.Fatalf("%s: error should wrap ErrFetch: %v", mode, err)
		}
		if pages != nil {
			t.Fatalf("%s: expected no partial pages, got %d", mode, len(pages))
		}
	}
}

func TestFetchPagesRejectsNonPositiveCount(t *testing.T) {
	f := NewListingFetcher("http://127.0.0.1", Concurrent, time.Second)
	if _, err := f.FetchPages(context.Background(), 0); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch for zero count, got %v", err)
	}
}

func TestFetchPagesCanceledContextFailsBatch(t *testing.T) {
	ts, _ := newListingServer(t, -1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewListingFetcher(ts.URL, Concurrent, 5*time.Second)
	pages, err := f.FetchPages(ctx, 2)
	if !errors.Is(err, ErrFetch) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled fetch error, got %v", err)
	}
	if pages != nil {
		t.Fatalf("expected no pages on cancellation, got %d", len(pages))
	}
}

func TestDecodeBodySniffsMetaCharset(t *testing.T) {
	// "café" in ISO-8859-1, encoding declared only in <meta>
	body := append([]byte(`<html><head><meta charset="iso-8859-1"></head><body><p>caf`), 0xe9)
	body = append(body, []byte("</p></body></html>")...)
	out, err := decodeBody(body, "text/html")
	if err != nil {
		t.Fatalf("decodeBody error: %v", err)
	}
	if !strings.Contains(out, "<p>café</p>") {
		t.Fatalf("decodeBody = %q, want café", out)
	}
}

func TestDecodeBodyKeepsBodyWhenHeaderHasCharset(t *testing.T) {
	out, err := decodeBody([]byte("<p>café</p>"), "text/html; charset=iso-8859-1")
	if err != nil {
		t.Fatalf("decodeBody error: %v", err)
	}
	if out != "<p>café</p>" {
		t.Fatalf("decodeBody = %q, want body unchanged", out)
	}
}

func TestFetchPagesDecodesLatin1Page(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte{'<', 'p', '>', 'c', 'a', 'f', 0xe9, '<', '/', 'p', '>'})
	}))
	defer ts.Close()

	for _, mode := range []FetchMode{Concurrent, Sequential} {
		pages, err := NewListingFetcher(ts.URL, mode, 5*time.Second).FetchPages(context.Background(), 1)
		if err != nil {
			t.Fatalf("%s: FetchPages error: %v", mode, err)
		}
		if pages[0].HTML != "<p>café</p>" {
			t.Fatalf("%s: html = %q, want %q", mode, pages[0].HTML, "<p>café</p>")
		}
	}
}
