package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetReportsFinalURLAfterRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/story/long-slug", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/story/long-slug", func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "pipeline-test" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewRestyClient(2*time.Second, WithUserAgent("pipeline-test"))
	resp, err := client.Get(context.Background(), srv.URL+"/short", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode())
	}
	if got, want := resp.FinalURL(), srv.URL+"/story/long-slug"; got != want {
		t.Fatalf("FinalURL = %q, want %q", got, want)
	}
}

func TestGetStopsAfterMaxRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	client := NewRestyClient(2*time.Second, WithMaxRedirects(2))
	if _, err := client.Get(context.Background(), srv.URL+"/loop", nil); err == nil {
		t.Fatalf("expected redirect limit error")
	}
}

func TestGetReturnsErrorStatusesAsResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	resp, err := NewRestyClient(time.Second).Get(context.Background(), srv.URL, map[string]string{"Accept": "text/html"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode() != http.StatusGone {
		t.Fatalf("status = %d", resp.StatusCode())
	}
}
