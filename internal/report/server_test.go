package report_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atlas-desktop/olps-agents/internal/report"
)

func TestHealthzAndStatus(t *testing.T) {
	s := report.NewServer(nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	s.SetStatus(map[string]string{"state": "running"})
	resp2, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
}

func TestBroadcastWithNoClientsDoesNotBlock(t *testing.T) {
	s := report.NewServer(nil, nil)
	s.Broadcast("tick", map[string]int{"step": 1})
}
