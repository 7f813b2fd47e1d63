package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/guestchain/guestchain/pkg/client"
)

var ctx = context.Background()

// ── Stub server ─────────────────────────────────────────────────────────

func stubNodeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/entries", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req map[string]string
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if req["author"] == "down" {
				http.Error(w, `{"error":"settlement layer not ready"}`, http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
				"handle": "550e8400-e29b-41d4-a716-446655440000",
				"status": "submitted",
			})
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
				"entries": []map[string]any{
					{"author": "alice", "body": "hi", "status": "confirmed", "index": 0},
					{"author": "bob", "body": "x", "status": "submitted", "index": -1},
				},
			})
		}
	})

	mux.HandleFunc("/api/v1/submissions/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"handle": "550e8400-e29b-41d4-a716-446655440000",
			"author": "alice",
			"body":   "hi",
			"status": "confirmed",
			"index":  0,
		})
	})

	mux.HandleFunc("/api/v1/ledger", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"entries": 2, "root": "abc123"}) //nolint:errcheck
	})

	mux.HandleFunc("/api/v1/ledger/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"valid": true}) //nolint:errcheck
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPost_returnsHandle(t *testing.T) {
	srv := stubNodeServer(t)
	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.Post(ctx, "alice", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if res.Handle == "" {
		t.Error("expected a correlation handle")
	}
	if res.Status != "submitted" {
		t.Errorf("expected submitted, got %q", res.Status)
	}
}

func TestPost_notReady(t *testing.T) {
	srv := stubNodeServer(t)
	c, _ := client.New(srv.URL)

	if _, err := c.Post(ctx, "down", "hi"); !errors.Is(err, client.ErrNotReady) {
		t.Errorf("got %v, want ErrNotReady", err)
	}
}

func TestView_decodesEntries(t *testing.T) {
	srv := stubNodeServer(t)
	c, _ := client.New(srv.URL)

	entries, err := c.View(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != "confirmed" || entries[0].Index != 0 {
		t.Errorf("unexpected confirmed entry: %+v", entries[0])
	}
	if entries[1].Status != "submitted" || entries[1].Index != -1 {
		t.Errorf("unexpected pending entry: %+v", entries[1])
	}
}

func TestSubmission_decodes(t *testing.T) {
	srv := stubNodeServer(t)
	c, _ := client.New(srv.URL)

	sub, err := c.Submission(ctx, "550e8400-e29b-41d4-a716-446655440000")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != "confirmed" || sub.Index != 0 {
		t.Errorf("unexpected submission: %+v", sub)
	}
}

func TestLedgerOverview(t *testing.T) {
	srv := stubNodeServer(t)
	c, _ := client.New(srv.URL)

	overview, err := c.LedgerOverview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if overview.Entries != 2 || overview.Root != "abc123" {
		t.Errorf("unexpected overview: %+v", overview)
	}
}

func TestVerifyLedger(t *testing.T) {
	srv := stubNodeServer(t)
	c, _ := client.New(srv.URL)

	valid, reason, err := c.VerifyLedger(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !valid || reason != "" {
		t.Errorf("expected intact chain, got valid=%v reason=%q", valid, reason)
	}
}
