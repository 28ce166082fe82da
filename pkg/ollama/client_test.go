package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "nomic-embed-text" || req.Prompt != "fever and chills" {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	vec, err := New(srv.URL, "nomic-embed-text").Embed(context.Background(), "fever and chills")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbedBatchKeepsOrder(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		// encode the text's index as the vector so order is observable
		switch req.Prompt {
		case "first":
			w.Write([]byte(`{"embedding":[1]}`))
		case "second":
			w.Write([]byte(`{"embedding":[2]}`))
		default:
			w.Write([]byte(`{"embedding":[3]}`))
		}
	}))
	defer srv.Close()

	vecs, err := New(srv.URL, "m").EmbedBatch(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", calls.Load())
	}
	for i, want := range []float32{1, 2, 3} {
		if len(vecs[i]) != 1 || vecs[i][0] != want {
			t.Fatalf("row %d out of order: %v", i, vecs)
		}
	}
}

func TestEmbedBatchReportsFailedRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt == "bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"embedding":[1]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "m").EmbedBatch(context.Background(), []string{"ok", "bad"})
	if err == nil || !strings.Contains(err.Error(), "embed batch [1]") {
		t.Fatalf("expected row 1 failure, got %v", err)
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Stream {
			t.Error("stream should be disabled")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "I have a headache" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"rest and hydrate"}}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL, "mistral").Chat(context.Background(), "triage carefully", "I have a headache")
	if err != nil {
		t.Fatal(err)
	}
	if out != "rest and hydrate" {
		t.Fatalf("unexpected reply %q", out)
	}
}

func TestChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("model not found"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "missing").Chat(context.Background(), "", "hi")
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("expected status error, got %v", err)
	}
}
