package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIProviderCompleteReturnsFirstChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", r.Header.Get("Authorization"))
		}
		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-4.1-mini" {
			t.Errorf("expected model gpt-4.1-mini, got %q", req.Model)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openAIChatResponse{
			Choices: []struct {
				Message openAIChatMessage `json:"message"`
			}{{Message: openAIChatMessage{Role: "assistant", Content: "hello back"}}},
		})
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}

	reply, err := p.Complete(context.Background(), "sys", "hi", "gpt-4.1-mini", 0.3)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "hello back" {
		t.Errorf("expected %q, got %q", "hello back", reply)
	}
}

func TestOpenAIProviderCompleteSurfacesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}

	_, err = p.Complete(context.Background(), "sys", "hi", "gpt-4.1-mini", 0.3)
	if err == nil {
		t.Fatal("expected an error on non-200 status")
	}
}

func TestNewOpenAIProviderRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider(Config{})
	if err != ErrAPIKeyNotSet {
		t.Errorf("expected ErrAPIKeyNotSet, got %v", err)
	}
}
