package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClientCompleteReturnsFirstChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "gpt-4" {
			t.Errorf("expected model gpt-4, got %s", req.Model)
		}
		resp := chatResponse{}
		resp.Choices = []struct {
			Message Message `json:"message"`
		}{{Message: Message{Role: RoleAssistant, Content: "diff applied"}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-key", 5*time.Second)
	out, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "do the thing"}}, "gpt-4")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "diff applied" {
		t.Errorf("expected 'diff applied', got %q", out)
	}
}

func TestHTTPClientCompletePropagatesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "invalid request"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, "gpt-4")
	if err == nil {
		t.Fatal("expected an error from a provider-reported failure")
	}
}

func TestFakeClientCyclesThroughResponses(t *testing.T) {
	fake := NewFakeClient("first", "second")
	ctx := context.Background()

	out1, _ := fake.Complete(ctx, nil, "gpt-4")
	out2, _ := fake.Complete(ctx, nil, "gpt-4")
	out3, _ := fake.Complete(ctx, nil, "gpt-4")

	if out1 != "first" || out2 != "second" || out3 != "second" {
		t.Errorf("expected first, second, second (repeating the last), got %s, %s, %s", out1, out2, out3)
	}
}
