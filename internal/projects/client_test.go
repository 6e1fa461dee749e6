package projects

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func ptrInt64(v int64) *int64 {
	return &v
}

func TestGetAssignment_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/projects/123/assignment" {
			t.Fatalf("path = %s, want /api/projects/123/assignment", r.URL.Path)
		}

		resp := Assignment{
			ProjectID:     123,
			AgentUserID:   7,
			CuratorUserID: ptrInt64(9),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.GetAssignment(ctx, 123)
	if err != nil {
		t.Fatalf("GetAssignment error: %v", err)
	}
	if res == nil || res.ProjectID != 123 || res.AgentUserID != 7 {
		t.Fatalf("unexpected response: %+v", res)
	}
	if res.CuratorUserID == nil || *res.CuratorUserID != 9 {
		t.Fatalf("unexpected curator: %v", res.CuratorUserID)
	}
}

func TestGetAssignment_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.GetAssignment(ctx, 123)
	if err != nil {
		t.Fatalf("GetAssignment error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil assignment for 404, got %+v", res)
	}
}

func TestGetAssignment_NoAgent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Assignment{ProjectID: 123})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.GetAssignment(ctx, 123)
	if err != nil {
		t.Fatalf("GetAssignment error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil assignment without agent, got %+v", res)
	}
}

func TestGetAssignment_NotConfigured(t *testing.T) {
	client := &Client{}

	if _, err := client.GetAssignment(context.Background(), 123); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
