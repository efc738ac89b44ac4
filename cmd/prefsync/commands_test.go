package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestGetSetting(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /settings/theme": `{"key":"theme","value":"dark"}`,
	})

	client := ts.client()

	resp, err := client.get(ctx, "/settings/theme?default=light")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.Value != "dark" {
		t.Errorf("value = %v, want dark", result.Value)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Path != "/settings/theme?default=light" {
		t.Errorf("path = %q, want /settings/theme?default=light", r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
}

func TestSetSetting(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /settings": `{}`,
	})

	client := ts.client()

	resp, err := client.put(ctx, "/settings?debounce=true", map[string]any{"retries": 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "PUT" {
		t.Errorf("method = %q, want PUT", r.Method)
	}
	if r.Path != "/settings?debounce=true" {
		t.Errorf("path = %q, want /settings?debounce=true", r.Path)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["retries"] != float64(3) {
		t.Errorf("body.retries = %v, want 3", body["retries"])
	}
}

func TestDecodeJSON_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/settings/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to mention 404", err.Error())
	}
}

func TestGetCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"get"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention args", err.Error())
	}
}
