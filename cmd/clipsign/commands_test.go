package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
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
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
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

func TestSubmitFile(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /videos": `{"message":"Video uploaded successfully","video_id":"job-123","status":"processing","content_hash":"abc123"}`,
	})

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("video bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := ts.client()
	resp, err := client.submitFile(ctx, path, `{"camera":"axis"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		VideoID string `json:"video_id"`
		Status  string `json:"status"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.VideoID != "job-123" {
		t.Errorf("video_id = %q, want job-123", result.VideoID)
	}
	if result.Status != "processing" {
		t.Errorf("status = %q, want processing", result.Status)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	if !strings.HasPrefix(r.ContentType, "multipart/form-data") {
		t.Errorf("content type = %q, want multipart/form-data", r.ContentType)
	}
	if !strings.Contains(r.Body, `filename="clip.mp4"`) {
		t.Errorf("body missing file part: %q", r.Body)
	}
	if !strings.Contains(r.Body, "video bytes") {
		t.Error("body missing file content")
	}
	if !strings.Contains(r.Body, `name="device_info"`) || !strings.Contains(r.Body, `"camera":"axis"`) {
		t.Errorf("body missing device_info field: %q", r.Body)
	}
}

func TestSubmitFile_NoDeviceInfo(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /videos": `{"video_id":"job-1","status":"processing"}`,
	})

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := ts.client().submitFile(ctx, path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if strings.Contains(ts.requests[0].Body, "device_info") {
		t.Error("empty device info should not be sent")
	}
}

func TestSubmitCommand_InvalidDeviceInfo(t *testing.T) {
	defer rootCmd.SetArgs(nil)
	defer submitCmd.Flags().Set("device-info", "")

	rootCmd.SetArgs([]string{"submit", "whatever.mp4", "--device-info", "{not json"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for invalid device info")
	}
	if !strings.Contains(err.Error(), "JSON") {
		t.Errorf("error = %q, want it to mention JSON", err.Error())
	}
}

func TestSubmitCommand_UsesAPIClient(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /videos": `{"video_id":"job-9","status":"processing","content_hash":"ff"}`,
	})

	old := newAPIClient
	defer func() { newAPIClient = old }()
	newAPIClient = func() (*apiClient, error) {
		return ts.client(), nil
	}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs([]string{"submit", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Path != "/videos" {
		t.Errorf("path = %q, want /videos", ts.requests[0].Path)
	}
}

func TestJobsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /videos": `[{"video_id":"job-0001","original_name":"clip.mp4","status":"completed","created_at":"2025-01-01T00:00:00Z"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/videos?limit=20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var videos []struct {
		VideoID string `json:"video_id"`
		Status  string `json:"status"`
	}
	if err := decodeJSON(resp, &videos); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(videos) != 1 {
		t.Fatalf("expected 1 job, got %d", len(videos))
	}
	if videos[0].VideoID != "job-0001" {
		t.Errorf("video_id = %q, want job-0001", videos[0].VideoID)
	}
	if ts.requests[0].Path != "/videos?limit=20" {
		t.Errorf("path = %q, want /videos?limit=20", ts.requests[0].Path)
	}
}

func TestDownload(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /videos/job-1/artifact": `signed video bytes`,
	})

	dest := filepath.Join(t.TempDir(), "clip_signed.mp4")
	if err := ts.client().download(ctx, "/videos/job-1/artifact", dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "signed video bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestDownload_ErrorLeavesNoFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(409)
		w.Write([]byte(`{"error":{"message":"video not signed yet","type":"conflict"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}

	dest := filepath.Join(t.TempDir(), "out.mp4")
	err := client.download(ctx, "/videos/job-1/artifact", dest)
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
	if !strings.Contains(err.Error(), "409") {
		t.Errorf("error = %q, want it to contain '409'", err.Error())
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		t.Error("destination file should not exist after error response")
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/videos")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestStatusColor(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	for _, status := range []string{"completed", "failed", "processing"} {
		if got := statusColor(status); got != status {
			t.Errorf("statusColor(%q) = %q with colors disabled", status, got)
		}
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
