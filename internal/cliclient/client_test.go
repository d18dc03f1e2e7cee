package cliclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUploadApp(t *testing.T) {
	var gotName string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload/app" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		gotBody, _ = io.ReadAll(f)
		json.NewEncoder(w).Encode(UploadResponse{Message: "ok", Warning: "npm install exited with code 1"})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).UploadApp(context.Background(), []byte("PK-zip"))
	if err != nil {
		t.Fatalf("UploadApp: %v", err)
	}
	if gotName != "app.zip" || string(gotBody) != "PK-zip" {
		t.Errorf("server got %q with %q", gotName, gotBody)
	}
	if resp.Warning == "" {
		t.Error("expected warning to be decoded")
	}
}

func TestAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/server/start":
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "Server is already running"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	_, err := c.StartServer(context.Background(), StartServerRequest{})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if apiErr := err.(*APIError); apiErr.Message != "Server is already running" {
		t.Errorf("message = %q", apiErr.Message)
	}

	if _, err := c.DownloadApp(context.Background()); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTerminalURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:4000":      "ws://localhost:4000/terminal/ws",
		"https://dev.example.com/p/": "wss://dev.example.com/p/terminal/ws",
	}
	for in, want := range tests {
		got, err := New(in).TerminalURL()
		if err != nil {
			t.Fatalf("TerminalURL(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("TerminalURL(%q) = %q, want %q", in, got, want)
		}
	}
}
