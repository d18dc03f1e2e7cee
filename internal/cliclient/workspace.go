package cliclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// Health checks that the instance is up.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if _, err := c.Get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadApp replaces the instance's workspace with the zip in data.
func (c *Client) UploadApp(ctx context.Context, data []byte) (*UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "app.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/app", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp UploadResponse
	if _, err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadApp returns a zip of the instance's workspace.
func (c *Client) DownloadApp(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download/app", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// Execute runs command in the instance's shared terminal.
func (c *Client) Execute(ctx context.Context, command string) (*ExecuteResponse, error) {
	var resp ExecuteResponse
	if _, err := c.Post(ctx, "/execute", ExecuteRequest{Command: command}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ServerStatus reports the instance's application process.
func (c *Client) ServerStatus(ctx context.Context) (*ServerStatus, error) {
	var resp ServerStatus
	if _, err := c.Get(ctx, "/server/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartServer starts the instance's application process.
func (c *Client) StartServer(ctx context.Context, req StartServerRequest) (*ServerStatus, error) {
	var resp ServerStatus
	if _, err := c.Post(ctx, "/server/start", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopServer stops the instance's application process.
func (c *Client) StopServer(ctx context.Context) error {
	_, err := c.Post(ctx, "/server/stop", nil, nil)
	return err
}

// TerminalURL returns the websocket URL of the shared terminal.
func (c *Client) TerminalURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid instance url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/terminal/ws"
	return u.String(), nil
}
