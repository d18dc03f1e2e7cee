package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bitrifttech/rose/internal/archive"
	"github.com/bitrifttech/rose/internal/cliclient"
	"github.com/bitrifttech/rose/internal/service"
	"github.com/bitrifttech/rose/internal/workspace"
)

// Target is the workspace a Manager snapshots and restores.
type Target interface {
	// Archive returns a zip of the current workspace tree.
	Archive(ctx context.Context) ([]byte, error)
	// Restore replaces the workspace tree with the zip in data.
	Restore(ctx context.Context, data []byte) (workspace.Report, error)
}

// LocalTarget is a workspace on this host.
type LocalTarget struct {
	dir      string
	ignore   []string
	restorer *workspace.Restorer
}

// NewLocalTarget creates a target for the workspace at dir.
func NewLocalTarget(dir string, ignore []string, restorer *workspace.Restorer) *LocalTarget {
	return &LocalTarget{dir: dir, ignore: ignore, restorer: restorer}
}

// Archive builds a zip of the workspace honouring its ignore settings.
func (t *LocalTarget) Archive(ctx context.Context) ([]byte, error) {
	patterns, err := workspace.IgnorePatterns(t.dir, t.ignore)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := archive.Build(&buf, t.dir, patterns); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore hands data to the local restorer.
func (t *LocalTarget) Restore(ctx context.Context, data []byte) (workspace.Report, error) {
	return t.restorer.Restore(ctx, data)
}

// RemoteTarget is a workspace served by another running instance, reached
// through its /download/app and /upload/app endpoints.
type RemoteTarget struct {
	client *cliclient.Client
}

// NewRemoteTarget creates a target for the instance at baseURL.
func NewRemoteTarget(baseURL string) *RemoteTarget {
	return &RemoteTarget{client: cliclient.New(baseURL)}
}

// Archive downloads the instance's workspace.
func (t *RemoteTarget) Archive(ctx context.Context) ([]byte, error) {
	data, err := t.client.DownloadApp(ctx)
	if err != nil {
		return nil, t.remoteError("download workspace from", err)
	}
	return data, nil
}

// Restore uploads data to the instance.
func (t *RemoteTarget) Restore(ctx context.Context, data []byte) (workspace.Report, error) {
	resp, err := t.client.UploadApp(ctx, data)
	if err != nil {
		return workspace.Report{}, t.remoteError("upload workspace to", err)
	}
	return workspace.Report{Warning: resp.Warning}, nil
}

// remoteError maps a client error reply from the instance back onto the
// service error taxonomy. Transport failures and 5xx replies stay internal.
func (t *RemoteTarget) remoteError(op string, err error) error {
	var apiErr *cliclient.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
			return &service.ValidationError{Message: msg}
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w", msg, service.ErrAccessDenied)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", msg, service.ErrNotFound)
		case http.StatusConflict:
			return &service.ConflictError{Message: msg}
		}
	}
	return fmt.Errorf("failed to %s %s: %w", op, t.client.BaseURL(), err)
}
