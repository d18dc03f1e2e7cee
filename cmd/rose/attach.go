package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/bitrifttech/rose/internal/api/handlers"
	"github.com/bitrifttech/rose/internal/cliclient"
)

// detachKey is Ctrl-].
const detachKey = 0x1d

var attachURL string

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach to the shared terminal of a running instance",
	Long: `Connect this terminal to the instance's shared shell. Everyone attached
sees the same output. Press Ctrl-] to detach, the shell keeps running.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAttach(cmd.Context(), attachURL)
	},
}

func init() {
	attachCmd.Flags().StringVarP(&attachURL, "url", "u", defaultInstanceURL(), "Instance URL")
}

// socket serialises writes to the websocket connection.
type socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socket) send(typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(handlers.SocketMessage{Type: typ, Data: payload})
}

func runAttach(ctx context.Context, baseURL string) error {
	wsURL, err := cliclient.New(baseURL).TerminalURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	var hello handlers.SocketMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	var info handlers.ConnectedData
	if hello.Type == handlers.MessageConnected {
		_ = json.Unmarshal(hello.Data, &info)
	}
	fmt.Fprintf(os.Stderr, "Attached to %s in %s (Ctrl-] to detach)\r\n", info.Shell, info.Cwd)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer term.Restore(fd, state)
	}

	err = pumpSession(ctx, conn, os.Stdin, os.Stdout, fd)
	fmt.Fprint(os.Stderr, "\r\nDetached\r\n")
	return err
}

// pumpSession copies in to the shared terminal and its output to out until
// the user detaches or the server closes the socket. A read blocked on in is
// abandoned when the socket closes.
func pumpSession(ctx context.Context, conn *websocket.Conn, in io.Reader, out io.Writer, fd int) error {
	ws := &socket{conn: conn}
	input := make(chan error, 1)
	go func() { input <- sendInput(ws, in) }()

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		select {
		case err := <-input:
			return err
		case <-gctx.Done():
			return nil
		}
	})
	grp.Go(func() error { return receiveOutput(conn, out) })
	grp.Go(func() error { return syncSize(gctx, ws, fd) })
	grp.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return nil
	})

	err := grp.Wait()
	if errors.Is(err, errDetached) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

var errDetached = errors.New("detached")

func sendInput(ws *socket, r io.Reader) error {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			for i, b := range chunk {
				if b == detachKey {
					if i > 0 {
						_ = ws.send(handlers.MessageInput, string(chunk[:i]))
					}
					return errDetached
				}
			}
			if err := ws.send(handlers.MessageInput, string(chunk)); err != nil {
				return err
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errDetached
			}
			return err
		}
	}
}

func receiveOutput(conn *websocket.Conn, w io.Writer) error {
	for {
		var msg handlers.SocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Type != handlers.MessageOutput {
			continue
		}
		var data string
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			continue
		}
		if _, err := io.WriteString(w, data); err != nil {
			return err
		}
	}
}

// syncSize sends the local terminal size whenever it changes.
func syncSize(ctx context.Context, ws *socket, fd int) error {
	if !term.IsTerminal(fd) {
		return nil
	}
	var cols, rows int
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		if w, h, err := term.GetSize(fd); err == nil && (w != cols || h != rows) {
			cols, rows = w, h
			if err := ws.send(handlers.MessageResize, handlers.ResizeData{Cols: uint16(w), Rows: uint16(h)}); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
