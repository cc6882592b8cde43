package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/himanishpuri/sonicres/internal/stream"
)

func streamCmd() *cobra.Command {
	var (
		server   string
		chunk    int
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stream <audio_file>",
		Short: "Send a file to a running server over WebSocket and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := streamFile(ctx, server, f, chunk, interval)
			if err != nil {
				return err
			}
			fmt.Printf("Session %s: sent %s\n", res.SessionID, humanize.Bytes(uint64(res.Sent)))
			if res.Error != "" {
				return fmt.Errorf("server: %s", res.Error)
			}
			fmt.Printf("\n\"%s\" by %s (confidence %.0f%%)\n", res.Result.TrackName, res.Result.Artist, res.Result.Confidence*100)
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "ws://localhost:8080/ws/audio", "Server WebSocket URL")
	cmd.Flags().IntVar(&chunk, "chunk", 16*1024, "Bytes per binary frame")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Pause between frames, to mimic a live recorder")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
	return cmd
}

// streamResult is what the server said about one streamed recording.
type streamResult struct {
	SessionID string
	Sent      int64
	Acked     int64
	Result    stream.ResultData
	Error     string
}

type inbound struct {
	Type       string            `json:"type"`
	SessionID  string            `json:"sessionId"`
	Message    string            `json:"message"`
	TotalBytes int64             `json:"totalBytes"`
	Data       stream.ResultData `json:"data"`
}

var errNoOutcome = errors.New("connection closed without a result")

// streamFile sends r as binary frames followed by a done signal and waits
// for the terminal message.
func streamFile(ctx context.Context, url string, r io.Reader, chunk int, interval time.Duration) (*streamResult, error) {
	if chunk <= 0 {
		chunk = 16 * 1024
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	defer ws.Close()

	// Unblock reads when ctx ends.
	stop := context.AfterFunc(ctx, func() { ws.SetReadDeadline(time.Now()) })
	defer stop()

	res := &streamResult{}
	var hello inbound
	if err := ws.ReadJSON(&hello); err != nil {
		return nil, fmt.Errorf("waiting for greeting: %w", err)
	}
	if hello.Type != stream.TypeConnected {
		return nil, fmt.Errorf("unexpected greeting %q", hello.Type)
	}
	res.SessionID = hello.SessionID

	done := make(chan error, 1)
	go func() { done <- readUntilOutcome(ws, res) }()

	buf := make([]byte, chunk)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
				return res, fmt.Errorf("sending audio: %w", err)
			}
			res.Sent += int64(n)
			if interval > 0 {
				select {
				case <-time.After(interval):
				case <-ctx.Done():
					return res, ctx.Err()
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return res, rerr
		}
	}

	msg, _ := json.Marshal(stream.ControlMessage{Type: stream.TypeDone})
	if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return res, fmt.Errorf("sending done: %w", err)
	}

	select {
	case err := <-done:
		return res, err
	case <-ctx.Done():
		return res, ctx.Err()
	}
}

// readUntilOutcome consumes server messages until a result or error arrives.
func readUntilOutcome(ws *websocket.Conn, res *streamResult) error {
	for {
		var m inbound
		if err := ws.ReadJSON(&m); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errNoOutcome
			}
			return err
		}
		switch m.Type {
		case stream.TypeAck:
			res.Acked = m.TotalBytes
		case stream.TypeResult:
			res.Result = m.Data
			return nil
		case stream.TypeError:
			res.Error = m.Message
			return nil
		}
	}
}
