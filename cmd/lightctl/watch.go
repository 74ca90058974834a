package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	watchURL   string
	watchTypes string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream events from a running lightnode daemon",
	Long: `Connect to the daemon websocket and print every node event.

  lightctl watch --url ws://127.0.0.1:8080/ws
  lightctl watch --url ws://127.0.0.1:8080/ws --types level_changed,motion`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchURL, "url", "u", "ws://127.0.0.1:8080/ws", "Daemon websocket URL")
	watchCmd.Flags().StringVar(&watchTypes, "types", "", "Comma-separated event types to receive")
}

// streamURL adds the type filter to the websocket URL.
func streamURL(raw, types string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}
	if types != "" {
		q := u.Query()
		q.Set("types", types)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type streamEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// formatEvent renders one stream message as a log line.
func formatEvent(at time.Time, msg []byte) string {
	var ev streamEvent
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Type == "" {
		return fmt.Sprintf("%s %s", at.Format("15:04:05.000"), msg)
	}
	return fmt.Sprintf("%s %-18s %s", at.Format("15:04:05.000"), ev.Type, ev.Data)
}

func runWatch(cmd *cobra.Command, args []string) error {
	target, err := streamURL(watchURL, watchTypes)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(target, http.Header{})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connection failed: %w", err)
	}
	defer conn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s\n", target)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fmt.Fprintln(out, formatEvent(time.Now(), msg))
	}
}
