package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Debug client for the hotkeyd state WebSocket. Connects, prints every state
// event it receives, and keeps the connection alive with pings.

type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/ws", "hotkeyd state websocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON instead of formatted lines")
	)
	flag.Parse()

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", *wsURL)
	conn, _, err := d.Dial(*wsURL, nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	// Message reading loop
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if *raw {
				fmt.Printf("%s\n", string(message))
				continue
			}
			printEvent(message)
		}
	}()

	// Wait for shutdown signal or connection close
	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// printEvent formats a state event as a single readable line.
func printEvent(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	var fields map[string]any
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &fields); err != nil {
			fields = nil
		}
	}

	switch env.Type {
	case "state_init":
		fmt.Printf("[INIT] state=%v recording=%v hotkey=%v\n",
			fields["state"], fields["recording"], fields["hotkey"])

	case "state_changed":
		fmt.Printf("[STATE] %v (action=%v)\n", fields["state"], fields["action"])

	case "recording_started":
		fmt.Printf("[REC START] session=%v\n", fields["session_id"])

	case "recording_stopped":
		line := fmt.Sprintf("[REC STOP] session=%v elapsed_ms=%v", fields["session_id"], fields["elapsed_ms"])
		if wav, ok := fields["wav_path"].(string); ok && wav != "" {
			line += " wav=" + wav
		}
		fmt.Println(line)

	case "recording_discarded":
		fmt.Printf("[REC DISCARD] session=%v reason=%v\n", fields["session_id"], fields["reason"])

	case "recording_canceled":
		fmt.Printf("[REC CANCEL] session=%v\n", fields["session_id"])

	case "transcript":
		fmt.Printf("[TRANSCRIPT] session=%v text=%q\n", fields["session_id"], fields["text"])

	case "transcript_failed":
		fmt.Printf("[TRANSCRIPT FAIL] session=%v error=%v\n", fields["session_id"], fields["error"])

	default:
		pretty, _ := json.MarshalIndent(env, "", "  ")
		fmt.Printf("[EVENT]\n%s\n\n", string(pretty))
	}
}
