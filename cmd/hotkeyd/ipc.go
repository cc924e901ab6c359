package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC server lets external clients inject JSON events into the daemon:
//   - synthetic key_event snapshots for scripting and testing
//   - configure requests to change the hotkey at runtime
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "event_name", "data": {...}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
// ============================================================================

// IPCResponse represents the response sent back to IPC clients.
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// runIPCServer starts the Unix domain socket server. It runs until ctx is
// canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	// Synthetic key events can drive recording, so world-writable is a
	// deliberate convenience for a single-user desktop daemon.
	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, events, logger)
	}
}

// handleIPCConnection processes a single IPC client connection.
func handleIPCConnection(conn net.Conn, events chan<- Event, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("IPC received", "line", line)

		// Payload events only; the daemon assigns timestamps on receipt.
		ev, err := UnmarshalEvent([]byte(line))
		if err != nil {
			response := IPCResponse{
				Status: "error",
				Error:  fmt.Sprintf("parse event: %v", err),
			}
			if encErr := encoder.Encode(response); encErr != nil {
				logger.Error("IPC failed to send error response", "error", encErr)
			}
			continue
		}

		select {
		case events <- ev:
			response := IPCResponse{Status: "ok"}
			if encErr := encoder.Encode(response); encErr != nil {
				logger.Error("IPC failed to send success response", "error", encErr)
			}
		default:
			response := IPCResponse{
				Status: "error",
				Error:  "event queue full",
			}
			if encErr := encoder.Encode(response); encErr != nil {
				logger.Error("IPC failed to send error response", "error", encErr)
			}
		}
	}

	logger.Debug("IPC connection closed")
}

// SendIPCEvent sends an event to the daemon via IPC and checks the response.
// Used by tests and external tooling.
func SendIPCEvent(socketPath string, ev Event) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(string(data))); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	decoder := json.NewDecoder(conn)
	var resp IPCResponse
	if err := decoder.Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}
	return nil
}
