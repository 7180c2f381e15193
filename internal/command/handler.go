// Package command implements the daemon's local control channel: a
// JSON-RPC-over-UDS server/client pair used by the CLI (`cmd/status.go`,
// `cmd/stats.go`, `cmd/reload.go`, `cmd/stop.go`) to talk to a running tap
// process without going through the leader.
package command

import (
	"context"
	"encoding/json"
	"time"

	"github.com/otus-tap/agent/internal/bus"
	"github.com/otus-tap/agent/internal/log"
	"github.com/otus-tap/agent/internal/metrics"
)

// JSON-RPC error codes, matching the JSON-RPC 2.0 reserved range.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// ErrorInfo is a JSON-RPC 2.0 error object.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Command is the internal (transport-agnostic) representation of one
// incoming request.
type Command struct {
	Method string
	Params json.RawMessage
	ID     string
}

// Response is the internal (transport-agnostic) representation of one
// outgoing reply.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ReloadFunc re-reads and applies configuration; returns an error if the
// new configuration is invalid or could not be applied.
type ReloadFunc func() error

// StopFunc requests a graceful shutdown of the daemon.
type StopFunc func()

// CommandHandler dispatches local control-channel commands against the
// daemon's live components: the metrics registry for `stats`, the bus for
// `status`'s channel enumeration, and caller-supplied hooks for `reload`
// and `stop`.
type CommandHandler struct {
	registry  *metrics.Registry
	startedAt time.Time
	version   string
	reload    ReloadFunc
	stop      StopFunc
}

// NewCommandHandler constructs a handler bound to the daemon's metrics
// registry and lifecycle hooks. reload/stop may be nil in contexts (such
// as tests) where those operations are not wired up; calls to the
// corresponding method then report ErrCodeInternal.
func NewCommandHandler(registry *metrics.Registry, version string, reload ReloadFunc, stop StopFunc) *CommandHandler {
	return &CommandHandler{
		registry:  registry,
		startedAt: time.Now(),
		version:   version,
		reload:    reload,
		stop:      stop,
	}
}

// Handle dispatches one command to the matching method, never panicking:
// an unknown method or handler failure is reported as a JSON-RPC error
// response, not a transport-level failure.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	switch cmd.Method {
	case "ping":
		return Response{ID: cmd.ID, Result: map[string]string{"pong": "ok"}}
	case "status":
		return h.handleStatus(cmd)
	case "stats":
		return h.handleStats(cmd)
	case "reload":
		return h.handleReload(cmd)
	case "stop":
		return h.handleStop(cmd)
	default:
		return Response{ID: cmd.ID, Error: &ErrorInfo{
			Code:    ErrCodeMethodNotFound,
			Message: "unknown method: " + cmd.Method,
		}}
	}
}

func (h *CommandHandler) handleStatus(cmd Command) Response {
	buses := make(map[string][]string, len(bus.ChannelsByBus))
	for busName, channels := range bus.ChannelsByBus {
		buses[string(busName)] = channels
	}

	return Response{ID: cmd.ID, Result: map[string]interface{}{
		"version":     h.version,
		"uptime_s":    time.Since(h.startedAt).Seconds(),
		"buses":       buses,
		"gauges_long": h.registry.GetGaugesLong(),
	}}
}

func (h *CommandHandler) handleStats(cmd Command) Response {
	processed := h.registry.GetProcessedBytes()
	channels := make(map[string]metrics.ChannelUtilization, len(bus.AllChannelNames))
	for _, name := range bus.AllChannelNames {
		channels[name] = h.registry.SelectChannel(name)
	}

	return Response{ID: cmd.ID, Result: map[string]interface{}{
		"processed_bytes": processed,
		"channels":        channels,
		"timers":          h.registry.GetTimerSnapshots(),
		"captures":        h.registry.GetCaptures(),
	}}
}

func (h *CommandHandler) handleReload(cmd Command) Response {
	if h.reload == nil {
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeInternal, Message: "reload not wired"}}
	}
	if err := h.reload(); err != nil {
		log.GetLogger().WithError(err).Error("config reload failed")
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeInternal, Message: err.Error()}}
	}
	return Response{ID: cmd.ID, Result: map[string]string{"status": "reloaded"}}
}

func (h *CommandHandler) handleStop(cmd Command) Response {
	if h.stop == nil {
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeInternal, Message: "stop not wired"}}
	}
	go h.stop()
	return Response{ID: cmd.ID, Result: map[string]string{"status": "stopping"}}
}
