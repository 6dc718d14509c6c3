// Package control reads instrument commands from a cache list and writes
// confirmations back to another.
//
// Commands are JSON objects pushed onto the command list:
//
//	{"action": "add", "instrument": "GBP_USD"}
//	{"action": "remove", "instrument": "GBP_USD"}
//	{"action": "list"}
//
// Every command produces one confirmation on the response list.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/price-streamer/internal/instrument"
	"github.com/rickgao/price-streamer/internal/model"
)

// Command actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionList   = "list"
)

// ErrUnknownAction is returned for commands with an unsupported action.
var ErrUnknownAction = errors.New("unknown action")

// Command is one control request.
type Command struct {
	Action     string `json:"action"`
	Instrument string `json:"instrument,omitempty"`
}

// ParseCommand decodes a command. Action and instrument are normalized to
// lower and upper case respectively.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("parse command: %w: %w", model.ErrMalformedPayload, err)
	}
	cmd.Action = strings.ToLower(strings.TrimSpace(cmd.Action))
	cmd.Instrument = strings.ToUpper(strings.TrimSpace(cmd.Instrument))
	return cmd, nil
}

// Queue is the blocking list surface of the cache.
type Queue interface {
	PopBlocking(ctx context.Context, key string, timeout time.Duration) ([]byte, bool, error)
	Push(ctx context.Context, key string, value []byte) error
}

// Registry is the set of operations commands map onto.
type Registry interface {
	Add(ctx context.Context, name string) bool
	Remove(ctx context.Context, name string) bool
	ReportActive(ctx context.Context) []string
	List() []string
}

// Config holds listener configuration.
type Config struct {
	CommandKey  string        // List commands are popped from
	PollTimeout time.Duration // BRPOP timeout per wait (default: 1s)
	RetryDelay  time.Duration // Pause after a cache error (default: 2s)
}

// Listener dispatches commands to the registry.
type Listener struct {
	cfg       Config
	queue     Queue
	registry  Registry
	responder instrument.Responder
	logger    *slog.Logger
}

// NewListener creates a Listener. responder receives replies for commands
// the registry does not handle itself (malformed or unknown).
func NewListener(cfg Config, queue Queue, registry Registry, responder instrument.Responder, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Listener{
		cfg:       cfg,
		queue:     queue,
		registry:  registry,
		responder: responder,
		logger:    logger.With("component", "control", "key", cfg.CommandKey),
	}
}

// Run pops and dispatches commands until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("control listener started")

	for {
		if ctx.Err() != nil {
			l.logger.Info("control listener stopped")
			return nil
		}

		data, ok, err := l.queue.PopBlocking(ctx, l.cfg.CommandKey, l.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			l.logger.Warn("failed to read control command", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(l.cfg.RetryDelay):
			}
			continue
		}
		if !ok {
			continue
		}

		cmd, err := ParseCommand(data)
		if err != nil {
			l.logger.Warn("ignoring malformed control command", "error", err, "raw", string(data))
			l.reject(ctx, err.Error())
			continue
		}

		if err := l.Dispatch(ctx, cmd); err != nil {
			l.logger.Warn("control command rejected", "action", cmd.Action, "error", err)
		}
	}
}

// Dispatch applies one command.
func (l *Listener) Dispatch(ctx context.Context, cmd Command) error {
	l.logger.Info("control command", "action", cmd.Action, "instrument", cmd.Instrument)

	switch cmd.Action {
	case ActionAdd:
		l.registry.Add(ctx, cmd.Instrument)
	case ActionRemove:
		l.registry.Remove(ctx, cmd.Instrument)
	case ActionList:
		l.registry.ReportActive(ctx)
	default:
		err := fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
		l.reject(ctx, err.Error())
		return err
	}
	return nil
}

func (l *Listener) reject(ctx context.Context, msg string) {
	if l.responder == nil {
		return
	}
	err := l.responder.Respond(ctx, instrument.Confirmation{
		Status:            instrument.StatusError,
		Message:           msg,
		ActiveInstruments: l.registry.List(),
	})
	if err != nil {
		l.logger.Warn("failed to send rejection", "error", err)
	}
}
