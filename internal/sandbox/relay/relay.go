package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"go.uber.org/zap"
)

var (
	ErrUnknownRun   = errors.New("unknown or expired run")
	ErrBadToken     = errors.New("relay token mismatch")
	ErrOriginDenied = errors.New("origin not allowed")
	ErrBadMessage   = errors.New("unsupported relay message")
)

// Message types posted by the shim
const (
	TypeConsole = "console"
	TypeLoaded  = "loaded"
)

// Sink receives accepted messages
type Sink interface {
	AppendConsole(ctx context.Context, workspace id.WorkspaceID, run id.RunID, msg types.ConsoleMessage) error
	PreviewLoaded(ctx context.Context, workspace id.WorkspaceID, run id.RunID) error
}

// Request is one relay delivery
type Request struct {
	Run     id.RunID
	Token   string
	Origin  string
	Host    string
	Message types.RelayMessage
}

// Relay validates shim deliveries and forwards them to a Sink
type Relay struct {
	tokens  *Tokens
	origins *Origins
	sink    Sink
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a relay
func New(tokens *Tokens, origins *Origins, sink Sink, logger *logging.Logger, metrics *monitoring.Metrics) *Relay {
	return &Relay{
		tokens:  tokens,
		origins: origins,
		sink:    sink,
		logger:  logging.OrNop(logger).Named("relay"),
		metrics: metrics,
	}
}

// Tokens returns the token registry shared with the renderer
func (r *Relay) Tokens() *Tokens {
	return r.tokens
}

// Origins returns the origin policy shared with the websocket endpoint
func (r *Relay) Origins() *Origins {
	return r.origins
}

// Deliver checks and forwards one message
func (r *Relay) Deliver(ctx context.Context, req Request) error {
	if !r.origins.Allowed(req.Origin, req.Host) {
		r.reject("origin", req)
		return fmt.Errorf("%w: %s", ErrOriginDenied, req.Origin)
	}
	workspace, err := r.tokens.Verify(req.Run, req.Token)
	if err != nil {
		r.reject("token", req)
		return err
	}

	switch req.Message.Type {
	case TypeConsole:
		return r.sink.AppendConsole(ctx, workspace, req.Run, Format(req.Message))
	case TypeLoaded:
		return r.sink.PreviewLoaded(ctx, workspace, req.Run)
	default:
		r.reject("type", req)
		return fmt.Errorf("%w: %q", ErrBadMessage, req.Message.Type)
	}
}

func (r *Relay) reject(reason string, req Request) {
	r.metrics.RecordRelayRejected(reason)
	r.logger.Debug("Relay message rejected",
		zap.String("reason", reason),
		zap.String("run", req.Run.String()),
		zap.String("origin", req.Origin))
}
