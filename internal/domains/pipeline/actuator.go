package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"carelay/go-backend/internal/domains/contracts"
)

// Throttle blocks until an outbound message to peer may be sent.
type Throttle interface {
	Wait(ctx context.Context, peer string) error
}

// Actuator performs the side-effecting sends of the pipeline. Failures are
// logged and counted, never retried, and never undo a state transition.
type Actuator struct {
	sender   contracts.Sender
	throttle Throttle
	metrics  Metrics
	logger   *slog.Logger
}

func NewActuator(sender contracts.Sender, throttle Throttle, metrics Metrics, logger *slog.Logger) *Actuator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Actuator{sender: sender, throttle: throttle, metrics: metrics, logger: logger}
}

// SendCommand delivers text to an intermediary agent.
func (a *Actuator) SendCommand(ctx context.Context, correlationID, peer, text string) error {
	err := a.send(ctx, peer, text)
	if err != nil {
		a.recordFailure("send_command", correlationID, peer, err)
		return err
	}
	a.logger.Info("command sent", "component", pipelineComponentName, "operation", "send_command",
		"correlation_id", correlationID, "peer", peer, "text", text)
	return nil
}

// Forward relays address to its destination group.
func (a *Actuator) Forward(ctx context.Context, correlationID string, chain Chain, destination, address string) error {
	err := a.send(ctx, destination, address)
	a.metrics.Forwarded(chain.String(), err == nil)
	if err != nil {
		a.recordFailure("forward", correlationID, destination, err, "chain", chain.String(), "address", address)
		return err
	}
	a.logger.Info("address forwarded", "component", pipelineComponentName, "operation", "forward",
		"correlation_id", correlationID, "chain", chain.String(), "address", address, "peer", destination)
	return nil
}

func (a *Actuator) send(ctx context.Context, peer, text string) error {
	if a.sender == nil {
		return fmt.Errorf("send to %s: %w", peer, contracts.ErrTransportClosed)
	}
	if a.throttle != nil {
		if err := a.throttle.Wait(ctx, peer); err != nil {
			a.metrics.OutboundSent(false)
			return fmt.Errorf("throttle %s: %w", peer, err)
		}
	}
	err := a.sender.SendMessage(ctx, peer, text)
	a.metrics.OutboundSent(err == nil)
	if err != nil {
		return fmt.Errorf("send to %s: %w", peer, err)
	}
	return nil
}

func (a *Actuator) recordFailure(operation, correlationID, peer string, err error, attrs ...any) {
	a.metrics.RecordError(contracts.ErrorCategoryNetwork)
	base := []any{
		"component", pipelineComponentName,
		"operation", operation,
		"category", contracts.ErrorCategoryNetwork,
		"correlation_id", correlationID,
		"peer", peer,
		"error", err.Error(),
	}
	a.logger.Error("outbound send failed", append(base, attrs...)...)
}
