package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// Subject constants for the detection message bus.
// Follow the pattern: {domain}.{resource}.{action}
const (
	SubjectFindingsCreated    = "detect.findings.created"    // New finding emitted
	SubjectFindingsSuppressed = "detect.findings.suppressed" // Match withheld with reason
)

// Publisher announces finding lifecycle events. Publishing is fire and
// forget; consumers that need durability should use a durable subscription.
type Publisher interface {
	PublishFindingCreated(ctx context.Context, finding *models.Finding) error
	PublishFindingSuppressed(ctx context.Context, decision *models.SuppressionDecision) error
	Close() error
}

// NATSPublisher implements Publisher over a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to NATS and returns a publisher.
func NewNATSPublisher(url, name string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) PublishFindingCreated(ctx context.Context, finding *models.Finding) error {
	return p.publish(ctx, SubjectFindingsCreated, finding)
}

func (p *NATSPublisher) PublishFindingSuppressed(ctx context.Context, decision *models.SuppressionDecision) error {
	return p.publish(ctx, SubjectFindingsSuppressed, decision)
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Drain()
	p.conn.Close()
	return nil
}

// NoopPublisher is used when no message bus is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishFindingCreated(context.Context, *models.Finding) error { return nil }
func (NoopPublisher) PublishFindingSuppressed(context.Context, *models.SuppressionDecision) error {
	return nil
}
func (NoopPublisher) Close() error { return nil }
