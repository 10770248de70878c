// Package report publishes service status and health transitions to a
// remote NATS endpoint. It is a best-effort sink: connection and publish
// failures are logged and never propagate into the supervision core.
package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"kennel/internal/config"
	"kennel/internal/events"
)

// Client wraps the NATS connection used for status reporting.
type Client struct {
	nc     *nats.Conn
	source string
	logger *slog.Logger
}

// Connect establishes the reporting connection.
func Connect(cfg config.Report, source string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(source),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("report connection lost", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("report connection restored")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("report connect: %w", err)
	}

	return &Client{
		nc:     nc,
		source: source,
		logger: logger.With("component", "report"),
	}, nil
}

// Publish sends an envelope to the given subject.
func (c *Client) Publish(subject string, env Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.nc.Publish(subject, data)
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if err := c.nc.Drain(); err != nil {
		c.logger.Warn("drain failed", "error", err)
	}
}

// RegisterEventHandler forwards every lifecycle event to the remote sink.
// Publish failures are logged only; a stalled or unreachable endpoint must
// never affect supervision.
func (c *Client) RegisterEventHandler(emitter *events.Emitter) {
	emitter.OnEvent(func(ev events.Event) {
		env, err := NewEnvelope(ev.Type, c.source, StatusData{
			Service: ev.Service,
			Fields:  ev.Fields,
			At:      ev.Timestamp,
		})
		if err != nil {
			c.logger.Error("failed to build envelope", "event", ev.Type, "error", err)
			return
		}
		subject := SubjectFor(ev)
		if err := c.Publish(subject, env); err != nil {
			c.logger.Warn("failed to publish status", "subject", subject, "error", err)
		}
	})
}

// StatusData is the payload for service status and health envelopes.
type StatusData struct {
	Service string            `json:"service"`
	Fields  map[string]string `json:"fields,omitempty"`
	At      time.Time         `json:"at"`
}
