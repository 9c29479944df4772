// Package events announces finished ingestion runs on NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/ingest"
	"go.opentelemetry.io/otel"
)

// IngestFinished is the message published after every ingestion run
type IngestFinished struct {
	RunID       string         `json:"run_id"`
	RootID      int64          `json:"root_id"`
	State       string         `json:"state"`
	Pages       int            `json:"pages"`
	Seen        int            `json:"seen"`
	Processed   int            `json:"processed"`
	Skipped     int            `json:"skipped"`
	SkipReasons map[string]int `json:"skip_reasons,omitempty"`
	Error       string         `json:"error,omitempty"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// FromReport converts a run report into its wire form
func FromReport(r ingest.Report) IngestFinished {
	reasons := make(map[string]int, len(r.SkipReasons))
	for k, v := range r.SkipReasons {
		reasons[string(k)] = v
	}
	return IngestFinished{
		RunID:       r.RunID,
		RootID:      r.RootID,
		State:       string(r.State),
		Pages:       r.Pages,
		Seen:        r.Seen,
		Processed:   r.Processed,
		Skipped:     r.Skipped,
		SkipReasons: reasons,
		Error:       r.Error,
		FinishedAt:  r.FinishedAt,
	}
}

// Publisher sends IngestFinished events to a NATS subject
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  zerolog.Logger
}

// Connect dials NATS and returns a publisher for subject
func Connect(url, subject string, logger zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("netgraph"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewPublisher(nc, subject, logger), nil
}

// NewPublisher wraps an existing connection
func NewPublisher(nc *nats.Conn, subject string, logger zerolog.Logger) *Publisher {
	return &Publisher{nc: nc, subject: subject, logger: logger}
}

// Publish serializes evt and publishes it, propagating trace context in headers
func (p *Publisher) Publish(ctx context.Context, evt IngestFinished) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return p.nc.PublishMsg(msg)
}

// IngestFinished implements ingest.Observer
func (p *Publisher) IngestFinished(ctx context.Context, report ingest.Report) {
	if err := p.Publish(ctx, FromReport(report)); err != nil {
		p.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("failed to publish ingest event")
		return
	}
	p.logger.Debug().Str("run_id", report.RunID).Str("subject", p.subject).Msg("ingest event published")
}

// Subscribe decodes IngestFinished events on subject. Malformed messages are dropped.
func Subscribe(nc *nats.Conn, subject string, handler func(context.Context, IngestFinished)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var evt IngestFinished
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		handler(ctx, evt)
	})
}

// Close drains the connection
func (p *Publisher) Close() error {
	return p.nc.Drain()
}

// headerCarrier adapts nats.Msg headers to a propagation.TextMapCarrier
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}
