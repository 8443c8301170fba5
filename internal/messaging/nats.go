// Package messaging publishes moderation lifecycle events to NATS so that
// external tooling (moderator dashboards, abuse pipelines) can observe bans,
// reports, and broadcasts without coupling to the relay process. Publishing
// is strictly fire-and-forget: the relay never reads these subjects back.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects for moderation events.
const (
	SubjectBan       = "moderation.ban"
	SubjectReport    = "moderation.report"
	SubjectBroadcast = "admin.broadcast"
)

// BanEvent is published whenever a ban is issued.
type BanEvent struct {
	IP          string `json:"ip,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Origin      string `json:"origin"` // "manual" or "auto"
	Ts          int64  `json:"ts"`
}

// ReportEvent is published whenever an abuse report is accepted.
type ReportEvent struct {
	Target      string `json:"target"`
	Reporter    string `json:"reporter"`
	Count       int    `json:"count"` // distinct reporters after this report
	TargetIP    string `json:"targetIp,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Ts          int64  `json:"ts"`
}

// BroadcastEvent is published for every admin broadcast message.
type BroadcastEvent struct {
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "pairwave-relay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Publisher wraps a NATS connection. A nil *Publisher is valid and discards
// all events, so wiring stays unconditional at the call sites.
type Publisher struct {
	conn *nats.Conn
}

// Connect establishes a NATS connection with the given config.
func Connect(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())
	return &Publisher{conn: nc}, nil
}

// publish marshals and publishes an event. Failures are logged, not returned;
// event publishing must never affect relay behavior.
func (p *Publisher) publish(subject string, v interface{}) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[nats] marshal %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s: %v", subject, err)
	}
}

// PublishBan publishes a ban event.
func (p *Publisher) PublishBan(ev BanEvent) {
	p.publish(SubjectBan, ev)
}

// PublishReport publishes a report event.
func (p *Publisher) PublishReport(ev ReportEvent) {
	p.publish(SubjectReport, ev)
}

// PublishBroadcast publishes an admin broadcast event.
func (p *Publisher) PublishBroadcast(ev BroadcastEvent) {
	p.publish(SubjectBroadcast, ev)
}

// Close drains and closes the connection. Safe on a nil publisher.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
