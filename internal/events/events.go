// Package events publishes folio domain events (resume saved or deleted,
// subscription changed) to NATS and lets the HTTP layer stream a user's
// events back to them.
//
// Subjects have the form:
//
//	{prefix}.users.{user}.resume.saved
//	{prefix}.users.{user}.resume.deleted
//	{prefix}.users.{user}.subscription.updated
//	{prefix}.users.{user}.subscription.deleted
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Publisher publishes JSON events to NATS.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

// Connect dials the NATS server at url. The returned publisher owns the
// connection and closes it on Close.
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("foliod"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	p := NewPublisher(nc, prefix)
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	return &Publisher{nc: nc, prefix: strings.Trim(prefix, ".")}
}

// UserSubject returns the subject of event name for userID, without the
// publisher prefix. Dots and wildcards in the user id are replaced so the id
// stays a single subject token.
func UserSubject(userID, name string) string {
	return "users." + token(userID) + "." + name
}

func token(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// Publish marshals v and publishes it under prefix.subject. Trace context
// from ctx travels in the message headers.
func (p *Publisher) Publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(p.subject(subject))
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// SubscribeUser delivers every event of userID to ch.
func (p *Publisher) SubscribeUser(userID string, ch chan *nats.Msg) (*nats.Subscription, error) {
	return p.nc.ChanSubscribe(p.subject(UserSubject(userID, ">")), ch)
}

// EventName strips the prefix and user tokens from a delivered subject,
// returning e.g. "resume.saved".
func (p *Publisher) EventName(subject string) string {
	parts := strings.SplitN(strings.TrimPrefix(subject, p.prefix+"."), ".", 3)
	if len(parts) < 3 {
		return subject
	}
	return parts[2]
}

// Flush waits for published messages to reach the server.
func (p *Publisher) Flush() error {
	return p.nc.Flush()
}

// Close drains the connection if the publisher owns it.
func (p *Publisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.nc.Drain()
}

func (p *Publisher) subject(s string) string {
	if p.prefix == "" {
		return s
	}
	return p.prefix + "." + s
}
