// Package natssink publishes UIEvents to NATS so out-of-process renderers can
// subscribe per thread.
package natssink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hupe1980/routemesh/core"
)

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Options configure the sink.
type Options struct {
	// SubjectPrefix is prepended to the thread id: <prefix>.<threadID>.
	SubjectPrefix string
}

// Sink implements ui.Sink on top of NATS core publish. One message is
// published per event, in order.
type Sink struct {
	pub  Publisher
	opts Options
}

// New creates a Sink using pub.
func New(pub Publisher, optFns ...func(o *Options)) *Sink {
	opts := Options{SubjectPrefix: "routemesh.ui"}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Sink{pub: pub, opts: opts}
}

// Connect dials url with reconnect defaults suitable for a long-lived sink.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return conn, nil
}

// Subject returns the subject used for threadID.
func (s *Sink) Subject(threadID string) string {
	return s.opts.SubjectPrefix + "." + threadID
}

// Publish implements ui.Sink.
func (s *Sink) Publish(ctx context.Context, threadID string, events []core.UIEvent) error {
	subject := s.Subject(threadID)

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode ui event %s: %w", ev.ID, err)
		}

		if err := s.pub.Publish(subject, data); err != nil {
			return fmt.Errorf("publish ui event %s: %w", ev.ID, err)
		}
	}

	return nil
}
