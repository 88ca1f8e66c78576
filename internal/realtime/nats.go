package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATS publishes and receives events over a NATS subject.
type NATS struct {
	nc      *nats.Conn
	subject string
	buffer  int
	log     zerolog.Logger
}

// ConnectNATS dials url and returns a feed that owns the connection.
func ConnectNATS(url string, log zerolog.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("moodtrack"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NewNATS(nc, log), nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, log zerolog.Logger) *NATS {
	return &NATS{nc: nc, subject: SubjectEntryInsert, buffer: 64, log: log}
}

func (n *NATS) Publish(_ context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

func (n *NATS) Subscribe(ctx context.Context) (<-chan Event, error) {
	msgs := make(chan *nats.Msg, n.buffer)
	sub, err := n.nc.ChanSubscribe(n.subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", n.subject, err)
	}

	out := make(chan Event, n.buffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				evt, err := decode(msg.Data)
				if err != nil {
					n.log.Warn().Err(err).Msg("skipping malformed realtime message")
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// HealthPing round-trips to the server.
func (n *NATS) HealthPing(ctx context.Context) error {
	if !n.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return n.nc.FlushWithContext(ctx)
}

func (n *NATS) Close() error {
	n.nc.Close()
	return nil
}
