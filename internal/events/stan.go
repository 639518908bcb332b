package events

import (
	"context"
	"encoding/json"
	"fmt"

	stan "github.com/nats-io/stan.go"

	"stockroute/internal/config"
	"stockroute/internal/domain"
)

// Publisher is the part of a NATS Streaming connection the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
	Close() error
}

// StanSink publishes every event on a NATS Streaming subject.
type StanSink struct {
	pub     Publisher
	subject string
}

func NewStanSink(pub Publisher, subject string) *StanSink {
	return &StanSink{pub: pub, subject: subject}
}

// DialStan connects to the cluster described by cfg.
func DialStan(cfg config.NATSConfig, subject string) (*StanSink, error) {
	sc, err := stan.Connect(cfg.ClusterID, cfg.ClientID, stan.NatsURL(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("nats streaming connect %s: %w", cfg.URL, err)
	}
	return NewStanSink(sc, subject), nil
}

func (s *StanSink) Name() string { return "nats " + s.subject }

func (s *StanSink) Accepts(string) bool { return true }

func (s *StanSink) Deliver(_ context.Context, evt domain.Event) error {
	data, err := json.Marshal(NewEnvelope(evt))
	if err != nil {
		return err
	}
	return s.pub.Publish(s.subject, data)
}

func (s *StanSink) Close() error {
	return s.pub.Close()
}
