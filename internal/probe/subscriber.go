package probe

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/codec"
	"TrafficSentry/internal/config"
	"TrafficSentry/internal/model"
)

// PacketHandler is a function that processes a received packet.
type PacketHandler func(p model.Packet)

// AssessmentHandler is a function that processes a received threat assessment.
type AssessmentHandler func(a model.ThreatAssessment)

// Subscriber is responsible for subscribing to NATS subjects and decoding their messages.
type Subscriber struct {
	conn *conn
	subs []*nats.Subscription
	cfg  config.NATSConfig
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	c, err := connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &Subscriber{conn: c, cfg: cfg}, nil
}

// Start subscribes to the packet subject and hands every decoded packet to handler.
func (s *Subscriber) Start(handler PacketHandler) error {
	return s.subscribe(s.cfg.PacketSubject, packetCallback(handler))
}

// StartAssessments subscribes to the assessment subject.
func (s *Subscriber) StartAssessments(handler AssessmentHandler) error {
	return s.subscribe(s.cfg.AssessmentSubject, assessmentCallback(handler))
}

func (s *Subscriber) subscribe(subject string, cb nats.MsgHandler) error {
	sub, err := s.conn.nc.Subscribe(subject, cb)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	s.subs = append(s.subs, sub)
	log.Info().Str("subject", subject).Msg("Subscribed, waiting for messages")
	return nil
}

func packetCallback(handler PacketHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		p, err := codec.UnmarshalPacket(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping undecodable packet")
			return
		}
		handler(p)
	}
}

func assessmentCallback(handler AssessmentHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		a, err := codec.UnmarshalAssessment(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping undecodable assessment")
			return
		}
		handler(a)
	}
}

// Close drains the subscriptions and the connection. It returns once every callback that
// was already running has finished, so handlers never run after Close.
func (s *Subscriber) Close() {
	s.conn.drain()
}
