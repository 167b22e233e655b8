package probe

import (
	"TrafficSentry/internal/codec"
	"TrafficSentry/internal/config"
	"TrafficSentry/internal/model"
)

// Publisher is responsible for publishing packets and threat assessments to NATS subjects.
type Publisher struct {
	conn              *conn
	packetSubject     string
	assessmentSubject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	c, err := connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		conn:              c,
		packetSubject:     cfg.PacketSubject,
		assessmentSubject: cfg.AssessmentSubject,
	}, nil
}

// Publish serializes a packet and publishes it to the packet subject.
func (p *Publisher) Publish(packet model.Packet) error {
	data, err := codec.MarshalPacket(packet)
	if err != nil {
		return err
	}
	return p.conn.nc.Publish(p.packetSubject, data)
}

// PublishAssessment serializes a threat assessment and publishes it to the assessment subject.
// It is a no-op when no assessment subject is configured.
func (p *Publisher) PublishAssessment(a model.ThreatAssessment) error {
	if p.assessmentSubject == "" {
		return nil
	}
	data, err := codec.MarshalAssessment(a)
	if err != nil {
		return err
	}
	return p.conn.nc.Publish(p.assessmentSubject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	p.conn.drain()
}
