package probe

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const drainTimeout = 10 * time.Second

// conn is a NATS connection that reports when it has been fully closed.
type conn struct {
	nc     *nats.Conn
	closed chan struct{}
}

func connect(url string) (*conn, error) {
	c := &conn{closed: make(chan struct{})}
	nc, err := nats.Connect(url,
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { close(c.closed) }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	c.nc = nc
	log.Info().Str("url", url).Msg("Connected to NATS server")
	return c, nil
}

// drain stops new messages, lets running callbacks and pending publishes finish, and blocks
// until the connection is closed.
func (c *conn) drain() {
	if c == nil || c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("Failed to drain NATS connection")
		c.nc.Close()
		return
	}
	select {
	case <-c.closed:
		log.Info().Msg("NATS connection drained and closed")
	case <-time.After(drainTimeout + time.Second):
		log.Warn().Msg("Timed out waiting for NATS drain")
	}
}
