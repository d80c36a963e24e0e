package pump

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Correlator matches one outgoing command to the next inbound notification.
// The protocol carries no request ids, so correctness relies on a strict
// one-at-a-time discipline: the exchange mutex serializes concurrent callers
// so a second command is never written while a first caller is still waiting
// for its matching notification.
type Correlator struct {
	mu        sync.Mutex
	responses chan []byte
	logger    *logrus.Logger
}

func NewCorrelator(logger *logrus.Logger) *Correlator {
	return &Correlator{
		// Single pending slot; the device sends one response per command.
		responses: make(chan []byte, 1),
		logger:    logger,
	}
}

// Deliver hands an inbound notification to a waiting exchange. Called from
// the transport's notification path. If no exchange is waiting (unsolicited
// notification, or a wait that already timed out) the bytes are kept in the
// slot so the next exchange can drain them as stale.
func (c *Correlator) Deliver(data []byte) {
	buf := append([]byte(nil), data...)
	select {
	case c.responses <- buf:
	default:
		// Slot occupied by an even older notification; replace it so the
		// freshest data wins.
		select {
		case <-c.responses:
		default:
		}
		select {
		case c.responses <- buf:
		default:
		}
	}
}

// Exchange sends one command via send and blocks until the next notification
// arrives or the timeout elapses. A timeout returns ErrTimeout and is a
// transient condition, never a connection fault. Any stale buffered
// notification from a prior, abandoned wait is drained before sending so a
// response cannot be mismatched with leftover data.
func (c *Correlator) Exchange(send func() error, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case stale := <-c.responses:
		c.logger.WithField("data", hex.EncodeToString(stale)).
			Debug("Dropping stale buffered notification before send")
	default:
	}

	if err := send(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-c.responses:
		c.logger.WithField("data", hex.EncodeToString(resp)).Debug("Got response")
		return resp, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Send performs a fire-and-forget write under the same exclusion as
// Exchange, so it cannot interleave with an in-flight request.
func (c *Correlator) Send(send func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return send()
}
