// Package delivery fans parsed messages out to their recipients through a
// Transport, one recipient at a time.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jkim10/SecureMailer2/internal/email"
	"github.com/jkim10/SecureMailer2/internal/transport"
)

// Result counts the outcome of a run.
type Result struct {
	Delivered int
	Failed    int
}

// Orchestrator delivers messages sequentially. No two deliveries are ever
// in flight at the same time.
type Orchestrator struct {
	transport transport.Transport
	log       *slog.Logger
}

// New creates an Orchestrator that delivers through t.
func New(t transport.Transport) *Orchestrator {
	return &Orchestrator{
		transport: t,
		log:       slog.Default(),
	}
}

// WithLogger returns o using l for delivery reports.
func (o *Orchestrator) WithLogger(l *slog.Logger) *Orchestrator {
	o.log = l
	return o
}

// Deliver sends every message to each of its recipients in order. A failed
// delivery is logged and counted, and the run moves on to the next
// recipient. A transport.ErrSpawn failure or a cancelled context stops the
// run and is returned together with the counts so far.
func (o *Orchestrator) Deliver(ctx context.Context, msgs []*email.Message) (Result, error) {
	var res Result

	for _, msg := range msgs {
		data := msg.Bytes()

		for _, rcpt := range msg.Recipients() {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			err := o.transport.Deliver(ctx, rcpt, data)
			if err == nil {
				res.Delivered++
				o.log.Debug("message delivered",
					"transport", o.transport.Name(),
					"sender", msg.Sender(),
					"recipient", rcpt,
				)
				continue
			}

			if errors.Is(err, transport.ErrSpawn) {
				return res, fmt.Errorf("delivery to %s aborted: %w", rcpt, err)
			}

			res.Failed++
			o.log.Error("delivery failed on message from "+msg.Sender(),
				"transport", o.transport.Name(),
				"sender", msg.Sender(),
				"recipient", rcpt,
				"error", err,
			)
		}
	}

	return res, nil
}
