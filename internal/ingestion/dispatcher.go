package ingestion

import (
	"context"
	"errors"
	"time"

	"vaultledger/internal/core"
	"vaultledger/internal/observability"
	"vaultledger/internal/queue"

	"github.com/rs/zerolog"
)

// Dispatcher drains the command channel, parses each raw command, and
// applies it to the engine. Terminal failures ACK so a poison message does
// not redeliver forever; ordering failures NAK so JetStream redelivers once
// the queue catches up.
type Dispatcher struct {
	engine  *core.Engine
	cmdChan <-chan RawCommand
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewDispatcher(engine *core.Engine, cmdChan <-chan RawCommand, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		engine:  engine,
		cmdChan: cmdChan,
		metrics: metrics,
		log:     observability.NewLogger("dispatcher"),
	}
}

// Run blocks until ctx is cancelled or the channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-d.cmdChan:
			if !ok {
				return nil
			}
			d.handle(ctx, raw)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, raw RawCommand) {
	cmd, err := ParseRawCommand(raw)
	if err != nil {
		// Malformed payloads never become valid; drop them.
		d.log.Error().Err(err).Str("subject", raw.Subject).Msg("unparseable command dropped")
		raw.AckFunc()
		return
	}

	at := raw.Timestamp
	switch cmd.Type {
	case "Advance":
		err = d.engine.Advance(ctx, *cmd.Advance, at)
	case "SetPauses":
		d.engine.SetPauses(cmd.Pauses.Deposits, cmd.Pauses.Withdrawals, cmd.Pauses.Claims, at)
	}

	if d.metrics != nil {
		d.metrics.IngestToApply.WithLabelValues(cmd.Type).Observe(time.Since(raw.Timestamp).Seconds())
	}

	if err == nil {
		raw.AckFunc()
		return
	}

	// An advance that names an entry ahead of the cursor arrived before its
	// predecessors settled. Redelivery fixes that; everything else is
	// terminal for this message.
	if errors.Is(err, queue.ErrStaleEntry) || errors.Is(err, queue.ErrEmptyQueue) {
		d.log.Warn().Err(err).Str("subject", raw.Subject).Msg("command out of order, requesting redelivery")
		raw.NakFunc()
		return
	}

	d.log.Error().Err(err).Str("subject", raw.Subject).Msg("command rejected")
	raw.AckFunc()
}
