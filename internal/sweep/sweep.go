// Package sweep implements the permissionless expiry-sweep daemon:
// CleanUpExpiredOrders needs an external driver once there is no
// blockchain transaction arriving to carry it, so something has to call it
// periodically. A tomb-supervised loop drives a time.Ticker instead of a
// channel of client messages.
package sweep

import (
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/asset"
	"fenrir/internal/clob"
)

// Source supplies the sweeper with candidate orders to check on each tick.
// A production source would read this from an on-chain index of
// expire_timestamp-sorted orders; the simplest source is a pool's own
// AllOpenOrders, and tests can supply a fixed slice.
type Source interface {
	Candidates() []clob.OrderRef
}

// PoolSource is the default Source: it re-scans its pool's full open-order
// set on every tick.
type PoolSource struct {
	Pool *clob.Pool
}

func (s PoolSource) Candidates() []clob.OrderRef {
	return s.Pool.AllOpenOrders()
}

// Daemon periodically calls CleanUpExpiredOrders against a pool using
// candidates drawn from a Source.
type Daemon struct {
	Pool     *clob.Pool
	Source   Source
	Interval time.Duration
	Clock    asset.Clock
}

// Run ticks every d.Interval until t starts dying, sweeping expired orders
// out of d.Pool on each tick.
func (d *Daemon) Run(t *tomb.Tomb) error {
	interval := d.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			d.sweepOnce()
		}
	}
}

func (d *Daemon) sweepOnce() {
	candidates := d.Source.Candidates()
	if len(candidates) == 0 {
		return
	}
	ids := make([]uint64, len(candidates))
	owners := make([]asset.OwnerId, len(candidates))
	for i, c := range candidates {
		ids[i] = c.OrderID
		owners[i] = c.Owner
	}
	now := d.Clock.NowMillis()
	if err := d.Pool.CleanUpExpiredOrders(now, ids, owners); err != nil {
		log.Error().Err(err).Msg("expiry sweep failed")
	}
}
