package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/clob"
	"fenrir/internal/events"
	"fenrir/internal/net"
	"fenrir/internal/sweep"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	pool, err := clob.NewPool(clob.PoolConfig{
		PoolID:          "BASE/QUOTE",
		BaseType:        "BASE",
		QuoteType:       "QUOTE",
		TakerFeeRate:    2_000_000, // 0.2%
		MakerRebateRate: 1_000_000, // 0.1%
		TickSize:        1,
		LotSize:         1,
		Sink:            &events.Recorder{},
	})
	if err != nil {
		panic(err)
	}

	srv := net.New("0.0.0.0", 9001, map[string]*clob.Pool{pool.PoolID: pool})

	t, ctx := tomb.WithContext(ctx)
	daemon := &sweep.Daemon{
		Pool:     pool,
		Source:   sweep.PoolSource{Pool: pool},
		Interval: 10 * time.Second,
		Clock:    pool.Clock,
	}
	t.Go(func() error { return daemon.Run(t) })

	go srv.Run(ctx)
	<-ctx.Done()
}
