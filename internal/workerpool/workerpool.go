// Package workerpool implements a fixed-size, tomb-supervised pool of
// long-lived workers draining a shared task queue, spawning exactly n
// persistent workers that block on a channel read rather than busy-poll.
package workerpool

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// WorkerFunction processes a single queued task.
type WorkerFunction = func(t *tomb.Tomb, task any) error

// Pool is a fixed-size pool of workers draining a shared task channel.
type Pool struct {
	n     int
	tasks chan any
}

// New constructs a pool with the given number of workers.
func New(size int) Pool {
	return Pool{
		n:     size,
		tasks: make(chan any, taskChanSize),
	}
}

// AddTask enqueues a task for a worker to pick up.
func (p *Pool) AddTask(task any) {
	p.tasks <- task
}

// Run spawns the pool's workers under t, each looping on p.tasks until t
// starts dying.
func (p *Pool) Run(t *tomb.Tomb, work WorkerFunction) {
	log.Info().Int("workers", p.n).Msg("starting worker pool")
	for i := 0; i < p.n; i++ {
		t.Go(func() error {
			return p.worker(t, work)
		})
	}
}

func (p *Pool) worker(t *tomb.Tomb, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Msg("worker exiting")
				return err
			}
		}
	}
}
