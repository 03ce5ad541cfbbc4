package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"resetd/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, notice models.ResetNotice) error
}

type DispatcherConfig struct {
	BufferSize  int
	DropIfFull  bool
	SendTimeout time.Duration
}

// Dispatcher delivers notices on a background goroutine so request latency
// does not depend on the delivery channel.
type Dispatcher struct {
	cfg     DispatcherConfig
	next    Notifier
	log     zerolog.Logger
	ch      chan models.ResetNotice
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
}

func NewDispatcher(cfg DispatcherConfig, next Notifier, log zerolog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	d := &Dispatcher{
		cfg:  cfg,
		next: next,
		log:  log,
		ch:   make(chan models.ResetNotice, cfg.BufferSize),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.ch:
			d.deliver(n)
		case <-d.done:
			for {
				select {
				case n := <-d.ch:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n models.ResetNotice) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()
	if err := d.next.Notify(ctx, n); err != nil {
		d.log.Error().Err(err).Str("email", n.Email).Msg("reset notice delivery failed")
	}
}

// Notify queues n. It blocks while the buffer is full unless DropIfFull is
// set, and gives up when ctx ends or the dispatcher closes.
func (d *Dispatcher) Notify(ctx context.Context, n models.ResetNotice) error {
	if d.closed.Load() {
		return nil
	}
	if d.cfg.DropIfFull {
		select {
		case d.ch <- n:
		case <-d.done:
		default:
			d.dropped.Add(1)
			d.log.Warn().Str("email", n.Email).Msg("reset notice dropped, queue full")
		}
		return nil
	}
	select {
	case d.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return nil
	}
}

// Close stops accepting notices and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}
