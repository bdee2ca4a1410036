package poller

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/agrilo/pkg/client"
	"github.com/cuemby/agrilo/pkg/events"
	"github.com/cuemby/agrilo/pkg/log"
	"github.com/cuemby/agrilo/pkg/metrics"
	"github.com/cuemby/agrilo/pkg/storage"
	"github.com/rs/zerolog"
)

// DefaultInterval is the time between fetches
const DefaultInterval = 5 * time.Second

// ErrStopped is returned when using a poller after Stop
var ErrStopped = errors.New("poller stopped")

// FetchFunc loads one snapshot of a view
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Update is a snapshot delivered to subscribers
type Update[T any] struct {
	View      string
	Seq       uint64
	Value     T
	FetchedAt time.Time
}

type options struct {
	interval time.Duration
	timeout  time.Duration
	store    storage.Store
	broker   *events.Broker
}

// Option configures a Poller
type Option func(*options)

// WithInterval sets the time between fetches
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithTimeout bounds each fetch
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithCache persists every applied snapshot and serves the persisted one
// until the first fetch succeeds
func WithCache(store storage.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithBroker publishes a snapshot.updated event for every applied snapshot
func WithBroker(broker *events.Broker) Option {
	return func(o *options) {
		o.broker = broker
	}
}

// Poller keeps the latest snapshot of a view fresh by fetching it on a
// fixed interval. Every fetch is numbered; a result older than the one
// already applied is discarded, as is any result arriving after Stop.
// A failed fetch keeps the previous snapshot and the next tick retries.
type Poller[T any] struct {
	name   string
	fetch  FetchFunc[T]
	opts   options
	logger zerolog.Logger

	seq atomic.Uint64
	wg  sync.WaitGroup

	// cacheMu orders snapshot writes so the cache never falls behind latest
	cacheMu sync.Mutex

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	latest  T
	has     bool
	applied uint64
	subs    map[<-chan Update[T]]chan Update[T]
}

// New creates a poller for the view name
func New[T any](name string, fetch FetchFunc[T], opts ...Option) *Poller[T] {
	o := options{interval: DefaultInterval}
	for _, opt := range opts {
		opt(&o)
	}

	return &Poller[T]{
		name:   name,
		fetch:  fetch,
		opts:   o,
		logger: log.WithView(name),
		subs:   make(map[<-chan Update[T]]chan Update[T]),
	}
}

// Name returns the view name
func (p *Poller[T]) Name() string {
	return p.name
}

// Interval returns the time between fetches
func (p *Poller[T]) Interval() time.Duration {
	return p.opts.interval
}

// Start fetches immediately and then on every tick until Stop is called or
// ctx is done. Calling Start on a running poller does nothing.
func (p *Poller[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.loadCache()

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Debug().Dur("interval", p.opts.interval).Msg("Poller started")
	return nil
}

// Stop ends the loop and waits for it and any in-flight fetch to return.
// Results that arrive meanwhile are dropped. Subscriber channels are closed.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	for recv, ch := range p.subs {
		close(ch)
		delete(p.subs, recv)
	}
	p.mu.Unlock()

	p.logger.Debug().Msg("Poller stopped")
}

func (p *Poller[T]) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.interval)
	defer ticker.Stop()

	p.dispatch(ctx)
	for {
		select {
		case <-ticker.C:
			p.dispatch(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// dispatch runs a fetch without blocking the ticker, so a slow response
// never delays the next one
func (p *Poller[T]) dispatch(ctx context.Context) {
	seq := p.seq.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.fetchOnce(ctx, seq)
	}()
}

// Refresh fetches now, outside the regular schedule
func (p *Poller[T]) Refresh(ctx context.Context) error {
	p.mu.RLock()
	stopped := p.stopped
	p.mu.RUnlock()
	if stopped {
		return ErrStopped
	}
	return p.fetchOnce(ctx, p.seq.Add(1))
}

func (p *Poller[T]) fetchOnce(ctx context.Context, seq uint64) error {
	if p.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.timeout)
		defer cancel()
	}

	timer := metrics.NewTimer()
	value, err := p.fetch(ctx)
	timer.ObserveDurationVec(metrics.PollFetchDuration, p.name)

	if err != nil {
		if p.isStopped() {
			return err
		}
		metrics.PollFetchesTotal.WithLabelValues(p.name, metrics.OutcomeFailure).Inc()

		event := p.logger.Warn()
		if client.IsNotFound(err) {
			event = p.logger.Debug()
		}
		event.Err(err).Uint64("seq", seq).Msg("Fetch failed, keeping last snapshot")
		return err
	}

	metrics.PollFetchesTotal.WithLabelValues(p.name, metrics.OutcomeSuccess).Inc()
	p.apply(seq, value)
	return nil
}

func (p *Poller[T]) apply(seq uint64, value T) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.logger.Debug().Uint64("seq", seq).Msg("Dropping result after stop")
		return
	}
	if seq <= p.applied {
		applied := p.applied
		p.mu.Unlock()
		metrics.PollStaleDiscardedTotal.WithLabelValues(p.name).Inc()
		p.logger.Debug().Uint64("seq", seq).Uint64("applied", applied).Msg("Discarding out-of-order result")
		return
	}

	p.applied = seq
	p.latest = value
	p.has = true

	update := Update[T]{View: p.name, Seq: seq, Value: value, FetchedAt: time.Now()}
	for _, ch := range p.subs {
		offer(ch, update)
	}
	p.mu.Unlock()

	p.saveCache(seq, value)

	if p.opts.broker != nil {
		p.opts.broker.Publish(&events.Event{
			Type:    events.EventSnapshotUpdated,
			Message: p.name,
			Metadata: map[string]string{
				events.MetaView: p.name,
				events.MetaSeq:  strconv.FormatUint(seq, 10),
			},
		})
	}
}

// offer delivers u, replacing an undelivered older update
func offer[T any](ch chan Update[T], u Update[T]) {
	select {
	case ch <- u:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- u:
	default:
	}
}

func (p *Poller[T]) isStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}

// Latest returns the current snapshot and whether there is one
func (p *Poller[T]) Latest() (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.has
}

// Subscribe returns a channel that receives every applied snapshot. A slow
// subscriber only sees the newest one.
func (p *Poller[T]) Subscribe() <-chan Update[T] {
	ch := make(chan Update[T], 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		close(ch)
		return ch
	}
	p.subs[ch] = ch
	return ch
}

// Unsubscribe removes and closes a subscription
func (p *Poller[T]) Unsubscribe(sub <-chan Update[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.subs[sub]
	if !ok {
		return
	}
	delete(p.subs, sub)
	close(ch)
}

func (p *Poller[T]) loadCache() {
	if p.opts.store == nil {
		return
	}
	data, err := p.opts.store.GetSnapshot(p.name)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to load cached snapshot")
		return
	}
	if data == nil {
		return
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		p.logger.Warn().Err(err).Msg("Ignoring unreadable cached snapshot")
		return
	}

	p.mu.Lock()
	if !p.has {
		p.latest = value
		p.has = true
	}
	p.mu.Unlock()
}

func (p *Poller[T]) saveCache(seq uint64, value T) {
	if p.opts.store == nil {
		return
	}

	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	// A newer snapshot was applied meanwhile; its own save persists it
	p.mu.RLock()
	applied := p.applied
	p.mu.RUnlock()
	if seq != applied {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to encode snapshot")
		return
	}
	if err := p.opts.store.SaveSnapshot(p.name, data); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to cache snapshot")
	}
}
