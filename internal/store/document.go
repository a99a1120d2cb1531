package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"aquarium-monitor/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Unsubscribe closes a listener; safe to call more than once
type Unsubscribe func()

// SnapshotFunc receives full device snapshots in commit order
type SnapshotFunc func(models.DeviceState)

// SubscribeOption configures Subscribe
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	onError func(error)
}

// WithErrorHandler receives read failures that happen after the listener is open
func WithErrorHandler(fn func(error)) SubscribeOption {
	return func(o *subscribeOptions) {
		o.onError = fn
	}
}

// Document one device's shared state
type Document struct {
	client         *redis.Client
	logger         *zap.Logger
	deviceID       string
	stateKey       string
	changesChannel string
}

// DeviceID the device this document belongs to
func (d *Document) DeviceID() string {
	return d.deviceID
}

// ReadOnce reads the current document
func (d *Document) ReadOnce(ctx context.Context) (models.DeviceState, error) {
	fields, err := d.client.HGetAll(ctx, d.stateKey).Result()
	if err != nil {
		return models.DeviceState{}, connectivity("read", err)
	}
	if len(fields) == 0 {
		return models.DeviceState{}, ErrNotFound
	}
	return decodeHash(fields)
}

// MergeWrite writes only the sections present in patch. Fields of a present
// section overwrite, sibling sections are untouched. A patch the read path
// would reject fails with a ValidationError and nothing is sent. A write
// cannot be aborted once sent.
func (d *Document) MergeWrite(ctx context.Context, patch models.Patch) error {
	if patch.IsEmpty() {
		return nil
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	fields, sections, err := encodePatch(patch)
	if err != nil {
		return err
	}

	// detached from ctx cancellation once issued
	writeCtx := context.WithoutCancel(ctx)
	_, err = d.client.TxPipelined(writeCtx, func(pipe redis.Pipeliner) error {
		pipe.HSet(writeCtx, d.stateKey, fields)
		pipe.Publish(writeCtx, d.changesChannel, strings.Join(sections, ","))
		return nil
	})
	if err != nil {
		return connectivity("merge write", err)
	}

	d.logger.Debug("Merged device state",
		zap.Strings("sections", sections),
	)
	return nil
}

// Subscribe opens one listener. The current value is delivered first, then the
// latest value after each change. Changes arriving while a delivery runs are
// coalesced. A missing document delivers nothing until it is first written.
//
// Unsubscribe does not wait for a running callback, so it can be called from
// inside one. A delivery already dispatched when it is called may still run to
// completion; no delivery is dispatched after it returns.
func (d *Document) Subscribe(ctx context.Context, onSnapshot SnapshotFunc, opts ...SubscribeOption) (Unsubscribe, error) {
	o := subscribeOptions{
		onError: func(err error) {
			d.logger.Warn("Device state subscription read failed", zap.Error(err))
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	pubsub := d.client.Subscribe(ctx, d.changesChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, connectivity("subscribe", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	l := &listener{
		doc:        d,
		pubsub:     pubsub,
		onSnapshot: onSnapshot,
		onError:    o.onError,
		signal:     make(chan struct{}, 1),
		cancel:     cancel,
	}

	go l.receive(listenCtx)
	go l.deliver(listenCtx)

	// parent context ends the listener too
	go func() {
		select {
		case <-ctx.Done():
			l.close()
		case <-listenCtx.Done():
		}
	}()

	d.logger.Debug("Opened device state listener")
	return l.close, nil
}

type listener struct {
	doc        *Document
	pubsub     *redis.PubSub
	onSnapshot SnapshotFunc
	onError    func(error)
	signal     chan struct{}
	cancel     context.CancelFunc

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (l *listener) receive(ctx context.Context) {
	ch := l.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			select {
			case l.signal <- struct{}{}:
			default:
			}
		}
	}
}

func (l *listener) deliver(ctx context.Context) {
	l.readAndDeliver(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.signal:
			l.readAndDeliver(ctx)
		}
	}
}

func (l *listener) readAndDeliver(ctx context.Context) {
	state, err := l.doc.ReadOnce(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return
		}
		l.onError(err)
		return
	}
	if l.isClosed() {
		return
	}
	l.onSnapshot(state)
}

func (l *listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// close marks the listener closed before releasing Redis. It does not wait for
// a delivery already in progress, so it may be called from inside the snapshot
// callback.
func (l *listener) close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		l.cancel()
		if err := l.pubsub.Close(); err != nil {
			l.doc.logger.Debug("Failed to close pubsub", zap.Error(err))
		}
		l.doc.logger.Debug("Closed device state listener")
	})
}
