package coordinator

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNoInstances is returned by fetch paths when no instance is
// registered; an unowned fetch would have no one to deliver to.
var ErrNoInstances = errors.New("coordinator: no registered instances")

// FetchFunc loads the authoritative value for an owner key.
type FetchFunc[T any] func(ctx context.Context, ownerKey string) (T, error)

// Coordinator owns the canonical value and the single in-flight fetch for
// a set of consumer instances.
type Coordinator[T any] struct {
	fetch FetchFunc[T]
	log   *zap.Logger
	group singleflight.Group

	mu        sync.Mutex
	instances []*Instance[T]
	value     T
	hasValue  bool
	valueKey  string
}

// Instance is one registered consumer. Instances are not safe to share;
// each logical consumer registers its own.
type Instance[T any] struct {
	id      string
	coord   *Coordinator[T]
	updates chan T
	closed  bool
}

// New creates a Coordinator around fetch. The logger may be nil.
func New[T any](fetch FetchFunc[T], log *zap.Logger) *Coordinator[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator[T]{fetch: fetch, log: log}
}

// Register adds a consumer instance. The first instance registered becomes
// primary. If a value is already cached the new instance receives it
// immediately on its update channel.
func (c *Coordinator[T]) Register() *Instance[T] {
	inst := &Instance[T]{
		id:      uuid.NewString(),
		coord:   c,
		updates: make(chan T, 1),
	}
	c.mu.Lock()
	c.instances = append(c.instances, inst)
	if c.hasValue {
		inst.push(c.value)
	}
	primary := len(c.instances) == 1
	c.mu.Unlock()
	if primary {
		c.log.Debug("instance registered as primary", zap.String("instance", inst.id))
	}
	return inst
}

// Invalidate drops the cached value, typically on an identity change, so
// the next Get fetches fresh data.
func (c *Coordinator[T]) Invalidate() {
	c.mu.Lock()
	var zero T
	c.value = zero
	c.hasValue = false
	c.valueKey = ""
	c.mu.Unlock()
}

// Instances reports how many consumers are registered.
func (c *Coordinator[T]) Instances() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances)
}

func (c *Coordinator[T]) get(ctx context.Context, ownerKey string, force bool) (T, error) {
	c.mu.Lock()
	if len(c.instances) == 0 {
		c.mu.Unlock()
		var zero T
		return zero, ErrNoInstances
	}
	if c.hasValue && c.valueKey == ownerKey && !force {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	// The singleflight group lives on the Coordinator, so a fetch started
	// by one primary survives its deregistration and still resolves for
	// everyone who joined it.
	v, err, _ := c.group.Do(ownerKey, func() (any, error) {
		return c.fetch(ctx, ownerKey)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	value := v.(T)
	c.broadcast(ownerKey, value)
	return value, nil
}

func (c *Coordinator[T]) broadcast(ownerKey string, value T) {
	c.mu.Lock()
	c.value = value
	c.hasValue = true
	c.valueKey = ownerKey
	instances := make([]*Instance[T], len(c.instances))
	copy(instances, c.instances)
	c.mu.Unlock()
	for _, inst := range instances {
		inst.push(value)
	}
}

// push is latest-wins and never blocks: the drain and the send both bail
// when a concurrent pusher got there first, so the newest value still
// lands without trapping either pusher on the one-slot buffer.
func (i *Instance[T]) push(value T) {
	select {
	case <-i.updates:
	default:
	}
	select {
	case i.updates <- value:
	default:
	}
}

// Primary reports whether this instance currently owns the canonical
// fetch.
func (i *Instance[T]) Primary() bool {
	i.coord.mu.Lock()
	defer i.coord.mu.Unlock()
	return len(i.coord.instances) > 0 && i.coord.instances[0] == i
}

// Get returns the cached value for ownerKey, fetching it if absent. Any
// instance may call Get: a fetch already in flight is joined, never
// repeated.
func (i *Instance[T]) Get(ctx context.Context, ownerKey string) (T, error) {
	return i.coord.get(ctx, ownerKey, false)
}

// Refresh re-fetches for ownerKey. Only the primary actually forces a
// fetch; from any other instance Refresh degrades to Get, so push-
// triggered refreshes from many mounted consumers cause one network call.
func (i *Instance[T]) Refresh(ctx context.Context, ownerKey string) (T, error) {
	return i.coord.get(ctx, ownerKey, i.Primary())
}

// Updates delivers rebroadcast values. The channel has a buffer of one and
// is overwritten by newer values when the consumer lags.
func (i *Instance[T]) Updates() <-chan T {
	return i.updates
}

// Value returns the coordinator's cached value, if any.
func (i *Instance[T]) Value() (T, bool) {
	i.coord.mu.Lock()
	defer i.coord.mu.Unlock()
	return i.coord.value, i.coord.hasValue
}

// Close deregisters the instance. When the primary closes, the next
// instance by registration order is promoted immediately; there is no
// ownership gap because the in-flight fetch state lives on the
// Coordinator.
func (i *Instance[T]) Close() {
	c := i.coord
	c.mu.Lock()
	defer c.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	for idx, inst := range c.instances {
		if inst == i {
			c.instances = append(c.instances[:idx], c.instances[idx+1:]...)
			break
		}
	}
	if len(c.instances) > 0 {
		c.log.Debug("primary is now", zap.String("instance", c.instances[0].id))
	}
}
