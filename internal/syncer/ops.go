package syncer

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSuchRecord is returned when an id is unknown to the local cache.
var ErrNoSuchRecord = errors.New("no such record")

// create inserts rec locally and uploads it in the background.
func create[T any](c *Coordinator, k kind[T], ownerID string, rec T) {
	c.mu.Lock()
	st := c.state(ownerID)
	insertLocal(k, st, rec)
	c.persist(ownerID, st, k.snapshot)
	c.mu.Unlock()

	id := k.id(rec)
	c.background(func(ctx context.Context) {
		_ = pushCreate(ctx, c, k, ownerID, id)
	})
	c.scheduleRefresh(ownerID)
}

// update applies mutate locally, then pushes the record within the remote
// timeout. A failed push leaves the optimistic value pending.
func update[T any](ctx context.Context, c *Coordinator, k kind[T], ownerID, id string, mutate func(*T)) error {
	c.mu.Lock()
	st := c.state(ownerID)
	e := k.lookup(st, id)
	if e == nil {
		c.mu.Unlock()
		return fmt.Errorf("%s %s: %w", k.name, id, ErrNoSuchRecord)
	}
	mutate(&e.Record)
	touch(e)
	realID := k.id(e.Record)
	c.persist(ownerID, st, k.snapshot)
	c.mu.Unlock()

	c.scheduleRefresh(ownerID)
	if c.remote == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
	defer cancel()
	return flush(ctx, c, k, ownerID, realID)
}

// flush pushes whatever write id has pending.
func flush[T any](ctx context.Context, c *Coordinator, k kind[T], ownerID, id string) error {
	c.mu.Lock()
	var op pendingOp
	if e := k.lookup(c.state(ownerID), id); e != nil {
		op = e.Pending
		id = k.id(e.Record)
	}
	c.mu.Unlock()

	switch op {
	case pendingCreate:
		return pushCreate(ctx, c, k, ownerID, id)
	case pendingUpdate:
		return pushUpdate(ctx, c, k, ownerID, id)
	}
	return nil
}

// remove deletes id locally and remotely. Removing an unknown id is a no-op.
func remove[T any](ctx context.Context, c *Coordinator, k kind[T], ownerID, id string) error {
	c.mu.Lock()
	st := c.state(ownerID)
	realID, needsRemote, ok := removeLocal(k, st, id)
	if ok {
		c.persist(ownerID, st, k.snapshot)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	c.scheduleRefresh(ownerID)
	if !needsRemote || c.remote == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
	defer cancel()
	return pushDelete(ctx, c, k, ownerID, realID)
}

func list[T any](c *Coordinator, k kind[T], ownerID string) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return k.records(k.coll(c.state(ownerID)))
}

func get[T any](c *Coordinator, k kind[T], ownerID, id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := k.lookup(c.state(ownerID), id); e != nil {
		return e.Record, true
	}
	var zero T
	return zero, false
}
