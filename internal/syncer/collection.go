package syncer

import (
	"context"
	"reflect"
	"sort"
	"time"

	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/remote"
)

type pendingOp string

const (
	pendingNone   pendingOp = ""
	pendingCreate pendingOp = "create"
	pendingUpdate pendingOp = "update"
)

// entry is one cached record plus its sync bookkeeping.
type entry[T any] struct {
	Record  T         `json:"record"`
	Pending pendingOp `json:"pending,omitempty"`

	version  int    // bumped on every local mutation
	ackSeq   uint64 // sequence number of the last remote acknowledgement
	inflight bool   // a remote write for this record is running
}

// tombstone marks a locally deleted id so refreshes never bring it back.
type tombstone struct {
	ID        string `json:"id"`
	Confirmed bool   `json:"confirmed,omitempty"`

	ackSeq uint64
	// awaitingInsert holds the remote delete back until the running insert returns.
	awaitingInsert bool
}

// collection is the cached snapshot of one record type for one owner.
type collection[T any] struct {
	Items      []*entry[T]  `json:"items"`
	Tombstones []*tombstone `json:"tombstones,omitempty"`
}

// kind describes how the coordinator handles one record type.
type kind[T any] struct {
	name     string
	snapshot string
	coll     func(*ownerState) *collection[T]
	table    func(remote.Store) remote.Table[T]
	id       func(T) string
	setID    func(*T, string)
	setOwner func(*T, string)
	// sortKey orders the collection newest first. Nil keeps merge order.
	sortKey func(T) time.Time
	// natural matches a pending local placeholder to a remote row. Nil disables adoption.
	natural func(local, remote T) bool
	// rekeyed rewrites references to a record whose id changed.
	rekeyed func(st *ownerState, oldID, newID string)
	// unique is a key at most one record may hold. Nil allows duplicates.
	unique func(T) string
}

func (k kind[T]) find(col *collection[T], id string) *entry[T] {
	for _, e := range col.Items {
		if k.id(e.Record) == id {
			return e
		}
	}
	return nil
}

// lookup finds id directly or through the alias left by a re-key.
func (k kind[T]) lookup(st *ownerState, id string) *entry[T] {
	col := k.coll(st)
	if e := k.find(col, id); e != nil {
		return e
	}
	if target, ok := st.aliases[id]; ok {
		return k.find(col, target)
	}
	return nil
}

func (k kind[T]) tombstone(col *collection[T], id string) *tombstone {
	for _, ts := range col.Tombstones {
		if ts.ID == id {
			return ts
		}
	}
	return nil
}

func (k kind[T]) sort(items []*entry[T]) {
	if k.sortKey == nil {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		return k.sortKey(items[i].Record).After(k.sortKey(items[j].Record))
	})
}

func (k kind[T]) records(col *collection[T]) []T {
	out := make([]T, 0, len(col.Items))
	for _, e := range col.Items {
		out = append(out, e.Record)
	}
	return out
}

// touch marks e as locally modified.
func touch[T any](e *entry[T]) {
	e.version++
	if e.Pending != pendingCreate {
		e.Pending = pendingUpdate
	}
}

// insertLocal puts rec at the head of the collection as a pending create. Caller holds c.mu.
func insertLocal[T any](k kind[T], st *ownerState, rec T) {
	col := k.coll(st)
	col.Items = append([]*entry[T]{{Record: rec, Pending: pendingCreate, version: 1}}, col.Items...)
}

// removeLocal drops id and leaves a tombstone. It returns the record's
// current id and whether the remote store still has to be told. A record that
// never reached the remote store gets a confirmed tombstone right away. While
// its insert is running the tombstone stays unconfirmed so no refresh can
// bring the row back; pushCreate cleans up the late result. Caller holds c.mu.
func removeLocal[T any](k kind[T], st *ownerState, id string) (realID string, needsRemote bool, ok bool) {
	col := k.coll(st)
	e := k.lookup(st, id)
	if e == nil {
		return "", false, false
	}
	realID = k.id(e.Record)
	drop(col, e)
	needsRemote = e.Pending != pendingCreate
	if ts := k.tombstone(col, realID); ts == nil {
		col.Tombstones = append(col.Tombstones, &tombstone{
			ID:             realID,
			Confirmed:      !needsRemote && !e.inflight,
			awaitingInsert: e.inflight && !needsRemote,
		})
	}
	return realID, needsRemote, true
}

// drop removes e from the collection.
func drop[T any](col *collection[T], e *entry[T]) {
	for i, item := range col.Items {
		if item == e {
			col.Items = append(col.Items[:i:i], col.Items[i+1:]...)
			return
		}
	}
}

// bury tombstones id and drops any local copy of it. Caller holds c.mu.
func bury[T any](k kind[T], st *ownerState, id string) {
	col := k.coll(st)
	if e := k.find(col, id); e != nil {
		drop(col, e)
	}
	if ts := k.tombstone(col, id); ts != nil {
		ts.Confirmed = false
		return
	}
	col.Tombstones = append(col.Tombstones, &tombstone{ID: id})
}

// rekey moves e from oldID to newID, leaving an alias behind. Caller holds c.mu.
func rekey[T any](k kind[T], st *ownerState, e *entry[T], oldID, newID string) {
	k.setID(&e.Record, newID)
	alias(k, st, oldID, newID)
}

// alias points oldID and every reference to it at newID. Caller holds c.mu.
func alias[T any](k kind[T], st *ownerState, oldID, newID string) {
	st.aliases[oldID] = newID
	if k.rekeyed != nil {
		k.rekeyed(st, oldID, newID)
	}
}

// pushCreate uploads a pending create. A late result for a record that was
// deleted meanwhile removes the stray remote row instead.
func pushCreate[T any](ctx context.Context, c *Coordinator, k kind[T], ownerID, localID string) error {
	c.mu.Lock()
	e := k.find(k.coll(c.state(ownerID)), localID)
	if e == nil || e.Pending != pendingCreate || e.inflight {
		c.mu.Unlock()
		return nil
	}
	rec, ver := e.Record, e.version
	e.inflight = true
	c.mu.Unlock()

	got, err := k.table(c.remote).Insert(ctx, rec)

	c.mu.Lock()
	st := c.state(ownerID)
	e = k.lookup(st, localID)
	if e != nil {
		e.inflight = false
	}
	if ts := k.tombstone(k.coll(st), localID); ts != nil {
		ts.awaitingInsert = false
	}
	if err != nil {
		c.mu.Unlock()
		err = apperrors.Wrap("insert "+k.name, localID, err)
		logger.Warn("Remote insert failed, keeping local record", "kind", k.name, "id", localID, "error", err)
		return err
	}

	remoteID := k.id(got)
	col := k.coll(st)
	if e == nil {
		// Deleted while the insert ran, so the new row is the deleted record
		logger.Debug("Discarding late insert result", "kind", k.name, "id", localID, "remote_id", remoteID)
		if ts := k.tombstone(col, localID); ts != nil && remoteID != localID {
			ts.Confirmed = true
			ts.ackSeq = c.nextSeq()
		}
		bury(k, st, remoteID)
		c.persist(ownerID, st, k.snapshot)
		c.mu.Unlock()
		return pushDelete(ctx, c, k, ownerID, remoteID)
	}
	switch current := k.id(e.Record); {
	case current == localID:
	case current == remoteID:
		// Already adopted by a refresh
		c.mu.Unlock()
		return nil
	default:
		// The record lives under another remote row. Remove this copy
		// unless a local record already owns it.
		if k.find(col, remoteID) != nil || k.tombstone(col, remoteID) != nil {
			c.mu.Unlock()
			return nil
		}
		logger.Debug("Removing duplicate remote row", "kind", k.name, "id", current, "remote_id", remoteID)
		col.Tombstones = append(col.Tombstones, &tombstone{ID: remoteID})
		c.persist(ownerID, st, k.snapshot)
		c.mu.Unlock()
		return pushDelete(ctx, c, k, ownerID, remoteID)
	}

	if remoteID != localID && k.tombstone(col, remoteID) != nil {
		// The store matched a row deleted here; insert again once the delete lands
		logger.Debug("Insert matched a deleted row, retrying later", "kind", k.name, "id", localID, "remote_id", remoteID)
		c.mu.Unlock()
		return nil
	}

	if holder := k.find(col, remoteID); holder != nil && holder != e {
		// A refresh fetched the row before the insert returned. Keep the
		// fetched entry and retire the placeholder.
		drop(col, e)
		alias(k, st, localID, remoteID)
		needsUpdate := false
		if e.version != ver && holder.Pending == pendingNone && !holder.inflight {
			k.setID(&e.Record, remoteID)
			holder.Record = e.Record
			touch(holder)
			needsUpdate = true
		}
		c.persistAll(ownerID, st)
		c.mu.Unlock()
		if needsUpdate {
			return pushUpdate(ctx, c, k, ownerID, remoteID)
		}
		return nil
	}

	touched := false
	if remoteID != localID {
		rekey(k, st, e, localID, remoteID)
		touched = true
	}
	needsUpdate := e.version != ver
	if needsUpdate {
		e.Pending = pendingUpdate
	} else {
		e.Pending = pendingNone
	}
	e.ackSeq = c.nextSeq()
	if touched {
		c.persistAll(ownerID, st)
	} else {
		c.persist(ownerID, st, k.snapshot)
	}
	c.mu.Unlock()

	if needsUpdate {
		return pushUpdate(ctx, c, k, ownerID, remoteID)
	}
	return nil
}

// pushUpdate uploads a pending update. A missing remote row counts as done.
func pushUpdate[T any](ctx context.Context, c *Coordinator, k kind[T], ownerID, id string) error {
	c.mu.Lock()
	e := k.lookup(c.state(ownerID), id)
	if e == nil || e.Pending != pendingUpdate || e.inflight {
		c.mu.Unlock()
		return nil
	}
	rec, ver := e.Record, e.version
	e.inflight = true
	c.mu.Unlock()

	err := k.table(c.remote).Update(ctx, rec)

	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(ownerID)
	e = k.lookup(st, id)
	if e != nil {
		e.inflight = false
	}
	if err != nil && !apperrors.IsNotFound(err) {
		err = apperrors.Wrap("update "+k.name, id, err)
		logger.Warn("Remote update failed, keeping local value", "kind", k.name, "id", id, "error", err)
		return err
	}
	if e != nil && e.version == ver {
		e.Pending = pendingNone
		e.ackSeq = c.nextSeq()
		c.persist(ownerID, st, k.snapshot)
	}
	return nil
}

// pushDelete removes id remotely and confirms its tombstone.
func pushDelete[T any](ctx context.Context, c *Coordinator, k kind[T], ownerID, id string) error {
	if err := k.table(c.remote).Delete(ctx, id); err != nil && !apperrors.IsNotFound(err) {
		err = apperrors.Wrap("delete "+k.name, id, err)
		logger.Warn("Remote delete failed, will retry", "kind", k.name, "id", id, "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(ownerID)
	if ts := k.tombstone(k.coll(st), id); ts != nil && !ts.Confirmed {
		ts.Confirmed = true
		ts.ackSeq = c.nextSeq()
		c.persist(ownerID, st, k.snapshot)
	}
	return nil
}

// syncKind retries every pending write of one kind. It stops at the first
// network failure since the rest would fail the same way.
func syncKind[T any](ctx context.Context, c *Coordinator, k kind[T], ownerID string) error {
	c.mu.Lock()
	col := k.coll(c.state(ownerID))
	var creates, updates, deletes []string
	for _, e := range col.Items {
		switch e.Pending {
		case pendingCreate:
			creates = append(creates, k.id(e.Record))
		case pendingUpdate:
			updates = append(updates, k.id(e.Record))
		}
	}
	for _, ts := range col.Tombstones {
		if !ts.Confirmed && !ts.awaitingInsert {
			deletes = append(deletes, ts.ID)
		}
	}
	c.mu.Unlock()

	var firstErr error
	record := func(err error) bool {
		if err == nil {
			return false
		}
		if firstErr == nil {
			firstErr = err
		}
		return apperrors.Classify(err) == apperrors.KindNetworkUnavailable
	}

	// Deletes go first since a create may share a unique key with a deleted row
	for _, id := range deletes {
		if record(pushDelete(ctx, c, k, ownerID, id)) {
			return firstErr
		}
	}
	for _, id := range creates {
		if record(pushCreate(ctx, c, k, ownerID, id)) {
			return firstErr
		}
	}
	for _, id := range updates {
		if record(pushUpdate(ctx, c, k, ownerID, id)) {
			return firstErr
		}
	}
	return firstErr
}

// merge folds a fresh remote listing into the local collection. Caller holds c.mu.
//
// Remote rows replace local ones unless the local record has an unacknowledged
// mutation or was acknowledged after the fetch started. Pending creates are
// kept or adopted by natural key. A create whose insert is still running is
// never adopted, and rows that could be its result wait for the next refresh.
// Tombstoned ids never come back. Synced local records missing remotely were
// deleted elsewhere and are dropped.
func merge[T any](k kind[T], st *ownerState, rows []T, fetchSeq uint64) {
	col := k.coll(st)

	tombs := make(map[string]bool, len(col.Tombstones))
	kept := col.Tombstones[:0]
	for _, ts := range col.Tombstones {
		if ts.Confirmed && ts.ackSeq < fetchSeq {
			continue
		}
		kept = append(kept, ts)
		tombs[ts.ID] = true
	}
	col.Tombstones = kept

	local := make(map[string]*entry[T], len(col.Items))
	for _, e := range col.Items {
		local[k.id(e.Record)] = e
	}
	winners := uniqueWinners(k, rows, tombs, local)

	seen := make(map[string]bool, len(rows)+len(col.Items))
	out := make([]*entry[T], 0, len(rows)+len(col.Items))
	for _, r := range rows {
		id := k.id(r)
		if tombs[id] || seen[id] {
			continue
		}
		if winners != nil && winners[k.unique(r)] != id {
			continue
		}
		if e, ok := local[id]; ok {
			if e.Pending == pendingNone && e.ackSeq < fetchSeq && !e.inflight {
				e.Record = r
			}
			out = append(out, e)
			seen[id] = true
			continue
		}
		if awaitingAck(k, col.Items, r) {
			// The running insert re-keys its placeholder when it returns
			continue
		}
		if e := adoptable(k, col.Items, seen, r); e != nil {
			oldID := k.id(e.Record)
			candidate := e.Record
			k.setID(&candidate, id)
			rekey(k, st, e, oldID, id)
			if reflect.DeepEqual(candidate, r) {
				e.Pending = pendingNone
			} else {
				e.Pending = pendingUpdate
			}
			e.ackSeq = fetchSeq
			seen[oldID] = true
			seen[id] = true
			out = append(out, e)
			continue
		}
		out = append(out, &entry[T]{Record: r})
		seen[id] = true
	}

	for _, e := range col.Items {
		id := k.id(e.Record)
		if seen[id] {
			continue
		}
		if e.Pending == pendingCreate || e.ackSeq >= fetchSeq || e.inflight {
			out = append(out, e)
		}
	}

	k.sort(out)
	col.Items = out
}

// uniqueWinners picks one row id per unique key, preferring rows already
// held locally and then the earliest listed. Nil when k has no unique key.
func uniqueWinners[T any](k kind[T], rows []T, tombs map[string]bool, local map[string]*entry[T]) map[string]string {
	if k.unique == nil {
		return nil
	}
	winners := make(map[string]string, len(rows))
	for _, r := range rows {
		id := k.id(r)
		if tombs[id] {
			continue
		}
		key := k.unique(r)
		cur, ok := winners[key]
		if !ok || (local[id] != nil && local[cur] == nil) {
			winners[key] = id
		}
	}
	return winners
}

func adoptable[T any](k kind[T], items []*entry[T], seen map[string]bool, r T) *entry[T] {
	if k.natural == nil {
		return nil
	}
	for _, e := range items {
		if e.Pending == pendingCreate && !e.inflight && !seen[k.id(e.Record)] && k.natural(e.Record, r) {
			return e
		}
	}
	return nil
}

// awaitingAck reports whether r may be the row of an insert that has not
// returned yet.
func awaitingAck[T any](k kind[T], items []*entry[T], r T) bool {
	if k.natural == nil {
		return false
	}
	for _, e := range items {
		if e.Pending == pendingCreate && e.inflight && k.natural(e.Record, r) {
			return true
		}
	}
	return false
}

// reassign moves every record of from into to, keeping to's version of any
// id both hold. Caller holds c.mu.
func reassign[T any](k kind[T], from, to *ownerState, toOwner string) {
	src, dst := k.coll(from), k.coll(to)
	for _, e := range src.Items {
		if k.find(dst, k.id(e.Record)) != nil {
			continue
		}
		moved := *e
		k.setOwner(&moved.Record, toOwner)
		dst.Items = append(dst.Items, &moved)
	}
	for _, ts := range src.Tombstones {
		if k.tombstone(dst, ts.ID) == nil {
			copied := *ts
			dst.Tombstones = append(dst.Tombstones, &copied)
		}
	}
	k.sort(dst.Items)
}
