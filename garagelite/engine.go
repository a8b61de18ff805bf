// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagelite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State of one collection's sync pass.
type State int

const (
	StateIdle State = iota
	StatePulling
	StateMerging
	StatePersisted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePulling:
		return "pulling"
	case StateMerging:
		return "merging"
	case StatePersisted:
		return "persisted"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// CollectionSpec mirrors the backend's collection definitions on the
// client: key field, freshness field, and the fields a create must carry.
type CollectionSpec struct {
	Name       string
	KeyField   string
	FreshField string
	Required   []string
}

// DefaultCollections returns the four synced collections, vehicles first
// so dependents pull after the records they reference.
func DefaultCollections() []CollectionSpec {
	return []CollectionSpec{
		{Name: "vehicles", KeyField: "vehicle_id", FreshField: "last_updated", Required: []string{"make", "model"}},
		{Name: "maintenance", KeyField: "log_id", FreshField: "created_date", Required: []string{"vehicle_id", "type", "service_date"}},
		{Name: "receipts", KeyField: "receipt_id", FreshField: "created_date", Required: []string{"vehicle_id", "amount"}},
		{Name: "reminders", KeyField: "reminder_id", FreshField: "created_date", Required: []string{"vehicle_id", "due_date"}},
	}
}

// Config holds sync engine tuning.
type Config struct {
	SyncInterval       time.Duration // periodic full sync while visible
	StalenessThreshold time.Duration // visibility-restored sync gate
	Collections        []CollectionSpec
}

// DefaultConfig returns the production defaults: a 10 minute periodic
// sync and a 5 minute staleness threshold.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:       10 * time.Minute,
		StalenessThreshold: 5 * time.Minute,
		Collections:        DefaultCollections(),
	}
}

// Engine orchestrates pull-merge-persist per collection and applies UI
// mutations optimistically: the local store is written synchronously, the
// remote write is best effort. All state lives on the instance; UI
// collaborators receive the engine by injection.
type Engine struct {
	store  *LocalStore
	api    *APIClient
	cfg    *Config
	logger *slog.Logger
	now    func() time.Time

	// writeMu serializes every snapshot read-modify-write. The periodic
	// trigger runs sync passes on their own goroutine, so a mutation
	// landing between a pass's read and write-back would be erased by the
	// stale write without it. Network calls happen outside this lock.
	writeMu sync.Mutex

	mu         sync.Mutex
	online     bool
	visible    bool
	inProgress map[string]bool
	states     map[string]State
	cache      map[string][]Record
	lastSync   time.Time
}

// NewEngine creates an engine over the local store and API client. api may
// be unconfigured (no backend URL); the engine then runs in offline-only
// mode and every sync trigger is a deliberate no-op.
func NewEngine(store *LocalStore, api *APIClient, cfg *Config, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("local store is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:      store,
		api:        api,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		online:     true,
		visible:    true,
		inProgress: make(map[string]bool),
		states:     make(map[string]State),
		cache:      make(map[string][]Record),
	}

	// Hydrate the in-memory mirror from the last persisted snapshots so
	// the UI has data before the first pull completes.
	for _, spec := range cfg.Collections {
		records, err := store.ReadCollection(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate %s: %w", spec.Name, err)
		}
		e.cache[spec.Name] = records
	}
	if last, ok, err := store.LastSync(); err == nil && ok {
		e.lastSync = last
	}
	return e, nil
}

// Configured reports whether a backend URL is available for remote calls.
func (e *Engine) Configured() bool {
	return e.api != nil && e.api.Configured()
}

// Collection returns the in-memory mirror of a collection.
func (e *Engine) Collection(name string) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	records := e.cache[name]
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

// State returns the last observed sync state for a collection.
func (e *Engine) State(name string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[name]
}

// LastSync returns the time of the last fully successful SyncAll.
func (e *Engine) LastSync() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync, !e.lastSync.IsZero()
}

// SetOnline records a connectivity transition. Coming back online fires a
// full sync.
func (e *Engine) SetOnline(ctx context.Context, online bool) (bool, error) {
	e.mu.Lock()
	wasOnline := e.online
	e.online = online
	e.mu.Unlock()

	if online && !wasOnline {
		return e.SyncAll(ctx)
	}
	return false, nil
}

// SetVisible records a visibility transition. Becoming visible fires a
// full sync only when the last successful sync is older than the
// staleness threshold.
func (e *Engine) SetVisible(ctx context.Context, visible bool) (bool, error) {
	e.mu.Lock()
	wasVisible := e.visible
	e.visible = visible
	last := e.lastSync
	e.mu.Unlock()

	if visible && !wasVisible {
		if last.IsZero() || e.now().Sub(last) > e.cfg.StalenessThreshold {
			return e.SyncAll(ctx)
		}
	}
	return false, nil
}

// Run drives the periodic sync trigger until ctx is cancelled. Ticks are
// skipped while the document is not visible.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.mu.Lock()
			visible := e.visible
			e.mu.Unlock()
			if !visible {
				continue
			}
			if _, err := e.SyncAll(ctx); err != nil {
				e.logger.Warn("periodic sync failed", "error", err)
			}
		}
	}
}

// SyncAll pulls and merges every collection in order. It is a deliberate
// no-op (false, nil) while offline or unconfigured. A failing collection
// does not block the rest, but the overall result is success only when
// every sub-sync succeeded; only then is the last-sync timestamp advanced.
func (e *Engine) SyncAll(ctx context.Context) (bool, error) {
	e.mu.Lock()
	online := e.online
	e.mu.Unlock()
	if !online || !e.Configured() {
		return false, nil
	}

	var errs []error
	for _, spec := range e.cfg.Collections {
		if err := e.SyncCollection(ctx, spec.Name); err != nil {
			e.logger.Error("collection sync failed", "collection", spec.Name, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}

	now := e.now()
	if err := e.store.SetLastSync(now); err != nil {
		e.logger.Warn("failed to persist last-sync timestamp", "error", err)
	}
	e.mu.Lock()
	e.lastSync = now
	e.mu.Unlock()
	return true, nil
}

// SyncCollection runs one pull-merge-persist pass for a collection. A
// second call while a pass is in flight is a no-op; the periodic timer,
// the connectivity trigger and the visibility trigger can overlap in real
// time and a duplicate concurrent merge could lose the other pass's write.
// A failed pull leaves the local snapshot untouched.
func (e *Engine) SyncCollection(ctx context.Context, name string) error {
	spec, ok := e.spec(name)
	if !ok {
		return newError(KindValidation, name, fmt.Errorf("unknown collection %q", name))
	}
	if !e.Configured() {
		return newError(KindConfiguration, name, fmt.Errorf("no backend URL configured"))
	}

	e.mu.Lock()
	if e.inProgress[name] {
		e.mu.Unlock()
		return nil
	}
	e.inProgress[name] = true
	e.states[name] = StatePulling
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inProgress, name)
		e.mu.Unlock()
	}()

	// Re-push unconfirmed local operations first so our own writes are
	// reflected in the pull where possible.
	e.flushPending(ctx, spec)

	env, err := e.api.Call(ctx, name, http.MethodGet, nil, nil)
	if err != nil {
		e.setState(name, StateFailed)
		return err
	}
	var remote []Record
	if err := env.DecodeData(&remote); err != nil {
		e.setState(name, StateFailed)
		return newError(KindTransport, name, err)
	}

	e.setState(name, StateMerging)
	if err := e.mergePersist(name, spec, remote); err != nil {
		e.setState(name, StateFailed)
		return err
	}

	e.setState(name, StatePersisted)
	e.setState(name, StateIdle)
	return nil
}

// mergePersist folds pulled records into the local snapshot and writes it
// back. The read and the write happen under writeMu so an optimistic
// mutation on another goroutine cannot be erased by a stale write-back.
func (e *Engine) mergePersist(name string, spec CollectionSpec, remote []Record) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	local, err := e.store.ReadCollection(name)
	if err != nil {
		return err
	}
	merged := Merge(local, remote, spec.KeyField)

	// A delete that succeeded locally but has not landed remotely must not
	// resurrect through the pull.
	if pendingDeletes, err := e.store.ListPending(PendingDelete, name); err == nil && len(pendingDeletes) > 0 {
		deleted := make(map[string]bool, len(pendingDeletes))
		for _, id := range pendingDeletes {
			deleted[id] = true
		}
		kept := merged[:0]
		for _, rec := range merged {
			if !deleted[rec.ID(spec.KeyField)] {
				kept = append(kept, rec)
			}
		}
		merged = kept
	}

	if err := e.store.WriteCollection(name, merged); err != nil {
		return err
	}

	e.mu.Lock()
	e.cache[name] = merged
	e.mu.Unlock()
	return nil
}

// CreateEntity appends a record optimistically: the local write is
// synchronous and guaranteed, the remote POST is best effort. The returned
// degraded flag is true when the remote copy is unconfirmed; the UI
// surfaces that as a non-blocking toast.
func (e *Engine) CreateEntity(ctx context.Context, name string, data Record) (Record, bool, error) {
	spec, ok := e.spec(name)
	if !ok {
		return nil, false, newError(KindValidation, name, fmt.Errorf("unknown collection %q", name))
	}
	for _, field := range spec.Required {
		v, present := data[field]
		if !present || v == nil || v == "" {
			return nil, false, newError(KindValidation, name, fmt.Errorf("missing required field %q", field))
		}
	}

	rec := data.clone()
	if rec.ID(spec.KeyField) == "" {
		rec[spec.KeyField] = uuid.New().String()
	}
	stamp := e.now().UTC().Format(time.RFC3339)
	if rec.ID("created_date") == "" {
		rec["created_date"] = stamp
	}
	if spec.FreshField == "last_updated" {
		rec["last_updated"] = stamp
	}
	id := rec.ID(spec.KeyField)

	if err := e.appendLocal(name, rec); err != nil {
		return nil, false, err
	}

	if degraded := e.pushRemote(ctx, name, http.MethodPost, "", rec); degraded {
		if err := e.store.AddPending(PendingPush, name, id); err != nil {
			e.logger.Warn("failed to queue pending push", "collection", name, "id", id, "error", err)
		}
		return rec, true, nil
	}
	return rec, false, nil
}

// UpdateEntity overlays a patch onto a local record, then attempts the
// remote PUT. Missing local record yields a not-found error.
func (e *Engine) UpdateEntity(ctx context.Context, name, id string, patch Record) (Record, bool, error) {
	spec, ok := e.spec(name)
	if !ok {
		return nil, false, newError(KindValidation, name, fmt.Errorf("unknown collection %q", name))
	}

	updated, err := e.patchLocal(spec, name, id, patch)
	if err != nil {
		return nil, false, err
	}

	if degraded := e.pushRemote(ctx, name, http.MethodPut, id, updated); degraded {
		if err := e.store.AddPending(PendingPush, name, id); err != nil {
			e.logger.Warn("failed to queue pending push", "collection", name, "id", id, "error", err)
		}
		return updated, true, nil
	}
	return updated, false, nil
}

// DeleteEntity removes a record locally, then attempts the remote delete.
// A failed remote delete is recorded in the pending-deletion ledger so the
// next pull cannot resurrect the record before the delete is retried.
func (e *Engine) DeleteEntity(ctx context.Context, name, id string) (bool, error) {
	spec, ok := e.spec(name)
	if !ok {
		return false, newError(KindValidation, name, fmt.Errorf("unknown collection %q", name))
	}

	if err := e.removeLocal(spec, name, id); err != nil {
		return false, err
	}

	// A pending push for a record we just deleted is moot.
	if err := e.store.RemovePending(PendingPush, name, id); err != nil {
		e.logger.Warn("failed to clear pending push", "collection", name, "id", id, "error", err)
	}

	if e.isOffline() {
		if err := e.store.AddPending(PendingDelete, name, id); err != nil {
			e.logger.Warn("failed to queue pending delete", "collection", name, "id", id, "error", err)
		}
		return true, nil
	}
	if _, err := e.api.Call(ctx, name+"/"+id, http.MethodDelete, nil, nil); err != nil {
		if KindOf(err) == KindNotFound {
			// Already gone remotely; nothing to retry.
			return false, nil
		}
		e.logger.Warn("remote delete failed; queued for retry", "collection", name, "id", id, "error", err)
		if err := e.store.AddPending(PendingDelete, name, id); err != nil {
			e.logger.Warn("failed to queue pending delete", "collection", name, "id", id, "error", err)
		}
		return true, nil
	}
	return false, nil
}

// appendLocal adds a record to the snapshot and mirror under writeMu.
func (e *Engine) appendLocal(name string, rec Record) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	local, err := e.store.ReadCollection(name)
	if err != nil {
		return err
	}
	local = append(local, rec)
	if err := e.store.WriteCollection(name, local); err != nil {
		return err
	}
	e.mu.Lock()
	e.cache[name] = local
	e.mu.Unlock()
	return nil
}

// patchLocal overlays a patch onto one snapshot record under writeMu. The
// key field and created_date are immutable; a last_updated freshness field
// is bumped.
func (e *Engine) patchLocal(spec CollectionSpec, name, id string, patch Record) (Record, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	local, err := e.store.ReadCollection(name)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, rec := range local {
		if rec.ID(spec.KeyField) == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, newError(KindNotFound, name+"/"+id, fmt.Errorf("record not found locally"))
	}

	updated := local[idx].clone()
	for k, v := range patch {
		if k == spec.KeyField || k == "created_date" {
			continue
		}
		updated[k] = v
	}
	if spec.FreshField == "last_updated" {
		updated["last_updated"] = e.now().UTC().Format(time.RFC3339)
	}
	local[idx] = updated
	if err := e.store.WriteCollection(name, local); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[name] = local
	e.mu.Unlock()
	return updated, nil
}

// removeLocal drops one snapshot record under writeMu.
func (e *Engine) removeLocal(spec CollectionSpec, name, id string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	local, err := e.store.ReadCollection(name)
	if err != nil {
		return err
	}
	idx := -1
	for i, rec := range local {
		if rec.ID(spec.KeyField) == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return newError(KindNotFound, name+"/"+id, fmt.Errorf("record not found locally"))
	}

	local = append(local[:idx], local[idx+1:]...)
	if err := e.store.WriteCollection(name, local); err != nil {
		return err
	}
	e.mu.Lock()
	e.cache[name] = local
	e.mu.Unlock()
	return nil
}

// pushRemote attempts one best-effort remote write. Returns true when the
// write is unconfirmed (offline, unconfigured, or failed).
func (e *Engine) pushRemote(ctx context.Context, name, method, id string, rec Record) bool {
	if e.isOffline() {
		return true
	}
	action := name
	if id != "" {
		action = name + "/" + id
	}
	if _, err := e.api.Call(ctx, action, method, nil, rec); err != nil {
		e.logger.Warn("remote write failed; record kept locally",
			"collection", name, "method", method, "error", err)
		return true
	}
	return false
}

// flushPending retries unconfirmed pushes and deletes before a pull.
// Failures stay queued; this is best effort by design.
func (e *Engine) flushPending(ctx context.Context, spec CollectionSpec) {
	pushes, err := e.store.ListPending(PendingPush, spec.Name)
	if err != nil {
		e.logger.Warn("failed to list pending pushes", "collection", spec.Name, "error", err)
	}
	if len(pushes) > 0 {
		local, err := e.store.ReadCollection(spec.Name)
		if err != nil {
			e.logger.Warn("failed to read snapshot for pending pushes", "collection", spec.Name, "error", err)
			local = nil
		}
		byID := make(map[string]Record, len(local))
		for _, rec := range local {
			byID[rec.ID(spec.KeyField)] = rec
		}
		for _, id := range pushes {
			rec, ok := byID[id]
			if !ok {
				// Deleted since it was queued.
				_ = e.store.RemovePending(PendingPush, spec.Name, id)
				continue
			}
			if _, err := e.api.Call(ctx, spec.Name, http.MethodPost, nil, rec); err != nil {
				e.logger.Warn("pending push failed", "collection", spec.Name, "id", id, "error", err)
				continue
			}
			_ = e.store.RemovePending(PendingPush, spec.Name, id)
		}
	}

	deletes, err := e.store.ListPending(PendingDelete, spec.Name)
	if err != nil {
		e.logger.Warn("failed to list pending deletes", "collection", spec.Name, "error", err)
	}
	for _, id := range deletes {
		if _, err := e.api.Call(ctx, spec.Name+"/"+id, http.MethodDelete, nil, nil); err != nil {
			if KindOf(err) != KindNotFound {
				e.logger.Warn("pending delete failed", "collection", spec.Name, "id", id, "error", err)
				continue
			}
		}
		_ = e.store.RemovePending(PendingDelete, spec.Name, id)
	}
}

func (e *Engine) spec(name string) (CollectionSpec, bool) {
	for _, spec := range e.cfg.Collections {
		if spec.Name == name {
			return spec, true
		}
	}
	return CollectionSpec{}, false
}

func (e *Engine) isOffline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.online || e.api == nil || !e.api.Configured()
}

func (e *Engine) setState(name string, s State) {
	e.mu.Lock()
	e.states[name] = s
	e.mu.Unlock()
}
