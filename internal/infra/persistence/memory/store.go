// Package memory provides the in-memory implementation of the blood ledger.
// It is the authoritative store for tests and ephemeral deployments and the
// transactional core the durable backends wrap.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"bloodcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the
// domain ledger interface.
var _ domain.Ledger = (*Store)(nil)

// Store keeps every record behind its own mutex so status transitions on
// disjoint units proceed in parallel. The store-level RWMutex only guards
// the maps themselves; it is never held across a record mutation.
//
// Lock ordering, strictly observed by every operation:
//
//	store.mu -> unitRecord.mu -> requestRecord.mu -> idxMu
//
// idxMu guards the reservation and override indexes; it is the innermost
// lock and never blocks on the others.
type Store struct {
	mu       sync.RWMutex
	units    map[string]*unitRecord
	requests map[string]*requestRecord

	idxMu        sync.RWMutex
	reservations map[string]domain.Reservation
	overrides    map[string]domain.CompatibilityOverride

	engine *domain.RulesEngine
	nowFn  func() time.Time

	hookMu sync.RWMutex
	hooks  []func(changes []domain.Change)
}

type unitRecord struct {
	mu sync.Mutex
	u  domain.Unit
}

type requestRecord struct {
	mu sync.Mutex
	r  domain.Request
}

// NewStore constructs an empty ledger backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		units:        make(map[string]*unitRecord),
		requests:     make(map[string]*requestRecord),
		reservations: make(map[string]domain.Reservation),
		overrides:    make(map[string]domain.CompatibilityOverride),
		engine:       engine,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}

// RulesEngine returns the engine evaluated at every commit point.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// NowFunc returns the clock used for record timestamps and staleness checks.
func (s *Store) NowFunc() func() time.Time { return s.nowFn }

// SetNowFunc swaps the clock; intended for tests and for callers that inject
// a shared time source across the engine and the ledger.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

// AddCommitHook registers a function invoked after every successfully
// committed mutation with the change set that was applied. Durable backends
// snapshot state from one; audit publishers fan events out of another. No
// record locks are held during the calls.
func (s *Store) AddCommitHook(fn func(changes []domain.Change)) {
	if fn == nil {
		return
	}
	s.hookMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hookMu.Unlock()
}

func (s *Store) commit(changes []domain.Change) {
	s.hookMu.RLock()
	hooks := s.hooks
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(changes)
	}
}

func (s *Store) newID() string { return uuid.NewString() }

func cloneUnit(u domain.Unit) domain.Unit {
	cp := u
	if u.ReservationID != nil {
		v := *u.ReservationID
		cp.ReservationID = &v
	}
	if u.QuarantineReason != nil {
		v := *u.QuarantineReason
		cp.QuarantineReason = &v
	}
	if u.StorageTempC != nil {
		v := *u.StorageTempC
		cp.StorageTempC = &v
	}
	if u.Notes != nil {
		v := *u.Notes
		cp.Notes = &v
	}
	return cp
}

func cloneRequest(r domain.Request) domain.Request {
	cp := r
	cp.Reservations = append([]domain.Reservation(nil), r.Reservations...)
	if r.RejectionReason != nil {
		v := *r.RejectionReason
		cp.RejectionReason = &v
	}
	if r.Notes != nil {
		v := *r.Notes
		cp.Notes = &v
	}
	return cp
}

func overrideKey(donor, recipient domain.BloodType) string {
	return donor.String() + "|" + recipient.String()
}

// opView scopes rule evaluation to the records participating in the
// transition being committed. Wider invariants would need the global lock
// the concurrency model forbids.
type opView struct {
	units    map[string]domain.Unit
	requests map[string]domain.Request
}

func newOpView() *opView {
	return &opView{
		units:    make(map[string]domain.Unit),
		requests: make(map[string]domain.Request),
	}
}

func (v *opView) ListUnits() []domain.Unit {
	out := make([]domain.Unit, 0, len(v.units))
	for _, u := range v.units {
		out = append(out, cloneUnit(u))
	}
	return out
}

func (v *opView) ListRequests() []domain.Request {
	out := make([]domain.Request, 0, len(v.requests))
	for _, r := range v.requests {
		out = append(out, cloneRequest(r))
	}
	return out
}

func (v *opView) FindUnit(id string) (domain.Unit, bool) {
	u, ok := v.units[id]
	if !ok {
		return domain.Unit{}, false
	}
	return cloneUnit(u), true
}

func (v *opView) FindRequest(id string) (domain.Request, bool) {
	r, ok := v.requests[id]
	if !ok {
		return domain.Request{}, false
	}
	return cloneRequest(r), true
}

// evaluate runs the rules engine against the post-transition records and
// returns an error when a blocking violation is present. Callers must not
// have written anything back yet.
func (s *Store) evaluate(ctx context.Context, view *opView, changes []domain.Change) error {
	if s.engine == nil {
		return nil
	}
	res, err := s.engine.Evaluate(ctx, view, changes)
	if err != nil {
		return err
	}
	if res.HasBlocking() {
		return domain.RuleViolationError{Result: res}
	}
	return nil
}

func (s *Store) unitRecord(id string) (*unitRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.units[id]
	return rec, ok
}

func (s *Store) requestRecord(id string) (*requestRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.requests[id]
	return rec, ok
}

// Read helpers on committed state ---------------------------------------------

// FindUnit retrieves a unit by id from committed state.
func (s *Store) FindUnit(id string) (domain.Unit, bool) {
	rec, ok := s.unitRecord(id)
	if !ok {
		return domain.Unit{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return cloneUnit(rec.u), true
}

// ListUnits returns all units from committed state.
func (s *Store) ListUnits() []domain.Unit {
	s.mu.RLock()
	recs := make([]*unitRecord, 0, len(s.units))
	for _, rec := range s.units {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()
	out := make([]domain.Unit, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, cloneUnit(rec.u))
		rec.mu.Unlock()
	}
	return out
}

// FindRequest retrieves a request by id from committed state.
func (s *Store) FindRequest(id string) (domain.Request, bool) {
	rec, ok := s.requestRecord(id)
	if !ok {
		return domain.Request{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return cloneRequest(rec.r), true
}

// ListRequests returns all requests from committed state.
func (s *Store) ListRequests() []domain.Request {
	s.mu.RLock()
	recs := make([]*requestRecord, 0, len(s.requests))
	for _, rec := range s.requests {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()
	out := make([]domain.Request, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, cloneRequest(rec.r))
		rec.mu.Unlock()
	}
	return out
}

// ListReservations returns all live reservations.
func (s *Store) ListReservations() []domain.Reservation {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	out := make([]domain.Reservation, 0, len(s.reservations))
	for _, res := range s.reservations {
		out = append(out, res)
	}
	return out
}

// ListOverrides returns all stored compatibility overrides.
func (s *Store) ListOverrides() []domain.CompatibilityOverride {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	out := make([]domain.CompatibilityOverride, 0, len(s.overrides))
	for _, o := range s.overrides {
		out = append(out, o)
	}
	return out
}

// FindOverride looks up the stored override for a donor/recipient pair.
func (s *Store) FindOverride(donor, recipient domain.BloodType) (domain.CompatibilityOverride, bool) {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	o, ok := s.overrides[overrideKey(donor, recipient)]
	return o, ok
}

// snapshotView implements domain.LedgerView over copied state.
type snapshotView struct {
	units        map[string]domain.Unit
	requests     map[string]domain.Request
	reservations []domain.Reservation
	overrides    map[string]domain.CompatibilityOverride
}

func (v *snapshotView) ListUnits() []domain.Unit {
	out := make([]domain.Unit, 0, len(v.units))
	for _, u := range v.units {
		out = append(out, u)
	}
	return out
}

func (v *snapshotView) FindUnit(id string) (domain.Unit, bool) {
	u, ok := v.units[id]
	return u, ok
}

func (v *snapshotView) ListRequests() []domain.Request {
	out := make([]domain.Request, 0, len(v.requests))
	for _, r := range v.requests {
		out = append(out, r)
	}
	return out
}

func (v *snapshotView) FindRequest(id string) (domain.Request, bool) {
	r, ok := v.requests[id]
	return r, ok
}

func (v *snapshotView) ListReservations() []domain.Reservation {
	return append([]domain.Reservation(nil), v.reservations...)
}

func (v *snapshotView) ListOverrides() []domain.CompatibilityOverride {
	out := make([]domain.CompatibilityOverride, 0, len(v.overrides))
	for _, o := range v.overrides {
		out = append(out, o)
	}
	return out
}

func (v *snapshotView) FindOverride(donor, recipient domain.BloodType) (domain.CompatibilityOverride, bool) {
	o, ok := v.overrides[overrideKey(donor, recipient)]
	return o, ok
}

func (s *Store) snapshot() *snapshotView {
	view := &snapshotView{
		units:     make(map[string]domain.Unit),
		requests:  make(map[string]domain.Request),
		overrides: make(map[string]domain.CompatibilityOverride),
	}
	for _, u := range s.ListUnits() {
		view.units[u.ID] = u
	}
	for _, r := range s.ListRequests() {
		view.requests[r.ID] = r
	}
	view.reservations = s.ListReservations()
	s.idxMu.RLock()
	for k, o := range s.overrides {
		view.overrides[k] = o
	}
	s.idxMu.RUnlock()
	return view
}

// View executes fn against a point-in-time copy of the full ledger state.
// Records are copied one at a time, so the snapshot is per-record consistent
// rather than globally serialized; allocation passes tolerate that by
// treating stale candidates as conflicts.
func (s *Store) View(_ context.Context, fn func(domain.LedgerView) error) error {
	return fn(s.snapshot())
}

// Snapshot captures a point-in-time clone of the store state for durable
// backends. Reservations are embedded in their owning requests and
// reconstructed on import.
type Snapshot struct {
	Units     map[string]domain.Unit                  `json:"units"`
	Requests  map[string]domain.Request               `json:"requests"`
	Overrides map[string]domain.CompatibilityOverride `json:"overrides"`
}

// ExportState returns a deep copy of the committed state.
func (s *Store) ExportState() Snapshot {
	snap := Snapshot{
		Units:     make(map[string]domain.Unit),
		Requests:  make(map[string]domain.Request),
		Overrides: make(map[string]domain.CompatibilityOverride),
	}
	for _, u := range s.ListUnits() {
		snap.Units[u.ID] = u
	}
	for _, r := range s.ListRequests() {
		snap.Requests[r.ID] = r
	}
	s.idxMu.RLock()
	for k, o := range s.overrides {
		snap.Overrides[k] = o
	}
	s.idxMu.RUnlock()
	return snap
}

// ImportState replaces the committed state with the snapshot, rebuilding the
// reservation index from the requests' reservation sets.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	s.idxMu.Lock()
	s.units = make(map[string]*unitRecord, len(snap.Units))
	for id, u := range snap.Units {
		s.units[id] = &unitRecord{u: cloneUnit(u)}
	}
	s.requests = make(map[string]*requestRecord, len(snap.Requests))
	s.reservations = make(map[string]domain.Reservation)
	for id, r := range snap.Requests {
		cp := cloneRequest(r)
		s.requests[id] = &requestRecord{r: cp}
		for _, res := range cp.Reservations {
			s.reservations[res.ID] = res
		}
	}
	s.overrides = make(map[string]domain.CompatibilityOverride, len(snap.Overrides))
	for k, o := range snap.Overrides {
		s.overrides[k] = o
	}
	s.idxMu.Unlock()
	s.mu.Unlock()
}
