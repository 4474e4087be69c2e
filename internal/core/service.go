package core

import (
	"context"
	"fmt"
	"time"

	"bloodcore/internal/infra/persistence/memory"
	"bloodcore/pkg/domain"
)

// Service is the engine facade the surrounding API layer calls. It owns
// request lifecycle orchestration, allocation, sweeping, and compatibility
// checks; all state lives in the ledger.
type Service struct {
	ledger  Ledger
	cfg     Config
	logger  Logger
	clock   func() time.Time
	sink    EventSink
	metrics MetricsRecorder
	tracer  Tracer
}

// Option customizes service construction.
type Option func(*Service)

// WithConfig overrides the engine policy defaults.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg.withDefaults() }
}

// WithLogger wires a structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects the engine time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.clock = fn
		}
	}
}

// WithEventSink wires the audit/notification sink.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithMetricsRecorder wires operation metrics.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer wires operation tracing.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// commitHooker is implemented by ledgers that expose post-commit fan-out;
// the memory store and both durable stores do.
type commitHooker interface {
	AddCommitHook(fn func(changes []domain.Change))
}

// NewService constructs the engine over an existing ledger.
func NewService(ledger Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:  ledger,
		cfg:     DefaultConfig(),
		logger:  NoopLogger{},
		clock:   func() time.Time { return time.Now().UTC() },
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if hooker, ok := ledger.(commitHooker); ok && s.sink != nil {
		hooker.AddCommitHook(s.publishAudit)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory ledger running
// the given rules engine (nil selects the default policy set).
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	svc := NewService(memory.NewStore(engine), opts...)
	if store, ok := svc.ledger.(*memory.Store); ok {
		store.SetNowFunc(svc.clock)
	}
	return svc
}

// Ledger exposes the underlying store.
func (s *Service) Ledger() Ledger { return s.ledger }

// Config returns the active policy configuration.
func (s *Service) Config() Config { return s.cfg }

func (s *Service) instrument(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	return ctx, func(err error) {
		duration := time.Since(start)
		s.metrics.Observe(ctx, op, err == nil, duration)
		span.End(err)
		if err != nil {
			s.logger.Warn(op+" failed", "error", err)
		}
	}
}

func (s *Service) publish(ctx context.Context, event Event) {
	if s.sink == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock()
	}
	if err := s.sink.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", "type", string(event.Type), "error", err)
	}
}

// publishAudit fans committed ledger changes out as audit events.
func (s *Service) publishAudit(changes []domain.Change) {
	for _, change := range changes {
		s.publish(context.Background(), Event{
			Type:     EventAudit,
			EntityID: changeEntityID(change),
			Payload: map[string]any{
				"entity": string(change.Entity),
				"action": string(change.Action),
			},
		})
	}
}

func changeEntityID(change domain.Change) string {
	for _, side := range []any{change.After, change.Before} {
		switch v := side.(type) {
		case domain.Unit:
			return v.ID
		case domain.Request:
			return v.ID
		case domain.Reservation:
			return v.ID
		case domain.CompatibilityOverride:
			return v.ID
		}
	}
	return ""
}

// RegisterUnit logs a donation into the ledger. A missing expiry date is
// derived from the configured shelf life; a missing collection date defaults
// to now.
func (s *Service) RegisterUnit(ctx context.Context, unit Unit) (Unit, error) {
	ctx, done := s.instrument(ctx, "register_unit")
	var err error
	defer func() { done(err) }()

	if unit.CollectionDate.IsZero() {
		unit.CollectionDate = s.clock()
	}
	if unit.ExpiryDate.IsZero() {
		unit.ExpiryDate = unit.CollectionDate.Add(s.cfg.ShelfLife)
	}
	created, err := s.ledger.RegisterUnit(ctx, unit)
	if err != nil {
		return Unit{}, err
	}
	s.publish(ctx, Event{
		Type:     EventUnitRegistered,
		EntityID: created.ID,
		Payload: map[string]any{
			"blood_type": created.BloodType.String(),
			"quantity":   created.Quantity,
			"expiry":     created.ExpiryDate,
		},
	})
	return created, nil
}

// SubmitRequest enters a clinical request into the lifecycle in pending
// state.
func (s *Service) SubmitRequest(ctx context.Context, req Request) (Request, error) {
	ctx, done := s.instrument(ctx, "submit_request")
	var err error
	defer func() { done(err) }()

	created, err := s.ledger.CreateRequest(ctx, req)
	if err != nil {
		return Request{}, err
	}
	s.publish(ctx, Event{
		Type:     EventRequestSubmitted,
		EntityID: created.ID,
		Payload: map[string]any{
			"blood_type": created.BloodType.String(),
			"quantity":   created.Quantity,
			"urgency":    string(created.Urgency),
		},
	})
	return created, nil
}

// ApproveRequest records the external clinical approval decision.
func (s *Service) ApproveRequest(ctx context.Context, requestID string) (Request, error) {
	ctx, done := s.instrument(ctx, "approve_request")
	req, err := s.ledger.TransitionRequest(ctx, requestID, RequestApproved)
	done(err)
	if err != nil {
		return Request{}, err
	}
	s.publish(ctx, Event{Type: EventRequestApproved, EntityID: requestID})
	return req, nil
}

// RejectRequest records a clinical rejection with its reason.
func (s *Service) RejectRequest(ctx context.Context, requestID, reason string) (Request, error) {
	ctx, done := s.instrument(ctx, "reject_request")
	req, err := s.ledger.TransitionRequest(ctx, requestID, RequestRejected, func(r *Request) {
		if reason != "" {
			r.RejectionReason = &reason
		}
	})
	done(err)
	if err != nil {
		return Request{}, err
	}
	s.publish(ctx, Event{Type: EventRequestRejected, EntityID: requestID, Payload: map[string]any{"reason": reason}})
	return req, nil
}

// CancelRequest releases every reservation the request holds and moves it to
// its terminal cancelled state.
func (s *Service) CancelRequest(ctx context.Context, requestID string) (Request, error) {
	ctx, done := s.instrument(ctx, "cancel_request")
	var err error
	defer func() { done(err) }()

	req, ok := s.ledger.FindRequest(requestID)
	if !ok {
		err = domain.ErrNotFound{Entity: domain.EntityRequest, ID: requestID}
		return Request{}, err
	}
	for _, res := range req.Reservations {
		if _, rerr := s.ledger.Release(ctx, res.ID); rerr != nil && !domain.IsNotFound(rerr) {
			err = fmt.Errorf("release reservation %s: %w", res.ID, rerr)
			return Request{}, err
		}
	}
	cancelled, err := s.ledger.TransitionRequest(ctx, requestID, RequestCancelled)
	if err != nil {
		return Request{}, err
	}
	s.publish(ctx, Event{Type: EventRequestCancelled, EntityID: requestID})
	return cancelled, nil
}

// FinalizeTransfusion settles a request after the clinical event: the listed
// units' reservations finalize to transfused, every other held reservation
// releases back to circulation, and the request closes as fulfilled.
func (s *Service) FinalizeTransfusion(ctx context.Context, requestID string, unitsUsed []string) (Request, error) {
	ctx, done := s.instrument(ctx, "finalize_transfusion")
	var err error
	defer func() { done(err) }()

	req, ok := s.ledger.FindRequest(requestID)
	if !ok {
		err = domain.ErrNotFound{Entity: domain.EntityRequest, ID: requestID}
		return Request{}, err
	}
	used := make(map[string]bool, len(unitsUsed))
	for _, unitID := range unitsUsed {
		used[unitID] = true
	}
	held := make(map[string]bool, len(req.Reservations))
	for _, res := range req.Reservations {
		held[res.UnitID] = true
	}
	for unitID := range used {
		if !held[unitID] {
			err = domain.ErrInvalidState{
				Entity: domain.EntityUnit, ID: unitID,
				From: "unreserved", To: string(UnitTransfused),
			}
			return Request{}, err
		}
	}
	for _, res := range req.Reservations {
		if used[res.UnitID] {
			_, err = s.ledger.Finalize(ctx, res.ID)
		} else {
			_, err = s.ledger.Release(ctx, res.ID)
		}
		if err != nil {
			return Request{}, fmt.Errorf("settle reservation %s: %w", res.ID, err)
		}
	}
	final, ok := s.ledger.FindRequest(requestID)
	if !ok {
		err = domain.ErrNotFound{Entity: domain.EntityRequest, ID: requestID}
		return Request{}, err
	}
	if final.Status != RequestFulfilled {
		final, err = s.ledger.TransitionRequest(ctx, requestID, RequestFulfilled)
		if err != nil {
			return Request{}, err
		}
	}
	s.publish(ctx, Event{
		Type:     EventTransfused,
		EntityID: requestID,
		Payload:  map[string]any{"units_used": unitsUsed, "transfused_quantity": final.TransfusedQuantity},
	})
	return final, nil
}

// QuarantineUnit pulls a unit out of circulation, recording why.
func (s *Service) QuarantineUnit(ctx context.Context, unitID, reason string) (Unit, error) {
	ctx, done := s.instrument(ctx, "quarantine_unit")
	unit, err := s.ledger.QuarantineUnit(ctx, unitID, reason)
	done(err)
	if err != nil {
		return Unit{}, err
	}
	s.publish(ctx, Event{Type: EventUnitQuarantined, EntityID: unitID, Payload: map[string]any{"reason": reason}})
	return unit, nil
}

// ReleaseQuarantine returns a quarantined unit to circulation.
func (s *Service) ReleaseQuarantine(ctx context.Context, unitID string) (Unit, error) {
	ctx, done := s.instrument(ctx, "release_quarantine")
	unit, err := s.ledger.ReleaseQuarantine(ctx, unitID)
	done(err)
	if err != nil {
		return Unit{}, err
	}
	s.publish(ctx, Event{Type: EventQuarantineCleared, EntityID: unitID})
	return unit, nil
}

// reactiveResults are screening outcomes that pull a unit into quarantine.
var reactiveResults = map[string]bool{
	"reactive": true,
	"positive": true,
	"fail":     true,
	"failed":   true,
}

// RecordTestResult applies a screening outcome to a unit. Reactive results
// quarantine the unit with the test recorded as the reason; clean results
// leave it untouched.
func (s *Service) RecordTestResult(ctx context.Context, unitID, testType, result string) (Unit, error) {
	ctx, done := s.instrument(ctx, "record_test_result")
	var err error
	defer func() { done(err) }()

	if !reactiveResults[result] {
		unit, ok := s.ledger.FindUnit(unitID)
		if !ok {
			err = domain.ErrNotFound{Entity: domain.EntityUnit, ID: unitID}
			return Unit{}, err
		}
		return unit, nil
	}
	unit, err := s.ledger.QuarantineUnit(ctx, unitID, fmt.Sprintf("%s: %s", testType, result))
	if err != nil {
		return Unit{}, err
	}
	s.publish(ctx, Event{
		Type:     EventUnitQuarantined,
		EntityID: unitID,
		Payload:  map[string]any{"test_type": testType, "result": result},
	})
	return unit, nil
}

// CheckCompatibility answers whether donor blood can go to a recipient. An
// explicit stored override short-circuits the computed ABO/Rh rule.
func (s *Service) CheckCompatibility(donor, recipient BloodType) CompatibilityDecision {
	if override, ok := s.ledger.FindOverride(donor, recipient); ok {
		rationale := override.Notes
		if rationale == "" {
			rationale = "explicit compatibility override"
		}
		return CompatibilityDecision{
			Compatible: override.Compatible,
			Rationale:  rationale,
			Source:     domain.SourceOverride,
		}
	}
	return domain.Compatible(donor, recipient)
}

// SetCompatibilityOverride stores a clinical exception for a donor/recipient
// pair, replacing any previous row for the pair.
func (s *Service) SetCompatibilityOverride(ctx context.Context, override CompatibilityOverride) (CompatibilityOverride, error) {
	ctx, done := s.instrument(ctx, "set_compatibility_override")
	stored, err := s.ledger.SetOverride(ctx, override)
	done(err)
	return stored, err
}

// ClearCompatibilityOverride removes a stored exception, restoring the
// computed rule for the pair.
func (s *Service) ClearCompatibilityOverride(ctx context.Context, donor, recipient BloodType) error {
	ctx, done := s.instrument(ctx, "clear_compatibility_override")
	err := s.ledger.ClearOverride(ctx, donor, recipient)
	done(err)
	return err
}
