package carts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/cartrecovery/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartrecovery/pkg/errors"
	"github.com/angelmondragon/cartrecovery/pkg/logger"
)

// MetricsRecorder receives lifecycle counters. pkg/metrics provides the
// Prometheus implementation.
type MetricsRecorder interface {
	ObserveUpsert(outcome string)
	ObserveTransition(from, to enums.CartSessionState)
	ObserveSnapshot(countByState map[enums.CartSessionState]int, abandonedValue, activeValue int64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveUpsert(string) {}

func (nopRecorder) ObserveTransition(enums.CartSessionState, enums.CartSessionState) {}

func (nopRecorder) ObserveSnapshot(map[enums.CartSessionState]int, int64, int64) {}

const (
	upsertOutcomeCreated   = "created"
	upsertOutcomeUpdated   = "updated"
	upsertOutcomeUnchanged = "unchanged"
	upsertOutcomeExpired   = "expired"
)

// ServiceParams wires the cart recovery service.
type ServiceParams struct {
	Store       Store
	Emitter     Emitter
	Logger      *logger.Logger
	Clock       Clock
	Policy      Policy
	InlineSweep bool
	Metrics     MetricsRecorder
}

// Service tracks cart sessions and drives them through the recovery lifecycle.
type Service struct {
	store       Store
	emitter     Emitter
	logg        *logger.Logger
	clock       Clock
	policy      Policy
	inlineSweep bool
	metrics     MetricsRecorder
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if params.Emitter == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := params.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recovery policy: %w", err)
	}
	clock := params.Clock
	if clock == nil {
		clock = SystemClock
	}
	recorder := params.Metrics
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		store:       params.Store,
		emitter:     params.Emitter,
		logg:        params.Logger,
		clock:       clock,
		policy:      params.Policy,
		inlineSweep: params.InlineSweep,
		metrics:     recorder,
	}, nil
}

func (s *Service) Policy() Policy {
	return s.policy
}

// TrackInput is the payload of a track request.
type TrackInput struct {
	Identity    string
	DisplayName string
	Items       []RawItem
}

// UpdateInput is the payload of an update request. A blank DisplayName keeps
// the stored one.
type UpdateInput struct {
	Identity    string
	DisplayName string
	Items       []RawItem
}

// Track records the current cart for an identity, opening a session when
// none is live.
func (s *Service) Track(ctx context.Context, in TrackInput) (UpsertResult, error) {
	return s.upsert(ctx, enums.CartActionTrack, in.Identity, in.DisplayName, in.Items)
}

// Update refreshes the live session. Without one it behaves like Track and
// the result reports Promoted. An explicitly empty item list expires the
// live session.
func (s *Service) Update(ctx context.Context, in UpdateInput) (UpsertResult, error) {
	return s.upsert(ctx, enums.CartActionUpdate, in.Identity, in.DisplayName, in.Items)
}

func (s *Service) upsert(ctx context.Context, action enums.CartAction, rawIdentity, displayName string, items []RawItem) (UpsertResult, error) {
	identity, err := CanonicalIdentity(rawIdentity)
	if err != nil {
		return UpsertResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "email is required")
	}
	ctx = s.logg.WithIdentity(ctx, identity)

	cart, err := Normalize(items)
	var emptyErr *EmptyCartError
	switch {
	case errors.As(err, &emptyErr) && len(items) == 0:
		// An explicit empty cart expires the live session.
		cart = NormalizedCart{}
	case err != nil:
		return UpsertResult{}, s.mapError(err, "normalize cart")
	}
	s.logWarnings(ctx, cart.Warnings)

	result, err := s.store.Upsert(ctx, UpsertInput{
		Identity:    identity,
		DisplayName: strings.TrimSpace(displayName),
		Cart:        cart,
		Action:      action,
		Now:         s.clock.Now(),
		Policy:      s.policy,
	})
	if err != nil {
		return UpsertResult{}, s.mapError(err, "persist cart session")
	}
	result.Warnings = cart.Warnings

	switch {
	case result.Created:
		s.metrics.ObserveUpsert(upsertOutcomeCreated)
		if result.Promoted {
			s.logg.Info(s.logg.WithSessionID(ctx, result.Session.ID.String()), "cart update promoted to track")
		}
		s.emit(ctx, Event{
			ID:         NewEventID(result.Session.ID, enums.CartEventTracked, result.Session.CreatedAt),
			Type:       enums.CartEventTracked,
			Session:    result.Session.Clone(),
			OccurredAt: result.Session.CreatedAt,
		})
	case cart.IsEmpty():
		s.metrics.ObserveUpsert(upsertOutcomeExpired)
	case result.ContentChanged:
		s.metrics.ObserveUpsert(upsertOutcomeUpdated)
	default:
		s.metrics.ObserveUpsert(upsertOutcomeUnchanged)
	}
	s.emitTransitions(ctx, result.Transitions)
	return result, nil
}

// MarkRecovered closes the live session for identity as recovered. Unknown
// and already closed identities are reported through the outcome.
func (s *Service) MarkRecovered(ctx context.Context, rawIdentity string) (RecoveryResult, error) {
	identity, err := CanonicalIdentity(rawIdentity)
	if err != nil {
		return RecoveryResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "email is required")
	}
	ctx = s.logg.WithIdentity(ctx, identity)

	// Settle idle time first so a late checkout counts as a recovery after
	// abandonment, not a direct one.
	now := s.clock.Now()
	if s.inlineSweep {
		if _, err := s.SweepAt(ctx, now); err != nil {
			return RecoveryResult{}, err
		}
	}
	result, err := s.store.MarkRecovered(ctx, identity, now)
	if err != nil {
		return RecoveryResult{}, s.mapError(err, "mark cart recovered")
	}
	switch result.Outcome {
	case RecoveryOutcomeRecovered:
		s.emitTransitions(ctx, []Transition{*result.Transition})
	case RecoveryOutcomeNotFound:
		s.logg.Info(ctx, "recovery signal for unknown identity")
	case RecoveryOutcomeAlreadyTerminal:
		s.logg.Info(ctx, "recovery signal for closed cart session")
	}
	return result, nil
}

// Get returns the live session, else the most recent closed one.
func (s *Service) Get(ctx context.Context, rawIdentity string) (*CartSession, error) {
	identity, err := CanonicalIdentity(rawIdentity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "email is required")
	}
	if err := s.maybeSweep(ctx); err != nil {
		return nil, err
	}
	session, err := s.store.Get(ctx, identity)
	if err != nil {
		return nil, s.mapError(err, "load cart session")
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart session not found")
	}
	return session, nil
}

// Remove deletes every session recorded for identity.
func (s *Service) Remove(ctx context.Context, rawIdentity string) (bool, error) {
	identity, err := CanonicalIdentity(rawIdentity)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "email is required")
	}
	removed, err := s.store.Remove(ctx, identity)
	if err != nil {
		return false, s.mapError(err, "remove cart sessions")
	}
	if removed {
		s.logg.Info(s.logg.WithIdentity(ctx, identity), "cart sessions removed")
	}
	return removed, nil
}

// List returns a snapshot of every stored session after the inline sweep.
func (s *Service) List(ctx context.Context) ([]CartSession, error) {
	if err := s.maybeSweep(ctx); err != nil {
		return nil, err
	}
	sessions, err := s.store.All(ctx)
	if err != nil {
		return nil, s.mapError(err, "list cart sessions")
	}
	return sessions, nil
}

// Sweep applies time-based transitions at the current clock reading.
func (s *Service) Sweep(ctx context.Context) ([]Transition, error) {
	return s.SweepAt(ctx, s.clock.Now())
}

func (s *Service) SweepAt(ctx context.Context, now time.Time) ([]Transition, error) {
	transitions, err := s.store.ApplySweep(ctx, now, s.policy)
	if err != nil {
		return nil, s.mapError(err, "sweep cart sessions")
	}
	if len(transitions) > 0 {
		s.logg.Info(s.logg.WithField(ctx, "transitions", len(transitions)), "cart sweep applied")
	}
	s.emitTransitions(ctx, transitions)
	return transitions, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.StatsAt(ctx, s.clock.Now())
}

// StatsAt aggregates every stored session as of now.
func (s *Service) StatsAt(ctx context.Context, now time.Time) (Stats, error) {
	if s.inlineSweep {
		if _, err := s.SweepAt(ctx, now); err != nil {
			return Stats{}, err
		}
	}
	sessions, err := s.store.All(ctx)
	if err != nil {
		return Stats{}, s.mapError(err, "list cart sessions")
	}
	stats := ComputeStats(sessions, now, s.policy)
	s.metrics.ObserveSnapshot(stats.CountByState, stats.TotalAbandonedValue, stats.TotalActiveValue)
	return stats, nil
}

func (s *Service) maybeSweep(ctx context.Context) error {
	if !s.inlineSweep {
		return nil
	}
	_, err := s.Sweep(ctx)
	return err
}

func (s *Service) emitTransitions(ctx context.Context, transitions []Transition) {
	for _, t := range transitions {
		s.metrics.ObserveTransition(t.From, t.To)
		s.emit(ctx, EventForTransition(t))
	}
}

func (s *Service) emit(ctx context.Context, evt Event) {
	s.emitter.Emit(ctx, evt)
}

func (s *Service) logWarnings(ctx context.Context, warnings []ValidationWarning) {
	for _, w := range warnings {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"warning":    string(w.Kind),
			"product_id": w.ProductID,
			"item_index": w.Index,
		})
		if w.Dropped() {
			s.logg.Info(logCtx, "cart line item dropped: "+w.Message)
			continue
		}
		s.logg.Warn(logCtx, "cart line item data quality: "+w.Message)
	}
}

func (s *Service) mapError(err error, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	var emptyErr *EmptyCartError
	if errors.As(err, &emptyErr) {
		return pkgerrors.Wrap(pkgerrors.CodeEmptyCart, err, "cart has no valid line items").WithDetails(emptyErr.Warnings)
	}
	var transitionErr *TransitionError
	if errors.As(err, &transitionErr) {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, action).WithDetails(map[string]string{
			"from": transitionErr.From.String(),
			"to":   transitionErr.To.String(),
		})
	}
	var invariantErr *InvariantViolationError
	if errors.As(err, &invariantErr) {
		return pkgerrors.Wrap(pkgerrors.CodeInvariant, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
