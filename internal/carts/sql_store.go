package carts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/cartrecovery/pkg/db"
	"github.com/angelmondragon/cartrecovery/pkg/db/models"
	"github.com/angelmondragon/cartrecovery/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartrecovery/pkg/errors"
	"github.com/angelmondragon/cartrecovery/pkg/logger"
)

var liveStates = []enums.CartSessionState{
	enums.CartSessionStateActive,
	enums.CartSessionStateAbandoned,
}

type sqlDB interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SQLStoreParams wires a gorm backed store.
type SQLStoreParams struct {
	DB     sqlDB
	Logger *logger.Logger
	// Strict panics on a duplicate live session instead of repairing it.
	Strict bool
}

// SQLStore persists sessions through gorm. Mutations run in a transaction
// that locks the identity's live rows.
type SQLStore struct {
	db     sqlDB
	logg   *logger.Logger
	strict bool
	mu     sync.Mutex
	newID  func() uuid.UUID
}

func NewSQLStore(params SQLStoreParams) (*SQLStore, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &SQLStore{
		db:     params.DB,
		logg:   logg,
		strict: params.Strict,
		newID:  uuid.New,
	}, nil
}

func (s *SQLStore) Upsert(ctx context.Context, in UpsertInput) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result UpsertResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		live, err := s.lockLive(ctx, tx, in.Identity, in.Now)
		if err != nil {
			return err
		}
		res, err := applyUpsert(live, in, s.newID)
		if err != nil {
			return err
		}

		switch {
		case res.Created:
			err = insertSession(tx, res.Session)
		case res.Dropped:
			err = deleteSessions(tx, []uuid.UUID{res.Session.ID})
		default:
			err = saveSession(tx, res.Session, res.ContentChanged || !slices.Equal(live.Items, res.Session.Items))
		}
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, models.LiveIdentityIndex) {
			return UpsertResult{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "concurrent cart session write, retry")
		}
		return UpsertResult{}, err
	}
	return result, nil
}

func (s *SQLStore) Get(ctx context.Context, identity string) (*CartSession, error) {
	var row models.CartSession
	err := s.db.DB().WithContext(ctx).
		Preload("Items", orderItems).
		Where("identity = ?", identity).
		Order("CASE WHEN state IN ('active', 'abandoned') THEN 0 ELSE 1 END").
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session := toDomain(row)
	return &session, nil
}

func (s *SQLStore) Remove(ctx context.Context, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var ids []uuid.UUID
		if err := tx.Model(&models.CartSession{}).Where("identity = ?", identity).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		removed = true
		return deleteSessions(tx, ids)
	})
	return removed, err
}

func (s *SQLStore) All(ctx context.Context) ([]CartSession, error) {
	var rows []models.CartSession
	if err := s.db.DB().WithContext(ctx).
		Preload("Items", orderItems).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]CartSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomain(row))
	}
	return out, nil
}

func (s *SQLStore) MarkRecovered(ctx context.Context, identity string, now time.Time) (RecoveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result RecoveryResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		live, err := s.lockLive(ctx, tx, identity, now)
		if err != nil {
			return err
		}
		if live == nil {
			latest, err := latestTerminal(tx, identity)
			if err != nil {
				return err
			}
			if latest == nil {
				result = RecoveryResult{Outcome: RecoveryOutcomeNotFound}
				return nil
			}
			result = RecoveryResult{Outcome: RecoveryOutcomeAlreadyTerminal, Session: latest}
			return nil
		}

		next, t, err := applyRecovery(live, now)
		if err != nil {
			return err
		}
		if err := updateLifecycle(tx, next); err != nil {
			return err
		}
		result = RecoveryResult{Outcome: RecoveryOutcomeRecovered, Session: &next, Transition: &t}
		return nil
	})
	return result, err
}

func (s *SQLStore) ApplySweep(ctx context.Context, now time.Time, p Policy) ([]Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var transitions []Transition
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var rows []models.CartSession
		if err := lockingQuery(tx).
			Where("state IN ?", liveStates).
			Order("created_at ASC").
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := loadItems(tx, rows); err != nil {
			return err
		}

		live := make([]CartSession, 0, len(rows))
		for _, row := range rows {
			live = append(live, toDomain(row))
		}
		transitions = Sweep(live, now, p)

		var dropped []uuid.UUID
		for _, session := range finalSnapshots(transitions) {
			if !session.IsLive() && p.DropsExpired() {
				dropped = append(dropped, session.ID)
				continue
			}
			if err := updateLifecycle(tx, session); err != nil {
				return err
			}
		}
		if len(dropped) > 0 {
			return deleteSessions(tx, dropped)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transitions, nil
}

// lockLive loads the identity's live session under a row lock, repairing
// duplicates left by an earlier fault.
func (s *SQLStore) lockLive(ctx context.Context, tx *gorm.DB, identity string, now time.Time) (*CartSession, error) {
	var rows []models.CartSession
	if err := lockingQuery(tx).
		Where("identity = ? AND state IN ?", identity, liveStates).
		Order("last_updated_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := loadItems(tx, rows); err != nil {
		return nil, err
	}

	sessions := make([]CartSession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, toDomain(row))
	}
	if len(sessions) == 1 {
		return &sessions[0], nil
	}

	violation := &InvariantViolationError{Identity: identity, LiveSessions: len(sessions)}
	if s.strict {
		panic(violation)
	}
	keep, discard := resolveLiveDuplicates(sessions)
	ids := make([]uuid.UUID, 0, len(discard))
	for _, d := range discard {
		ids = append(ids, d.ID)
	}
	logCtx := s.logg.WithFields(s.logg.WithIdentity(ctx, identity), map[string]any{
		"kept_session_id": keep.ID.String(),
		"discarded":       len(ids),
		"repaired_at":     now,
	})
	s.logg.Error(logCtx, "duplicate live cart sessions repaired", violation)
	if err := deleteSessions(tx, ids); err != nil {
		return nil, err
	}
	return &keep, nil
}

func lockingQuery(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.CartSession{}).Clauses(clause.Locking{Strength: "UPDATE"})
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func loadItems(tx *gorm.DB, rows []models.CartSession) error {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var items []models.CartSessionItem
	if err := tx.Where("session_id IN ?", ids).Order("position ASC").Find(&items).Error; err != nil {
		return err
	}
	byID := make(map[uuid.UUID][]models.CartSessionItem, len(rows))
	for _, item := range items {
		byID[item.SessionID] = append(byID[item.SessionID], item)
	}
	for i := range rows {
		rows[i].Items = byID[rows[i].ID]
	}
	return nil
}

func latestTerminal(tx *gorm.DB, identity string) (*CartSession, error) {
	var row models.CartSession
	err := tx.Preload("Items", orderItems).
		Where("identity = ? AND state NOT IN ?", identity, liveStates).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session := toDomain(row)
	return &session, nil
}

func insertSession(tx *gorm.DB, session CartSession) error {
	row := toModel(session)
	items := row.Items
	row.Items = nil
	if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

func saveSession(tx *gorm.DB, session CartSession, replaceItems bool) error {
	row := toModel(session)
	items := row.Items
	row.Items = nil
	if err := tx.Omit(clause.Associations).Save(&row).Error; err != nil {
		return err
	}
	if !replaceItems {
		return nil
	}
	if err := tx.Where("session_id = ?", session.ID).Delete(&models.CartSessionItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

func updateLifecycle(tx *gorm.DB, session CartSession) error {
	return tx.Model(&models.CartSession{}).
		Where("id = ?", session.ID).
		Updates(map[string]any{
			"state":        session.State,
			"abandoned_at": utcPtr(session.AbandonedAt),
			"recovered_at": utcPtr(session.RecoveredAt),
			"expired_at":   utcPtr(session.ExpiredAt),
		}).Error
}

func deleteSessions(tx *gorm.DB, ids []uuid.UUID) error {
	if err := tx.Where("session_id IN ?", ids).Delete(&models.CartSessionItem{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&models.CartSession{}).Error
}

func toModel(s CartSession) models.CartSession {
	items := make([]models.CartSessionItem, 0, len(s.Items))
	for i, item := range s.Items {
		items = append(items, models.CartSessionItem{
			SessionID: s.ID,
			ProductID: item.ProductID,
			Position:  i,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return models.CartSession{
		ID:            s.ID,
		Identity:      s.Identity,
		DisplayName:   s.DisplayName,
		ContentHash:   s.ContentHash,
		State:         s.State,
		TotalValue:    s.TotalValue(),
		CreatedAt:     s.CreatedAt.UTC(),
		LastUpdatedAt: s.LastUpdatedAt.UTC(),
		AbandonedAt:   utcPtr(s.AbandonedAt),
		RecoveredAt:   utcPtr(s.RecoveredAt),
		ExpiredAt:     utcPtr(s.ExpiredAt),
		Items:         items,
	}
}

func toDomain(row models.CartSession) CartSession {
	items := make([]LineItem, 0, len(row.Items))
	for _, item := range row.Items {
		items = append(items, LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return CartSession{
		ID:            row.ID,
		Identity:      row.Identity,
		DisplayName:   row.DisplayName,
		Items:         items,
		ContentHash:   row.ContentHash,
		State:         row.State,
		CreatedAt:     row.CreatedAt.UTC(),
		LastUpdatedAt: row.LastUpdatedAt.UTC(),
		AbandonedAt:   utcPtr(row.AbandonedAt),
		RecoveredAt:   utcPtr(row.RecoveredAt),
		ExpiredAt:     utcPtr(row.ExpiredAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
