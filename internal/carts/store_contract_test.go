package carts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/angelmondragon/cartrecovery/pkg/config"
	"github.com/angelmondragon/cartrecovery/pkg/db"
	"github.com/angelmondragon/cartrecovery/pkg/enums"
)

// StoreContractSuite runs the same behavioural checks against every Store.
type StoreContractSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
	ctx      context.Context
	now      time.Time
}

func (s *StoreContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = baseTime
	s.store = s.newStore(s.T())
}

func (s *StoreContractSuite) cart(items ...RawItem) NormalizedCart {
	cart, err := Normalize(items)
	s.Require().NoError(err)
	return cart
}

func (s *StoreContractSuite) upsert(identity string, action enums.CartAction, cart NormalizedCart) UpsertResult {
	res, err := s.store.Upsert(s.ctx, UpsertInput{
		Identity:    identity,
		DisplayName: "Alice",
		Cart:        cart,
		Action:      action,
		Now:         s.now,
		Policy:      testPolicy(),
	})
	s.Require().NoError(err)
	return res
}

func (s *StoreContractSuite) TestTrackCreatesActiveSession() {
	res := s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", Name: "Widget", UnitPrice: 1000, Quantity: 2}))

	s.True(res.Created)
	s.False(res.Promoted)
	s.Equal(enums.CartSessionStateActive, res.Session.State)
	s.Equal(int64(2000), res.Session.TotalValue())
	s.True(res.Session.CreatedAt.Equal(s.now))

	got, err := s.store.Get(s.ctx, "a@example.com")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(res.Session.ID, got.ID)
	s.Equal(res.Session.Items, got.Items)
}

func (s *StoreContractSuite) TestIdempotentTrackKeepsTimestamp() {
	cart := s.cart(RawItem{ProductID: "p1", Name: "Widget", UnitPrice: 1000, Quantity: 2})
	first := s.upsert("a@example.com", enums.CartActionTrack, cart)

	s.now = s.now.Add(10 * time.Minute)
	second := s.upsert("a@example.com", enums.CartActionTrack, cart)

	s.False(second.Created)
	s.False(second.ContentChanged)
	s.Equal(first.Session.ID, second.Session.ID)
	s.True(second.Session.LastUpdatedAt.Equal(first.Session.LastUpdatedAt))

	all, err := s.store.All(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *StoreContractSuite) TestChangedContentBumpsTimestamp() {
	s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 1000, Quantity: 1}))

	s.now = s.now.Add(5 * time.Minute)
	res := s.upsert("a@example.com", enums.CartActionUpdate, s.cart(RawItem{ProductID: "p1", UnitPrice: 1000, Quantity: 3}))

	s.True(res.ContentChanged)
	s.True(res.Session.LastUpdatedAt.Equal(s.now))
	s.Equal(int64(3000), res.Session.TotalValue())
}

func (s *StoreContractSuite) TestRenamedItemPersistsWithoutContentChange() {
	first := s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", Name: "Old", UnitPrice: 1000, Quantity: 1}))

	s.now = s.now.Add(5 * time.Minute)
	res := s.upsert("a@example.com", enums.CartActionUpdate, s.cart(RawItem{ProductID: "p1", Name: "New", UnitPrice: 1000, Quantity: 1}))

	s.False(res.ContentChanged)
	s.True(res.Session.LastUpdatedAt.Equal(first.Session.LastUpdatedAt))
	s.Require().Len(res.Session.Items, 1)
	s.Equal("New", res.Session.Items[0].Name)

	got, err := s.store.Get(s.ctx, "a@example.com")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Require().Len(got.Items, 1)
	s.Equal("New", got.Items[0].Name)
}

func (s *StoreContractSuite) TestUpdateWithoutSessionIsPromoted() {
	res := s.upsert("new@example.com", enums.CartActionUpdate, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))
	s.True(res.Created)
	s.True(res.Promoted)
}

func (s *StoreContractSuite) TestEmptyCartExpiresLiveSession() {
	s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))

	res := s.upsert("a@example.com", enums.CartActionUpdate, NormalizedCart{})
	s.Equal(enums.CartSessionStateExpired, res.Session.State)
	s.Require().Len(res.Transitions, 1)
	s.Equal(enums.CartSessionStateExpired, res.Transitions[0].To)

	_, err := s.store.Upsert(s.ctx, UpsertInput{Identity: "nobody@example.com", Action: enums.CartActionUpdate, Now: s.now, Policy: testPolicy()})
	var emptyErr *EmptyCartError
	s.True(errors.As(err, &emptyErr))
}

func (s *StoreContractSuite) TestAbandonedSessionReactivatesOnChange() {
	s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))
	s.now = s.now.Add(2 * time.Hour)
	_, err := s.store.ApplySweep(s.ctx, s.now, testPolicy())
	s.Require().NoError(err)

	same := s.upsert("a@example.com", enums.CartActionUpdate, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))
	s.Equal(enums.CartSessionStateAbandoned, same.Session.State)
	s.Empty(same.Transitions)

	changed := s.upsert("a@example.com", enums.CartActionUpdate, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 2}))
	s.Equal(enums.CartSessionStateActive, changed.Session.State)
	s.Require().Len(changed.Transitions, 1)
	s.Equal(enums.CartSessionStateAbandoned, changed.Transitions[0].From)
	s.NotNil(changed.Session.AbandonedAt)
}

func (s *StoreContractSuite) TestMarkRecoveredOutcomes() {
	res, err := s.store.MarkRecovered(s.ctx, "ghost@example.com", s.now)
	s.Require().NoError(err)
	s.Equal(RecoveryOutcomeNotFound, res.Outcome)

	s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))
	s.now = s.now.Add(time.Minute)
	res, err = s.store.MarkRecovered(s.ctx, "a@example.com", s.now)
	s.Require().NoError(err)
	s.Equal(RecoveryOutcomeRecovered, res.Outcome)
	s.Require().NotNil(res.Session)
	s.Equal(enums.CartSessionStateRecovered, res.Session.State)
	s.Require().NotNil(res.Transition)
	s.Equal(enums.CartSessionStateActive, res.Transition.From)

	again, err := s.store.MarkRecovered(s.ctx, "a@example.com", s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(RecoveryOutcomeAlreadyTerminal, again.Outcome)
	s.Require().NotNil(again.Session)
	s.True(again.Session.RecoveredAt.Equal(s.now))
}

func (s *StoreContractSuite) TestTrackAfterTerminalStartsNewSession() {
	first := s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))
	_, err := s.store.MarkRecovered(s.ctx, "a@example.com", s.now)
	s.Require().NoError(err)

	s.now = s.now.Add(time.Hour)
	second := s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))
	s.True(second.Created)
	s.NotEqual(first.Session.ID, second.Session.ID)

	all, err := s.store.All(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(enums.CartSessionStateRecovered, all[0].State)
	s.Equal(enums.CartSessionStateActive, all[1].State)

	got, err := s.store.Get(s.ctx, "a@example.com")
	s.Require().NoError(err)
	s.Equal(second.Session.ID, got.ID)
}

func (s *StoreContractSuite) TestApplySweepPersists() {
	s.upsert("stale@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))
	s.now = s.now.Add(90 * time.Minute)
	s.upsert("fresh@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p2", UnitPrice: 100, Quantity: 1}))

	transitions, err := s.store.ApplySweep(s.ctx, s.now, testPolicy())
	s.Require().NoError(err)
	s.Require().Len(transitions, 1)
	s.Equal("stale@example.com", transitions[0].Identity)

	got, err := s.store.Get(s.ctx, "stale@example.com")
	s.Require().NoError(err)
	s.Equal(enums.CartSessionStateAbandoned, got.State)

	again, err := s.store.ApplySweep(s.ctx, s.now, testPolicy())
	s.Require().NoError(err)
	s.Empty(again)
}

func (s *StoreContractSuite) TestApplySweepDropRetention() {
	s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))

	p := testPolicy()
	p.Retention = enums.RetentionDrop
	transitions, err := s.store.ApplySweep(s.ctx, s.now.Add(p.ExpireAfter+time.Second), p)
	s.Require().NoError(err)
	s.Len(transitions, 2)

	got, err := s.store.Get(s.ctx, "a@example.com")
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *StoreContractSuite) TestRemove() {
	s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))
	_, err := s.store.MarkRecovered(s.ctx, "a@example.com", s.now)
	s.Require().NoError(err)
	s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))
	s.upsert("b@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))

	removed, err := s.store.Remove(s.ctx, "a@example.com")
	s.Require().NoError(err)
	s.True(removed)

	removed, err = s.store.Remove(s.ctx, "a@example.com")
	s.Require().NoError(err)
	s.False(removed)

	all, err := s.store.All(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("b@example.com", all[0].Identity)
}

func (s *StoreContractSuite) TestAllReturnsCopies() {
	s.upsert("a@example.com", enums.CartActionTrack, s.cart(RawItem{ProductID: "p1", UnitPrice: 100, Quantity: 1}))

	all, err := s.store.All(s.ctx)
	s.Require().NoError(err)
	all[0].Items[0].Quantity = 99
	all[0].State = enums.CartSessionStateExpired

	got, err := s.store.Get(s.ctx, "a@example.com")
	s.Require().NoError(err)
	s.Equal(1, got.Items[0].Quantity)
	s.Equal(enums.CartSessionStateActive, got.State)
}

func (s *StoreContractSuite) TestConcurrentUpsertsKeepOneLiveSession() {
	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			cart, err := Normalize([]RawItem{{ProductID: "p1", UnitPrice: 100, Quantity: qty}})
			if err != nil {
				errs <- err
				return
			}
			_, err = s.store.Upsert(s.ctx, UpsertInput{
				Identity: "race@example.com",
				Cart:     cart,
				Action:   enums.CartActionTrack,
				Now:      s.now,
				Policy:   testPolicy(),
			})
			errs <- err
		}(i + 1)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	all, err := s.store.All(s.ctx)
	s.Require().NoError(err)
	live := 0
	for _, session := range all {
		if session.Identity == "race@example.com" && session.IsLive() {
			live++
		}
	}
	s.Equal(1, live)
}

func runStoreSuite(t *testing.T, s *StoreContractSuite) {
	suite.Run(t, s)
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreSuite(t, &StoreContractSuite{newStore: func(t *testing.T) Store {
		return NewMemoryStore()
	}})
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreSuite(t, &StoreContractSuite{newStore: func(t *testing.T) Store {
		return newSQLiteStore(t, false)
	}})
}

func newSQLiteClient(t *testing.T) *db.Client {
	t.Helper()
	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.AutoMigrate(ctx); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return client
}

func newSQLiteStore(t *testing.T, strict bool) *SQLStore {
	t.Helper()
	store, err := NewSQLStore(SQLStoreParams{DB: newSQLiteClient(t), Strict: strict})
	if err != nil {
		t.Fatalf("NewSQLStore() error = %v", err)
	}
	return store
}
