package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"pointsarcade/internal/logger"
	"pointsarcade/internal/models"
)

type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	SetCachedPoints(ctx context.Context, userID string, points int64) error
}

// PointsCounter holds internal balances. Both calls floor the result at zero.
type PointsCounter interface {
	IncrPoints(ctx context.Context, userID string, delta int64) (int64, error)
	SetPoints(ctx context.Context, userID string, points int64) (int64, error)
}

// BalanceStore is where one user's balance lives. Every method returns the
// balance after the call.
type BalanceStore interface {
	Balance(ctx context.Context, user *models.User) (int64, error)
	Add(ctx context.Context, user *models.User, amount int64) (int64, error)
	Deduct(ctx context.Context, user *models.User, amount int64) (int64, error)
	Set(ctx context.Context, user *models.User, amount int64) (int64, error)
}

// InternalCounterStore keeps the balance on the user record.
type InternalCounterStore struct {
	counter PointsCounter
}

func NewInternalCounterStore(counter PointsCounter) *InternalCounterStore {
	return &InternalCounterStore{counter: counter}
}

func (s *InternalCounterStore) Balance(_ context.Context, user *models.User) (int64, error) {
	return user.Points, nil
}

func (s *InternalCounterStore) Add(ctx context.Context, user *models.User, amount int64) (int64, error) {
	return s.counter.IncrPoints(ctx, user.ID, amount)
}

func (s *InternalCounterStore) Deduct(ctx context.Context, user *models.User, amount int64) (int64, error) {
	return s.counter.IncrPoints(ctx, user.ID, -amount)
}

func (s *InternalCounterStore) Set(ctx context.Context, user *models.User, amount int64) (int64, error) {
	return s.counter.SetPoints(ctx, user.ID, amount)
}

// DelegatedProviderStore passes mutations through to the points provider and
// keeps the user record's points as a cache of the provider's value.
type DelegatedProviderStore struct {
	provider  PointsProvider
	channelID string
	users     UserStore
	group     singleflight.Group
}

func NewDelegatedProviderStore(provider PointsProvider, channelID string, users UserStore) *DelegatedProviderStore {
	return &DelegatedProviderStore{
		provider:  provider,
		channelID: channelID,
		users:     users,
	}
}

// Balance re-reads the provider on its own call. This is the read the
// insufficient-funds check sees under the user's lock, so it never shares a
// call started before an earlier mutation. When the provider is unavailable
// the cached value is returned.
func (s *DelegatedProviderStore) Balance(ctx context.Context, user *models.User) (int64, error) {
	points, err := s.refresh(ctx, user)
	if err != nil {
		return s.cached(ctx, user, err), nil
	}
	return points, nil
}

// SharedBalance is Balance for callers that do not hold the user's lock.
// Concurrent reads for one user share a single provider call.
func (s *DelegatedProviderStore) SharedBalance(ctx context.Context, user *models.User) (int64, error) {
	v, err, _ := s.group.Do(user.ID, func() (interface{}, error) {
		return s.refresh(ctx, user)
	})
	if err != nil {
		return s.cached(ctx, user, err), nil
	}
	return v.(int64), nil
}

func (s *DelegatedProviderStore) cached(ctx context.Context, user *models.User, err error) int64 {
	logger.Warn(ctx).
		Err(err).
		Str("user_id", user.ID).
		Str("kick_username", user.KickUsername).
		Msg("points provider read failed, serving cached balance")
	return user.Points
}

func (s *DelegatedProviderStore) Add(ctx context.Context, user *models.User, amount int64) (int64, error) {
	if err := s.provider.AddPoints(ctx, s.channelID, user.KickUsername, amount); err != nil {
		return 0, upstreamErr("add points", err)
	}
	return s.afterMutation(ctx, user, user.Points+amount), nil
}

// Deduct does not floor: a negative provider balance is the provider's policy.
func (s *DelegatedProviderStore) Deduct(ctx context.Context, user *models.User, amount int64) (int64, error) {
	if err := s.provider.RemovePoints(ctx, s.channelID, user.KickUsername, amount); err != nil {
		return 0, upstreamErr("remove points", err)
	}
	return s.afterMutation(ctx, user, user.Points-amount), nil
}

func (s *DelegatedProviderStore) Set(ctx context.Context, user *models.User, amount int64) (int64, error) {
	if err := s.provider.SetPoints(ctx, s.channelID, user.KickUsername, amount); err != nil {
		return 0, upstreamErr("set points", err)
	}
	return s.afterMutation(ctx, user, amount), nil
}

func (s *DelegatedProviderStore) refresh(ctx context.Context, user *models.User) (int64, error) {
	points, err := s.provider.GetViewerPoints(ctx, s.channelID, user.KickUsername)
	if err != nil {
		return 0, err
	}
	if err := s.users.SetCachedPoints(ctx, user.ID, points); err != nil {
		return 0, err
	}
	user.Points = points
	return points, nil
}

// afterMutation re-reads the provider once a mutation went through. The
// mutation already happened, so a failed read only falls back to expected.
func (s *DelegatedProviderStore) afterMutation(ctx context.Context, user *models.User, expected int64) int64 {
	points, err := s.refresh(ctx, user)
	if err == nil {
		return points
	}

	logger.Warn(ctx).
		Err(err).
		Str("user_id", user.ID).
		Int64("expected", expected).
		Msg("points provider refresh failed after mutation")

	if err := s.users.SetCachedPoints(ctx, user.ID, expected); err != nil {
		logger.Error(ctx).Err(err).Str("user_id", user.ID).Msg("failed to cache expected balance")
	}
	user.Points = expected
	return expected
}

func upstreamErr(op string, err error) error {
	if models.IsKind(err, models.KindValidation) {
		return err
	}
	return models.UpstreamProviderError(fmt.Sprintf("points provider %s failed", op), err)
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Ledger owns every balance mutation. It picks a BalanceStore per user and
// serializes work on one user's balance.
type Ledger struct {
	users     UserStore
	internal  BalanceStore
	delegated BalanceStore
	locks     *keyedMutex
}

// NewLedger builds a ledger. delegated may be nil when no points provider is
// configured; delegated users then fail with an upstream error.
func NewLedger(users UserStore, internal, delegated BalanceStore) *Ledger {
	return &Ledger{
		users:     users,
		internal:  internal,
		delegated: delegated,
		locks:     newKeyedMutex(),
	}
}

func (l *Ledger) storeFor(user *models.User) (BalanceStore, error) {
	if !user.Delegated() {
		return l.internal, nil
	}
	if l.delegated == nil {
		return nil, models.UpstreamProviderError("points provider is not configured", nil)
	}
	return l.delegated, nil
}

// Account is a user's balance while the user's lock is held.
type Account struct {
	user  *models.User
	store BalanceStore
}

func (a *Account) User() *models.User {
	return a.user
}

func (a *Account) Balance(ctx context.Context) (int64, error) {
	return a.store.Balance(ctx, a.user)
}

func (a *Account) Add(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, models.ValidationError("amount must be greater than 0")
	}
	n, err := a.store.Add(ctx, a.user, amount)
	if err != nil {
		return 0, err
	}
	a.user.Points = n
	return n, nil
}

func (a *Account) Deduct(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, models.ValidationError("amount must be greater than 0")
	}
	n, err := a.store.Deduct(ctx, a.user, amount)
	if err != nil {
		return 0, err
	}
	a.user.Points = n
	return n, nil
}

func (a *Account) Set(ctx context.Context, amount int64) (int64, error) {
	if amount < 0 {
		return 0, models.ValidationError("amount must not be negative")
	}
	n, err := a.store.Set(ctx, a.user, amount)
	if err != nil {
		return 0, err
	}
	a.user.Points = n
	return n, nil
}

// WithUserLock runs fn with the user's lock held. Everything fn does through
// acct is serialized against other callers for the same user.
func (l *Ledger) WithUserLock(ctx context.Context, userID string, fn func(acct *Account) error) error {
	unlock := l.locks.Lock(userID)
	defer unlock()

	user, err := l.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	store, err := l.storeFor(user)
	if err != nil {
		return err
	}
	return fn(&Account{user: user, store: store})
}

func (l *Ledger) AddPoints(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := l.WithUserLock(ctx, userID, func(acct *Account) error {
		var err error
		balance, err = acct.Add(ctx, amount)
		return err
	})
	return balance, err
}

func (l *Ledger) DeductPoints(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := l.WithUserLock(ctx, userID, func(acct *Account) error {
		var err error
		balance, err = acct.Deduct(ctx, amount)
		return err
	})
	return balance, err
}

func (l *Ledger) SetPoints(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := l.WithUserLock(ctx, userID, func(acct *Account) error {
		var err error
		balance, err = acct.Set(ctx, amount)
		return err
	})
	return balance, err
}

// sharedReader is a store whose lock-free reads may be coalesced.
type sharedReader interface {
	SharedBalance(ctx context.Context, user *models.User) (int64, error)
}

// Balance reads without taking the user's lock. Use it for display only;
// anything that decides whether a bet is affordable goes through
// WithUserLock.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	user, err := l.users.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	store, err := l.storeFor(user)
	if err != nil {
		return 0, err
	}
	if shared, ok := store.(sharedReader); ok {
		return shared.SharedBalance(ctx, user)
	}
	return store.Balance(ctx, user)
}

func (l *Ledger) User(ctx context.Context, userID string) (*models.User, error) {
	return l.users.GetUser(ctx, userID)
}

// Lock takes the user's lock for work that is not a balance mutation, such as
// switching the user's balance mode. Call the returned func to release it.
func (l *Ledger) Lock(userID string) func() {
	return l.locks.Lock(userID)
}
