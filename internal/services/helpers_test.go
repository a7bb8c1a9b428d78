package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"pointsarcade/internal/models"
	"pointsarcade/internal/services"
)

func setupTestRedis(t *testing.T) (*services.RedisService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return services.NewRedisServiceWithClient(client), mr
}

func createTestUser(t *testing.T, store *services.RedisService, id string, points int64) *models.User {
	t.Helper()

	user := &models.User{
		ID:        id,
		Username:  id,
		Points:    points,
		CreatedAt: time.Now().Unix(),
		UpdatedAt: time.Now().Unix(),
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

// fakeProvider is an in-memory points provider keyed by lower-cased username.
type fakeProvider struct {
	mu       sync.Mutex
	points   map[string]int64
	failRead error
	failMut  error
	failAdds int // number of upcoming AddPoints calls that fail
	reads    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{points: make(map[string]int64)}
}

func (p *fakeProvider) GetViewerPoints(_ context.Context, _, username string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if p.failRead != nil {
		return 0, p.failRead
	}
	return p.points[strings.ToLower(username)], nil
}

func (p *fakeProvider) AddPoints(_ context.Context, _, username string, points int64) error {
	p.mu.Lock()
	if p.failAdds > 0 {
		p.failAdds--
		p.mu.Unlock()
		return errors.New("kicklet add failed")
	}
	p.mu.Unlock()
	return p.mutate(username, func(cur int64) int64 { return cur + points })
}

func (p *fakeProvider) RemovePoints(_ context.Context, _, username string, points int64) error {
	return p.mutate(username, func(cur int64) int64 { return cur - points })
}

func (p *fakeProvider) SetPoints(_ context.Context, _, username string, points int64) error {
	return p.mutate(username, func(int64) int64 { return points })
}

func (p *fakeProvider) mutate(username string, fn func(int64) int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failMut != nil {
		return p.failMut
	}
	key := strings.ToLower(username)
	p.points[key] = fn(p.points[key])
	return nil
}

func (p *fakeProvider) get(username string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.points[strings.ToLower(username)]
}

func (p *fakeProvider) set(username string, points int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points[strings.ToLower(username)] = points
}

// gatedProvider holds its first balance read open until release is closed,
// after taking the value it will return.
type gatedProvider struct {
	*fakeProvider
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{
		fakeProvider: newFakeProvider(),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (p *gatedProvider) GetViewerPoints(ctx context.Context, channelID, username string) (int64, error) {
	points, err := p.fakeProvider.GetViewerPoints(ctx, channelID, username)

	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return points, err
}

// failingHistory rejects every append.
type failingHistory struct{}

func (failingHistory) AppendRound(context.Context, *models.GameRound) error {
	return errors.New("history unavailable")
}

func (failingHistory) ListRounds(context.Context, string, int) ([]*models.GameRound, error) {
	return nil, nil
}
