package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pointsarcade/internal/config"
	"pointsarcade/internal/models"
)

// RedisService is the key-value store behind users, internal balances,
// history, mines sessions, login sessions and rate limits.
type RedisService struct {
	client *redis.Client
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisService{client: client}, nil
}

func NewRedisServiceWithClient(client *redis.Client) *RedisService {
	return &RedisService{client: client}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

const errUserNotFound = "user not found"

func mapUserErr(userID string, err error) error {
	if err != nil && strings.Contains(err.Error(), errUserNotFound) {
		return models.NotFoundError("user %s not found", userID)
	}
	return err
}

// Users

func (s *RedisService) CreateUser(ctx context.Context, user *models.User) error {
	key := fmt.Sprintf(KeyUser, user.ID)

	ok, err := s.client.HSetNX(ctx, key, "id", user.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if !ok {
		return models.ConflictError("user %s already exists", user.ID)
	}

	if err := s.client.HSet(ctx, key, user).Err(); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *RedisService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	key := fmt.Sprintf(KeyUser, userID)

	res := s.client.HGetAll(ctx, key)
	fields, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.NotFoundError("user %s not found", userID)
	}

	var user models.User
	if err := res.Scan(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// UpdateProfile writes the identity fields of user. The balance is left to the
// points scripts.
func (s *RedisService) UpdateProfile(ctx context.Context, user *models.User) error {
	key := fmt.Sprintf(KeyUser, user.ID)

	user.UpdatedAt = time.Now().Unix()
	err := updateProfileScript.Run(ctx, s.client, []string{key},
		user.Username,
		user.KickUsername,
		user.KickUserID,
		user.DiscordUsername,
		user.DiscordUserID,
		user.GamdomUsername,
		user.UpdatedAt,
	).Err()
	return mapUserErr(user.ID, err)
}

var updateProfileScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return redis.error_reply("user not found")
	end
	redis.call("HSET", KEYS[1],
		"username", ARGV[1],
		"kick_username", ARGV[2],
		"kick_user_id", ARGV[3],
		"discord_username", ARGV[4],
		"discord_user_id", ARGV[5],
		"gamdom_username", ARGV[6],
		"updated_at", ARGV[7])
	return "OK"
`)

func (s *RedisService) lookupIndex(ctx context.Context, key string) (*models.User, error) {
	userID, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.NotFoundError("no user linked to %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	return s.GetUser(ctx, userID)
}

func (s *RedisService) GetUserByKickUsername(ctx context.Context, username string) (*models.User, error) {
	return s.lookupIndex(ctx, fmt.Sprintf(KeyIndexKick, strings.ToLower(username)))
}

func (s *RedisService) GetUserByGamdomUsername(ctx context.Context, username string) (*models.User, error) {
	return s.lookupIndex(ctx, fmt.Sprintf(KeyIndexGamdom, strings.ToLower(username)))
}

func (s *RedisService) GetUserByDiscordID(ctx context.Context, discordUserID string) (*models.User, error) {
	return s.lookupIndex(ctx, fmt.Sprintf(KeyIndexDiscord, discordUserID))
}

var claimIndexScript = redis.NewScript(`
	local owner = redis.call("GET", KEYS[1])
	if owner and owner ~= ARGV[1] then
		return 0
	end
	redis.call("SET", KEYS[1], ARGV[1])
	return 1
`)

// ClaimIndex points key at userID unless another user already owns it.
func (s *RedisService) ClaimIndex(ctx context.Context, key, userID string) (bool, error) {
	n, err := claimIndexScript.Run(ctx, s.client, []string{key}, userID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim index: %w", err)
	}
	return n == 1, nil
}

var releaseIndexScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// ReleaseIndex drops key if it still belongs to userID.
func (s *RedisService) ReleaseIndex(ctx context.Context, key, userID string) error {
	return releaseIndexScript.Run(ctx, s.client, []string{key}, userID).Err()
}

// Points

var incrPointsScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return redis.error_reply("user not found")
	end
	local points = tonumber(redis.call("HGET", KEYS[1], "points") or "0") + tonumber(ARGV[1])
	if points < 0 then
		points = 0
	end
	redis.call("HSET", KEYS[1], "points", points, "updated_at", ARGV[2])
	return points
`)

// IncrPoints adds delta to the stored balance, flooring the result at zero.
func (s *RedisService) IncrPoints(ctx context.Context, userID string, delta int64) (int64, error) {
	key := fmt.Sprintf(KeyUser, userID)
	n, err := incrPointsScript.Run(ctx, s.client, []string{key}, delta, time.Now().Unix()).Int64()
	if err != nil {
		return 0, mapUserErr(userID, err)
	}
	return n, nil
}

var setPointsScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return redis.error_reply("user not found")
	end
	local points = tonumber(ARGV[1])
	if points < 0 then
		points = 0
	end
	redis.call("HSET", KEYS[1], "points", points, "updated_at", ARGV[2])
	return points
`)

func (s *RedisService) SetPoints(ctx context.Context, userID string, points int64) (int64, error) {
	key := fmt.Sprintf(KeyUser, userID)
	n, err := setPointsScript.Run(ctx, s.client, []string{key}, points, time.Now().Unix()).Int64()
	if err != nil {
		return 0, mapUserErr(userID, err)
	}
	return n, nil
}

// SetCachedPoints stores the provider's balance as the local copy. Unlike
// SetPoints it does not floor: the provider's value is taken as is.
func (s *RedisService) SetCachedPoints(ctx context.Context, userID string, points int64) error {
	key := fmt.Sprintf(KeyUser, userID)
	err := s.client.HSet(ctx, key, "points", points, "updated_at", time.Now().Unix()).Err()
	if err != nil {
		return fmt.Errorf("failed to cache points: %w", err)
	}
	return nil
}

// Sessions

func (s *RedisService) StoreSession(ctx context.Context, session *models.UserSession, expiry time.Duration) error {
	key := fmt.Sprintf(KeySession, session.SessionID)
	return s.client.Set(ctx, key, session.UserID, expiry).Err()
}

func (s *RedisService) GetUserBySession(ctx context.Context, sessionID string) (*models.User, error) {
	return s.lookupIndex(ctx, fmt.Sprintf(KeySession, sessionID))
}

func (s *RedisService) DeleteSession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeySession, sessionID)).Err()
}

// History

var appendRoundScript = redis.NewScript(`
	local seq = redis.call("INCR", KEYS[3])
	redis.call("SET", KEYS[1], ARGV[1])
	redis.call("ZADD", KEYS[2], seq, ARGV[2])
	return seq
`)

func (s *RedisService) AppendRound(ctx context.Context, round *models.GameRound) error {
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("failed to marshal round: %w", err)
	}

	keys := []string{
		fmt.Sprintf(KeyRound, round.ID),
		fmt.Sprintf(KeyUserRounds, round.UserID),
		fmt.Sprintf(KeyUserRoundSeq, round.UserID),
	}
	if err := appendRoundScript.Run(ctx, s.client, keys, data, round.ID).Err(); err != nil {
		return fmt.Errorf("failed to append round: %w", err)
	}
	return nil
}

// ListRounds returns the user's rounds newest first. limit <= 0 returns all.
func (s *RedisService) ListRounds(ctx context.Context, userID string, limit int) ([]*models.GameRound, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := s.client.ZRevRange(ctx, fmt.Sprintf(KeyUserRounds, userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get round ids: %w", err)
	}
	if len(ids) == 0 {
		return []*models.GameRound{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyRound, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	rounds := make([]*models.GameRound, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var round models.GameRound
		if err := json.Unmarshal(data, &round); err != nil {
			continue
		}
		rounds = append(rounds, &round)
	}
	return rounds, nil
}

// Mines

// CreateMinesSession stores a new active game. It fails with a conflict when
// the user already has one.
func (s *RedisService) CreateMinesSession(ctx context.Context, session *models.MinesSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal mines session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, fmt.Sprintf(KeyMinesActive, session.UserID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save mines session: %w", err)
	}
	if !ok {
		return models.ConflictError("a mines game is already in progress")
	}
	return nil
}

func (s *RedisService) GetMinesSession(ctx context.Context, userID string) (*models.MinesSession, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyMinesActive, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.NotFoundError("no active mines game")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mines session: %w", err)
	}

	var session models.MinesSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mines session: %w", err)
	}
	return &session, nil
}

// SaveMinesSession overwrites an existing session, keeping its expiry.
func (s *RedisService) SaveMinesSession(ctx context.Context, session *models.MinesSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal mines session: %w", err)
	}

	err = s.client.SetArgs(ctx, fmt.Sprintf(KeyMinesActive, session.UserID), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return models.NotFoundError("no active mines game")
	}
	if err != nil {
		return fmt.Errorf("failed to save mines session: %w", err)
	}
	return nil
}

func (s *RedisService) DeleteMinesSession(ctx context.Context, userID string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyMinesActive, userID)).Err()
}

// Rate limiting

// CheckRateLimit counts one action in a fixed window and reports whether the
// caller is still within limit.
func (s *RedisService) CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}
