package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pointsarcade/internal/logger"
	"pointsarcade/internal/models"
)

type AccountStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	ClaimIndex(ctx context.Context, key, userID string) (bool, error)
	ReleaseIndex(ctx context.Context, key, userID string) error
	StoreSession(ctx context.Context, session *models.UserSession, expiry time.Duration) error
	GetUserBySession(ctx context.Context, sessionID string) (*models.User, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// AccountService creates users and links their external identities.
type AccountService struct {
	store          AccountStore
	ledger         *Ledger
	jwt            *JWTService
	startingPoints int64
	sessionTTL     time.Duration
}

func NewAccountService(store AccountStore, ledger *Ledger, jwt *JWTService, startingPoints int64, sessionTTL time.Duration) *AccountService {
	return &AccountService{
		store:          store,
		ledger:         ledger,
		jwt:            jwt,
		startingPoints: startingPoints,
		sessionTTL:     sessionTTL,
	}
}

type SessionResult struct {
	User      *models.User `json:"user"`
	SessionID string       `json:"session_id"`
	Token     string       `json:"token"`
}

// CreateSession registers a new user and signs a token for it.
func (s *AccountService) CreateSession(ctx context.Context, username string) (*SessionResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > 64 {
		return nil, models.ValidationError("username must be 1 to 64 characters")
	}

	now := time.Now().Unix()
	user := &models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Points:    s.startingPoints,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	session := &models.UserSession{
		SessionID: uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
	}
	if err := s.store.StoreSession(ctx, session, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	token, err := s.jwt.GenerateToken(user.ID, session.SessionID)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx).Str("user_id", user.ID).Str("username", username).Msg("user created")

	return &SessionResult{User: user, SessionID: session.SessionID, Token: token}, nil
}

// Me resolves the session's user with a fresh balance.
func (s *AccountService) Me(ctx context.Context, sessionID string) (*models.User, error) {
	user, err := s.store.GetUserBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Points = balance
	return user, nil
}

func (s *AccountService) Logout(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// LinkKick attaches a Kick account. Once linked the user's balance is served by
// the points provider; the internal balance is not carried over.
func (s *AccountService) LinkKick(ctx context.Context, userID, username, kickUserID string) (*models.User, error) {
	username = strings.TrimSpace(username)
	kickUserID = strings.TrimSpace(kickUserID)
	if username == "" || kickUserID == "" {
		return nil, models.ValidationError("kick username and user id are required")
	}

	return s.link(ctx, userID, "kick account", KeyIndexKick, strings.ToLower(username),
		func(u *models.User) string { return strings.ToLower(u.KickUsername) },
		func(u *models.User) {
			u.KickUsername = username
			u.KickUserID = kickUserID
		})
}

func (s *AccountService) LinkGamdom(ctx context.Context, userID, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, models.ValidationError("gamdom username is required")
	}

	return s.link(ctx, userID, "gamdom account", KeyIndexGamdom, strings.ToLower(username),
		func(u *models.User) string { return strings.ToLower(u.GamdomUsername) },
		func(u *models.User) { u.GamdomUsername = username })
}

func (s *AccountService) LinkDiscord(ctx context.Context, userID, username, discordUserID string) (*models.User, error) {
	discordUserID = strings.TrimSpace(discordUserID)
	if discordUserID == "" {
		return nil, models.ValidationError("discord user id is required")
	}

	return s.link(ctx, userID, "discord account", KeyIndexDiscord, discordUserID,
		func(u *models.User) string { return u.DiscordUserID },
		func(u *models.User) {
			u.DiscordUsername = strings.TrimSpace(username)
			u.DiscordUserID = discordUserID
		})
}

// link claims the identity index for userID, swaps out any previous identity
// of the same kind and saves the profile.
func (s *AccountService) link(
	ctx context.Context,
	userID, what, keyFormat, indexValue string,
	current func(*models.User) string,
	apply func(*models.User),
) (*models.User, error) {
	unlock := s.ledger.Lock(userID)
	defer unlock()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf(keyFormat, indexValue)
	ok, err := s.store.ClaimIndex(ctx, key, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ConflictError("%s is already linked to another user", what)
	}

	previous := current(user)
	apply(user)
	if err := s.store.UpdateProfile(ctx, user); err != nil {
		if previous != indexValue {
			s.store.ReleaseIndex(ctx, key, userID)
		}
		return nil, err
	}

	if previous != "" && previous != indexValue {
		if err := s.store.ReleaseIndex(ctx, fmt.Sprintf(keyFormat, previous), userID); err != nil {
			logger.Warn(ctx).Err(err).Str("user_id", userID).Msg("failed to release previous identity")
		}
	}

	logger.Info(ctx).Str("user_id", userID).Str("linked", what).Msg("account linked")
	return user, nil
}
