package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository"
	"github.com/iliyamo/task-manager/internal/utils"
)

// Session is the result of a successful login or registration.
type Session struct {
	User    model.User
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// TokenPair is the result of a successful refresh.
type TokenPair struct {
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// AuthService runs registration, login, refresh and logout.
type AuthService struct {
	users      UserStore
	tokens     *utils.TokenService
	events     queue.Publisher
	bcryptCost int
	now        func() time.Time
}

func NewAuthService(users UserStore, tokens *utils.TokenService, events queue.Publisher, bcryptCost int) *AuthService {
	return &AuthService{users: users, tokens: tokens, events: events, bcryptCost: bcryptCost, now: time.Now}
}

// RegisterInput carries validated registration fields.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates an active account with the user role.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	u, err := s.createUser(ctx, in, model.RoleUser)
	if err != nil {
		return model.User{}, err
	}
	publish(ctx, s.events, queue.NewEvent(queue.EventUserRegistered, u.ID, u.ID))
	return u, nil
}

// CreateAdmin creates an active admin account.  Only reachable from taskctl.
func (s *AuthService) CreateAdmin(ctx context.Context, in RegisterInput) (model.User, error) {
	return s.createUser(ctx, in, model.RoleAdmin)
}

func (s *AuthService) createUser(ctx context.Context, in RegisterInput, role model.Role) (model.User, error) {
	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	now := s.now().UTC()
	u := model.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, apperr.DuplicateEmail()
		}
		return model.User{}, apperr.Internal(err)
	}
	return u, nil
}

// Login checks credentials and starts a session.  Unknown email, inactive
// account and wrong password all yield the same InvalidCredentials error.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return Session{}, apperr.Internal(err)
		}
		utils.BurnPasswordCheck(password)
		return Session{}, apperr.InvalidCredentials()
	}
	if !utils.VerifyPassword(u.PasswordHash, password) || !u.IsActive {
		return Session{}, apperr.InvalidCredentials()
	}
	sess, err := s.StartSession(ctx, u)
	if err != nil {
		return Session{}, err
	}
	publish(ctx, s.events, queue.NewEvent(queue.EventUserLoggedIn, u.ID, ""))
	return sess, nil
}

// StartSession issues an access and a refresh token for u and records the
// refresh token as the user's only valid one.
func (s *AuthService) StartSession(ctx context.Context, u model.User) (Session, error) {
	access, err := s.tokens.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	refresh, err := s.tokens.IssueRefreshToken(u.ID)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	if err := s.users.SetRefreshToken(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw)); err != nil {
		return Session{}, apperr.Internal(err)
	}
	u.RefreshTokenHash = ""
	return Session{User: u, Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token and a new
// refresh token.  The presented token must be the one stored for its
// subject; it is replaced by compare-and-swap so it works exactly once.
func (s *AuthService) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	v, err := s.tokens.Verify(raw, utils.KindRefresh)
	if err != nil {
		return TokenPair{}, apperr.InvalidToken()
	}
	u, err := s.users.UserByID(ctx, v.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, apperr.InvalidToken()
		}
		return TokenPair{}, apperr.Internal(err)
	}
	presented := utils.HashRefreshRaw(raw)
	if !u.IsActive || u.RefreshTokenHash == "" || u.RefreshTokenHash != presented {
		return TokenPair{}, apperr.InvalidToken()
	}

	access, err := s.tokens.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	next, err := s.tokens.IssueRefreshToken(u.ID)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	if err := s.users.SwapRefreshToken(ctx, u.ID, presented, utils.HashRefreshRaw(next.Raw)); err != nil {
		if errors.Is(err, repository.ErrTokenMismatch) {
			return TokenPair{}, apperr.InvalidToken()
		}
		return TokenPair{}, apperr.Internal(err)
	}
	return TokenPair{Access: access, Refresh: next}, nil
}

// Logout forgets the user's refresh token.  Repeating it is harmless.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	publish(ctx, s.events, queue.NewEvent(queue.EventUserLoggedOut, userID, ""))
	return nil
}
