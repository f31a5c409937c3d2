// Package auth handles account registration, password login, and the
// bearer token sessions the API authenticates with.
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/RuslanFatikhov/Collections/internal/audit"
	"github.com/RuslanFatikhov/Collections/internal/model"
	"github.com/RuslanFatikhov/Collections/internal/store"
	"github.com/RuslanFatikhov/Collections/internal/xerrors"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("expired token")
	// ErrBlocked denies login and token use for moderated accounts.
	ErrBlocked = errors.New("account is blocked")

	ErrEmailTaken   = errors.New("email is already registered")
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	ErrInvalidEmail = errors.New("invalid email address")
	ErrNameRequired = errors.New("name is required")
	ErrNameTooLong  = errors.New("name must be at most 100 characters")
)

const (
	minPasswordLen  = 8
	maxNameLen      = 100
	tokenIssuer     = "collections-server"
	DefaultTokenTTL = 24 * time.Hour
)

// Service issues and verifies sessions against the user store.
type Service struct {
	users    store.Users
	recorder *audit.Recorder
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	cost     int
}

type Option func(*Service)

// WithTokenTTL overrides the session lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock substitutes the token timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost overrides the hash cost, mainly so tests run fast.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(users store.Users, recorder *audit.Recorder, secret []byte, opts ...Option) *Service {
	s := &Service{
		users:    users,
		recorder: recorder,
		secret:   secret,
		ttl:      DefaultTokenTTL,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, email, name, password string) (*model.User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if name == "" {
		return nil, ErrNameRequired
	}
	if len(name) > maxNameLen {
		return nil, ErrNameTooLong
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, xerrors.Wrap(err, "hash password")
	}

	u := &model.User{Email: email, Name: name, PasswordHash: string(hash)}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, xerrors.Wrap(err, "create user")
	}

	if s.recorder != nil {
		s.recorder.Record(ctx, audit.Record{
			UserID:     u.ID,
			Action:     audit.ActionRegister,
			Resource:   audit.ResourceUser,
			ResourceID: u.ID,
		})
	}
	return u, nil
}

// Login verifies the password and returns the user with a fresh session
// token. Failures are audited; the caller cannot tell a wrong password
// from an unknown email.
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	u, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.auditLogin(ctx, false, 0, email)
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", xerrors.Wrap(err, "lookup user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.auditLogin(ctx, false, u.ID, email)
		return nil, "", ErrInvalidCredentials
	}
	if u.IsBlocked {
		s.auditLogin(ctx, false, u.ID, email)
		return nil, "", ErrBlocked
	}

	token, err := s.issueToken(u.ID)
	if err != nil {
		return nil, "", xerrors.Wrap(err, "issue token")
	}
	s.auditLogin(ctx, true, u.ID, email)
	return u, token, nil
}

// RecordLogout audits an explicit logout. Tokens are stateless, there
// is no server-side session to destroy.
func (s *Service) RecordLogout(ctx context.Context, userID int64) {
	if s.recorder != nil {
		s.recorder.Record(ctx, audit.Record{
			UserID:   userID,
			Action:   audit.ActionLogout,
			Resource: audit.ResourceUser,
		})
	}
}

// ProfileParams carries optional profile updates. Nil fields are left as is.
type ProfileParams struct {
	Name      *string
	AvatarURL *string
}

// UpdateProfile applies the given profile changes to the account.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, params ProfileParams) (*model.User, error) {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return nil, xerrors.Wrap(err, "lookup user")
	}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		if len(name) > maxNameLen {
			return nil, ErrNameTooLong
		}
		u.Name = name
	}
	if params.AvatarURL != nil {
		u.AvatarURL = *params.AvatarURL
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, xerrors.Wrap(err, "update user")
	}
	if s.recorder != nil {
		s.recorder.Record(ctx, audit.Record{
			UserID:     u.ID,
			Action:     audit.ActionProfileUpdate,
			Resource:   audit.ResourceUser,
			ResourceID: u.ID,
		})
	}
	return u, nil
}

// ChangePassword verifies the current password before replacing the hash.
// Outstanding session tokens stay valid until they expire.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return xerrors.Wrap(err, "lookup user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if len(next) < minPasswordLen {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return xerrors.Wrap(err, "hash password")
	}
	u.PasswordHash = string(hash)
	if err := s.users.Update(ctx, u); err != nil {
		return xerrors.Wrap(err, "update user")
	}
	if s.recorder != nil {
		s.recorder.Record(ctx, audit.Record{
			UserID:     u.ID,
			Action:     audit.ActionPasswordChange,
			Resource:   audit.ResourceUser,
			ResourceID: u.ID,
		})
	}
	return nil
}

func (s *Service) auditLogin(ctx context.Context, ok bool, userID int64, email string) {
	if s.recorder != nil {
		s.recorder.Auth(ctx, ok, userID, email)
	}
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

func (s *Service) issueToken(userID int64) (string, error) {
	now := s.now()
	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyToken checks signature and expiry and loads the session's user,
// rejecting blocked accounts.
func (s *Service) VerifyToken(ctx context.Context, tokenString string) (*model.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return s.secret, nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrInvalidToken
	}

	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, xerrors.Wrap(err, "lookup session user")
	}
	if u.IsBlocked {
		return nil, ErrBlocked
	}
	return u, nil
}
