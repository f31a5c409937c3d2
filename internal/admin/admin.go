// Package admin implements moderation: blocking and unblocking users
// and collections, plus read access to the audit trail.
package admin

import (
	"context"
	"errors"
	"time"

	"github.com/RuslanFatikhov/Collections/internal/audit"
	"github.com/RuslanFatikhov/Collections/internal/model"
	"github.com/RuslanFatikhov/Collections/internal/store"
	"github.com/RuslanFatikhov/Collections/internal/xerrors"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrSelfBlock keeps an admin from locking themselves out.
	ErrSelfBlock = errors.New("cannot block your own account")
)

// Service performs moderation actions on behalf of an admin user.
type Service struct {
	users       store.Users
	collections store.Collections
	recorder    *audit.Recorder
	now         func() time.Time
}

type Option func(*Service)

// WithClock substitutes the block timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users store.Users, collections store.Collections, recorder *audit.Recorder, opts ...Option) *Service {
	s := &Service{users: users, collections: collections, recorder: recorder, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Users lists every account for the moderation view.
func (s *Service) Users(ctx context.Context) ([]*model.User, error) {
	return s.users.List(ctx)
}

// SetUserBlocked blocks or unblocks an account. Blocking invalidates
// the user's sessions on their next request.
func (s *Service) SetUserBlocked(ctx context.Context, adminID, userID int64, blocked bool) (*model.User, error) {
	if blocked && adminID == userID {
		return nil, ErrSelfBlock
	}
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, xerrors.Wrap(err, "lookup user")
	}
	u.IsBlocked = blocked
	if blocked {
		u.BlockedAt = s.now().UTC()
	} else {
		u.BlockedAt = time.Time{}
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, xerrors.Wrap(err, "update user")
	}

	action := audit.ActionUserBlock
	if !blocked {
		action = audit.ActionUserUnblock
	}
	s.record(ctx, adminID, action, audit.ResourceUser, u.ID)
	return u, nil
}

// SetCollectionBlocked blocks or unblocks a collection. Blocked
// collections vanish from public listings and share links and reject
// owner mutation until unblocked.
func (s *Service) SetCollectionBlocked(ctx context.Context, adminID, collectionID int64, blocked bool) (*model.Collection, error) {
	c, err := s.collections.ByID(ctx, collectionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCollectionNotFound
		}
		return nil, xerrors.Wrap(err, "lookup collection")
	}
	c.IsBlocked = blocked
	if blocked {
		c.BlockedAt = s.now().UTC()
	} else {
		c.BlockedAt = time.Time{}
	}
	if err := s.collections.Update(ctx, c); err != nil {
		return nil, xerrors.Wrap(err, "update collection")
	}

	action := audit.ActionCollectionBlock
	if !blocked {
		action = audit.ActionCollectionUnblock
	}
	s.record(ctx, adminID, action, audit.ResourceCollection, c.ID)
	return c, nil
}

// Stats summarizes the instance for the moderation overview.
type Stats struct {
	Users             int `json:"users"`
	BlockedUsers      int `json:"blocked_users"`
	Admins            int `json:"admins"`
	PublicCollections int `json:"public_collections"`
}

// Overview counts accounts and published collections.
func (s *Service) Overview(ctx context.Context) (Stats, error) {
	var st Stats
	users, err := s.users.List(ctx)
	if err != nil {
		return st, xerrors.Wrap(err, "list users")
	}
	st.Users = len(users)
	for _, u := range users {
		if u.IsBlocked {
			st.BlockedUsers++
		}
		if u.IsAdmin {
			st.Admins++
		}
	}
	public, err := s.collections.Public(ctx)
	if err != nil {
		return st, xerrors.Wrap(err, "list public collections")
	}
	st.PublicCollections = len(public)
	return st, nil
}

// AuditTrail returns recent audit records, optionally scoped to one
// user.
func (s *Service) AuditTrail(ctx context.Context, trail audit.Store, userID int64, limit int) ([]audit.Record, error) {
	if userID > 0 {
		return trail.ByUser(ctx, userID, limit)
	}
	return trail.Recent(ctx, limit)
}

func (s *Service) record(ctx context.Context, adminID int64, action audit.Action, res audit.Resource, id int64) {
	if s.recorder != nil {
		s.recorder.Record(ctx, audit.Record{
			UserID:     adminID,
			Action:     action,
			Resource:   res,
			ResourceID: id,
		})
	}
}
