// Package store provides persistence for users, collections, and items.
// The services consume the interfaces; the in-memory implementations
// back a single-process deployment and the test suite.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/RuslanFatikhov/Collections/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a uniqueness violation, currently only
	// duplicate user emails.
	ErrConflict = errors.New("already exists")
)

// Users persists accounts. Create assigns the ID and fails with
// ErrConflict when the email is taken.
type Users interface {
	Create(ctx context.Context, u *model.User) error
	ByID(ctx context.Context, id int64) (*model.User, error)
	ByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, u *model.User) error
	List(ctx context.Context) ([]*model.User, error)
}

// Collections persists collections. Lookups by share token only return
// published collections.
type Collections interface {
	Create(ctx context.Context, c *model.Collection) error
	ByID(ctx context.Context, id int64) (*model.Collection, error)
	ByUUID(ctx context.Context, id uuid.UUID) (*model.Collection, error)
	ByPublicUUID(ctx context.Context, id uuid.UUID) (*model.Collection, error)
	ByOwner(ctx context.Context, ownerID int64) ([]*model.Collection, error)
	Public(ctx context.Context) ([]*model.Collection, error)
	Update(ctx context.Context, c *model.Collection) error
	Delete(ctx context.Context, id int64) error
}

// Items persists collection items. Delete of a collection cascades
// through DeleteByCollection.
type Items interface {
	Create(ctx context.Context, it *model.Item) error
	ByID(ctx context.Context, id int64) (*model.Item, error)
	ByCollection(ctx context.Context, collectionID int64) ([]*model.Item, error)
	Update(ctx context.Context, it *model.Item) error
	Delete(ctx context.Context, id int64) error
	DeleteByCollection(ctx context.Context, collectionID int64) (int, error)
}
