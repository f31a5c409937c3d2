// Package collections implements the collection and item operations:
// ownership, schema authoring, publishing, and the validate, sanitize,
// persist pipeline for item payloads.
package collections

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/RuslanFatikhov/Collections/internal/audit"
	"github.com/RuslanFatikhov/Collections/internal/fields"
	"github.com/RuslanFatikhov/Collections/internal/log"
	"github.com/RuslanFatikhov/Collections/internal/model"
	"github.com/RuslanFatikhov/Collections/internal/store"
	"github.com/RuslanFatikhov/Collections/internal/xerrors"
)

var (
	ErrNotFound = errors.New("collection not found")
	// ErrNotOwner hides other users' private collections behind the same
	// response as a missing one at the API layer.
	ErrNotOwner = errors.New("not the collection owner")
	ErrBlocked = errors.New("collection is blocked")
	// ErrNotPublic rejects share-token rotation on a private collection.
	ErrNotPublic = errors.New("collection is not public")
)

// NameError reports an invalid collection name.
type NameError struct{ Reason string }

func (e *NameError) Error() string { return e.Reason }

// SchemaError reports an invalid custom field schema at authoring time.
type SchemaError struct{ Err error }

func (e *SchemaError) Error() string { return "invalid custom fields: " + e.Err.Error() }
func (e *SchemaError) Unwrap() error { return e.Err }

const (
	minNameLen = 2
	maxNameLen = 100
)

// Service owns collection and item semantics on top of the stores.
type Service struct {
	collections store.Collections
	items       store.Items
	validator   *fields.Validator
	recorder    *audit.Recorder
	logger      log.Logger

	// onInvalid counts payload validation failures for metrics.
	onInvalid func()
}

type Option func(*Service)

// WithValidator substitutes the payload validator.
func WithValidator(v *fields.Validator) Option {
	return func(s *Service) { s.validator = v }
}

// WithOnInvalid sets a callback fired on each payload validation failure.
func WithOnInvalid(fn func()) Option {
	return func(s *Service) { s.onInvalid = fn }
}

func NewService(collections store.Collections, items store.Items, recorder *audit.Recorder, logger log.Logger, opts ...Option) *Service {
	s := &Service{
		collections: collections,
		items:       items,
		validator:   fields.NewValidator(),
		recorder:    recorder,
		logger:      logger,
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return &NameError{Reason: "collection name must not be empty"}
	}
	if len([]rune(trimmed)) < minNameLen {
		return &NameError{Reason: fmt.Sprintf("collection name must be at least %d characters", minNameLen)}
	}
	if len([]rune(trimmed)) > maxNameLen {
		return &NameError{Reason: fmt.Sprintf("collection name must not exceed %d characters", maxNameLen)}
	}
	return nil
}

// Create makes a new collection for ownerID after checking the name and
// the custom field schema.
func (s *Service) Create(ctx context.Context, ownerID int64, name, description string, schema fields.Schema) (*model.Collection, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, &SchemaError{Err: err}
	}

	c := &model.Collection{
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(name),
		Description: fields.StripHTML(description),
		Fields:      schema,
	}
	if err := s.collections.Create(ctx, c); err != nil {
		return nil, xerrors.Wrap(err, "create collection")
	}
	s.record(ctx, audit.ActionCollectionCreate, c.ID, map[string]any{"collection_name": c.Name})
	return c, nil
}

// Get returns a collection the user may see: their own, or a public
// unblocked one.
func (s *Service) Get(ctx context.Context, userID, id int64) (*model.Collection, error) {
	c, err := s.collections.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrap(err, "lookup collection")
	}
	if c.OwnerID == userID {
		return c, nil
	}
	if c.IsPublic && !c.IsBlocked {
		return c, nil
	}
	return nil, ErrNotFound
}

// Mine lists the user's collections.
func (s *Service) Mine(ctx context.Context, userID int64) ([]*model.Collection, error) {
	return s.collections.ByOwner(ctx, userID)
}

// Public lists all published, unblocked collections.
func (s *Service) Public(ctx context.Context) ([]*model.Collection, error) {
	return s.collections.Public(ctx)
}

// PublicByToken resolves a share link token to its collection.
func (s *Service) PublicByToken(ctx context.Context, token uuid.UUID) (*model.Collection, error) {
	c, err := s.collections.ByPublicUUID(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrap(err, "lookup public collection")
	}
	s.record(ctx, audit.ActionCollectionView, c.ID, nil)
	return c, nil
}

// UpdateParams carries the mutable collection attributes. Nil fields
// stay untouched.
type UpdateParams struct {
	Name        *string
	Description *string
	CoverURL    *string
	Fields      *fields.Schema
}

// Update applies params to a collection the user owns.
func (s *Service) Update(ctx context.Context, userID, id int64, params UpdateParams) (*model.Collection, error) {
	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if params.Name != nil {
		if err := validateName(*params.Name); err != nil {
			return nil, err
		}
		c.Name = strings.TrimSpace(*params.Name)
	}
	if params.Description != nil {
		c.Description = fields.StripHTML(*params.Description)
	}
	if params.CoverURL != nil {
		c.CoverURL = *params.CoverURL
	}
	if params.Fields != nil {
		if err := params.Fields.Validate(); err != nil {
			return nil, &SchemaError{Err: err}
		}
		c.Fields = *params.Fields
	}
	if err := s.collections.Update(ctx, c); err != nil {
		return nil, xerrors.Wrap(err, "update collection")
	}
	s.record(ctx, audit.ActionCollectionUpdate, c.ID, nil)
	return c, nil
}

// Delete removes a collection the user owns along with its items.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if _, err := s.items.DeleteByCollection(ctx, c.ID); err != nil {
		return xerrors.Wrap(err, "delete collection items")
	}
	if err := s.collections.Delete(ctx, c.ID); err != nil {
		return xerrors.Wrap(err, "delete collection")
	}
	s.record(ctx, audit.ActionCollectionDelete, c.ID, map[string]any{"collection_name": c.Name})
	return nil
}

// SetPublic publishes or unpublishes a collection. The share token is
// minted on first publish and survives unpublish so an existing link
// works again after republish.
func (s *Service) SetPublic(ctx context.Context, userID, id int64, public bool) (*model.Collection, error) {
	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	c.IsPublic = public
	if public && c.PublicUUID == uuid.Nil {
		c.PublicUUID = uuid.New()
	}
	if err := s.collections.Update(ctx, c); err != nil {
		return nil, xerrors.Wrap(err, "update collection")
	}
	s.record(ctx, audit.ActionCollectionPublish, c.ID, map[string]any{"public": public})
	return c, nil
}

// RotateShareToken replaces the public share token so previously shared
// links stop working. Only published collections can rotate.
func (s *Service) RotateShareToken(ctx context.Context, userID, id int64) (*model.Collection, error) {
	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !c.IsPublic {
		return nil, ErrNotPublic
	}
	c.PublicUUID = uuid.New()
	if err := s.collections.Update(ctx, c); err != nil {
		return nil, xerrors.Wrap(err, "update collection")
	}
	s.record(ctx, audit.ActionCollectionPublish, c.ID, map[string]any{"rotated": true})
	return c, nil
}

// owned loads a collection and enforces ownership and moderation state
// for mutating operations.
func (s *Service) owned(ctx context.Context, userID, id int64) (*model.Collection, error) {
	c, err := s.collections.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrap(err, "lookup collection")
	}
	if c.OwnerID != userID {
		return nil, ErrNotOwner
	}
	if c.IsBlocked {
		return nil, ErrBlocked
	}
	return c, nil
}

func (s *Service) record(ctx context.Context, action audit.Action, id int64, details map[string]any) {
	if s.recorder != nil {
		s.recorder.Record(ctx, audit.Record{
			Action:     action,
			Resource:   audit.ResourceCollection,
			ResourceID: id,
			Details:    details,
		})
	}
}
