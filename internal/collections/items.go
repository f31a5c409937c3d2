package collections

import (
	"context"
	"errors"

	"github.com/RuslanFatikhov/Collections/internal/audit"
	"github.com/RuslanFatikhov/Collections/internal/fields"
	"github.com/RuslanFatikhov/Collections/internal/model"
	"github.com/RuslanFatikhov/Collections/internal/store"
	"github.com/RuslanFatikhov/Collections/internal/xerrors"
)

var ErrItemNotFound = errors.New("item not found")

// CreateItem adds an item to a collection the user owns. The raw
// payload is validated against the collection's schema first; only
// after it passes is the sanitized form persisted. The order is load
// bearing: sanitize does not re-check types, so persisting without a
// prior validate would store type-invalid data.
func (s *Service) CreateItem(ctx context.Context, userID, collectionID int64, payload fields.Payload, images []string) (*model.Item, error) {
	c, err := s.owned(ctx, userID, collectionID)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(payload, c.Fields); err != nil {
		s.countInvalid()
		return nil, err
	}

	it := &model.Item{
		CollectionID: c.ID,
		Data:         s.validator.Sanitize(payload),
		Images:       images,
	}
	if err := s.items.Create(ctx, it); err != nil {
		return nil, xerrors.Wrap(err, "create item")
	}
	s.recordItem(ctx, audit.ActionItemCreate, it.ID, c.ID)
	return it, nil
}

// UpdateItem replaces an item's payload through the same validate,
// sanitize, persist pipeline as CreateItem.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID int64, payload fields.Payload, images []string) (*model.Item, error) {
	it, c, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(payload, c.Fields); err != nil {
		s.countInvalid()
		return nil, err
	}

	it.Data = s.validator.Sanitize(payload)
	if images != nil {
		it.Images = images
	}
	if err := s.items.Update(ctx, it); err != nil {
		return nil, xerrors.Wrap(err, "update item")
	}
	s.recordItem(ctx, audit.ActionItemUpdate, it.ID, c.ID)
	return it, nil
}

// DeleteItem removes an item from a collection the user owns.
func (s *Service) DeleteItem(ctx context.Context, userID, itemID int64) error {
	it, c, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if err := s.items.Delete(ctx, it.ID); err != nil {
		return xerrors.Wrap(err, "delete item")
	}
	s.recordItem(ctx, audit.ActionItemDelete, it.ID, c.ID)
	return nil
}

// Item returns one item if its collection is visible to the user.
func (s *Service) Item(ctx context.Context, userID, itemID int64) (*model.Item, *model.Collection, error) {
	it, err := s.items.ByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrItemNotFound
		}
		return nil, nil, xerrors.Wrap(err, "lookup item")
	}
	c, err := s.Get(ctx, userID, it.CollectionID)
	if err != nil {
		return nil, nil, ErrItemNotFound
	}
	return it, c, nil
}

// Items lists a visible collection's items.
func (s *Service) Items(ctx context.Context, userID, collectionID int64) ([]*model.Item, error) {
	if _, err := s.Get(ctx, userID, collectionID); err != nil {
		return nil, err
	}
	return s.items.ByCollection(ctx, collectionID)
}

// ownedItem loads an item and its collection, enforcing ownership of
// the collection.
func (s *Service) ownedItem(ctx context.Context, userID, itemID int64) (*model.Item, *model.Collection, error) {
	it, err := s.items.ByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrItemNotFound
		}
		return nil, nil, xerrors.Wrap(err, "lookup item")
	}
	c, err := s.owned(ctx, userID, it.CollectionID)
	if err != nil {
		return nil, nil, err
	}
	return it, c, nil
}

func (s *Service) countInvalid() {
	if s.onInvalid != nil {
		s.onInvalid()
	}
}

func (s *Service) recordItem(ctx context.Context, action audit.Action, itemID, collectionID int64) {
	if s.recorder != nil {
		s.recorder.Record(ctx, audit.Record{
			Action:     action,
			Resource:   audit.ResourceItem,
			ResourceID: itemID,
			Details:    map[string]any{"collection_id": collectionID},
		})
	}
}
