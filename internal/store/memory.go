package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RuslanFatikhov/Collections/internal/model"
)

// MemoryUsers is the in-process Users implementation. All methods copy
// on the way in and out so callers never share map-backed pointers.
type MemoryUsers struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*model.User
	byEmail map[string]int64
	now     func() time.Time
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		nextID:  1,
		byID:    make(map[int64]*model.User),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *MemoryUsers) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normEmail(u.Email)
	if _, taken := s.byEmail[key]; taken {
		return ErrConflict
	}
	u.ID = s.nextID
	s.nextID++
	now := s.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	cp := *u
	s.byID[u.ID] = &cp
	s.byEmail[key] = u.ID
	return nil
}

func (s *MemoryUsers) ByID(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUsers) ByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryUsers) Update(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[u.ID]
	if !ok {
		return ErrNotFound
	}
	if normEmail(u.Email) != normEmail(old.Email) {
		key := normEmail(u.Email)
		if _, taken := s.byEmail[key]; taken {
			return ErrConflict
		}
		delete(s.byEmail, normEmail(old.Email))
		s.byEmail[key] = u.ID
	}
	u.UpdatedAt = s.now().UTC()
	cp := *u
	s.byID[u.ID] = &cp
	return nil
}

func (s *MemoryUsers) List(_ context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.User, 0, len(s.byID))
	for _, u := range s.byID {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryCollections is the in-process Collections implementation.
type MemoryCollections struct {
	mu       sync.RWMutex
	nextID   int64
	byID     map[int64]*model.Collection
	byUUID   map[uuid.UUID]int64
	byPublic map[uuid.UUID]int64
	now      func() time.Time
}

func NewMemoryCollections() *MemoryCollections {
	return &MemoryCollections{
		nextID:   1,
		byID:     make(map[int64]*model.Collection),
		byUUID:   make(map[uuid.UUID]int64),
		byPublic: make(map[uuid.UUID]int64),
		now:      time.Now,
	}
}

func (s *MemoryCollections) Create(_ context.Context, c *model.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.nextID
	s.nextID++
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	now := s.now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	cp := cloneCollection(c)
	s.byID[c.ID] = cp
	s.byUUID[c.UUID] = c.ID
	if c.PublicUUID != uuid.Nil {
		s.byPublic[c.PublicUUID] = c.ID
	}
	return nil
}

func (s *MemoryCollections) ByID(_ context.Context, id int64) (*model.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCollection(c), nil
}

func (s *MemoryCollections) ByUUID(_ context.Context, id uuid.UUID) (*model.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cid, ok := s.byUUID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCollection(s.byID[cid]), nil
}

// ByPublicUUID resolves a share token. Unpublished or blocked
// collections stay hidden even when the token is known.
func (s *MemoryCollections) ByPublicUUID(_ context.Context, id uuid.UUID) (*model.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cid, ok := s.byPublic[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := s.byID[cid]
	if !c.IsPublic || c.IsBlocked {
		return nil, ErrNotFound
	}
	return cloneCollection(c), nil
}

func (s *MemoryCollections) ByOwner(_ context.Context, ownerID int64) ([]*model.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Collection
	for _, c := range s.byID {
		if c.OwnerID == ownerID {
			out = append(out, cloneCollection(c))
		}
	}
	sortCollections(out)
	return out, nil
}

func (s *MemoryCollections) Public(_ context.Context) ([]*model.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Collection
	for _, c := range s.byID {
		if c.IsPublic && !c.IsBlocked {
			out = append(out, cloneCollection(c))
		}
	}
	sortCollections(out)
	return out, nil
}

func (s *MemoryCollections) Update(_ context.Context, c *model.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[c.ID]
	if !ok {
		return ErrNotFound
	}
	if old.PublicUUID != c.PublicUUID {
		delete(s.byPublic, old.PublicUUID)
		if c.PublicUUID != uuid.Nil {
			s.byPublic[c.PublicUUID] = c.ID
		}
	}
	c.UpdatedAt = s.now().UTC()
	s.byID[c.ID] = cloneCollection(c)
	return nil
}

func (s *MemoryCollections) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byUUID, c.UUID)
	delete(s.byPublic, c.PublicUUID)
	return nil
}

func cloneCollection(c *model.Collection) *model.Collection {
	cp := *c
	cp.Fields = append(cp.Fields[:0:0], c.Fields...)
	return &cp
}

func sortCollections(cs []*model.Collection) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.After(cs[j].CreatedAt)
		}
		return cs[i].ID > cs[j].ID
	})
}

// MemoryItems is the in-process Items implementation.
type MemoryItems struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*model.Item
	now    func() time.Time
}

func NewMemoryItems() *MemoryItems {
	return &MemoryItems{
		nextID: 1,
		byID:   make(map[int64]*model.Item),
		now:    time.Now,
	}
}

func (s *MemoryItems) Create(_ context.Context, it *model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.ID = s.nextID
	s.nextID++
	now := s.now().UTC()
	it.CreatedAt = now
	it.UpdatedAt = now
	s.byID[it.ID] = cloneItem(it)
	return nil
}

func (s *MemoryItems) ByID(_ context.Context, id int64) (*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(it), nil
}

func (s *MemoryItems) ByCollection(_ context.Context, collectionID int64) ([]*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Item
	for _, it := range s.byID {
		if it.CollectionID == collectionID {
			out = append(out, cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryItems) Update(_ context.Context, it *model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[it.ID]; !ok {
		return ErrNotFound
	}
	it.UpdatedAt = s.now().UTC()
	s.byID[it.ID] = cloneItem(it)
	return nil
}

func (s *MemoryItems) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *MemoryItems) DeleteByCollection(_ context.Context, collectionID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, it := range s.byID {
		if it.CollectionID == collectionID {
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}

func cloneItem(it *model.Item) *model.Item {
	cp := *it
	if it.Data != nil {
		cp.Data = make(map[string]any, len(it.Data))
		for k, v := range it.Data {
			cp.Data[k] = v
		}
	}
	cp.Images = append(cp.Images[:0:0], it.Images...)
	return &cp
}
