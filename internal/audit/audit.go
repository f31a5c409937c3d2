// Package audit records who did what to which resource. Records carry
// the client address and user agent resolved from the request context so
// handlers only name the action and resource.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/RuslanFatikhov/Collections/internal/httpmw"
	"github.com/RuslanFatikhov/Collections/internal/log"
)

// Action identifies what happened.
type Action string

const (
	ActionLogin       Action = "login"
	ActionLoginFailed Action = "login_failed"
	ActionLogout      Action = "logout"
	ActionRegister    Action = "register"

	ActionProfileUpdate  Action = "profile_update"
	ActionPasswordChange Action = "password_change"

	ActionCollectionCreate  Action = "collection_create"
	ActionCollectionUpdate  Action = "collection_update"
	ActionCollectionDelete  Action = "collection_delete"
	ActionCollectionPublish Action = "collection_publish"
	ActionCollectionView    Action = "collection_view"

	ActionItemCreate Action = "item_create"
	ActionItemUpdate Action = "item_update"
	ActionItemDelete Action = "item_delete"
	ActionItemView   Action = "item_view"

	ActionUserBlock         Action = "user_block"
	ActionUserUnblock       Action = "user_unblock"
	ActionCollectionBlock   Action = "collection_block"
	ActionCollectionUnblock Action = "collection_unblock"

	ActionFileUpload Action = "file_upload"
)

// Resource identifies what kind of thing the action touched.
type Resource string

const (
	ResourceAuth       Resource = "auth"
	ResourceUser       Resource = "user"
	ResourceCollection Resource = "collection"
	ResourceItem       Resource = "item"
	ResourceFile       Resource = "file"
)

// Record is one audit trail entry.
type Record struct {
	ID         int64          `json:"id"`
	UserID     int64          `json:"user_id,omitempty"`
	Action     Action         `json:"action"`
	Resource   Resource       `json:"resource_type"`
	ResourceID int64          `json:"resource_id,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Store persists audit records. Append must not fail the calling
// operation; implementations report trouble through their own channels.
type Store interface {
	Append(ctx context.Context, r Record) error
	ByUser(ctx context.Context, userID int64, limit int) ([]Record, error)
	ByResource(ctx context.Context, res Resource, resourceID int64, limit int) ([]Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// MemoryStore keeps the most recent records in a bounded ring. Oldest
// entries fall off once the cap is hit.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	recs   []Record
	cap    int
}

// DefaultCap bounds the in-memory audit trail.
const DefaultCap = 10000

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &MemoryStore{nextID: 1, cap: capacity}
}

func (s *MemoryStore) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextID
	s.nextID++
	s.recs = append(s.recs, r)
	if len(s.recs) > s.cap {
		s.recs = append(s.recs[:0], s.recs[len(s.recs)-s.cap:]...)
	}
	return nil
}

func (s *MemoryStore) ByUser(_ context.Context, userID int64, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(r Record) bool { return r.UserID == userID }), nil
}

func (s *MemoryStore) ByResource(_ context.Context, res Resource, resourceID int64, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(r Record) bool {
		return r.Resource == res && r.ResourceID == resourceID
	}), nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(Record) bool { return true }), nil
}

// filter walks newest-first. Callers hold the lock.
func (s *MemoryStore) filter(limit int, keep func(Record) bool) []Record {
	if limit <= 0 {
		limit = 100
	}
	out := make([]Record, 0, limit)
	for i := len(s.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(s.recs[i]) {
			out = append(out, s.recs[i])
		}
	}
	return out
}

// Recorder writes audit records, filling request-derived fields from the
// context and mirroring each record to the structured log.
type Recorder struct {
	store  Store
	logger log.Logger
	now    func() time.Time

	// onRecord is a counter hook keyed by action.
	onRecord func(action Action)
}

type RecorderOption func(*Recorder)

// WithRecorderClock substitutes the record timestamp source.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithOnRecord sets a callback invoked once per appended record.
func WithOnRecord(fn func(action Action)) RecorderOption {
	return func(r *Recorder) { r.onRecord = fn }
}

func NewRecorder(store Store, logger log.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, logger: logger, now: time.Now}
	if r.logger == nil {
		r.logger = log.Nop()
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Record appends one entry. The user, client address, and user agent
// come from ctx when not already set on rec. Append failures are logged
// and swallowed; auditing never fails the audited operation.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if rec.UserID == 0 {
		if uid, ok := httpmw.UserFromContext(ctx); ok {
			rec.UserID = uid
		}
	}
	if rec.IPAddress == "" {
		rec.IPAddress = httpmw.ClientIPFromContext(ctx)
	}
	if rec.UserAgent == "" {
		rec.UserAgent = httpmw.UserAgentFromContext(ctx)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}

	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Error(ctx, err, "audit append failed",
			"action", string(rec.Action), "resource", string(rec.Resource))
		return
	}
	if r.onRecord != nil {
		r.onRecord(rec.Action)
	}
	r.logger.Info(ctx, "audit",
		"action", string(rec.Action),
		"resource", string(rec.Resource),
		"resource_id", rec.ResourceID,
		"user_id", rec.UserID,
	)
}

// Auth records an authentication attempt against the auth resource.
func (r *Recorder) Auth(ctx context.Context, success bool, userID int64, email string) {
	action := ActionLogin
	if !success {
		action = ActionLoginFailed
	}
	r.Record(ctx, Record{
		UserID:   userID,
		Action:   action,
		Resource: ResourceAuth,
		Details:  map[string]any{"success": success, "email": email},
	})
}
