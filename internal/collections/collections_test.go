package collections

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/RuslanFatikhov/Collections/internal/fields"
	"github.com/RuslanFatikhov/Collections/internal/store"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *store.MemoryCollections, *store.MemoryItems) {
	t.Helper()
	cs := store.NewMemoryCollections()
	is := store.NewMemoryItems()
	return NewService(cs, is, nil, nil, opts...), cs, is
}

func TestCreate_NameRules(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"ok", "Stamps", false},
		{"trimmed ok", "  Coins  ", false},
		{"empty", "", true},
		{"whitespace only", "    ", true},
		{"one char", "A", true},
		{"at max", strings.Repeat("x", 100), false},
		{"over max", strings.Repeat("x", 101), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, 1, tt.input, "", nil)
			var ne *NameError
			if tt.wantErr && !errors.As(err, &ne) {
				t.Errorf("err = %v, want *NameError", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreate_SchemaAuthoringChecked(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	bad := fields.Schema{{Name: "X", Type: "color"}}
	_, err := s.Create(ctx, 1, "Stamps", "", bad)
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SchemaError", err)
	}

	good := fields.Schema{{Name: "Year", Type: fields.TypeNumber, Required: true}}
	c, err := s.Create(ctx, 1, "Stamps", "desc", good)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(c.Fields) != 1 {
		t.Errorf("schema not stored")
	}
}

func TestCreate_DescriptionStripped(t *testing.T) {
	s, _, _ := newTestService(t)
	c, err := s.Create(context.Background(), 1, "Stamps", "<b>rare</b> finds", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Description != "rare finds" {
		t.Errorf("description = %q, want HTML stripped", c.Description)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, 1, "Stamps", "", nil)

	name := "Renamed"
	if _, err := s.Update(ctx, 2, c.ID, UpdateParams{Name: &name}); !errors.Is(err, ErrNotOwner) {
		t.Errorf("foreign update: err = %v, want ErrNotOwner", err)
	}
	if err := s.Delete(ctx, 2, c.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("foreign delete: err = %v, want ErrNotOwner", err)
	}
	// private collections are invisible to other users
	if _, err := s.Get(ctx, 2, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign get: err = %v, want ErrNotFound", err)
	}
}

func TestPublishLifecycle(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, 1, "Stamps", "", nil)

	pub, err := s.SetPublic(ctx, 1, c.ID, true)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pub.PublicUUID == uuid.Nil {
		t.Fatal("share token not minted on publish")
	}
	token := pub.PublicUUID

	got, err := s.PublicByToken(ctx, token)
	if err != nil {
		t.Fatalf("share lookup: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("share lookup returned collection %d", got.ID)
	}
	// a published collection is visible to other users by ID too
	if _, err := s.Get(ctx, 2, c.ID); err != nil {
		t.Errorf("public get by other user: %v", err)
	}

	// unpublish hides the link but keeps the token
	unpub, _ := s.SetPublic(ctx, 1, c.ID, false)
	if unpub.PublicUUID != token {
		t.Error("share token changed on unpublish")
	}
	if _, err := s.PublicByToken(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("unpublished share lookup: err = %v, want ErrNotFound", err)
	}

	// republish revives the same link
	s.SetPublic(ctx, 1, c.ID, true)
	if _, err := s.PublicByToken(ctx, token); err != nil {
		t.Errorf("republished share lookup: %v", err)
	}
}

func TestDelete_CascadesItems(t *testing.T) {
	s, _, is := newTestService(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, 1, "Stamps", "", nil)
	s.CreateItem(ctx, 1, c.ID, fields.Payload{"note": "a"}, nil)
	s.CreateItem(ctx, 1, c.ID, fields.Payload{"note": "b"}, nil)

	if err := s.Delete(ctx, 1, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	left, _ := is.ByCollection(ctx, c.ID)
	if len(left) != 0 {
		t.Errorf("%d items survived collection delete", len(left))
	}
}

func TestCreateItem_ValidateThenSanitize(t *testing.T) {
	var invalid int
	s, _, _ := newTestService(t, WithOnInvalid(func() { invalid++ }))
	ctx := context.Background()

	schema := fields.Schema{
		{Name: "Year", Type: fields.TypeNumber, Required: true},
		{Name: "Notes", Type: fields.TypeText},
	}
	c, _ := s.Create(ctx, 1, "Stamps", "", schema)

	// invalid payloads never reach the store
	_, err := s.CreateItem(ctx, 1, c.ID, fields.Payload{"Year": "abc"}, nil)
	var fe *fields.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *fields.FieldError", err)
	}
	if fe.Field != "Year" {
		t.Errorf("failing field = %q", fe.Field)
	}
	if invalid != 1 {
		t.Errorf("invalid counter = %d, want 1", invalid)
	}

	// valid raw payload is stored sanitized
	it, err := s.CreateItem(ctx, 1, c.ID, fields.Payload{
		"Year":  "1984",
		"Notes": "<script>evil()</script>mint condition",
	}, nil)
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if it.Data["Notes"] != "mint condition" {
		t.Errorf("stored notes = %q, want sanitized", it.Data["Notes"])
	}
	if it.Data["Year"] != "1984" {
		t.Errorf("stored year = %v", it.Data["Year"])
	}
}

func TestCreateItem_RawPayloadValidated(t *testing.T) {
	// a payload that would pass validation only after sanitization must
	// still be judged on its raw form
	s, _, _ := newTestService(t, WithValidator(fields.NewValidator(fields.WithMaxTextLen(10))))
	ctx := context.Background()
	schema := fields.Schema{{Name: "Notes", Type: fields.TypeText}}
	c, _ := s.Create(ctx, 1, "Stamps", "", schema)

	// raw length 16; would shrink under the limit once tags are stripped
	_, err := s.CreateItem(ctx, 1, c.ID, fields.Payload{"Notes": "<b><i>hi</i></b>"}, nil)
	var fe *fields.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *fields.FieldError on the raw payload", err)
	}
}

func TestUpdateItem_Pipeline(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	schema := fields.Schema{{Name: "Done", Type: fields.TypeCheckbox}}
	c, _ := s.Create(ctx, 1, "Tasks", "", schema)
	it, _ := s.CreateItem(ctx, 1, c.ID, fields.Payload{"Done": false}, nil)

	if _, err := s.UpdateItem(ctx, 1, it.ID, fields.Payload{"Done": "yes"}, nil); err == nil {
		t.Fatal("truthy string accepted for checkbox")
	}
	upd, err := s.UpdateItem(ctx, 1, it.ID, fields.Payload{"Done": true}, nil)
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if upd.Data["Done"] != true {
		t.Errorf("stored value = %v", upd.Data["Done"])
	}
}

func TestBlockedCollectionRejectsMutation(t *testing.T) {
	s, cs, _ := newTestService(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, 1, "Stamps", "", nil)

	stored, _ := cs.ByID(ctx, c.ID)
	stored.IsBlocked = true
	cs.Update(ctx, stored)

	if _, err := s.CreateItem(ctx, 1, c.ID, fields.Payload{}, nil); !errors.Is(err, ErrBlocked) {
		t.Errorf("create item in blocked collection: err = %v, want ErrBlocked", err)
	}
	name := "New"
	if _, err := s.Update(ctx, 1, c.ID, UpdateParams{Name: &name}); !errors.Is(err, ErrBlocked) {
		t.Errorf("update blocked collection: err = %v, want ErrBlocked", err)
	}
}

func TestRotateShareToken(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, 1, "Stamps", "", nil)

	if _, err := s.RotateShareToken(ctx, 1, c.ID); !errors.Is(err, ErrNotPublic) {
		t.Errorf("rotate before publish: err = %v, want ErrNotPublic", err)
	}

	pub, err := s.SetPublic(ctx, 1, c.ID, true)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	old := pub.PublicUUID

	rotated, err := s.RotateShareToken(ctx, 1, c.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.PublicUUID == old {
		t.Fatal("share token unchanged after rotate")
	}

	if _, err := s.PublicByToken(ctx, old); !errors.Is(err, ErrNotFound) {
		t.Errorf("old token still resolves: err = %v", err)
	}
	if _, err := s.PublicByToken(ctx, rotated.PublicUUID); err != nil {
		t.Errorf("new token lookup: %v", err)
	}

	if _, err := s.RotateShareToken(ctx, 2, c.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("rotate by stranger: err = %v, want ErrNotOwner", err)
	}
}
