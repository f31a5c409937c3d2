package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/RuslanFatikhov/Collections/internal/admin"
	"github.com/RuslanFatikhov/Collections/internal/audit"
	"github.com/RuslanFatikhov/Collections/internal/auth"
	"github.com/RuslanFatikhov/Collections/internal/collections"
	"github.com/RuslanFatikhov/Collections/internal/log"
	"github.com/RuslanFatikhov/Collections/internal/model"
	"github.com/RuslanFatikhov/Collections/internal/ratelimit"
	"github.com/RuslanFatikhov/Collections/internal/store"
	"github.com/RuslanFatikhov/Collections/internal/uploads"
)

type testAPI struct {
	srv   *httptest.Server
	users *store.MemoryUsers
	trail *audit.MemoryStore
	auth  *auth.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	users := store.NewMemoryUsers()
	cols := store.NewMemoryCollections()
	items := store.NewMemoryItems()
	trail := audit.NewMemoryStore(1000)
	recorder := audit.NewRecorder(trail, log.Nop())

	authSvc := auth.NewService(users, recorder, []byte("test-secret"), auth.WithBcryptCost(4))
	colSvc := collections.NewService(cols, items, recorder, log.Nop())
	admSvc := admin.NewService(users, cols, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	limiter := ratelimit.NewMemory(ctx)
	enforcer := ratelimit.NewEnforcer(limiter, log.Nop())

	h := New(Options{
		Logger:      log.Nop(),
		Auth:        authSvc,
		Collections: colSvc,
		Admin:       admSvc,
		Files:       uploads.NewMemStore(),
		Trail:       trail,
		Recorder:    recorder,
		Limits:      enforcer,
	})

	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(authSvc.Authenticate(r))
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, users: users, trail: trail, auth: authSvc}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// signup registers and logs in, returning the bearer token.
func (a *testAPI) signup(t *testing.T, email, name string) (token string, userID int64) {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "name": name, "password": "hunter2hunter2",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "hunter2hunter2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	var out struct {
		User  model.User `json:"user"`
		Token string     `json:"token"`
	}
	decode(t, resp, &out)
	return out.Token, out.User.ID
}

func (a *testAPI) makeAdmin(t *testing.T, id int64) {
	t.Helper()
	u, err := a.users.ByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	u.IsAdmin = true
	if err := a.users.Update(context.Background(), u); err != nil {
		t.Fatalf("update user: %v", err)
	}
}

// auth flow

func TestRegisterLoginMe(t *testing.T) {
	a := newTestAPI(t)
	token, id := a.signup(t, "ada@example.com", "Ada")

	resp := a.do(t, http.MethodGet, "/api/user", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/user: status %d", resp.StatusCode)
	}
	var u model.User
	decode(t, resp, &u)
	if u.ID != id || u.Email != "ada@example.com" {
		t.Fatalf("user = %+v", u)
	}
	if resp.Header.Get("X-RateLimit-Limit") == "" {
		t.Fatal("missing X-RateLimit-Limit header on admitted request")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "dup@example.com", "First")

	resp := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "dup@example.com", "name": "Second", "password": "hunter2hunter2",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "eve@example.com", "Eve")

	resp := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "eve@example.com", "password": "wrong-password",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestUnauthenticated(t *testing.T) {
	a := newTestAPI(t)
	resp := a.do(t, http.MethodGet, "/api/collections", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

// auth policy lockout

func TestLoginRateLimit(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "brute@example.com", "Brute")

	var resp *http.Response
	for i := 0; i < 6; i++ {
		// signup already spent two auth-policy requests for this IP,
		// so the lockout arrives before the loop ends
		resp = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "brute@example.com", "password": "wrong-password",
		})
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			break
		}
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after repeated attempts", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("missing Retry-After on 429")
	}
}

// collections

func TestCollectionLifecycle(t *testing.T) {
	a := newTestAPI(t)
	token, _ := a.signup(t, "carol@example.com", "Carol")

	resp := a.do(t, http.MethodPost, "/api/collections", token, map[string]any{
		"name":        "Vinyl",
		"description": "Records I own",
		"custom_fields": []map[string]any{
			{"name": "Artist", "type": "text", "required": true},
			{"name": "Year", "type": "number"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	var c model.Collection
	decode(t, resp, &c)

	resp = a.do(t, http.MethodPut, fmt.Sprintf("/api/collections/%d", c.ID), token, map[string]any{
		"description": "Records I keep",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status %d", resp.StatusCode)
	}
	decode(t, resp, &c)
	if c.Description != "Records I keep" {
		t.Fatalf("description = %q", c.Description)
	}

	resp = a.do(t, http.MethodGet, "/api/collections", token, nil)
	var list struct {
		Collections []model.Collection `json:"collections"`
	}
	decode(t, resp, &list)
	if len(list.Collections) != 1 {
		t.Fatalf("collections = %d, want 1", len(list.Collections))
	}

	resp = a.do(t, http.MethodDelete, fmt.Sprintf("/api/collections/%d", c.ID), token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}

	resp = a.do(t, http.MethodGet, fmt.Sprintf("/api/collections/%d", c.ID), token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", resp.StatusCode)
	}
}

func TestCreateCollection_BadName(t *testing.T) {
	a := newTestAPI(t)
	token, _ := a.signup(t, "dan@example.com", "Dan")

	resp := a.do(t, http.MethodPost, "/api/collections", token, map[string]any{"name": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var out struct {
		Error string `json:"error"`
	}
	decode(t, resp, &out)
	if !strings.Contains(out.Error, "at least") {
		t.Fatalf("error = %q", out.Error)
	}
}

func TestCollection_NotOwner(t *testing.T) {
	a := newTestAPI(t)
	owner, _ := a.signup(t, "owner@example.com", "Owner")
	other, _ := a.signup(t, "other@example.com", "Other")

	resp := a.do(t, http.MethodPost, "/api/collections", owner, map[string]any{"name": "Mine"})
	var c model.Collection
	decode(t, resp, &c)

	resp = a.do(t, http.MethodDelete, fmt.Sprintf("/api/collections/%d", c.ID), other, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

// items: the validate, sanitize, persist pipeline over HTTP

func TestItemPipeline(t *testing.T) {
	a := newTestAPI(t)
	token, _ := a.signup(t, "frank@example.com", "Frank")

	resp := a.do(t, http.MethodPost, "/api/collections", token, map[string]any{
		"name": "Coins",
		"custom_fields": []map[string]any{
			{"name": "Denomination", "type": "text", "required": true},
			{"name": "Year", "type": "number"},
		},
	})
	var c model.Collection
	decode(t, resp, &c)
	itemsPath := fmt.Sprintf("/api/collections/%d/items", c.ID)

	// type-invalid payload is rejected before anything persists
	resp = a.do(t, http.MethodPost, itemsPath, token, map[string]any{
		"custom_data": map[string]any{"Denomination": "1 peso", "Year": "not a year"},
	})
	var out struct {
		Error string `json:"error"`
	}
	decode(t, resp, &out)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(out.Error, "Year") {
		t.Fatalf("invalid item: status %d error %q", resp.StatusCode, out.Error)
	}

	// valid payload is sanitized on the way in
	resp = a.do(t, http.MethodPost, itemsPath, token, map[string]any{
		"custom_data": map[string]any{
			"Denomination": "<script>evil()</script>1 peso",
			"Year":         "1994",
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item: status %d", resp.StatusCode)
	}
	var it model.Item
	decode(t, resp, &it)
	if it.Data["Denomination"] != "1 peso" {
		t.Fatalf("Denomination = %q, want script stripped", it.Data["Denomination"])
	}

	resp = a.do(t, http.MethodGet, itemsPath, token, nil)
	var items struct {
		Items []model.Item `json:"items"`
	}
	decode(t, resp, &items)
	if len(items.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(items.Items))
	}

	resp = a.do(t, http.MethodDelete, fmt.Sprintf("/api/items/%d", it.ID), token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete item: status %d", resp.StatusCode)
	}
}

// public share links

func TestPublicShareLink(t *testing.T) {
	a := newTestAPI(t)
	token, _ := a.signup(t, "grace@example.com", "Grace")

	resp := a.do(t, http.MethodPost, "/api/collections", token, map[string]any{"name": "Stamps"})
	var c model.Collection
	decode(t, resp, &c)

	resp = a.do(t, http.MethodPost, fmt.Sprintf("/api/collections/%d/publish", c.ID), token,
		map[string]bool{"public": true})
	var pub struct {
		Collection model.Collection `json:"collection"`
		PublicPath string           `json:"public_path"`
	}
	decode(t, resp, &pub)
	if pub.PublicPath == "" {
		t.Fatal("publish returned empty public_path")
	}

	// anonymous fetch through the share token
	resp = a.do(t, http.MethodGet, "/api/public/"+pub.Collection.PublicUUID.String(), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public view: status %d", resp.StatusCode)
	}
	var view struct {
		Collection model.Collection `json:"collection"`
		Items      []model.Item     `json:"items"`
	}
	decode(t, resp, &view)
	if view.Collection.ID != c.ID {
		t.Fatalf("public view returned collection %d, want %d", view.Collection.ID, c.ID)
	}

	// unpublish hides it again but keeps the token
	resp = a.do(t, http.MethodPost, fmt.Sprintf("/api/collections/%d/publish", c.ID), token,
		map[string]bool{"public": false})
	decode(t, resp, &pub)
	if pub.PublicPath == "" {
		t.Fatal("share token lost on unpublish")
	}

	resp = a.do(t, http.MethodGet, "/api/public/"+pub.Collection.PublicUUID.String(), "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unpublished public view: status %d, want 404", resp.StatusCode)
	}
}

func TestPublicView_GarbageToken(t *testing.T) {
	a := newTestAPI(t)
	resp := a.do(t, http.MethodGet, "/api/public/not-a-uuid", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

// moderation

func TestAdminEndpoints(t *testing.T) {
	a := newTestAPI(t)
	admToken, admID := a.signup(t, "root@example.com", "Root")
	a.makeAdmin(t, admID)
	userToken, userID := a.signup(t, "mallory@example.com", "Mallory")

	// non-admin is rejected
	resp := a.do(t, http.MethodGet, "/api/admin/users", userToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin: status %d, want 403", resp.StatusCode)
	}

	resp = a.do(t, http.MethodGet, "/api/admin/stats", admToken, nil)
	var st admin.Stats
	decode(t, resp, &st)
	if st.Users != 2 || st.Admins != 1 {
		t.Fatalf("stats = %+v", st)
	}

	resp = a.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/block", userID), admToken, nil)
	var blocked model.User
	decode(t, resp, &blocked)
	if !blocked.IsBlocked {
		t.Fatal("user not blocked")
	}

	// blocked user's token stops working
	resp = a.do(t, http.MethodGet, "/api/collections", userToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("blocked user request: status %d, want 401", resp.StatusCode)
	}

	// self-block is refused
	resp = a.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/block", admID), admToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self block: status %d, want 400", resp.StatusCode)
	}

	resp = a.do(t, http.MethodGet, "/api/admin/audit?limit=10", admToken, nil)
	var trail struct {
		Records []audit.Record `json:"records"`
	}
	decode(t, resp, &trail)
	if len(trail.Records) == 0 {
		t.Fatal("audit trail empty")
	}
}

// uploads

func TestUploadAndServe(t *testing.T) {
	a := newTestAPI(t)
	token, _ := a.signup(t, "heidi@example.com", "Heidi")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte("fake png bytes"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, a.srv.URL+"/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: status %d", resp.StatusCode)
	}
	var out struct {
		URL string `json:"url"`
	}
	decode(t, resp, &out)
	if !strings.HasPrefix(out.URL, "/files/") || strings.Contains(out.URL, "photo") {
		t.Fatalf("url = %q, want /files/ path without original filename", out.URL)
	}

	resp = a.do(t, http.MethodGet, out.URL, "", nil)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "fake png bytes" {
		t.Fatalf("serve: status %d body %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestUpload_UnsupportedExtension(t *testing.T) {
	a := newTestAPI(t)
	token, _ := a.signup(t, "ivan@example.com", "Ivan")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "malware.exe")
	part.Write([]byte("MZ"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, a.srv.URL+"/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUpdateProfileAndPassword(t *testing.T) {
	a := newTestAPI(t)
	token, _ := a.signup(t, "ada@example.com", "Ada")

	resp := a.do(t, http.MethodPut, "/api/user", token, map[string]string{
		"name": "Ada Lovelace", "avatar_url": "/files/ada.png",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update profile: status %d", resp.StatusCode)
	}
	var u model.User
	decode(t, resp, &u)
	if u.Name != "Ada Lovelace" || u.AvatarURL != "/files/ada.png" {
		t.Errorf("profile not updated: %+v", u)
	}

	resp = a.do(t, http.MethodPut, "/api/user", token, map[string]string{"name": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank name: status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = a.do(t, http.MethodPut, "/api/user/password", token, map[string]string{
		"current_password": "wrong", "new_password": "newpassword1",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong current password: status %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	resp = a.do(t, http.MethodPut, "/api/user/password", token, map[string]string{
		"current_password": "hunter2hunter2", "new_password": "newpassword1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "newpassword1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login with new password: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRotateShareToken(t *testing.T) {
	a := newTestAPI(t)
	token, _ := a.signup(t, "ada@example.com", "Ada")

	resp := a.do(t, http.MethodPost, "/api/collections", token, map[string]any{"name": "Coins"})
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, resp, &created)

	path := fmt.Sprintf("/api/collections/%d", created.ID)

	resp = a.do(t, http.MethodPost, path+"/rotate-token", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("rotate before publish: status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	var published struct {
		PublicPath string `json:"public_path"`
	}
	resp = a.do(t, http.MethodPost, path+"/publish", token, map[string]bool{"public": true})
	decode(t, resp, &published)

	var rotated struct {
		PublicPath string `json:"public_path"`
	}
	resp = a.do(t, http.MethodPost, path+"/rotate-token", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotate: status %d", resp.StatusCode)
	}
	decode(t, resp, &rotated)
	if rotated.PublicPath == published.PublicPath {
		t.Fatal("share link unchanged after rotation")
	}

	resp = a.do(t, http.MethodGet, "/api"+published.PublicPath, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("old link: status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = a.do(t, http.MethodGet, "/api"+rotated.PublicPath, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("new link: status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}
