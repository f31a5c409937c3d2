package ratelimit

import (
	"fmt"
	"time"
)

// Policy is a named limiter configuration for one class of operation.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
	// Block is the lockout applied once the window is full; zero means
	// denial is purely window-based.
	Block time.Duration
	// PerUser prefers the authenticated user identity as the key, falling
	// back to the client IP for anonymous callers. When false the key is
	// always the client IP.
	PerUser bool
}

// Per-operation-class policies. The auth policy is the only one with a
// lockout: five failed attempts earn a 30 minute block.
var (
	Auth       = Policy{Name: "auth", Limit: 5, Window: 15 * time.Minute, Block: 30 * time.Minute, PerUser: true}
	APIRead    = Policy{Name: "api_read", Limit: 1000, Window: time.Hour, PerUser: true}
	APIWrite   = Policy{Name: "api_write", Limit: 100, Window: time.Hour, PerUser: true}
	APIDelete  = Policy{Name: "api_delete", Limit: 50, Window: time.Hour, PerUser: true}
	FileUpload = Policy{Name: "file_upload", Limit: 20, Window: time.Hour, PerUser: true}
	PublicView = Policy{Name: "public_view", Limit: 2000, Window: time.Hour, PerUser: false}
)

// Policies returns every defined policy, mainly for tests and stats.
func Policies() []Policy {
	return []Policy{Auth, APIRead, APIWrite, APIDelete, FileUpload, PublicView}
}

// UserKey formats the limiter key for an authenticated user.
func UserKey(id int64) string { return fmt.Sprintf("user:%d", id) }

// IPKey formats the limiter key for an anonymous client address.
func IPKey(addr string) string { return "ip:" + addr }
