package secrets

import (
	"context"
	"strings"
	"testing"
)

func TestStatic(t *testing.T) {
	src := Static{"session-secret": "hunter2", "empty": ""}
	ctx := context.Background()

	v, err := src.Get(ctx, "session-secret")
	if err != nil || v != "hunter2" {
		t.Fatalf("Get = %q, %v", v, err)
	}

	if _, err := src.Get(ctx, "missing"); err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("missing secret: err = %v", err)
	}
	if _, err := src.Get(ctx, "empty"); err == nil {
		t.Fatal("empty secret value should error")
	}
}

func TestStaticImplementsSource(t *testing.T) {
	var _ Source = Static{}
	var _ Source = (*SSMSource)(nil)
}
