package tenant

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := FromContext(ctx); got != nil {
		t.Fatalf("expected nil tenant, got %+v", got)
	}

	tn := &Tenant{ID: 7, DisplayName: "acme"}
	ctx = NewContext(ctx, tn)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("expected tenant, got nil")
	}
	if got.ID != 7 {
		t.Errorf("ID = %d, want 7", got.ID)
	}
	if got.DisplayName != "acme" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "acme")
	}
}
