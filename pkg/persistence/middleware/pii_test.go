package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := NewMockStore()
	mw := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	secureStore := mw(underlyingStore)

	ctx := context.Background()
	id := "pii-execution"
	snap := newSnapshot(id)
	snap.Values["inputs.username"] = "jdoe"
	snap.Values["inputs.user_password"] = "secret123"
	snap.Values["outputs.Profile.details"] = map[string]any{
		"address":    "123 St",
		"ssn_number": "999-99-9999",
	}

	if err := secureStore.Save(ctx, id, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if snap.Values["inputs.user_password"] != "secret123" {
		t.Error("Middleware modified the original snapshot")
	}
	if snap.Values["outputs.Profile.details"].(map[string]any)["ssn_number"] != "999-99-9999" {
		t.Error("Middleware modified a nested map of the original snapshot")
	}

	stored, err := underlyingStore.Load(ctx, id)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if stored.Values["inputs.username"] != "jdoe" {
		t.Error("Username shouldn't be masked")
	}
	if stored.Values["inputs.user_password"] != middleware.Mask {
		t.Errorf("Password should be masked, got: %v", stored.Values["inputs.user_password"])
	}
	details := stored.Values["outputs.Profile.details"].(map[string]any)
	if details["ssn_number"] != middleware.Mask {
		t.Errorf("Nested SSN should be masked, got: %v", details["ssn_number"])
	}
	if details["address"] != "123 St" {
		t.Error("Address shouldn't be masked")
	}
}

func TestChain_OrderIsOutermostFirst(t *testing.T) {
	underlyingStore := NewMockStore()
	key := make([]byte, 32)
	store := middleware.Chain(underlyingStore,
		middleware.NewPIIMiddleware([]string{"password"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}),
	)

	ctx := context.Background()
	snap := newSnapshot("chained")
	snap.Values["inputs.password"] = "hunter2"
	if err := store.Save(ctx, "chained", snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "chained")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Values["inputs.password"] != middleware.Mask {
		t.Errorf("Expected masked value after decryption, got %v", loaded.Values["inputs.password"])
	}
}
