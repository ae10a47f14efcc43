package store

import (
	"context"
	"testing"
)

func TestCreateSubscription(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))

	sub, err := ps.CreateSubscription(context.Background(), "u1", "https://push.example.com/sub1", "p256dh_key1", "auth_key1", "Chrome Desktop")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if sub.Endpoint != "https://push.example.com/sub1" {
		t.Errorf("endpoint = %q, want %q", sub.Endpoint, "https://push.example.com/sub1")
	}
	if sub.DeviceName != "Chrome Desktop" {
		t.Errorf("device_name = %q, want %q", sub.DeviceName, "Chrome Desktop")
	}
}

func TestCreateSubscriptionUpsert(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))
	ctx := context.Background()

	sub1, _ := ps.CreateSubscription(ctx, "u1", "https://push.example.com/sub1", "key1", "auth1", "Device A")
	sub2, err := ps.CreateSubscription(ctx, "u1", "https://push.example.com/sub1", "key2", "auth2", "Device B")
	if err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}

	if sub2.ID != sub1.ID {
		t.Errorf("expected same ID on upsert, got %d != %d", sub2.ID, sub1.ID)
	}
	if sub2.P256dhKey != "key2" {
		t.Errorf("p256dh = %q, want %q", sub2.P256dhKey, "key2")
	}
}

func TestListByOwner(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))
	ctx := context.Background()

	ps.CreateSubscription(ctx, "u1", "https://push.example.com/1", "k1", "a1", "Device 1")
	ps.CreateSubscription(ctx, "u1", "https://push.example.com/2", "k2", "a2", "Device 2")
	ps.CreateSubscription(ctx, "u2", "https://push.example.com/3", "k3", "a3", "Device 3")

	subs, err := ps.ListByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("len = %d, want 2", len(subs))
	}
}

func TestDeleteSubscription(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))
	ctx := context.Background()

	sub, _ := ps.CreateSubscription(ctx, "u1", "https://push.example.com/1", "k1", "a1", "D1")

	if err := ps.DeleteSubscription(ctx, sub.ID, "u2"); err != nil {
		t.Fatalf("delete other owner: %v", err)
	}
	if subs, _ := ps.ListByOwner(ctx, "u1"); len(subs) != 1 {
		t.Fatalf("delete by another owner should be a no-op, have %d subs", len(subs))
	}

	if err := ps.DeleteSubscription(ctx, sub.ID, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if subs, _ := ps.ListByOwner(ctx, "u1"); len(subs) != 0 {
		t.Errorf("expected 0 subs after delete, got %d", len(subs))
	}
}

func TestDeleteByEndpoint(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))
	ctx := context.Background()

	ps.CreateSubscription(ctx, "u1", "https://push.example.com/expired", "k1", "a1", "D1")

	if err := ps.DeleteByEndpoint(ctx, "https://push.example.com/expired"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	if subs, _ := ps.ListByOwner(ctx, "u1"); len(subs) != 0 {
		t.Errorf("expected 0 subs, got %d", len(subs))
	}
}
