package services

import (
	"context"
	"testing"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/datastore"
)

func TestSubscribe(t *testing.T) {
	store := datastore.NewMemory()
	svc := NewRelationship(store)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")

	edge, err := svc.Subscribe(context.Background(), alice, bob)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if edge.ID == "" || edge.ChannelID != alice || edge.SubscriberID != bob || edge.CreatedAt.IsZero() {
		t.Fatalf("unexpected edge: %+v", edge)
	}
	if _, err := svc.Subscribe(context.Background(), alice, bob); !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("expected conflict on duplicate edge, got %v", err)
	}
	if _, err := svc.Subscribe(context.Background(), alice, alice); !apperr.IsKind(err, apperr.BadRequest) {
		t.Fatalf("expected bad request for self-subscribe, got %v", err)
	}
	if _, err := svc.Subscribe(context.Background(), store.NewID(), bob); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found for unknown channel, got %v", err)
	}
	if _, err := svc.Subscribe(context.Background(), "not-an-id", bob); !apperr.IsKind(err, apperr.BadRequest) {
		t.Fatalf("expected bad request for malformed id, got %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	store := datastore.NewMemory()
	svc := NewRelationship(store)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")

	if err := svc.Unsubscribe(context.Background(), alice, bob); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found before subscribing, got %v", err)
	}

	if _, err := svc.Subscribe(context.Background(), alice, bob); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := svc.Unsubscribe(context.Background(), alice, bob); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := svc.Unsubscribe(context.Background(), alice, bob); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found after unsubscribing, got %v", err)
	}
}

func TestChannelProfileCountsAndViewerFlag(t *testing.T) {
	store := datastore.NewMemory()
	svc := NewRelationship(store)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	carol := seedUser(t, store, "carol")

	// bob and carol follow alice; alice follows carol.
	for _, edge := range []struct{ channel, subscriber string }{
		{alice, bob},
		{alice, carol},
		{carol, alice},
	} {
		if _, err := svc.Subscribe(context.Background(), edge.channel, edge.subscriber); err != nil {
			t.Fatalf("subscribe %v: %v", edge, err)
		}
	}

	profile, err := svc.ChannelProfile(context.Background(), "Alice", bob)
	if err != nil {
		t.Fatalf("channel profile: %v", err)
	}
	if profile.Username != "alice" {
		t.Fatalf("profile username %q, want alice", profile.Username)
	}
	if profile.SubscribersCount != 2 || profile.SubscribedToCount != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", profile.SubscribersCount, profile.SubscribedToCount)
	}
	if !profile.IsSubscribed {
		t.Fatal("bob should appear subscribed to alice")
	}

	asStranger, err := svc.ChannelProfile(context.Background(), "alice", store.NewID())
	if err != nil {
		t.Fatalf("channel profile for stranger: %v", err)
	}
	if asStranger.IsSubscribed {
		t.Fatal("stranger should not appear subscribed")
	}

	if _, err := svc.ChannelProfile(context.Background(), "nobody", bob); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found for unknown channel, got %v", err)
	}
}
