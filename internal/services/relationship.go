package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/datastore"
	"github.com/vidtube/backend/internal/models"
)

// Relationship maintains the subscription edges between users and computes
// the derived channel views from them. Counts and flags are always read from
// the edge collection; nothing is cached or denormalized.
type Relationship struct {
	store datastore.Datastore
	now   func() time.Time
}

// NewRelationship wires the relationship graph service.
func NewRelationship(store datastore.Datastore) *Relationship {
	return &Relationship{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Subscribe adds the edge (channel, subscriber) and returns it. Duplicate
// edges conflict.
func (s *Relationship) Subscribe(ctx context.Context, channelID, subscriberID string) (models.Subscription, error) {
	if !s.store.ValidID(channelID) || !s.store.ValidID(subscriberID) {
		return models.Subscription{}, apperr.New(apperr.BadRequest, "invalid user id")
	}
	if channelID == subscriberID {
		return models.Subscription{}, apperr.New(apperr.BadRequest, "cannot subscribe to your own channel")
	}

	if _, err := s.store.Collection(datastore.Users).FindByID(ctx, channelID); err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return models.Subscription{}, apperr.New(apperr.NotFound, "channel not found")
		}
		return models.Subscription{}, apperr.Wrap(apperr.Internal, "failed to look up channel", err)
	}

	now := s.now()
	id, err := s.store.Collection(datastore.Subscriptions).Insert(ctx, datastore.Document{
		"channel":    channelID,
		"subscriber": subscriberID,
		"createdAt":  now,
	})
	if err != nil {
		if errors.Is(err, datastore.ErrConflict) {
			return models.Subscription{}, apperr.New(apperr.Conflict, "already subscribed")
		}
		return models.Subscription{}, apperr.Wrap(apperr.Internal, "failed to subscribe", err)
	}

	return models.Subscription{
		ID:           id,
		ChannelID:    channelID,
		SubscriberID: subscriberID,
		CreatedAt:    now,
	}, nil
}

// Unsubscribe removes the edge (channel, subscriber).
func (s *Relationship) Unsubscribe(ctx context.Context, channelID, subscriberID string) error {
	if !s.store.ValidID(channelID) || !s.store.ValidID(subscriberID) {
		return apperr.New(apperr.BadRequest, "invalid user id")
	}

	subscriptions := s.store.Collection(datastore.Subscriptions)
	edge, err := subscriptions.FindOne(ctx, datastore.Filter{"channel": channelID, "subscriber": subscriberID})
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return apperr.New(apperr.NotFound, "not subscribed")
		}
		return apperr.Wrap(apperr.Internal, "failed to look up subscription", err)
	}

	if err := subscriptions.DeleteByID(ctx, docString(edge, "_id")); err != nil && !errors.Is(err, datastore.ErrNotFound) {
		return apperr.Wrap(apperr.Internal, "failed to unsubscribe", err)
	}
	return nil
}

// ChannelProfile computes the aggregated channel view for a viewer in a
// single read: subscriber counts from both edge directions plus whether the
// viewer appears on the subscriber side. An empty viewer id simply yields
// isSubscribed=false.
func (s *Relationship) ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return models.ChannelProfile{}, apperr.New(apperr.BadRequest, "username is required")
	}

	pipeline := []datastore.Stage{
		datastore.Match{Filter: datastore.Filter{"username": username}},
		datastore.Lookup{
			From:         datastore.Subscriptions,
			LocalField:   "_id",
			ForeignField: "channel",
			As:           "subscribers",
		},
		datastore.Lookup{
			From:         datastore.Subscriptions,
			LocalField:   "_id",
			ForeignField: "subscriber",
			As:           "subscribedTo",
		},
		datastore.AddFields{Fields: map[string]datastore.Expr{
			"subscribersCount":  datastore.Size{Field: "subscribers"},
			"subscribedToCount": datastore.Size{Field: "subscribedTo"},
			"isSubscribed": datastore.Cond{
				If:   datastore.In{Value: viewerID, Field: "subscribers.subscriber"},
				Then: true,
				Else: false,
			},
		}},
		datastore.Project{Fields: []string{
			"fullname", "username", "email", "avatar", "coverImage",
			"subscribersCount", "subscribedToCount", "isSubscribed",
		}},
	}

	rows, err := s.store.Collection(datastore.Users).Aggregate(ctx, pipeline)
	if err != nil {
		return models.ChannelProfile{}, apperr.Wrap(apperr.Internal, "failed to load channel profile", err)
	}
	if len(rows) == 0 {
		return models.ChannelProfile{}, apperr.New(apperr.NotFound, "channel not found")
	}

	row := rows[0]
	return models.ChannelProfile{
		ID:                docString(row, "_id"),
		Fullname:          docString(row, "fullname"),
		Username:          docString(row, "username"),
		Email:             docString(row, "email"),
		AvatarURL:         docString(row, "avatar"),
		CoverImageURL:     docString(row, "coverImage"),
		SubscribersCount:  docInt(row, "subscribersCount"),
		SubscribedToCount: docInt(row, "subscribedToCount"),
		IsSubscribed:      docBool(row, "isSubscribed"),
	}, nil
}
