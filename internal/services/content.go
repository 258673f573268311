package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/datastore"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/storage"
)

// Content implements ownership-scoped CRUD for tweets, videos, and likes.
// Media-bearing operations upload to the blob store first and compensate
// with best-effort deletes when the document write fails.
type Content struct {
	store datastore.Datastore
	blobs storage.BlobStore
	now   func() time.Time
}

// NewContent wires the content service.
func NewContent(store datastore.Datastore, blobs storage.BlobStore) *Content {
	return &Content{store: store, blobs: blobs, now: func() time.Time { return time.Now().UTC() }}
}

// WithNowFunc overrides the time source. Useful for tests.
func (s *Content) WithNowFunc(now func() time.Time) *Content {
	s.now = now
	return s
}

// CreateTweet stores a new tweet owned by ownerID.
func (s *Content) CreateTweet(ctx context.Context, ownerID, content string) (models.Tweet, error) {
	if !s.store.ValidID(ownerID) {
		return models.Tweet{}, apperr.New(apperr.BadRequest, "invalid user id")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Tweet{}, apperr.New(apperr.BadRequest, "content is required")
	}

	now := s.now()
	doc := datastore.Document{
		"owner":     ownerID,
		"content":   content,
		"createdAt": now,
		"updatedAt": now,
	}

	id, err := s.store.Collection(datastore.Tweets).Insert(ctx, doc)
	if err != nil {
		return models.Tweet{}, apperr.Wrap(apperr.Internal, "failed to create tweet", err)
	}
	doc["_id"] = id
	return tweetFromDoc(doc), nil
}

// UserTweets lists the tweets owned by userID as {owner, content} rows. An
// empty result is reported as NotFound to match the documented listing
// behavior.
func (s *Content) UserTweets(ctx context.Context, userID string) ([]models.TweetSummary, error) {
	if !s.store.ValidID(userID) {
		return nil, apperr.New(apperr.BadRequest, "invalid user id")
	}

	rows, err := s.store.Collection(datastore.Tweets).Aggregate(ctx, []datastore.Stage{
		datastore.Match{Filter: datastore.Filter{"owner": userID}},
		datastore.Project{Fields: []string{"owner", "content"}},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to list tweets", err)
	}
	if len(rows) == 0 {
		return nil, apperr.New(apperr.NotFound, "no tweets found")
	}

	out := make([]models.TweetSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.TweetSummary{
			ID:      docString(row, "_id"),
			OwnerID: docString(row, "owner"),
			Content: docString(row, "content"),
		})
	}
	return out, nil
}

// UpdateTweet replaces the content of an existing tweet.
func (s *Content) UpdateTweet(ctx context.Context, tweetID, content string) (models.Tweet, error) {
	if !s.store.ValidID(tweetID) {
		return models.Tweet{}, apperr.New(apperr.BadRequest, "invalid tweet id")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Tweet{}, apperr.New(apperr.BadRequest, "content is required")
	}

	doc, err := s.store.Collection(datastore.Tweets).UpdateByID(ctx, tweetID, datastore.Fields{
		"content":   content,
		"updatedAt": s.now(),
	})
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return models.Tweet{}, apperr.New(apperr.NotFound, "tweet not found")
		}
		return models.Tweet{}, apperr.Wrap(apperr.Internal, "failed to update tweet", err)
	}
	return tweetFromDoc(doc), nil
}

// DeleteTweet hard-deletes a tweet. Deleting a missing id reports NotFound.
func (s *Content) DeleteTweet(ctx context.Context, tweetID string) error {
	if !s.store.ValidID(tweetID) {
		return apperr.New(apperr.BadRequest, "invalid tweet id")
	}

	if err := s.store.Collection(datastore.Tweets).DeleteByID(ctx, tweetID); err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return apperr.New(apperr.NotFound, "tweet not found")
		}
		return apperr.Wrap(apperr.Internal, "failed to delete tweet", err)
	}
	return nil
}
