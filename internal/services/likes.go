package services

import (
	"context"
	"errors"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/datastore"
	"github.com/vidtube/backend/internal/models"
)

// ToggleLike creates a like for the target if the user has none and removes
// it otherwise. It returns the like that now exists, or nil when the toggle
// removed one. The target entity is not dereferenced, so likes on ids with
// no backing document are accepted.
func (s *Content) ToggleLike(ctx context.Context, likedBy string, target models.LikeTarget) (*models.Like, error) {
	if !s.store.ValidID(likedBy) {
		return nil, apperr.New(apperr.BadRequest, "invalid user id")
	}
	if target.IsZero() || !s.store.ValidID(target.ID()) {
		return nil, apperr.New(apperr.BadRequest, "invalid like target")
	}

	field, err := likeField(target.Kind())
	if err != nil {
		return nil, err
	}

	likes := s.store.Collection(datastore.Likes)
	filter := datastore.Filter{field: target.ID(), "likedBy": likedBy}

	existing, err := likes.FindOne(ctx, filter)
	switch {
	case err == nil:
		if err := likes.DeleteByID(ctx, docString(existing, "_id")); err != nil && !errors.Is(err, datastore.ErrNotFound) {
			return nil, apperr.Wrap(apperr.Internal, "failed to remove like", err)
		}
		return nil, nil
	case !errors.Is(err, datastore.ErrNotFound):
		return nil, apperr.Wrap(apperr.Internal, "failed to look up like", err)
	}

	now := s.now()
	id, err := likes.Insert(ctx, datastore.Document{
		field:       target.ID(),
		"likedBy":   likedBy,
		"createdAt": now,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to record like", err)
	}

	return &models.Like{
		ID:        id,
		Target:    target,
		LikedByID: likedBy,
		CreatedAt: now,
	}, nil
}

// likeField maps a target kind to the like document field holding the
// reference, keeping one field populated per like.
func likeField(kind models.TargetKind) (string, error) {
	switch kind {
	case models.TargetVideo:
		return "video", nil
	case models.TargetComment:
		return "comment", nil
	case models.TargetTweet:
		return "tweet", nil
	default:
		return "", apperr.New(apperr.BadRequest, "invalid like target")
	}
}
