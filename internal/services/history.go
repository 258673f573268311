package services

import (
	"context"
	"errors"
	"time"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/datastore"
	"github.com/vidtube/backend/internal/models"
)

// History tracks which videos a user watched and replays them with each
// video's owner embedded. The per-user list is most-recent-first and
// deduplicated.
type History struct {
	store datastore.Datastore
	now   func() time.Time
}

// NewHistory wires the watch history service.
func NewHistory(store datastore.Datastore) *History {
	return &History{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WatchHistory returns the user's watched videos in stored order, each with
// an owner summary. Videos deleted since they were watched are skipped. An
// empty history yields an empty slice, not an error.
func (s *History) WatchHistory(ctx context.Context, userID string) ([]models.VideoWithOwner, error) {
	if !s.store.ValidID(userID) {
		return nil, apperr.New(apperr.BadRequest, "invalid user id")
	}

	user, err := s.store.Collection(datastore.Users).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "user not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load user", err)
	}

	watched := docStrings(user, "watchHistory")
	if len(watched) == 0 {
		return []models.VideoWithOwner{}, nil
	}

	ids := make(datastore.AnyOf, 0, len(watched))
	for _, id := range watched {
		ids = append(ids, id)
	}

	rows, err := s.store.Collection(datastore.Videos).Aggregate(ctx, []datastore.Stage{
		datastore.Match{Filter: datastore.Filter{"_id": ids}},
		datastore.Lookup{
			From:         datastore.Users,
			LocalField:   "owner",
			ForeignField: "_id",
			As:           "owner",
			Pipeline: []datastore.Stage{
				datastore.Project{Fields: []string{"fullname", "username", "avatar"}},
			},
		},
		datastore.AddFields{Fields: map[string]datastore.Expr{
			"owner": datastore.First{Field: "owner"},
		}},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load watch history", err)
	}

	byID := make(map[string]datastore.Document, len(rows))
	for _, row := range rows {
		byID[docString(row, "_id")] = row
	}

	out := make([]models.VideoWithOwner, 0, len(watched))
	for _, id := range watched {
		row, ok := byID[id]
		if !ok {
			continue
		}
		entry := models.VideoWithOwner{
			Video: videoFromDoc(row),
			Owner: ownerFromDoc(subDoc(row, "owner")),
		}
		// The lookup collapsed the owner field into a document, so the
		// scalar owner id has to come from the embedded summary.
		entry.OwnerID = entry.Owner.ID
		out = append(out, entry)
	}
	return out, nil
}

// RecordWatch prepends videoID to the user's history, removing any earlier
// occurrence so each video appears at most once.
func (s *History) RecordWatch(ctx context.Context, userID, videoID string) error {
	if !s.store.ValidID(userID) {
		return apperr.New(apperr.BadRequest, "invalid user id")
	}
	if !s.store.ValidID(videoID) {
		return apperr.New(apperr.BadRequest, "invalid video id")
	}

	users := s.store.Collection(datastore.Users)
	user, err := users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return apperr.New(apperr.NotFound, "user not found")
		}
		return apperr.Wrap(apperr.Internal, "failed to load user", err)
	}

	watched := docStrings(user, "watchHistory")
	next := make([]string, 0, len(watched)+1)
	next = append(next, videoID)
	for _, id := range watched {
		if id != videoID {
			next = append(next, id)
		}
	}

	_, err = users.UpdateByID(ctx, userID, datastore.Fields{
		"watchHistory": next,
		"updatedAt":    s.now(),
	})
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to record watch", err)
	}
	return nil
}
