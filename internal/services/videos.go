package services

import (
	"context"
	"errors"
	"strings"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/datastore"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/storage"
)

// PublishVideoInput carries the metadata and media for a new video.
type PublishVideoInput struct {
	OwnerID     string
	Title       string
	Description string
	Duration    float64
	VideoFile   storage.Upload
	Thumbnail   storage.Upload
}

// UpdateVideoInput carries the replacement metadata for an existing video.
// The thumbnail upload is mandatory; title and description replace the
// stored values.
type UpdateVideoInput struct {
	VideoID     string
	Title       string
	Description string
	Thumbnail   storage.Upload
}

// ListVideosOptions controls pagination for the public catalog listing. A
// non-empty OwnerID restricts the page to one uploader's videos.
type ListVideosOptions struct {
	Page    int
	Limit   int
	OwnerID string
}

// PublishVideo uploads both media files and then persists the video
// document. Both uploads are mandatory; if the document write fails the
// uploaded blobs are deleted best-effort.
func (s *Content) PublishVideo(ctx context.Context, input PublishVideoInput) (models.Video, error) {
	if !s.store.ValidID(input.OwnerID) {
		return models.Video{}, apperr.New(apperr.BadRequest, "invalid user id")
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return models.Video{}, apperr.New(apperr.BadRequest, "title and description are required")
	}
	if len(input.VideoFile.Data) == 0 {
		return models.Video{}, apperr.New(apperr.BadRequest, "video file is required")
	}
	if len(input.Thumbnail.Data) == 0 {
		return models.Video{}, apperr.New(apperr.BadRequest, "thumbnail is required")
	}

	videoFile, err := s.blobs.Store(ctx, input.VideoFile)
	if err != nil {
		return models.Video{}, apperr.Wrap(apperr.Internal, "failed to upload video file", err)
	}
	uploaded := []storage.Blob{videoFile}

	thumbnail, err := s.blobs.Store(ctx, input.Thumbnail)
	if err != nil {
		cleanupBlobs(ctx, s.blobs, uploaded)
		return models.Video{}, apperr.Wrap(apperr.Internal, "failed to upload thumbnail", err)
	}
	uploaded = append(uploaded, thumbnail)

	now := s.now()
	doc := datastore.Document{
		"owner":       input.OwnerID,
		"videoFile":   videoFile.URL,
		"thumbnail":   thumbnail.URL,
		"title":       title,
		"description": description,
		"duration":    input.Duration,
		"isPublished": true,
		"createdAt":   now,
		"updatedAt":   now,
	}

	id, err := s.store.Collection(datastore.Videos).Insert(ctx, doc)
	if err != nil {
		cleanupBlobs(ctx, s.blobs, uploaded)
		return models.Video{}, apperr.Wrap(apperr.Internal, "failed to publish video", err)
	}
	doc["_id"] = id
	return videoFromDoc(doc), nil
}

// VideoByID fetches a single video document.
func (s *Content) VideoByID(ctx context.Context, videoID string) (models.Video, error) {
	if !s.store.ValidID(videoID) {
		return models.Video{}, apperr.New(apperr.BadRequest, "invalid video id")
	}

	doc, err := s.store.Collection(datastore.Videos).FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return models.Video{}, apperr.New(apperr.NotFound, "video not found")
		}
		return models.Video{}, apperr.Wrap(apperr.Internal, "failed to load video", err)
	}
	return videoFromDoc(doc), nil
}

// ListVideos returns a page of the catalog, newest first. An empty page is
// reported as NotFound to match the documented listing behavior.
func (s *Content) ListVideos(ctx context.Context, opts ListVideosOptions) ([]models.Video, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 10
	}

	filter := datastore.Filter{}
	if opts.OwnerID != "" {
		if !s.store.ValidID(opts.OwnerID) {
			return nil, apperr.New(apperr.BadRequest, "invalid user id")
		}
		filter["owner"] = opts.OwnerID
	}

	docs, err := s.store.Collection(datastore.Videos).Find(ctx, filter, datastore.FindOptions{
		SortBy: "createdAt",
		Desc:   true,
		Skip:   (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to list videos", err)
	}
	if len(docs) == 0 {
		return nil, apperr.New(apperr.NotFound, "no videos found")
	}

	out := make([]models.Video, 0, len(docs))
	for _, doc := range docs {
		out = append(out, videoFromDoc(doc))
	}
	return out, nil
}

// UpdateVideo replaces the title, description, and thumbnail of a video.
// The new thumbnail is uploaded before the document write; the previous
// thumbnail blob is left in place since only its URL is tracked.
func (s *Content) UpdateVideo(ctx context.Context, input UpdateVideoInput) (models.Video, error) {
	if !s.store.ValidID(input.VideoID) {
		return models.Video{}, apperr.New(apperr.BadRequest, "invalid video id")
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return models.Video{}, apperr.New(apperr.BadRequest, "title and description are required")
	}
	if len(input.Thumbnail.Data) == 0 {
		return models.Video{}, apperr.New(apperr.BadRequest, "thumbnail is required")
	}

	thumbnail, err := s.blobs.Store(ctx, input.Thumbnail)
	if err != nil {
		return models.Video{}, apperr.Wrap(apperr.Internal, "failed to upload thumbnail", err)
	}

	doc, err := s.store.Collection(datastore.Videos).UpdateByID(ctx, input.VideoID, datastore.Fields{
		"title":       title,
		"description": description,
		"thumbnail":   thumbnail.URL,
		"updatedAt":   s.now(),
	})
	if err != nil {
		cleanupBlobs(ctx, s.blobs, []storage.Blob{thumbnail})
		if errors.Is(err, datastore.ErrNotFound) {
			return models.Video{}, apperr.New(apperr.NotFound, "video not found")
		}
		return models.Video{}, apperr.Wrap(apperr.Internal, "failed to update video", err)
	}
	return videoFromDoc(doc), nil
}

// DeleteVideo hard-deletes a video document. The media blobs are not
// reclaimed here; key-less URLs make deletion a storage-side lifecycle
// concern.
func (s *Content) DeleteVideo(ctx context.Context, videoID string) error {
	if !s.store.ValidID(videoID) {
		return apperr.New(apperr.BadRequest, "invalid video id")
	}

	if err := s.store.Collection(datastore.Videos).DeleteByID(ctx, videoID); err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return apperr.New(apperr.NotFound, "video not found")
		}
		return apperr.Wrap(apperr.Internal, "failed to delete video", err)
	}
	return nil
}

// TogglePublish flips the persisted isPublished flag and returns the video
// with its new state.
func (s *Content) TogglePublish(ctx context.Context, videoID string) (models.Video, error) {
	if !s.store.ValidID(videoID) {
		return models.Video{}, apperr.New(apperr.BadRequest, "invalid video id")
	}

	videos := s.store.Collection(datastore.Videos)
	doc, err := videos.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return models.Video{}, apperr.New(apperr.NotFound, "video not found")
		}
		return models.Video{}, apperr.Wrap(apperr.Internal, "failed to load video", err)
	}

	updated, err := videos.UpdateByID(ctx, videoID, datastore.Fields{
		"isPublished": !docBool(doc, "isPublished"),
		"updatedAt":   s.now(),
	})
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return models.Video{}, apperr.New(apperr.NotFound, "video not found")
		}
		return models.Video{}, apperr.Wrap(apperr.Internal, "failed to toggle publish state", err)
	}
	return videoFromDoc(updated), nil
}
