package services

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vidtube/backend/internal/datastore"
	"github.com/vidtube/backend/internal/models"
)

// Helpers for reading datastore documents regardless of which implementation
// produced them: the in-memory store hands back native Go values, the Mongo
// driver hands back primitive.A, primitive.M, and primitive.DateTime.

func docString(doc datastore.Document, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docBool(doc datastore.Document, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func docFloat(doc datastore.Document, key string) float64 {
	switch n := doc[key].(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func docInt(doc datastore.Document, key string) int {
	return int(docFloat(doc, key))
}

func docTime(doc datastore.Document, key string) time.Time {
	switch t := doc[key].(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return time.Time{}
	}
}

func docStrings(doc datastore.Document, key string) []string {
	var out []string
	for _, item := range anySlice(doc[key]) {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func subDoc(doc datastore.Document, key string) datastore.Document {
	return asDocument(doc[key])
}

func anySlice(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case primitive.A:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	case []datastore.Document:
		out := make([]any, len(list))
		for i, doc := range list {
			out[i] = doc
		}
		return out
	default:
		return nil
	}
}

func asDocument(v any) datastore.Document {
	switch doc := v.(type) {
	case datastore.Document:
		return doc
	case primitive.M:
		return datastore.Document(doc)
	default:
		return nil
	}
}

func userFromDoc(doc datastore.Document) models.User {
	return models.User{
		ID:            docString(doc, "_id"),
		Username:      docString(doc, "username"),
		Email:         docString(doc, "email"),
		Fullname:      docString(doc, "fullname"),
		PasswordHash:  docString(doc, "password"),
		AvatarURL:     docString(doc, "avatar"),
		CoverImageURL: docString(doc, "coverImage"),
		WatchHistory:  docStrings(doc, "watchHistory"),
		RefreshToken:  docString(doc, "refreshToken"),
		CreatedAt:     docTime(doc, "createdAt"),
		UpdatedAt:     docTime(doc, "updatedAt"),
	}
}

func tweetFromDoc(doc datastore.Document) models.Tweet {
	return models.Tweet{
		ID:        docString(doc, "_id"),
		OwnerID:   docString(doc, "owner"),
		Content:   docString(doc, "content"),
		CreatedAt: docTime(doc, "createdAt"),
		UpdatedAt: docTime(doc, "updatedAt"),
	}
}

func videoFromDoc(doc datastore.Document) models.Video {
	return models.Video{
		ID:           docString(doc, "_id"),
		OwnerID:      docString(doc, "owner"),
		VideoFileURL: docString(doc, "videoFile"),
		ThumbnailURL: docString(doc, "thumbnail"),
		Title:        docString(doc, "title"),
		Description:  docString(doc, "description"),
		Duration:     docFloat(doc, "duration"),
		IsPublished:  docBool(doc, "isPublished"),
		CreatedAt:    docTime(doc, "createdAt"),
		UpdatedAt:    docTime(doc, "updatedAt"),
	}
}

func ownerFromDoc(doc datastore.Document) models.OwnerSummary {
	return models.OwnerSummary{
		ID:        docString(doc, "_id"),
		Fullname:  docString(doc, "fullname"),
		Username:  docString(doc, "username"),
		AvatarURL: docString(doc, "avatar"),
	}
}
