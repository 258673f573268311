package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/datastore"
	"github.com/vidtube/backend/internal/storage"
)

// fakeBlobStore records uploads and deletions in memory. Setting failNames
// makes Store fail for uploads with a matching name, which is how the tests
// simulate a broken object store mid-operation.
type fakeBlobStore struct {
	stored    []storage.Blob
	deleted   []string
	failNames map[string]bool
	seq       int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{failNames: map[string]bool{}}
}

func (f *fakeBlobStore) Store(_ context.Context, upload storage.Upload) (storage.Blob, error) {
	if f.failNames[upload.Name] {
		return storage.Blob{}, errors.New("object store unavailable")
	}
	f.seq++
	blob := storage.Blob{
		Key: fmt.Sprintf("blob-%d", f.seq),
		URL: fmt.Sprintf("https://cdn.test/blob-%d", f.seq),
	}
	f.stored = append(f.stored, blob)
	return blob, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    240 * time.Hour,
		Issuer:             "vidtube-test",
	}
}

func newTestIdentity(t *testing.T, store datastore.Datastore, blobs storage.BlobStore) *Identity {
	t.Helper()
	tokens := auth.NewTokenManager(testAuthConfig())
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	return NewIdentity(store, blobs, tokens, hasher, nil)
}

func upload(name string) storage.Upload {
	return storage.Upload{Name: name, ContentType: "image/png", Data: []byte(name)}
}

// seedUser inserts a user document directly, bypassing registration, and
// returns its id.
func seedUser(t *testing.T, store datastore.Datastore, username string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	id, err := store.Collection(datastore.Users).Insert(context.Background(), datastore.Document{
		"username":     username,
		"email":        username + "@example.com",
		"fullname":     "User " + username,
		"password":     string(hash),
		"avatar":       "https://cdn.test/" + username + "-avatar",
		"coverImage":   "",
		"watchHistory": []string{},
		"refreshToken": "",
		"createdAt":    now,
		"updatedAt":    now,
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return id
}

func seedVideo(t *testing.T, store datastore.Datastore, ownerID, title string, createdAt time.Time) string {
	t.Helper()
	id, err := store.Collection(datastore.Videos).Insert(context.Background(), datastore.Document{
		"owner":       ownerID,
		"videoFile":   "https://cdn.test/" + title + ".mp4",
		"thumbnail":   "https://cdn.test/" + title + ".png",
		"title":       title,
		"description": "about " + title,
		"duration":    12.5,
		"isPublished": true,
		"createdAt":   createdAt,
		"updatedAt":   createdAt,
	})
	if err != nil {
		t.Fatalf("seed video %s: %v", title, err)
	}
	return id
}
