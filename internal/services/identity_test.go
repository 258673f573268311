package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/datastore"
)

func TestRegisterCreatesAccount(t *testing.T) {
	store := datastore.NewMemory()
	blobs := newFakeBlobStore()
	svc := newTestIdentity(t, store, blobs)

	cover := upload("cover.png")
	user, err := svc.Register(context.Background(), RegisterInput{
		Fullname: "Alice Example",
		Email:    "Alice@Example.com",
		Username: "Alice",
		Password: "secret123",
		Avatar:   upload("avatar.png"),
		Cover:    &cover,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if user.Username != "alice" || user.Email != "alice@example.com" {
		t.Fatalf("identifiers not normalised: %q %q", user.Username, user.Email)
	}
	if user.AvatarURL == "" || user.CoverImageURL == "" {
		t.Fatalf("expected media URLs, got %q %q", user.AvatarURL, user.CoverImageURL)
	}

	doc, err := store.Collection(datastore.Users).FindByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("load stored user: %v", err)
	}
	if stored, _ := doc["password"].(string); stored == "" || stored == "secret123" {
		t.Fatalf("password stored in the clear or missing: %q", stored)
	}
}

func TestRegisterRejectsDuplicatesBeforeUploading(t *testing.T) {
	store := datastore.NewMemory()
	blobs := newFakeBlobStore()
	svc := newTestIdentity(t, store, blobs)
	seedUser(t, store, "alice")

	_, err := svc.Register(context.Background(), RegisterInput{
		Fullname: "Alice Again",
		Email:    "other@example.com",
		Username: "alice",
		Password: "secret123",
		Avatar:   upload("avatar.png"),
	})
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(blobs.stored) != 0 {
		t.Fatalf("uploaded %d blobs despite duplicate account", len(blobs.stored))
	}
}

func TestRegisterCompensatesAvatarWhenCoverUploadFails(t *testing.T) {
	store := datastore.NewMemory()
	blobs := newFakeBlobStore()
	blobs.failNames["cover.png"] = true
	svc := newTestIdentity(t, store, blobs)

	cover := upload("cover.png")
	_, err := svc.Register(context.Background(), RegisterInput{
		Fullname: "Alice Example",
		Email:    "alice@example.com",
		Username: "alice",
		Password: "secret123",
		Avatar:   upload("avatar.png"),
		Cover:    &cover,
	})
	if !apperr.IsKind(err, apperr.Internal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(blobs.stored) != 1 || len(blobs.deleted) != 1 || blobs.deleted[0] != blobs.stored[0].Key {
		t.Fatalf("avatar blob not compensated: stored=%v deleted=%v", blobs.stored, blobs.deleted)
	}

	if _, err := store.Collection(datastore.Users).FindOne(context.Background(), datastore.Filter{"username": "alice"}); err == nil {
		t.Fatal("user document written despite failed upload")
	}
}

func TestLoginVerifiesCredentialsAndStoresRefreshToken(t *testing.T) {
	store := datastore.NewMemory()
	svc := newTestIdentity(t, store, newFakeBlobStore())
	id := seedUser(t, store, "alice")

	for _, identifier := range []string{"alice", "alice@example.com", "ALICE"} {
		result, err := svc.Login(context.Background(), identifier, "secret123")
		if err != nil {
			t.Fatalf("login as %q: %v", identifier, err)
		}
		if result.User.ID != id {
			t.Fatalf("login as %q resolved user %q, want %q", identifier, result.User.ID, id)
		}
		if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
			t.Fatalf("login as %q returned empty tokens", identifier)
		}

		doc, err := store.Collection(datastore.Users).FindByID(context.Background(), id)
		if err != nil {
			t.Fatalf("load user: %v", err)
		}
		if doc["refreshToken"] != result.Tokens.RefreshToken {
			t.Fatalf("stored refresh token does not match issued token")
		}
	}

	if _, err := svc.Login(context.Background(), "alice", "wrong-password"); !apperr.IsKind(err, apperr.Unauthorized) {
		t.Fatalf("expected unauthorized for bad password, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody", "secret123"); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found for unknown identifier, got %v", err)
	}
}

func TestLoginThrottleLimitsAttempts(t *testing.T) {
	store := datastore.NewMemory()
	seedUser(t, store, "alice")

	tokens := auth.NewTokenManager(testAuthConfig())
	hasher := auth.NewBcryptHasher(0)
	throttle := auth.NewLoginThrottle(1, time.Hour, 2, time.Hour)
	svc := NewIdentity(store, newFakeBlobStore(), tokens, hasher, throttle)

	for i := 0; i < 2; i++ {
		if _, err := svc.Login(context.Background(), "alice", "wrong"); !apperr.IsKind(err, apperr.Unauthorized) {
			t.Fatalf("attempt %d: expected unauthorized, got %v", i, err)
		}
	}

	_, err := svc.Login(context.Background(), "alice", "secret123")
	if !apperr.IsKind(err, apperr.Unauthorized) || !strings.Contains(apperr.MessageOf(err), "too many") {
		t.Fatalf("expected throttled login, got %v", err)
	}
}

func TestLoginThrottleSparesSuccessfulLogins(t *testing.T) {
	store := datastore.NewMemory()
	seedUser(t, store, "alice")

	tokens := auth.NewTokenManager(testAuthConfig())
	hasher := auth.NewBcryptHasher(0)
	throttle := auth.NewLoginThrottle(1, time.Hour, 2, time.Hour)
	svc := NewIdentity(store, newFakeBlobStore(), tokens, hasher, throttle)

	// Each success resets the budget, so a run of correct logins longer
	// than the burst still goes through.
	for i := 0; i < 4; i++ {
		if _, err := svc.Login(context.Background(), "alice", "secret123"); err != nil {
			t.Fatalf("successful login %d throttled: %v", i, err)
		}
	}

	// Failed attempts still spend the budget.
	for i := 0; i < 2; i++ {
		if _, err := svc.Login(context.Background(), "alice", "wrong"); !apperr.IsKind(err, apperr.Unauthorized) {
			t.Fatalf("attempt %d: expected unauthorized, got %v", i, err)
		}
	}
	_, err := svc.Login(context.Background(), "alice", "secret123")
	if !apperr.IsKind(err, apperr.Unauthorized) || !strings.Contains(apperr.MessageOf(err), "too many") {
		t.Fatalf("expected throttled login after failures, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	store := datastore.NewMemory()
	svc := newTestIdentity(t, store, newFakeBlobStore())
	id := seedUser(t, store, "alice")

	if _, err := svc.Login(context.Background(), "alice", "secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.Logout(context.Background(), id); err != nil {
			t.Fatalf("logout attempt %d: %v", i, err)
		}
	}

	doc, err := store.Collection(datastore.Users).FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if doc["refreshToken"] != "" {
		t.Fatalf("refresh token not cleared: %v", doc["refreshToken"])
	}
}

func TestRefreshRotatesAndInvalidatesOldToken(t *testing.T) {
	store := datastore.NewMemory()
	seedUser(t, store, "alice")

	// Freeze the clock so login and both refreshes land in the same
	// wall-clock second, the window where rotation must still replace
	// the stored token with a distinct one.
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return frozen }
	tokens := auth.NewTokenManager(testAuthConfig()).WithNowFunc(now)
	hasher := auth.NewBcryptHasher(0)
	svc := NewIdentity(store, newFakeBlobStore(), tokens, hasher, nil).WithNowFunc(now)

	result, err := svc.Login(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	first := result.Tokens.RefreshToken

	rotated, err := svc.Refresh(context.Background(), first)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == first {
		t.Fatal("refresh did not rotate the token")
	}
	if rotated.AccessToken == "" {
		t.Fatal("refresh returned empty access token")
	}

	if _, err := svc.Refresh(context.Background(), first); !apperr.IsKind(err, apperr.Unauthorized) {
		t.Fatalf("expected superseded token to be rejected, got %v", err)
	}
	if _, err := svc.Refresh(context.Background(), rotated.RefreshToken); err != nil {
		t.Fatalf("refresh with current token: %v", err)
	}
}

func TestConcurrentRefreshesExactlyOneWins(t *testing.T) {
	store := datastore.NewMemory()
	svc := newTestIdentity(t, store, newFakeBlobStore())
	seedUser(t, store, "alice")

	result, err := svc.Login(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	token := result.Tokens.RefreshToken

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), token)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.IsKind(err, apperr.Unauthorized):
			rejected++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("got %d successes and %d rejections, want exactly one of each", succeeded, rejected)
	}
}

func TestRefreshRejectsAccessTokens(t *testing.T) {
	store := datastore.NewMemory()
	svc := newTestIdentity(t, store, newFakeBlobStore())
	seedUser(t, store, "alice")

	result, err := svc.Login(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), result.Tokens.AccessToken); !apperr.IsKind(err, apperr.Unauthorized) {
		t.Fatalf("expected access token to be rejected, got %v", err)
	}
}

func TestAuthenticateResolvesUser(t *testing.T) {
	store := datastore.NewMemory()
	svc := newTestIdentity(t, store, newFakeBlobStore())
	id := seedUser(t, store, "alice")

	result, err := svc.Login(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	user, err := svc.Authenticate(context.Background(), result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != id {
		t.Fatalf("authenticated user %q, want %q", user.ID, id)
	}

	if _, err := svc.Authenticate(context.Background(), result.Tokens.RefreshToken); !apperr.IsKind(err, apperr.Unauthorized) {
		t.Fatalf("expected refresh token to be rejected, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	store := datastore.NewMemory()
	svc := newTestIdentity(t, store, newFakeBlobStore())
	id := seedUser(t, store, "alice")

	if err := svc.ChangePassword(context.Background(), id, "wrong", "newsecret"); !apperr.IsKind(err, apperr.Unauthorized) {
		t.Fatalf("expected unauthorized for wrong old password, got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), id, "secret123", "newsecret"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Login(context.Background(), "alice", "secret123"); !apperr.IsKind(err, apperr.Unauthorized) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := svc.Login(context.Background(), "alice", "newsecret"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestUpdateProfileRejectsDuplicateEmail(t *testing.T) {
	store := datastore.NewMemory()
	svc := newTestIdentity(t, store, newFakeBlobStore())
	id := seedUser(t, store, "alice")
	seedUser(t, store, "bob")

	if _, err := svc.UpdateProfile(context.Background(), id, "Alice E.", "bob@example.com"); !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("expected conflict for taken email, got %v", err)
	}

	user, err := svc.UpdateProfile(context.Background(), id, "Alice E.", "alice2@example.com")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if user.Fullname != "Alice E." || user.Email != "alice2@example.com" {
		t.Fatalf("profile not updated: %+v", user)
	}
}

func TestUpdateAvatarCompensatesWhenUserMissing(t *testing.T) {
	store := datastore.NewMemory()
	blobs := newFakeBlobStore()
	svc := newTestIdentity(t, store, blobs)
	id := seedUser(t, store, "alice")

	user, err := svc.UpdateAvatar(context.Background(), id, upload("new-avatar.png"))
	if err != nil {
		t.Fatalf("update avatar: %v", err)
	}
	if user.AvatarURL != blobs.stored[0].URL {
		t.Fatalf("avatar URL %q, want %q", user.AvatarURL, blobs.stored[0].URL)
	}

	_, err = svc.UpdateAvatar(context.Background(), store.NewID(), upload("stray.png"))
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != blobs.stored[1].Key {
		t.Fatalf("orphaned avatar not compensated: stored=%v deleted=%v", blobs.stored, blobs.deleted)
	}
}
