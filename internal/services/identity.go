package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/datastore"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/storage"
)

// Identity orchestrates registration, credential verification, and the
// session token lifecycle.
type Identity struct {
	store    datastore.Datastore
	blobs    storage.BlobStore
	tokens   *auth.TokenManager
	hasher   auth.PasswordHasher
	throttle *auth.LoginThrottle
	now      func() time.Time
}

// NewIdentity wires the identity service. The throttle may be nil, in which
// case login attempts are not rate limited.
func NewIdentity(store datastore.Datastore, blobs storage.BlobStore, tokens *auth.TokenManager, hasher auth.PasswordHasher, throttle *auth.LoginThrottle) *Identity {
	return &Identity{
		store:    store,
		blobs:    blobs,
		tokens:   tokens,
		hasher:   hasher,
		throttle: throttle,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithNowFunc overrides the time source. Useful for tests.
func (s *Identity) WithNowFunc(now func() time.Time) *Identity {
	s.now = now
	return s
}

// RegisterInput carries the fields and media for a new account.
type RegisterInput struct {
	Fullname string
	Email    string
	Username string
	Password string
	Avatar   storage.Upload
	Cover    *storage.Upload
}

// LoginResult pairs the authenticated user with their freshly issued tokens.
type LoginResult struct {
	User   models.PublicUser
	Tokens models.SessionTokens
}

// Register creates a new account. The avatar upload is mandatory and happens
// before the user document is written; if persistence fails, the uploaded
// blobs are deleted best-effort and the original failure is surfaced.
func (s *Identity) Register(ctx context.Context, input RegisterInput) (models.PublicUser, error) {
	fullname := strings.TrimSpace(input.Fullname)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.ToLower(strings.TrimSpace(input.Username))
	password := strings.TrimSpace(input.Password)

	if fullname == "" || email == "" || username == "" || password == "" {
		return models.PublicUser{}, apperr.New(apperr.BadRequest, "all fields are required")
	}
	if len(input.Avatar.Data) == 0 {
		return models.PublicUser{}, apperr.New(apperr.BadRequest, "avatar is required")
	}

	users := s.store.Collection(datastore.Users)

	for _, filter := range []datastore.Filter{{"username": username}, {"email": email}} {
		_, err := users.FindOne(ctx, filter)
		switch {
		case err == nil:
			return models.PublicUser{}, apperr.New(apperr.Conflict, "user already exists")
		case !errors.Is(err, datastore.ErrNotFound):
			return models.PublicUser{}, apperr.Wrap(apperr.Internal, "failed to check existing users", err)
		}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.PublicUser{}, apperr.Wrap(apperr.Internal, "failed to secure password", err)
	}

	avatar, err := s.blobs.Store(ctx, input.Avatar)
	if err != nil {
		return models.PublicUser{}, apperr.Wrap(apperr.Internal, "failed to upload avatar", err)
	}
	uploaded := []storage.Blob{avatar}

	var cover storage.Blob
	if input.Cover != nil && len(input.Cover.Data) > 0 {
		cover, err = s.blobs.Store(ctx, *input.Cover)
		if err != nil {
			cleanupBlobs(ctx, s.blobs, uploaded)
			return models.PublicUser{}, apperr.Wrap(apperr.Internal, "failed to upload cover image", err)
		}
		uploaded = append(uploaded, cover)
	}

	now := s.now()
	doc := datastore.Document{
		"username":     username,
		"email":        email,
		"fullname":     fullname,
		"password":     hash,
		"avatar":       avatar.URL,
		"coverImage":   cover.URL,
		"watchHistory": []string{},
		"refreshToken": "",
		"createdAt":    now,
		"updatedAt":    now,
	}

	id, err := users.Insert(ctx, doc)
	if err != nil {
		cleanupBlobs(ctx, s.blobs, uploaded)
		if errors.Is(err, datastore.ErrConflict) {
			return models.PublicUser{}, apperr.Wrap(apperr.Conflict, "user already exists", err)
		}
		return models.PublicUser{}, apperr.Wrap(apperr.Internal, "failed to register user", err)
	}

	doc["_id"] = id
	return userFromDoc(doc).Public(), nil
}

// Login verifies the credentials for an email or username identifier and
// rotates the stored refresh token before issuing a fresh pair.
func (s *Identity) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return LoginResult{}, apperr.New(apperr.BadRequest, "identifier and password are required")
	}

	if s.throttle != nil && !s.throttle.Allow(identifier) {
		return LoginResult{}, apperr.New(apperr.Unauthorized, "too many login attempts")
	}

	users := s.store.Collection(datastore.Users)

	doc, err := users.FindOne(ctx, datastore.Filter{"email": identifier})
	if errors.Is(err, datastore.ErrNotFound) {
		doc, err = users.FindOne(ctx, datastore.Filter{"username": identifier})
	}
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return LoginResult{}, apperr.New(apperr.NotFound, "user not found")
		}
		return LoginResult{}, apperr.Wrap(apperr.Internal, "failed to look up user", err)
	}

	user := userFromDoc(doc)
	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		return LoginResult{}, apperr.New(apperr.Unauthorized, "invalid credentials")
	}
	if s.throttle != nil {
		s.throttle.Forget(identifier)
	}

	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{User: user.Public(), Tokens: tokens}, nil
}

// Logout clears the stored refresh token. Calling it for an already
// logged-out user succeeds.
func (s *Identity) Logout(ctx context.Context, userID string) error {
	_, err := s.store.Collection(datastore.Users).UpdateByID(ctx, userID, datastore.Fields{
		"refreshToken": "",
		"updatedAt":    s.now(),
	})
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return apperr.New(apperr.NotFound, "user not found")
		}
		return apperr.Wrap(apperr.Internal, "failed to log out", err)
	}
	return nil
}

// Refresh exchanges a valid refresh token for a new access/refresh pair. The
// presented token must equal the stored one at swap time, so a superseded
// token can never be replayed; every failure surfaces as Unauthorized.
func (s *Identity) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	logger := logging.FromContext(ctx)

	claims, err := s.tokens.Verify(refreshToken, auth.KindRefresh)
	if err != nil {
		logger.Debug("refresh token rejected", "expired", errors.Is(err, auth.ErrTokenExpired))
		return models.SessionTokens{}, apperr.New(apperr.Unauthorized, "invalid refresh token")
	}

	users := s.store.Collection(datastore.Users)
	doc, err := users.FindByID(ctx, claims.UserID)
	if err != nil {
		return models.SessionTokens{}, apperr.New(apperr.Unauthorized, "invalid refresh token")
	}
	user := userFromDoc(doc)

	newRefresh, refreshExpiresAt, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return models.SessionTokens{}, apperr.Wrap(apperr.Internal, "failed to issue refresh token", err)
	}

	matched, err := users.UpdateOne(ctx,
		datastore.Filter{"_id": user.ID, "refreshToken": refreshToken},
		datastore.Fields{"refreshToken": newRefresh, "updatedAt": s.now()},
	)
	if err != nil {
		return models.SessionTokens{}, apperr.Wrap(apperr.Internal, "failed to rotate refresh token", err)
	}
	if !matched {
		return models.SessionTokens{}, apperr.New(apperr.Unauthorized, "invalid refresh token")
	}

	access, accessExpiresAt, err := s.tokens.IssueAccess(user)
	if err != nil {
		return models.SessionTokens{}, apperr.Wrap(apperr.Internal, "failed to issue access token", err)
	}

	return models.SessionTokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     newRefresh,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// Authenticate resolves an access token to its user record. This is the
// entry point the transport layer calls before touching any other service.
func (s *Identity) Authenticate(ctx context.Context, accessToken string) (models.PublicUser, error) {
	claims, err := s.tokens.Verify(accessToken, auth.KindAccess)
	if err != nil {
		return models.PublicUser{}, apperr.New(apperr.Unauthorized, "invalid access token")
	}
	return s.CurrentUser(ctx, claims.UserID)
}

// CurrentUser returns the public projection of the given user.
func (s *Identity) CurrentUser(ctx context.Context, userID string) (models.PublicUser, error) {
	doc, err := s.store.Collection(datastore.Users).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return models.PublicUser{}, apperr.New(apperr.NotFound, "user not found")
		}
		return models.PublicUser{}, apperr.Wrap(apperr.Internal, "failed to load user", err)
	}
	return userFromDoc(doc).Public(), nil
}

// ChangePassword verifies the old password and persists a new hash without
// touching unrelated fields.
func (s *Identity) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperr.New(apperr.BadRequest, "new password is required")
	}

	users := s.store.Collection(datastore.Users)
	doc, err := users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return apperr.New(apperr.NotFound, "user not found")
		}
		return apperr.Wrap(apperr.Internal, "failed to load user", err)
	}

	user := userFromDoc(doc)
	if err := s.hasher.Verify(oldPassword, user.PasswordHash); err != nil {
		return apperr.New(apperr.Unauthorized, "invalid old password")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to secure password", err)
	}

	if _, err := users.UpdateByID(ctx, userID, datastore.Fields{"password": hash, "updatedAt": s.now()}); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to update password", err)
	}
	return nil
}

// UpdateProfile replaces the fullname and email on the account.
func (s *Identity) UpdateProfile(ctx context.Context, userID, fullname, email string) (models.PublicUser, error) {
	fullname = strings.TrimSpace(fullname)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullname == "" || email == "" {
		return models.PublicUser{}, apperr.New(apperr.BadRequest, "fullname and email are required")
	}

	doc, err := s.store.Collection(datastore.Users).UpdateByID(ctx, userID, datastore.Fields{
		"fullname":  fullname,
		"email":     email,
		"updatedAt": s.now(),
	})
	if err != nil {
		switch {
		case errors.Is(err, datastore.ErrNotFound):
			return models.PublicUser{}, apperr.New(apperr.NotFound, "user not found")
		case errors.Is(err, datastore.ErrConflict):
			return models.PublicUser{}, apperr.Wrap(apperr.Conflict, "email already in use", err)
		default:
			return models.PublicUser{}, apperr.Wrap(apperr.Internal, "failed to update profile", err)
		}
	}
	return userFromDoc(doc).Public(), nil
}

// UpdateAvatar uploads a new avatar and sets it on the account. The previous
// blob is intentionally left in place.
func (s *Identity) UpdateAvatar(ctx context.Context, userID string, avatar storage.Upload) (models.PublicUser, error) {
	return s.updateImage(ctx, userID, avatar, "avatar")
}

// UpdateCoverImage uploads a new cover image and sets it on the account.
func (s *Identity) UpdateCoverImage(ctx context.Context, userID string, cover storage.Upload) (models.PublicUser, error) {
	return s.updateImage(ctx, userID, cover, "coverImage")
}

func (s *Identity) updateImage(ctx context.Context, userID string, upload storage.Upload, field string) (models.PublicUser, error) {
	if len(upload.Data) == 0 {
		return models.PublicUser{}, apperr.New(apperr.BadRequest, field+" is required")
	}

	blob, err := s.blobs.Store(ctx, upload)
	if err != nil {
		return models.PublicUser{}, apperr.Wrap(apperr.Internal, "failed to upload "+field, err)
	}

	doc, err := s.store.Collection(datastore.Users).UpdateByID(ctx, userID, datastore.Fields{
		field:       blob.URL,
		"updatedAt": s.now(),
	})
	if err != nil {
		cleanupBlobs(ctx, s.blobs, []storage.Blob{blob})
		if errors.Is(err, datastore.ErrNotFound) {
			return models.PublicUser{}, apperr.New(apperr.NotFound, "user not found")
		}
		return models.PublicUser{}, apperr.Wrap(apperr.Internal, "failed to update "+field, err)
	}
	return userFromDoc(doc).Public(), nil
}

func (s *Identity) issueSession(ctx context.Context, user models.User) (models.SessionTokens, error) {
	refresh, refreshExpiresAt, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return models.SessionTokens{}, apperr.Wrap(apperr.Internal, "failed to issue refresh token", err)
	}

	_, err = s.store.Collection(datastore.Users).UpdateByID(ctx, user.ID, datastore.Fields{
		"refreshToken": refresh,
		"updatedAt":    s.now(),
	})
	if err != nil {
		return models.SessionTokens{}, apperr.Wrap(apperr.Internal, "failed to store refresh token", err)
	}

	access, accessExpiresAt, err := s.tokens.IssueAccess(user)
	if err != nil {
		return models.SessionTokens{}, apperr.Wrap(apperr.Internal, "failed to issue access token", err)
	}

	return models.SessionTokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// cleanupBlobs is the best-effort compensating action after a failed
// multi-step write: failures are logged, never re-raised, so the original
// error keeps precedence.
func cleanupBlobs(ctx context.Context, store storage.BlobStore, blobs []storage.Blob) {
	logger := logging.FromContext(ctx)
	for _, blob := range blobs {
		if blob.Key == "" {
			continue
		}
		if err := store.Delete(ctx, blob.Key); err != nil {
			logger.Error("failed to delete orphaned blob", "key", blob.Key, "error", err)
		}
	}
}
