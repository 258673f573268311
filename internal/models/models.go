package models

import "time"

// User represents an account within the VidTube platform. PasswordHash and
// RefreshToken never leave the service layer; use Public for outward views.
type User struct {
	ID            string
	Username      string
	Email         string
	Fullname      string
	PasswordHash  string
	AvatarURL     string
	CoverImageURL string
	WatchHistory  []string
	RefreshToken  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Public strips the credential fields from the user record.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Fullname:      u.Fullname,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// PublicUser is the outward projection of a user record.
type PublicUser struct {
	ID            string
	Username      string
	Email         string
	Fullname      string
	AvatarURL     string
	CoverImageURL string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tweet is a short text post owned by a single user.
type Tweet struct {
	ID        string
	OwnerID   string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TweetSummary is the projected row returned by owner listings.
type TweetSummary struct {
	ID      string
	OwnerID string
	Content string
}

// Video stores the metadata and blob references for an uploaded video.
type Video struct {
	ID           string
	OwnerID      string
	VideoFileURL string
	ThumbnailURL string
	Title        string
	Description  string
	Duration     float64
	IsPublished  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subscription is a directed edge meaning the subscriber follows the channel.
type Subscription struct {
	ID           string
	ChannelID    string
	SubscriberID string
	CreatedAt    time.Time
}

// ChannelProfile is the aggregated view of a user's channel for a viewer.
type ChannelProfile struct {
	ID                string
	Fullname          string
	Username          string
	Email             string
	AvatarURL         string
	CoverImageURL     string
	SubscribersCount  int
	SubscribedToCount int
	IsSubscribed      bool
}

// OwnerSummary is the minimal owner projection embedded in watch history rows.
type OwnerSummary struct {
	ID        string
	Fullname  string
	Username  string
	AvatarURL string
}

// VideoWithOwner pairs a watched video with its owner's summary.
type VideoWithOwner struct {
	Video
	Owner OwnerSummary
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
