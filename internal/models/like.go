package models

import "time"

// TargetKind names the kind of entity a like points at.
type TargetKind string

const (
	TargetVideo   TargetKind = "video"
	TargetComment TargetKind = "comment"
	TargetTweet   TargetKind = "tweet"
)

// LikeTarget references exactly one likeable entity. The zero value is
// invalid; use one of the constructors so the exactly-one-of constraint
// cannot be violated.
type LikeTarget struct {
	kind TargetKind
	id   string
}

// VideoTarget references a video.
func VideoTarget(id string) LikeTarget { return LikeTarget{kind: TargetVideo, id: id} }

// CommentTarget references a comment.
func CommentTarget(id string) LikeTarget { return LikeTarget{kind: TargetComment, id: id} }

// TweetTarget references a tweet.
func TweetTarget(id string) LikeTarget { return LikeTarget{kind: TargetTweet, id: id} }

// Kind returns the referenced entity kind.
func (t LikeTarget) Kind() TargetKind { return t.kind }

// ID returns the referenced entity id.
func (t LikeTarget) ID() string { return t.id }

// IsZero reports whether the target was never constructed.
func (t LikeTarget) IsZero() bool { return t.kind == "" || t.id == "" }

// Like records that a user liked a single video, comment, or tweet.
type Like struct {
	ID        string
	Target    LikeTarget
	LikedByID string
	CreatedAt time.Time
}
