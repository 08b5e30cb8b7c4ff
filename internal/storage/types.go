package storage

import (
	"errors"
	"time"
)

var (
	// ErrConflict reports a uniqueness-constraint violation (duplicate
	// application, report, or ban).
	ErrConflict = errors.New("storage: conflict")

	// ErrNotFound reports a row that does not (or no longer) exists.
	ErrNotFound = errors.New("storage: not found")
)

// Config configures the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// RoleKind is a capability slot that external role ids can be bound to.
type RoleKind string

const (
	RoleModerator       RoleKind = "moderator"
	RoleCreator         RoleKind = "creator"
	RoleApplicant       RoleKind = "applicant"
	RoleDirectApplicant RoleKind = "direct_applicant"
)

// Category is a named routing group.
type Category struct {
	ID          string
	Name        string
	ApproveMode bool
}

// ChannelBinding associates one channel with a category, either as a
// posting target or a report/moderation destination.
type ChannelBinding struct {
	CategoryID string
	ChannelID  string
}

// ChannelPolicy overrides posting expiry and cooldown for one origin
// channel. Nil fields mean "system default applies".
type ChannelPolicy struct {
	ChannelID    string
	ExpiryDays   *int64
	CooldownDays *int64
}

// Ban blocks a user in one scope. ScopeID is a guild id or a category id
// depending on the table the ban lives in.
type Ban struct {
	ScopeID  string
	UserID   string
	BannedAt time.Time
	BannedBy string
	Reason   string
}

// GigStatus is persisted as text; the typed state machine lives in the gig
// package. Stored values: "pending", "approved".
type GigStatus string

const (
	GigPending  GigStatus = "pending"
	GigApproved GigStatus = "approved"
)

// Gig is the logical posting record.
type Gig struct {
	ID         string
	AuthorID   string
	CategoryID string // empty for legacy/uncategorized gigs
	OriginID   string // channel the gig was created in
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Status     GigStatus
}

// Payload is the immutable content of a gig, stored separately from the
// lifecycle record.
type Payload struct {
	GigID       string
	Title       string
	Description string
	Pay         string
	Timeline    string
}

// Instance is one physical replica of an approved gig in one destination
// channel, keyed by the platform-assigned message id.
type Instance struct {
	MessageID string
	GigID     string
	GuildID   string
	ChannelID string
	CreatedAt time.Time
}

// CleanupLogEntry is one audit row per sweep run.
type CleanupLogEntry struct {
	RunAt            time.Time
	DeletedGigs      int64
	DeletedInstances int64
}
