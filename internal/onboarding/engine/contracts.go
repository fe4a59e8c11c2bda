package engine

import (
	"context"
	"errors"
)

// EventKind discriminates inbound platform events. Whether a message is a
// flow trigger or stage input is resolved against the session store, so the
// dispatcher only distinguishes messages from membership signals.
type EventKind int

const (
	// KindMessage is a member message on some conversational surface.
	KindMessage EventKind = iota + 1
	// KindRoleAdded signals roles were added to a member outside this
	// service, e.g. by an administrator.
	KindRoleAdded
	// KindMemberJoin signals a member joined the community.
	KindMemberJoin
)

// Event is one inbound platform event routed to the engine.
type Event struct {
	Kind      EventKind
	SubjectID string
	SurfaceID string
	MessageID string
	Content   string
	// AddedRoleNames lists role names added to the subject, for
	// KindRoleAdded events.
	AddedRoleNames []string
}

// RoleRef identifies a resolved guild role.
type RoleRef struct {
	ID   string
	Name string
}

// MessageRef identifies a message the notifier produced.
type MessageRef struct {
	SurfaceID string
	MessageID string
}

// ErrPermissionDenied marks a privileged platform mutation the bot is not
// allowed to perform. Directory and Notifier implementations wrap it so the
// engine can report administrator-actionable guidance; any other error is
// treated as transient.
var ErrPermissionDenied = errors.New("permission denied")

// Directory accesses the community's membership and role state. All calls
// are bounded and fallible; permission denials wrap ErrPermissionDenied.
type Directory interface {
	// EnsureRole resolves the named role, creating it when missing.
	EnsureRole(ctx context.Context, guildID, name string) (RoleRef, error)
	// GrantRole adds the role to the subject's membership.
	GrantRole(ctx context.Context, subjectID string, role RoleRef) error
	// SetNickname replaces the subject's guild display name.
	SetNickname(ctx context.Context, subjectID, nickname string) error
	// SubjectHasRole reports whether the subject currently holds the role.
	SubjectHasRole(ctx context.Context, subjectID string, role RoleRef) (bool, error)
}

// Notifier sends dialogue copy and controls conversational surfaces.
type Notifier interface {
	Send(ctx context.Context, surfaceID, text string) (MessageRef, error)
	DeleteMessage(ctx context.Context, ref MessageRef) error
	// CreateIsolatedSurface opens an invitee-only thread under the parent
	// surface, visible to the subject and privileged parties only.
	CreateIsolatedSurface(ctx context.Context, parentSurfaceID, subjectID string) (string, error)
	// ArchiveSurface archives and locks a thread surface.
	ArchiveSurface(ctx context.Context, surfaceID string) error
	// Mention renders an addressable mention for the subject, or "" when
	// the transport has no mention syntax.
	Mention(subjectID string) string
}

// Redactor deletes a member's raw input message after the engine consumed
// it. Best effort: implementations swallow failures.
type Redactor interface {
	DeleteOriginatingMessage(ctx context.Context, ev Event)
}
