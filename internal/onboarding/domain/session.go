package domain

import (
	"errors"
	"strings"
	"time"
)

// Stage describes how far a member has progressed through the onboarding
// dialogue. Stages only ever advance; terminal outcomes remove the session
// instead of storing a final stage.
type Stage int

const (
	// StageUnspecified represents an invalid stage value.
	StageUnspecified Stage = iota
	// StageAwaitingSecret means the member must prove knowledge of the
	// shared access secret.
	StageAwaitingSecret
	// StageAwaitingName means the member must supply a display name.
	StageAwaitingName
	// StageAwaitingTeam means the member must supply a team affiliation.
	StageAwaitingTeam
)

// String returns a loggable stage name.
func (s Stage) String() string {
	switch s {
	case StageAwaitingSecret:
		return "awaiting-secret"
	case StageAwaitingName:
		return "awaiting-name"
	case StageAwaitingTeam:
		return "awaiting-team"
	default:
		return "unspecified"
	}
}

var (
	// ErrEmptySubjectID indicates a missing subject identifier.
	ErrEmptySubjectID = errors.New("subject id is required")
	// ErrEmptySurfaceID indicates a missing bound surface identifier.
	ErrEmptySurfaceID = errors.New("surface id is required")
	// ErrInvalidStartStage indicates a session creation with a stage that is
	// not a valid entry point.
	ErrInvalidStartStage = errors.New("sessions start at awaiting-secret or awaiting-name")
	// ErrInvalidTransition indicates a stage advance that is not permitted
	// from the session's current stage.
	ErrInvalidTransition = errors.New("invalid stage transition")
	// ErrEmptyName indicates a name input that stripped down to nothing.
	ErrEmptyName = errors.New("name is required")
	// ErrEmptyTeam indicates a team input that stripped down to nothing.
	ErrEmptyTeam = errors.New("team is required")
)

// Session tracks one member's progress through the onboarding dialogue.
// A subject has at most one live session; it is bound to the conversational
// surface it started on and rejects input from anywhere else.
type Session struct {
	SubjectID         string
	SurfaceID         string
	Stage             Stage
	AttemptsRemaining int
	CollectedName     string
	CollectedTeam     string
	CreatedAt         time.Time
}

// NewSession creates a session for subjectID bound to surfaceID. The entry
// stage is StageAwaitingSecret for the full verification flow or
// StageAwaitingName for the nickname-only flow.
func NewSession(subjectID, surfaceID string, stage Stage, maxAttempts int, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return Session{}, ErrEmptySubjectID
	}
	surfaceID = strings.TrimSpace(surfaceID)
	if surfaceID == "" {
		return Session{}, ErrEmptySurfaceID
	}
	if stage != StageAwaitingSecret && stage != StageAwaitingName {
		return Session{}, ErrInvalidStartStage
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Session{
		SubjectID:         subjectID,
		SurfaceID:         surfaceID,
		Stage:             stage,
		AttemptsRemaining: maxAttempts,
		CreatedAt:         now().UTC(),
	}, nil
}

// Expired reports whether the session is older than ttl. A non-positive ttl
// disables expiry.
func (s Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.CreatedAt) > ttl
}

// BoundTo reports whether an input event on surfaceID belongs to this session.
func (s Session) BoundTo(surfaceID string) bool {
	return s.SurfaceID == surfaceID
}

// WithSecretAccepted advances the session past the secret challenge.
func (s Session) WithSecretAccepted() (Session, error) {
	if s.Stage != StageAwaitingSecret {
		return Session{}, ErrInvalidTransition
	}
	s.Stage = StageAwaitingName
	return s, nil
}

// WithFailedAttempt consumes one secret attempt. The returned bool reports
// whether the attempt budget is exhausted. AttemptsRemaining never goes
// negative.
func (s Session) WithFailedAttempt() (Session, bool) {
	if s.AttemptsRemaining > 0 {
		s.AttemptsRemaining--
	}
	return s, s.AttemptsRemaining == 0
}

// WithName records the collected display name and advances to the team stage.
func (s Session) WithName(name string) (Session, error) {
	if s.Stage != StageAwaitingName {
		return Session{}, ErrInvalidTransition
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, ErrEmptyName
	}
	s.CollectedName = name
	s.Stage = StageAwaitingTeam
	return s, nil
}

// WithTeam records the collected team affiliation. The caller completes the
// session afterwards; there is no stored terminal stage.
func (s Session) WithTeam(team string) (Session, error) {
	if s.Stage != StageAwaitingTeam {
		return Session{}, ErrInvalidTransition
	}
	team = strings.TrimSpace(team)
	if team == "" {
		return Session{}, ErrEmptyTeam
	}
	s.CollectedTeam = team
	return s, nil
}

// StripHandle removes leading @ characters and surrounding whitespace from
// raw member input. Members habitually type @name when prompted.
func StripHandle(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimLeft(trimmed, "@")
	return strings.TrimSpace(trimmed)
}
