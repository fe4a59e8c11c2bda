// Package render produces localized user-facing copy for the onboarding
// dialogue. Message catalogs are registered per locale in messages_*.go.
package render

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Localizer is the minimal message-printer contract required by the engine.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

var supportedLocales = []language.Tag{
	language.English,
	language.Arabic,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// NewPrinter returns a message printer for the requested locale, falling
// back to English when the locale is unknown or unsupported.
func NewPrinter(locale string) *message.Printer {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return message.NewPrinter(language.English)
	}
	matched, _, _ := localeMatcher.Match(tag)
	return message.NewPrinter(matched)
}

// SecretPrompt asks the member for the shared access secret.
func SecretPrompt(loc Localizer) string {
	return loc.Sprintf("onboarding.prompt.secret")
}

// SecretRetryNotice tells the member the secret was wrong and how many
// attempts remain.
func SecretRetryNotice(loc Localizer, remaining int) string {
	return loc.Sprintf("onboarding.notice.secret_retry", remaining)
}

// SecretExhaustedNotice tells the member the attempt budget is spent.
func SecretExhaustedNotice(loc Localizer) string {
	return loc.Sprintf("onboarding.notice.secret_exhausted")
}

// NamePrompt asks for the display name after a successful secret check.
func NamePrompt(loc Localizer) string {
	return loc.Sprintf("onboarding.prompt.name")
}

// VerifiedNamePrompt greets an externally verified member and asks for their
// display name.
func VerifiedNamePrompt(loc Localizer) string {
	return loc.Sprintf("onboarding.prompt.verified_name")
}

// CommandStartPrompt acknowledges the manual nickname command.
func CommandStartPrompt(loc Localizer) string {
	return loc.Sprintf("onboarding.prompt.command_start")
}

// InvalidNameNotice re-prompts after an empty or unusable name.
func InvalidNameNotice(loc Localizer) string {
	return loc.Sprintf("onboarding.prompt.name_invalid")
}

// TeamPrompt asks for the team affiliation.
func TeamPrompt(loc Localizer) string {
	return loc.Sprintf("onboarding.prompt.team")
}

// InvalidTeamNotice re-prompts after an empty or unusable team.
func InvalidTeamNotice(loc Localizer) string {
	return loc.Sprintf("onboarding.prompt.team_invalid")
}

// SuccessNotice confirms the composed nickname and granted role.
func SuccessNotice(loc Localizer, nickname, role string) string {
	return loc.Sprintf("onboarding.notice.success", nickname, role)
}

// NicknameDeniedNotice reports a nickname permission failure with
// administrator-actionable guidance.
func NicknameDeniedNotice(loc Localizer) string {
	return loc.Sprintf("onboarding.notice.nickname_denied")
}

// NicknameFailedNotice reports an unexpected nickname failure.
func NicknameFailedNotice(loc Localizer) string {
	return loc.Sprintf("onboarding.notice.nickname_failed")
}

// RoleDeniedNotice reports a role-grant permission failure with
// administrator-actionable guidance.
func RoleDeniedNotice(loc Localizer) string {
	return loc.Sprintf("onboarding.notice.role_denied")
}

// RoleFailedNotice reports an unexpected role-grant failure.
func RoleFailedNotice(loc Localizer) string {
	return loc.Sprintf("onboarding.notice.role_failed")
}
