package domain

import "strings"

// DefaultMaxNicknameLength is the platform's display-name length cap.
const DefaultMaxNicknameLength = 32

// ComposeNickname builds the "name-team" display string, shrinking the parts
// when the platform's length cap would be exceeded. The team half absorbs the
// overflow first; when it cannot, it is reduced to a single character and the
// name gives up the rest. Both halves keep at least one character when
// non-empty, and the result is hard-truncated to maxLength as a final safety
// net. The function never panics; it does not validate business rules such as
// name non-emptiness.
//
// Lengths are measured in runes so non-ASCII names shrink correctly.
func ComposeNickname(name, team string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}

	nameRunes := []rune(normalizeWhitespace(name))
	teamRunes := []rune(normalizeWhitespace(team))

	desired := joinNickname(nameRunes, teamRunes)
	if len([]rune(desired)) <= maxLength {
		return desired
	}

	if len(teamRunes) == 0 {
		return string(nameRunes[:maxLength])
	}

	// Overflow over the two halves alone; the joining hyphen claims the
	// remaining slot.
	overflow := len(nameRunes) + len(teamRunes) - maxLength
	if len(teamRunes) > overflow+1 {
		teamRunes = teamRunes[:len(teamRunes)-overflow-1]
	} else {
		residual := overflow + 1 - (len(teamRunes) - 1)
		teamRunes = teamRunes[:1]
		keep := len(nameRunes) - residual
		if keep < 1 {
			keep = 1
		}
		if keep > len(nameRunes) {
			keep = len(nameRunes)
		}
		nameRunes = nameRunes[:keep]
	}

	joined := []rune(joinNickname(nameRunes, teamRunes))
	if len(joined) > maxLength {
		joined = joined[:maxLength]
	}
	return string(joined)
}

func joinNickname(name, team []rune) string {
	if len(team) == 0 {
		return string(name)
	}
	return string(name) + "-" + string(team)
}

// normalizeWhitespace collapses internal whitespace runs to a single space
// and trims the ends.
func normalizeWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
