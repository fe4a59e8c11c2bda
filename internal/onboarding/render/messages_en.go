package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "onboarding.prompt.secret", "Welcome! Write the access code to start your verification.")
	message.SetString(lang, "onboarding.notice.secret_retry", "That code is not right. Attempts remaining: %d.")
	message.SetString(lang, "onboarding.notice.secret_exhausted", "Too many failed attempts. Ask a moderator if you need to try again.")
	message.SetString(lang, "onboarding.prompt.name", "Correct! Now write the name you want shown in the server (without team).")
	message.SetString(lang, "onboarding.prompt.verified_name", "Verified ✅ Write the name you want shown in the server (without team).")
	message.SetString(lang, "onboarding.prompt.command_start", "Go ahead, write your name (without team).")
	message.SetString(lang, "onboarding.prompt.name_invalid", "Please enter a valid name.")
	message.SetString(lang, "onboarding.prompt.team", "Great! Now write your team name.")
	message.SetString(lang, "onboarding.prompt.team_invalid", "Please enter a valid team name.")
	message.SetString(lang, "onboarding.notice.success", "Your name is set: **%s** and you now have the **%s** role ✅")
	message.SetString(lang, "onboarding.notice.nickname_denied", "⚠️ I can't change nicknames. Ask an admin to raise the bot's role above members and enable **Manage Nicknames**.")
	message.SetString(lang, "onboarding.notice.nickname_failed", "An unexpected error happened while changing your name.")
	message.SetString(lang, "onboarding.notice.role_denied", "⚠️ I can't grant roles. Ask an admin to check the bot's **Manage Roles** permission and role order.")
	message.SetString(lang, "onboarding.notice.role_failed", "An unexpected error happened while granting your role.")
}
