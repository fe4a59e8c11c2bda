package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Arabic

	message.SetString(lang, "onboarding.prompt.secret", "أهلًا! اكتب رمز الدخول لبدء التحقّق.")
	message.SetString(lang, "onboarding.notice.secret_retry", "الرمز غير صحيح. المحاولات المتبقية: %d.")
	message.SetString(lang, "onboarding.notice.secret_exhausted", "تجاوزت عدد المحاولات المسموح. تواصل مع المشرفين إذا أردت المحاولة مجددًا.")
	message.SetString(lang, "onboarding.prompt.name", "صحيح! الآن اكتب اسمك الذي تريد ظهوره في السيرفر (بدون فريق).")
	message.SetString(lang, "onboarding.prompt.verified_name", "تم التحقّق ✅ اكتب اسمك الذي تريد ظهوره في السيرفر (بدون فريق).")
	message.SetString(lang, "onboarding.prompt.command_start", "ابدأ، اكتب اسمك (بدون فريق).")
	message.SetString(lang, "onboarding.prompt.name_invalid", "الرجاء إدخال اسم صالح.")
	message.SetString(lang, "onboarding.prompt.team", "تمام! الآن اكتب اسم الفريق.")
	message.SetString(lang, "onboarding.prompt.team_invalid", "الرجاء إدخال اسم فريق صالح.")
	message.SetString(lang, "onboarding.notice.success", "تم ضبط اسمك: **%s** ومنحتك رتبة **%s** ✅")
	message.SetString(lang, "onboarding.notice.nickname_denied", "⚠️ لا أستطيع تغيير الأسماء المستعارة. رجاءً ارفع رتبة البوت فوق الأعضاء وتأكد من تفعيل **Manage Nicknames**.")
	message.SetString(lang, "onboarding.notice.nickname_failed", "حدث خطأ غير متوقع أثناء تغيير الاسم.")
	message.SetString(lang, "onboarding.notice.role_denied", "⚠️ لا أستطيع منح الرتب. رجاءً تأكد من صلاحية **Manage Roles** للبوت وترتيب الرتب.")
	message.SetString(lang, "onboarding.notice.role_failed", "حدث خطأ غير متوقع أثناء منح الرتبة.")
}
