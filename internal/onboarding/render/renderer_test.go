package render

import (
	"strings"
	"testing"
)

func TestNewPrinterRendersEnglish(t *testing.T) {
	t.Parallel()

	loc := NewPrinter("en-US")

	got := SecretRetryNotice(loc, 2)
	if !strings.Contains(got, "2") {
		t.Fatalf("expected remaining count in %q", got)
	}
	if got := SuccessNotice(loc, "Noor-Falcons", "Member"); !strings.Contains(got, "Noor-Falcons") || !strings.Contains(got, "Member") {
		t.Fatalf("expected nickname and role in %q", got)
	}
}

func TestNewPrinterRendersArabic(t *testing.T) {
	t.Parallel()

	loc := NewPrinter("ar")

	got := InvalidNameNotice(loc)
	if got != "الرجاء إدخال اسم صالح." {
		t.Fatalf("expected Arabic copy, got %q", got)
	}
	if got := TeamPrompt(loc); got != "تمام! الآن اكتب اسم الفريق." {
		t.Fatalf("expected Arabic team prompt, got %q", got)
	}
}

func TestNewPrinterFallsBackToEnglish(t *testing.T) {
	t.Parallel()

	unknown := NewPrinter("zz-ZZ")
	english := NewPrinter("en")

	if got, want := SecretPrompt(unknown), SecretPrompt(english); got != want {
		t.Fatalf("expected English fallback %q, got %q", want, got)
	}

	invalid := NewPrinter("not a locale!!")
	if got, want := SecretPrompt(invalid), SecretPrompt(english); got != want {
		t.Fatalf("expected English fallback for invalid locale, got %q", got)
	}
}

func TestPermissionNoticesAreDistinct(t *testing.T) {
	t.Parallel()

	loc := NewPrinter("en")

	if NicknameDeniedNotice(loc) == RoleDeniedNotice(loc) {
		t.Fatal("nickname and role denial copy must be distinguishable")
	}
	if NicknameFailedNotice(loc) == RoleFailedNotice(loc) {
		t.Fatal("nickname and role failure copy must be distinguishable")
	}
}
