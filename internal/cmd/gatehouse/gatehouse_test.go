package gatehouse

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("gatehouse", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.TriggerPhrase != "verify me" {
		t.Fatalf("expected default trigger phrase, got %q", cfg.TriggerPhrase)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.MaxNicknameLength != 32 {
		t.Fatalf("expected nickname limit 32, got %d", cfg.MaxNicknameLength)
	}
	if cfg.ConfirmationDelay != 10*time.Second {
		t.Fatalf("expected 10s confirmation delay, got %v", cfg.ConfirmationDelay)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected 30m session ttl, got %v", cfg.SessionTTL)
	}
	if cfg.Locale != "en" {
		t.Fatalf("expected default locale en, got %q", cfg.Locale)
	}
	if cfg.OpsAddr != ":8090" {
		t.Fatalf("expected default ops addr, got %q", cfg.OpsAddr)
	}
}

func TestParseConfigEnvironment(t *testing.T) {
	t.Setenv("GATEHOUSE_GUILD_ID", "guild-9")
	t.Setenv("GATEHOUSE_SECRET", "sesame")
	t.Setenv("GATEHOUSE_ISOLATE_THREADS", "true")
	t.Setenv("GATEHOUSE_SESSION_TTL", "1h")

	fs := flag.NewFlagSet("gatehouse", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.GuildID != "guild-9" {
		t.Fatalf("expected guild from environment, got %q", cfg.GuildID)
	}
	if cfg.Secret != "sesame" {
		t.Fatalf("expected secret from environment, got %q", cfg.Secret)
	}
	if !cfg.IsolateThreads {
		t.Fatal("expected thread isolation enabled")
	}
	if cfg.SessionTTL != time.Hour {
		t.Fatalf("expected 1h session ttl, got %v", cfg.SessionTTL)
	}
}

func TestParseConfigFlagOverrides(t *testing.T) {
	t.Setenv("GATEHOUSE_VERIFY_CHANNEL_ID", "chan-env")

	fs := flag.NewFlagSet("gatehouse", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-verify-channel", "chan-flag", "-ops-addr", "127.0.0.1:7001"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.VerifyChannelID != "chan-flag" {
		t.Fatalf("expected flag to override environment, got %q", cfg.VerifyChannelID)
	}
	if cfg.OpsAddr != "127.0.0.1:7001" {
		t.Fatalf("expected ops addr override, got %q", cfg.OpsAddr)
	}
}

func TestValidateRequiresCredentials(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "missing everything",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name:    "bot token without guild",
			cfg:     Config{BotToken: "token", Secret: "s"},
			wantErr: true,
		},
		{
			name:    "bot token complete",
			cfg:     Config{BotToken: "token", GuildID: "g", Secret: "s"},
			wantErr: false,
		},
		{
			name:    "app credentials complete",
			cfg:     Config{AppID: "app", AppSecret: "key", GuildID: "g", Secret: "s"},
			wantErr: false,
		},
		{
			name:    "app id without secret",
			cfg:     Config{AppID: "app", GuildID: "g", Secret: "s"},
			wantErr: true,
		},
		{
			name:    "missing onboarding secret",
			cfg:     Config{BotToken: "token", GuildID: "g"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
