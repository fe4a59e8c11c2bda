// Package gatehouse parses service configuration and starts the onboarding
// runtime: the gateway consumer, the session engine, and the ops server.
package gatehouse

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/gatehouse/internal/audit"
	auditsqlite "github.com/louisbranch/gatehouse/internal/audit/sqlite"
	"github.com/louisbranch/gatehouse/internal/chatgateway"
	"github.com/louisbranch/gatehouse/internal/onboarding/engine"
	"github.com/louisbranch/gatehouse/internal/onboarding/render"
	"github.com/louisbranch/gatehouse/internal/onboarding/store"
	"github.com/louisbranch/gatehouse/internal/ops"
	entrypoint "github.com/louisbranch/gatehouse/internal/platform/cmd"
)

// Config holds gatehouse service configuration.
type Config struct {
	BotToken  string `env:"GATEHOUSE_BOT_TOKEN"`
	BotID     string `env:"GATEHOUSE_BOT_ID"`
	AppID     string `env:"GATEHOUSE_APP_ID"`
	AppSecret string `env:"GATEHOUSE_APP_SECRET"`

	APIBaseURL string `env:"GATEHOUSE_API_BASE_URL" envDefault:"https://discord.com/api/v10"`
	GatewayURL string `env:"GATEHOUSE_GATEWAY_URL" envDefault:"wss://gateway.discord.gg/?v=10&encoding=json"`

	GuildID         string `env:"GATEHOUSE_GUILD_ID"`
	VerifyChannelID string `env:"GATEHOUSE_VERIFY_CHANNEL_ID"`

	TriggerPhrase     string        `env:"GATEHOUSE_TRIGGER_PHRASE" envDefault:"verify me"`
	CommandPhrase     string        `env:"GATEHOUSE_COMMAND_PHRASE" envDefault:"!setnick"`
	Secret            string        `env:"GATEHOUSE_SECRET"`
	MaxAttempts       int           `env:"GATEHOUSE_MAX_ATTEMPTS" envDefault:"3"`
	AccessRoleName    string        `env:"GATEHOUSE_ACCESS_ROLE" envDefault:"Member"`
	VerifiedRoleName  string        `env:"GATEHOUSE_VERIFIED_ROLE" envDefault:"Verified"`
	MaxNicknameLength int           `env:"GATEHOUSE_MAX_NICKNAME_LENGTH" envDefault:"32"`
	ConfirmationDelay time.Duration `env:"GATEHOUSE_CONFIRMATION_DELAY" envDefault:"10s"`
	IsolateThreads    bool          `env:"GATEHOUSE_ISOLATE_THREADS"`
	StartOnJoin       bool          `env:"GATEHOUSE_START_ON_JOIN"`
	SessionTTL        time.Duration `env:"GATEHOUSE_SESSION_TTL" envDefault:"30m"`
	Locale            string        `env:"GATEHOUSE_LOCALE" envDefault:"en"`

	OpsAddr     string `env:"GATEHOUSE_OPS_ADDR" envDefault:":8090"`
	AuditDBPath string `env:"GATEHOUSE_AUDIT_DB_PATH"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.GuildID, "guild", cfg.GuildID, "The guild id to onboard members into")
	fs.StringVar(&cfg.VerifyChannelID, "verify-channel", cfg.VerifyChannelID, "The channel id where verification starts")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "The dialogue locale, e.g. en or ar")
	fs.StringVar(&cfg.OpsAddr, "ops-addr", cfg.OpsAddr, "The ops gRPC listen address")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration is complete enough to start.
func (cfg Config) Validate() error {
	if cfg.BotToken == "" && (cfg.AppID == "" || cfg.AppSecret == "") {
		return errors.New("either GATEHOUSE_BOT_TOKEN or GATEHOUSE_APP_ID and GATEHOUSE_APP_SECRET are required")
	}
	if cfg.GuildID == "" {
		return errors.New("GATEHOUSE_GUILD_ID is required")
	}
	if cfg.Secret == "" {
		return errors.New("GATEHOUSE_SECRET is required")
	}
	return nil
}

// Run starts the gatehouse service until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGatehouse, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	var tokens chatgateway.TokenSource
	if cfg.BotToken != "" {
		tokens = chatgateway.StaticToken(cfg.BotToken)
	} else {
		tokens = chatgateway.NewAppCredentials(cfg.AppID, cfg.AppSecret, 0)
	}

	client := chatgateway.NewClient(chatgateway.Config{
		BaseURL: cfg.APIBaseURL,
		GuildID: cfg.GuildID,
		Tokens:  tokens,
	})

	var recorder *audit.Recorder
	if cfg.AuditDBPath != "" {
		auditStore, err := auditsqlite.Open(cfg.AuditDBPath)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer func() {
			if err := auditStore.Close(); err != nil {
				log.Printf("gatehouse: close audit store: %v", err)
			}
		}()
		recorder = audit.NewRecorder(auditStore)
	}

	sessions := store.New(cfg.SessionTTL)
	eng := engine.New(engine.Config{
		GuildID:           cfg.GuildID,
		VerifyChannelID:   cfg.VerifyChannelID,
		TriggerPhrase:     cfg.TriggerPhrase,
		CommandPhrase:     cfg.CommandPhrase,
		Secret:            cfg.Secret,
		MaxAttempts:       cfg.MaxAttempts,
		AccessRoleName:    cfg.AccessRoleName,
		VerifiedRoleName:  cfg.VerifiedRoleName,
		MaxNicknameLength: cfg.MaxNicknameLength,
		ConfirmationDelay: cfg.ConfirmationDelay,
		IsolateThreads:    cfg.IsolateThreads,
		StartOnJoin:       cfg.StartOnJoin,
	}, sessions, client, client, client, render.NewPrinter(cfg.Locale), recorder)

	opsServer, err := ops.New(cfg.OpsAddr)
	if err != nil {
		return fmt.Errorf("start ops server: %w", err)
	}
	// Health follows the gateway link: not serving until the stream is up.
	opsServer.SetNotServing()

	gateway := chatgateway.NewGateway(chatgateway.GatewayConfig{
		URL:          cfg.GatewayURL,
		Tokens:       tokens,
		BotID:        cfg.BotID,
		Handler:      eng.HandleEvent,
		RoleNames:    client.RoleNames,
		OnConnect:    opsServer.SetServing,
		OnDisconnect: opsServer.SetNotServing,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- opsServer.Serve(runCtx)
	}()
	go func() {
		errCh <- gateway.Run(runCtx)
	}()

	err = <-errCh
	cancel()
	<-errCh
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
