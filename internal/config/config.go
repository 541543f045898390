// Package config provides configuration loading and state-directory paths.
//
// Configuration is a TOML file at <home>/config.toml with CLAWLINK_*
// environment overrides for the secrets an operator would rather not keep on
// disk. Missing or malformed transport credentials are a fatal startup error:
// a relay that silently drops a transport strands the operator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/clawplaza/clawlink/internal/constants"
)

// Config is the full operator configuration.
type Config struct {
	Relay    RelayConfig    `toml:"relay"`
	Prompt   PromptConfig   `toml:"prompt"`
	Injector InjectorConfig `toml:"injector"`
	Mail     MailConfig     `toml:"mail"`
	Line     LineConfig     `toml:"line"`
	Telegram TelegramConfig `toml:"telegram"`
}

// RelayConfig describes the pane the relay drives.
type RelayConfig struct {
	// Pane is the tmux session name running the assistant.
	Pane string `toml:"pane"`

	// Project is a free-form label echoed back in notifications.
	Project string `toml:"project"`

	// WorkDir is where a bootstrapped pane starts the assistant.
	WorkDir string `toml:"workdir"`

	// AssistantCmd starts the assistant in a fresh pane. Permission-skipping
	// flags belong here; the injector answers the confirmation dialog once.
	AssistantCmd string `toml:"assistant_cmd"`

	// AssistantFallback is tried once if AssistantCmd fails to start,
	// typically an absolute-path invocation.
	AssistantFallback string `toml:"assistant_fallback"`
}

// PromptPolicy selects how the injector answers multi-option consent prompts.
type PromptPolicy string

const (
	// PromptPermissive answers "2. Yes, and don't ask again" so the session
	// runs unattended.
	PromptPermissive PromptPolicy = "permissive"

	// PromptConservative answers "1. Yes" so every action keeps prompting.
	PromptConservative PromptPolicy = "conservative"
)

// PromptConfig holds the consent-prompt policy.
type PromptConfig struct {
	Default PromptPolicy `toml:"default"`
}

// InjectorMode selects the delivery backend.
type InjectorMode string

const (
	// InjectTmux drives a live tmux pane (the normal mode).
	InjectTmux InjectorMode = "tmux"

	// InjectDrop writes commands to the drop folder for an external shim.
	// Degraded mode for hosts without tmux.
	InjectDrop InjectorMode = "drop"
)

// InjectorConfig holds injector selection.
type InjectorConfig struct {
	Mode InjectorMode `toml:"mode"`
}

// MailConfig configures the email transport.
type MailConfig struct {
	Enabled bool `toml:"enabled"`

	IMAPHost   string `toml:"imap_host"`
	IMAPPort   int    `toml:"imap_port"`
	IMAPUser   string `toml:"imap_user"`
	IMAPPass   string `toml:"imap_password"`
	IMAPSecure bool   `toml:"imap_secure"`

	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_password"`
	SMTPTLS  bool   `toml:"smtp_tls"`
	From     string `toml:"from"`

	// To is the operator address notifications go to.
	To string `toml:"to"`

	// AllowedSenders is the inbound whitelist. Empty means only To.
	AllowedSenders []string `toml:"allowed_senders"`

	// PollIntervalSeconds overrides the default 30s poll cadence.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// LineConfig configures the LINE webhook transport.
type LineConfig struct {
	Enabled bool `toml:"enabled"`

	// ChannelSecret keys the webhook HMAC signature.
	ChannelSecret string `toml:"channel_secret"`

	// ChannelToken authorizes reply/push API calls.
	ChannelToken string `toml:"channel_token"`

	// To is the default userId/groupId notifications are pushed to.
	To string `toml:"to"`

	// AllowedIDs whitelists inbound userId/groupId values.
	AllowedIDs []string `toml:"allowed_ids"`

	// Listen is the webhook bind address.
	Listen string `toml:"listen"`
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Enabled bool `toml:"enabled"`

	BotToken string `toml:"bot_token"`

	// To is the chat ID notifications are sent to.
	To int64 `toml:"to"`

	// AllowedIDs whitelists inbound chat IDs.
	AllowedIDs []int64 `toml:"allowed_ids"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Pane:         "clawlink-agent",
			AssistantCmd: "claude --dangerously-skip-permissions",
		},
		Prompt:   PromptConfig{Default: PromptPermissive},
		Injector: InjectorConfig{Mode: InjectTmux},
		Mail:     MailConfig{IMAPPort: 993, SMTPPort: 587, IMAPSecure: true, SMTPTLS: false},
		Line:     LineConfig{Listen: ":8787"},
	}
}

// Load reads config.toml from the state directory, applies environment
// overrides, and validates. A missing file yields defaults (all transports
// disabled), which Validate accepts: the CLI is still useful for queue
// inspection before first configuration.
func Load(home string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(home, constants.FileConfigTOML)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets come from the environment instead of disk.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLAWLINK_IMAP_PASSWORD"); v != "" {
		cfg.Mail.IMAPPass = v
	}
	if v := os.Getenv("CLAWLINK_SMTP_PASSWORD"); v != "" {
		cfg.Mail.SMTPPass = v
	}
	if v := os.Getenv("CLAWLINK_LINE_CHANNEL_SECRET"); v != "" {
		cfg.Line.ChannelSecret = v
	}
	if v := os.Getenv("CLAWLINK_LINE_CHANNEL_TOKEN"); v != "" {
		cfg.Line.ChannelToken = v
	}
	if v := os.Getenv("CLAWLINK_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
}

// Validate checks cross-field invariants. Transport credential problems are
// fatal here rather than at first use.
func (c *Config) Validate() error {
	if c.Relay.Pane == "" {
		return fmt.Errorf("relay.pane must not be empty")
	}
	switch c.Prompt.Default {
	case "", PromptPermissive, PromptConservative:
	default:
		return fmt.Errorf("prompt.default must be %q or %q, got %q",
			PromptPermissive, PromptConservative, c.Prompt.Default)
	}
	switch c.Injector.Mode {
	case "", InjectTmux, InjectDrop:
	default:
		return fmt.Errorf("injector.mode must be %q or %q, got %q",
			InjectTmux, InjectDrop, c.Injector.Mode)
	}

	if c.Mail.Enabled {
		var missing []string
		if c.Mail.IMAPHost == "" {
			missing = append(missing, "mail.imap_host")
		}
		if c.Mail.IMAPUser == "" {
			missing = append(missing, "mail.imap_user")
		}
		if c.Mail.IMAPPass == "" {
			missing = append(missing, "mail.imap_password")
		}
		if c.Mail.SMTPHost == "" {
			missing = append(missing, "mail.smtp_host")
		}
		if c.Mail.From == "" {
			missing = append(missing, "mail.from")
		}
		if c.Mail.To == "" {
			missing = append(missing, "mail.to")
		}
		if len(missing) > 0 {
			return fmt.Errorf("mail transport enabled but missing: %s", strings.Join(missing, ", "))
		}
	}
	if c.Line.Enabled {
		if c.Line.ChannelSecret == "" || c.Line.ChannelToken == "" {
			return fmt.Errorf("line transport enabled but channel_secret/channel_token not set")
		}
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram transport enabled but bot_token not set")
		}
		if c.Telegram.To == 0 {
			return fmt.Errorf("telegram transport enabled but to (chat id) not set")
		}
	}
	return nil
}

// MailAllowed reports whether addr may issue commands by mail.
func (c *Config) MailAllowed(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if len(c.Mail.AllowedSenders) == 0 {
		return addr == strings.ToLower(c.Mail.To)
	}
	for _, a := range c.Mail.AllowedSenders {
		if addr == strings.ToLower(strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}

// PromptPolicy returns the effective consent policy.
func (c *Config) PromptPolicy() PromptPolicy {
	if c.Prompt.Default == PromptConservative {
		return PromptConservative
	}
	return PromptPermissive
}
