// Package config loads mailcmd settings from a YAML file, MAILCMD_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Resource is one remote file fetched by the send_cams command.
type Resource struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
	Path string `mapstructure:"path" yaml:"path"`
}

type SendCamsConfig struct {
	Resources []Resource `mapstructure:"resources" yaml:"resources"`
}

// ReplyConfig shapes the outgoing message. An empty To falls back to the
// allowed sender.
type ReplyConfig struct {
	To      string `mapstructure:"to" yaml:"to"`
	From    string `mapstructure:"from" yaml:"from"`
	Subject string `mapstructure:"subject" yaml:"subject"`
	Body    string `mapstructure:"body" yaml:"body"`
}

type Config struct {
	AllowedSender   string         `mapstructure:"allowed_sender" yaml:"allowed_sender"`
	CredentialsFile string         `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string         `mapstructure:"token_file" yaml:"token_file"`
	TokenStore      string         `mapstructure:"token_store" yaml:"token_store"`
	KeyringDir      string         `mapstructure:"keyring_dir" yaml:"keyring_dir"`
	KeyringPassword string         `mapstructure:"keyring_password" yaml:"keyring_password"`
	Scopes          []string       `mapstructure:"scopes" yaml:"scopes"`
	InboxWindow     int64          `mapstructure:"inbox_window" yaml:"inbox_window"`
	ManualAuth      bool           `mapstructure:"manual_auth" yaml:"manual_auth"`
	Reply           ReplyConfig    `mapstructure:"reply" yaml:"reply"`
	SendCams        SendCamsConfig `mapstructure:"send_cams" yaml:"send_cams"`
	LogLevel        string         `mapstructure:"log_level" yaml:"log_level"`
	LogFile         string         `mapstructure:"log_file" yaml:"log_file"`
}

const (
	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"
)

var ErrNoAllowedSender = errors.New("allowed_sender is required")

var knownScopes = map[string]bool{"readonly": true, "send": true, "modify": true}

// DefaultPath returns ~/.config/mailcmd/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailcmd", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("credentials_file", "credentials.json")
	v.SetDefault("token_file", "token.json")
	v.SetDefault("token_store", TokenStoreFile)
	v.SetDefault("keyring_dir", "")
	v.SetDefault("keyring_password", "")
	v.SetDefault("manual_auth", false)
	v.SetDefault("scopes", []string{"readonly", "send", "modify"})
	v.SetDefault("inbox_window", 10)
	v.SetDefault("reply.to", "")
	v.SetDefault("reply.from", "")
	v.SetDefault("reply.subject", "Response with Image")
	v.SetDefault("reply.body", "Here is the image you requested!")
	v.SetDefault("send_cams.resources", []Resource{})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

var resourceListType = reflect.TypeOf([]Resource{})

// resourcesFromJSON lets MAILCMD_SEND_CAMS_RESOURCES carry the resource
// list as a JSON array.
func resourcesFromJSON(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != resourceListType {
		return data, nil
	}
	raw := strings.TrimSpace(data.(string))
	if raw == "" {
		return []Resource{}, nil
	}
	var res []Resource
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("send_cams.resources: %w", err)
	}
	return res, nil
}

// RegisterFlags adds the flags Load understands.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to the YAML config file (default "+DefaultPath()+")")
	flags.String("allowed-sender", "", "Only act on mail whose From header equals this value")
	flags.String("credentials-file", "", "OAuth client secret JSON downloaded from Google Cloud")
	flags.String("token-file", "", "Where the OAuth token is stored when token_store is file")
	flags.String("log-level", "", "Logging level: debug, info, warn, error")
	flags.String("log-file", "", "Also append logs to this file")
	flags.Bool("manual-auth", false, "Paste the authorization code instead of using a loopback redirect")
}

var flagKeys = map[string]string{
	"allowed-sender":   "allowed_sender",
	"credentials-file": "credentials_file",
	"token-file":       "token_file",
	"log-level":        "log_level",
	"log-file":         "log_file",
	"manual-auth":      "manual_auth",
}

// Load reads configuration. A missing file at the default location is not
// an error; a missing file that was asked for explicitly is.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILCMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	path := ""
	if flags != nil {
		path, _ = flags.GetString("config")
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &pathErr) || errors.As(err, &notFound)) {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		resourcesFromJSON,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	c.TokenStore = strings.ToLower(c.TokenStore)
	if c.Reply.To == "" {
		c.Reply.To = c.AllowedSender
	}
}

func (c Config) Validate() error {
	if c.AllowedSender == "" {
		return ErrNoAllowedSender
	}
	if c.CredentialsFile == "" {
		return fmt.Errorf("credentials_file is required")
	}
	switch c.TokenStore {
	case TokenStoreFile:
		if c.TokenFile == "" {
			return fmt.Errorf("token_file is required when token_store is file")
		}
	case TokenStoreKeyring:
	default:
		return fmt.Errorf("invalid token_store: %q", c.TokenStore)
	}
	if len(c.Scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}
	for _, s := range c.Scopes {
		if !knownScopes[s] {
			return fmt.Errorf("unknown scope %q (want readonly, send or modify)", s)
		}
	}
	if c.InboxWindow < 1 || c.InboxWindow > 500 {
		return fmt.Errorf("inbox_window must be between 1 and 500")
	}
	for i, r := range c.SendCams.Resources {
		if r.Name == "" || r.URL == "" || r.Path == "" {
			return fmt.Errorf("send_cams.resources[%d]: name, url and path are required", i)
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	return nil
}
