package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultCols           = 40
	defaultRows           = 8
	defaultBlinkInterval  = 500 * time.Millisecond
	defaultPlaybackDelay  = 5 * time.Millisecond
	defaultBaudRate       = 9600
	defaultDataBits       = 8
	defaultAssistantURL   = "https://api.deepseek.com"
	defaultAssistantModel = "deepseek-chat"
	defaultSystemPrompt   = "You are a helpful assistant"
	defaultAssistantWait  = 60 * time.Second
	defaultAssistantRPM   = 30

	defaultSSHHost            = "0.0.0.0"
	defaultSSHPort            = 2222
	defaultHostKeyPath        = ".data/host_ed25519"
	defaultIdleTimeout        = 120 * time.Second
	defaultMaxSessions        = 32
	defaultRateLimitPerSecond = 20
	minimumRateLimit          = 1
	maximumConfiguredSessions = 1024

	defaultHTTPAddr  = "127.0.0.1:8080"
	defaultTheme     = "amber"
	defaultLogLevel  = "info"
	defaultLogFormat = "text"

	// ConfigFileEnv names the optional YAML file whose values sit beneath
	// the environment.
	ConfigFileEnv = "MODEL100_CONFIG"
)

type Terminal struct {
	Cols          int           `yaml:"cols"`
	Rows          int           `yaml:"rows"`
	BlinkInterval time.Duration `yaml:"blink_interval"`
	PlaybackDelay time.Duration `yaml:"playback_delay"`
	// LocalUI runs the terminal in the controlling tty of the process.
	LocalUI bool `yaml:"local_ui"`
}

type Serial struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Loopback bool   `yaml:"loopback"`
}

type Protocol struct {
	EnterToken   string `yaml:"enter_token"`
	ExitToken    string `yaml:"exit_token"`
	EnterMessage string `yaml:"enter_message"`
	ExitMessage  string `yaml:"exit_message"`
	WaitMessage  string `yaml:"wait_message"`
	ErrorReply   string `yaml:"error_reply"`
}

type Assistant struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	SystemPrompt      string        `yaml:"system_prompt"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	// EchoWhenUnconfigured answers assistant lines locally when no API key
	// is set, instead of playing the error reply.
	EchoWhenUnconfigured bool `yaml:"echo_when_unconfigured"`
}

type SSH struct {
	Enabled            bool          `yaml:"enabled"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	HostKeyPath        string        `yaml:"host_key_path"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	MaxSessions        int           `yaml:"max_sessions"`
	RateLimitPerSecond int           `yaml:"rate_limit_per_second"`
}

type HTTP struct {
	// Addr is the control API listen address; empty disables the API.
	Addr string `yaml:"addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config captures startup settings for the model100 entrypoint.
type Config struct {
	Terminal  Terminal  `yaml:"terminal"`
	Serial    Serial    `yaml:"serial"`
	Protocol  Protocol  `yaml:"protocol"`
	Assistant Assistant `yaml:"assistant"`
	SSH       SSH       `yaml:"ssh"`
	HTTP      HTTP      `yaml:"http"`
	Theme     string    `yaml:"theme"`
	Log       Log       `yaml:"log"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Terminal: Terminal{
			Cols:          defaultCols,
			Rows:          defaultRows,
			BlinkInterval: defaultBlinkInterval,
			PlaybackDelay: defaultPlaybackDelay,
			LocalUI:       true,
		},
		Serial: Serial{
			BaudRate: defaultBaudRate,
			DataBits: defaultDataBits,
		},
		Protocol: Protocol{
			EnterToken:   "##DEEPSEEK##",
			ExitToken:    "##EXIT##",
			EnterMessage: "Enter DeepSeek mode...",
			ExitMessage:  "Exit DeepSeek mode...",
			WaitMessage:  "Message sent, please wait...",
			ErrorReply:   "[Error]",
		},
		Assistant: Assistant{
			BaseURL:           defaultAssistantURL,
			Model:             defaultAssistantModel,
			SystemPrompt:      defaultSystemPrompt,
			Timeout:           defaultAssistantWait,
			RequestsPerMinute: defaultAssistantRPM,
		},
		SSH: SSH{
			Host:               defaultSSHHost,
			Port:               defaultSSHPort,
			HostKeyPath:        defaultHostKeyPath,
			IdleTimeout:        defaultIdleTimeout,
			MaxSessions:        defaultMaxSessions,
			RateLimitPerSecond: defaultRateLimitPerSecond,
		},
		HTTP:  HTTP{Addr: defaultHTTPAddr},
		Theme: defaultTheme,
		Log:   Log{Level: defaultLogLevel, Format: defaultLogFormat},
	}
}

// LoadFromEnv loads runtime configuration. Values come from Default, then
// the YAML file named by MODEL100_CONFIG when set, then MODEL100_*
// environment variables. Every value is validated regardless of source.
func LoadFromEnv() (Config, error) {
	base := Default()
	if path, ok := os.LookupEnv(ConfigFileEnv); ok && strings.TrimSpace(path) != "" {
		fromFile, err := LoadFile(path, base)
		if err != nil {
			return Config{}, err
		}
		base = fromFile
	}
	return overlayEnv(base)
}

// LoadFile decodes the YAML file at path on top of base. Unknown keys are
// rejected.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	cfg := base
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func overlayEnv(c Config) (Config, error) {
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	c.Terminal.Cols, err = readInt("MODEL100_COLS", c.Terminal.Cols, 1, 1000)
	check(err)
	c.Terminal.Rows, err = readInt("MODEL100_ROWS", c.Terminal.Rows, 1, 500)
	check(err)
	c.Terminal.BlinkInterval, err = readDuration("MODEL100_BLINK_INTERVAL", c.Terminal.BlinkInterval)
	check(err)
	c.Terminal.PlaybackDelay, err = readNonNegativeDuration("MODEL100_PLAYBACK_DELAY", c.Terminal.PlaybackDelay)
	check(err)
	c.Terminal.LocalUI, err = readBool("MODEL100_LOCAL_UI", c.Terminal.LocalUI)
	check(err)

	c.Serial.Port = readOptional("MODEL100_SERIAL_PORT", c.Serial.Port)
	c.Serial.BaudRate, err = readInt("MODEL100_SERIAL_BAUD", c.Serial.BaudRate, 50, 4000000)
	check(err)
	c.Serial.DataBits, err = readInt("MODEL100_SERIAL_DATA_BITS", c.Serial.DataBits, 5, 8)
	check(err)
	c.Serial.Loopback, err = readBool("MODEL100_SERIAL_LOOPBACK", c.Serial.Loopback)
	check(err)
	if !c.Serial.Loopback && c.Serial.Port == "" {
		errs = append(errs, fmt.Errorf("MODEL100_SERIAL_PORT is required unless MODEL100_SERIAL_LOOPBACK=true"))
	}

	c.Protocol.EnterToken, err = readRequiredOrDefault("MODEL100_ENTER_TOKEN", c.Protocol.EnterToken)
	check(err)
	c.Protocol.ExitToken, err = readRequiredOrDefault("MODEL100_EXIT_TOKEN", c.Protocol.ExitToken)
	check(err)
	c.Protocol.EnterMessage, err = readRequiredOrDefault("MODEL100_ENTER_MESSAGE", c.Protocol.EnterMessage)
	check(err)
	c.Protocol.ExitMessage, err = readRequiredOrDefault("MODEL100_EXIT_MESSAGE", c.Protocol.ExitMessage)
	check(err)
	c.Protocol.WaitMessage, err = readRequiredOrDefault("MODEL100_WAIT_MESSAGE", c.Protocol.WaitMessage)
	check(err)
	c.Protocol.ErrorReply, err = readRequiredOrDefault("MODEL100_ERROR_REPLY", c.Protocol.ErrorReply)
	check(err)
	if c.Protocol.EnterToken != "" && c.Protocol.EnterToken == c.Protocol.ExitToken {
		errs = append(errs, fmt.Errorf("MODEL100_ENTER_TOKEN and MODEL100_EXIT_TOKEN must differ"))
	}

	c.Assistant.BaseURL, err = readRequiredOrDefault("MODEL100_ASSISTANT_BASE_URL", c.Assistant.BaseURL)
	check(err)
	c.Assistant.APIKey = readOptional("MODEL100_ASSISTANT_API_KEY", c.Assistant.APIKey)
	if c.Assistant.APIKey == "" {
		c.Assistant.APIKey = strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY"))
	}
	c.Assistant.Model, err = readRequiredOrDefault("MODEL100_ASSISTANT_MODEL", c.Assistant.Model)
	check(err)
	c.Assistant.SystemPrompt, err = readRequiredOrDefault("MODEL100_ASSISTANT_SYSTEM_PROMPT", c.Assistant.SystemPrompt)
	check(err)
	c.Assistant.Timeout, err = readDuration("MODEL100_ASSISTANT_TIMEOUT", c.Assistant.Timeout)
	check(err)
	c.Assistant.RequestsPerMinute, err = readInt("MODEL100_ASSISTANT_REQUESTS_PER_MINUTE", c.Assistant.RequestsPerMinute, 0, 60000)
	check(err)
	c.Assistant.EchoWhenUnconfigured, err = readBool("MODEL100_ASSISTANT_ECHO_WHEN_UNCONFIGURED", c.Assistant.EchoWhenUnconfigured)
	check(err)

	c.SSH.Enabled, err = readBool("MODEL100_SSH_ENABLED", c.SSH.Enabled)
	check(err)
	c.SSH.Host, err = readRequiredOrDefault("MODEL100_SSH_HOST", c.SSH.Host)
	check(err)
	c.SSH.Port, err = readInt("MODEL100_SSH_PORT", c.SSH.Port, 1, 65535)
	check(err)
	c.SSH.HostKeyPath, err = readRequiredOrDefault("MODEL100_SSH_HOST_KEY_PATH", c.SSH.HostKeyPath)
	check(err)
	if c.SSH.HostKeyPath != "" {
		c.SSH.HostKeyPath = filepath.Clean(c.SSH.HostKeyPath)
		if c.SSH.HostKeyPath == "." {
			errs = append(errs, fmt.Errorf("MODEL100_SSH_HOST_KEY_PATH must not resolve to current directory"))
		}
	}
	c.SSH.IdleTimeout, err = readDuration("MODEL100_SSH_IDLE_TIMEOUT", c.SSH.IdleTimeout)
	check(err)
	c.SSH.MaxSessions, err = readInt("MODEL100_SSH_MAX_SESSIONS", c.SSH.MaxSessions, 1, maximumConfiguredSessions)
	check(err)
	c.SSH.RateLimitPerSecond, err = readInt("MODEL100_SSH_RATE_LIMIT_PER_SECOND", c.SSH.RateLimitPerSecond, minimumRateLimit, 10000)
	check(err)

	c.HTTP.Addr = readOptional("MODEL100_HTTP_ADDR", c.HTTP.Addr)

	c.Theme, err = readRequiredOrDefault("MODEL100_THEME", c.Theme)
	check(err)
	c.Log.Level, err = readChoice("MODEL100_LOG_LEVEL", c.Log.Level, "debug", "info", "warn", "error")
	check(err)
	c.Log.Format, err = readChoice("MODEL100_LOG_FORMAT", c.Log.Format, "text", "json", "logfmt")
	check(err)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return c, nil
}

func readRequiredOrDefault(key, fallback string) (string, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		raw = fallback
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%s must not be empty", key)
	}

	return raw, nil
}

// readOptional treats an explicitly empty variable as "unset this value".
func readOptional(key, fallback string) string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return strings.TrimSpace(fallback)
	}
	return strings.TrimSpace(raw)
}

func readInt(key string, fallback, min, max int) (int, error) {
	parsed := fallback
	if raw, ok := os.LookupEnv(key); ok {
		var err error
		parsed, err = strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
	}
	if parsed < min || parsed > max {
		return 0, fmt.Errorf("%s must be between %d and %d", key, min, max)
	}

	return parsed, nil
}

func readDuration(key string, fallback time.Duration) (time.Duration, error) {
	parsed, err := readNonNegativeDuration(key, fallback)
	if err != nil {
		return 0, err
	}
	if parsed == 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return parsed, nil
}

func readNonNegativeDuration(key string, fallback time.Duration) (time.Duration, error) {
	parsed := fallback
	if raw, ok := os.LookupEnv(key); ok {
		var err error
		parsed, err = time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}

	return parsed, nil
}

func readBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}

	return parsed, nil
}

func readChoice(key, fallback string, choices ...string) (string, error) {
	value := fallback
	if raw, ok := os.LookupEnv(key); ok {
		value = raw
	}
	value = strings.ToLower(strings.TrimSpace(value))
	for _, c := range choices {
		if value == c {
			return value, nil
		}
	}

	return "", fmt.Errorf("%s must be one of %s", key, strings.Join(choices, ", "))
}
