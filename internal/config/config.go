package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BackendConfig describes the JSON reminder backend.
type BackendConfig struct {
	// URL is the backend base URL, e.g. "http://127.0.0.1:5000".
	URL string `yaml:"url" json:"url"`
	// EventsEndpoint is the path returning today's events, e.g. "/events".
	EventsEndpoint string `yaml:"events_endpoint" json:"events_endpoint"`
	// TimeoutSeconds bounds each backend HTTP call.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// GoogleConfig describes the Google Calendar source.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	TokenFile       string `yaml:"token_file" json:"token_file"`
	CalendarID      string `yaml:"calendar_id" json:"calendar_id"`
}

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// ReminderConfig holds the status/alarm window parameters. All values are in
// seconds; Validate rejects non-positive windows since the classifier and
// scheduler must not run with undefined windows.
type ReminderConfig struct {
	// StartingSoonSeconds is how long before the scheduled time an event
	// shows "starting soon".
	StartingSoonSeconds int `yaml:"starting_soon_window_seconds" json:"starting_soon_window_seconds"`
	// InProgressSeconds is how long after the scheduled time an event stays
	// "in progress" (and remains eligible for voice reminders).
	InProgressSeconds int `yaml:"in_progress_window_seconds" json:"in_progress_window_seconds"`
	// VoiceIntervalSeconds is the cadence of repeated voice announcements.
	VoiceIntervalSeconds int `yaml:"voice_reminder_interval_seconds" json:"voice_reminder_interval_seconds"`
	// AutoStopSeconds silences a reminder this long after its first
	// announcement if nobody dismissed it.
	AutoStopSeconds int `yaml:"auto_stop_after_seconds" json:"auto_stop_after_seconds"`
	// TickSeconds is the evaluation loop granularity.
	TickSeconds int `yaml:"tick_seconds" json:"tick_seconds"`
}

// TTSConfig describes the external text-to-speech command.
type TTSConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
}

// SpeechConfig describes the external speech recognizer and the voice
// command vocabulary.
type SpeechConfig struct {
	// Command is the recognizer binary emitting one transcript per stdout
	// line. Empty disables voice input.
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`

	WakeWords   []string `yaml:"wake_words" json:"wake_words"`
	StopCommand string   `yaml:"stop_command" json:"stop_command"`
	// SessionTimeoutSeconds is how long after a wake word bare text keeps
	// routing to the chatbot.
	SessionTimeoutSeconds int `yaml:"session_timeout_seconds" json:"session_timeout_seconds"`
}

// ChatbotConfig describes the OpenAI-compatible chat endpoint.
type ChatbotConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	APIKey      string  `yaml:"api_key" json:"-"`
	Model       string  `yaml:"model" json:"model"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

// NewsConfig describes the RSS news tab.
type NewsConfig struct {
	// Feeds maps source name to RSS URL.
	Feeds map[string]string `yaml:"feeds" json:"feeds"`
	// MaxItemsPerFeed caps headlines taken from each feed.
	MaxItemsPerFeed int `yaml:"max_items_per_feed" json:"max_items_per_feed"`
}

// ButtonConfig describes the physical stop button.
type ButtonConfig struct {
	// Pin is the periph.io GPIO pin name, e.g. "GPIO17". Empty uses the
	// mock button (development off-Pi).
	Pin string `yaml:"pin" json:"pin"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the dashboard and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone. Empty
	// means the system local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Source selects the event source: "backend", "google" or "ics".
	Source string `yaml:"source" json:"source"`

	// RefreshCron is a cron-style schedule string (e.g. "* * * * *") used
	// for periodic event refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Backend  BackendConfig  `yaml:"backend" json:"backend"`
	Google   GoogleConfig   `yaml:"google" json:"google"`
	ICS      []ICSConfig    `yaml:"ics" json:"ics"`
	Reminder ReminderConfig `yaml:"reminder" json:"reminder"`
	TTS      TTSConfig      `yaml:"tts" json:"tts"`
	Speech   SpeechConfig   `yaml:"speech" json:"speech"`
	Chatbot  ChatbotConfig  `yaml:"chatbot" json:"chatbot"`
	News     NewsConfig     `yaml:"news" json:"news"`
	Button   ButtonConfig   `yaml:"button" json:"button"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "",
		Source:      "backend",
		RefreshCron: "* * * * *",
		Backend: BackendConfig{
			URL:            "http://127.0.0.1:5000",
			EventsEndpoint: "/events",
			TimeoutSeconds: 10,
		},
		Google: GoogleConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
			CalendarID:      "primary",
		},
		ICS: []ICSConfig{},
		Reminder: ReminderConfig{
			StartingSoonSeconds:  300,
			InProgressSeconds:    3600,
			VoiceIntervalSeconds: 300,
			AutoStopSeconds:      1800,
			TickSeconds:          10,
		},
		TTS: TTSConfig{
			Enabled: true,
			Command: "espeak-ng",
			Args:    []string{"-s", "150"},
		},
		Speech: SpeechConfig{
			Command:               "",
			Args:                  []string{},
			WakeWords:             []string{"assistant", "hellen", "pi", "hello"},
			StopCommand:           "stop",
			SessionTimeoutSeconds: 60,
		},
		Chatbot: ChatbotConfig{
			Enabled:     false,
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   150,
			Temperature: 0.7,
		},
		News: NewsConfig{
			Feeds: map[string]string{
				"BBC News": "http://feeds.bbci.co.uk/news/rss.xml",
			},
			MaxItemsPerFeed: 5,
		},
		Button:    ButtonConfig{Pin: ""},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch c.Source {
	case "backend", "google", "ics":
		// ok
	default:
		c.Source = "backend"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}

	if c.Backend.URL == "" {
		c.Backend.URL = def.Backend.URL
	}
	if c.Backend.EventsEndpoint == "" {
		c.Backend.EventsEndpoint = def.Backend.EventsEndpoint
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = def.Backend.TimeoutSeconds
	}

	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = def.Google.CredentialsFile
	}
	if c.Google.TokenFile == "" {
		c.Google.TokenFile = def.Google.TokenFile
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = def.Google.CalendarID
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}

	if c.Reminder.StartingSoonSeconds == 0 {
		c.Reminder.StartingSoonSeconds = def.Reminder.StartingSoonSeconds
	}
	if c.Reminder.InProgressSeconds == 0 {
		c.Reminder.InProgressSeconds = def.Reminder.InProgressSeconds
	}
	if c.Reminder.VoiceIntervalSeconds == 0 {
		c.Reminder.VoiceIntervalSeconds = def.Reminder.VoiceIntervalSeconds
	}
	if c.Reminder.AutoStopSeconds == 0 {
		c.Reminder.AutoStopSeconds = def.Reminder.AutoStopSeconds
	}
	if c.Reminder.TickSeconds == 0 {
		c.Reminder.TickSeconds = def.Reminder.TickSeconds
	}

	if c.TTS.Command == "" {
		c.TTS.Command = def.TTS.Command
	}
	if c.TTS.Args == nil {
		c.TTS.Args = def.TTS.Args
	}

	if len(c.Speech.WakeWords) == 0 {
		c.Speech.WakeWords = def.Speech.WakeWords
	}
	if c.Speech.StopCommand == "" {
		c.Speech.StopCommand = def.Speech.StopCommand
	}
	if c.Speech.SessionTimeoutSeconds <= 0 {
		c.Speech.SessionTimeoutSeconds = def.Speech.SessionTimeoutSeconds
	}

	if c.Chatbot.BaseURL == "" {
		c.Chatbot.BaseURL = def.Chatbot.BaseURL
	}
	if c.Chatbot.Model == "" {
		c.Chatbot.Model = def.Chatbot.Model
	}
	if c.Chatbot.MaxTokens <= 0 {
		c.Chatbot.MaxTokens = def.Chatbot.MaxTokens
	}
	if c.Chatbot.Temperature <= 0 {
		c.Chatbot.Temperature = def.Chatbot.Temperature
	}
	if c.Chatbot.APIKey == "" {
		c.Chatbot.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if c.News.Feeds == nil {
		c.News.Feeds = def.News.Feeds
	}
	if c.News.MaxItemsPerFeed <= 0 {
		c.News.MaxItemsPerFeed = def.News.MaxItemsPerFeed
	}
}

// Validate checks invariants that must hold for the system to run at all.
// Negative reminder windows would make the classifier/scheduler meaningless,
// so they are a fatal startup error rather than something to paper over.
func (c *Config) Validate() error {
	r := c.Reminder
	if r.StartingSoonSeconds <= 0 {
		return fmt.Errorf("config: starting_soon_window_seconds must be positive, got %d", r.StartingSoonSeconds)
	}
	if r.InProgressSeconds <= 0 {
		return fmt.Errorf("config: in_progress_window_seconds must be positive, got %d", r.InProgressSeconds)
	}
	if r.VoiceIntervalSeconds <= 0 {
		return fmt.Errorf("config: voice_reminder_interval_seconds must be positive, got %d", r.VoiceIntervalSeconds)
	}
	if r.AutoStopSeconds <= 0 {
		return fmt.Errorf("config: auto_stop_after_seconds must be positive, got %d", r.AutoStopSeconds)
	}
	if r.TickSeconds <= 0 {
		return fmt.Errorf("config: tick_seconds must be positive, got %d", r.TickSeconds)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".pireminder-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
