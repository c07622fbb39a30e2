package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Authors
	Authors           []string `long:"author" env:"AUTHORS" env-delim:"," description:"Author handle to harvest (repeatable)"`
	AuthorsDir        string   `long:"authors-dir" env:"AUTHORS_DIR" default:"./authors" description:"Directory containing per-author YAML settings"`
	MaxPosts          int      `long:"max-posts" env:"MAX_POSTS" default:"100" description:"Number of posts to collect per author"`
	MaxScrollAttempts int      `long:"max-scroll-attempts" env:"MAX_SCROLL_ATTEMPTS" default:"30" description:"Consecutive scrolls without new posts before giving up"`
	CooldownMin       int      `long:"cooldown-min" env:"COOLDOWN_MIN" default:"30" description:"Minimum pause between authors in seconds"`
	CooldownMax       int      `long:"cooldown-max" env:"COOLDOWN_MAX" default:"60" description:"Maximum pause between authors in seconds"`

	// Storage
	OutputDir   string `long:"output-dir" env:"OUTPUT_DIR" default:"./rss" description:"Directory the RSS documents are written to"`
	SessionFile string `long:"session-file" env:"SESSION_FILE" default:"./x_cookies.json" description:"File holding the saved browser session"`
	HistoryDB   string `long:"history-db" env:"HISTORY_DB" default:"./data/history.db" description:"SQLite database for run history (empty disables it)"`

	// Site and browser
	Username       string `long:"username" env:"X_USERNAME" description:"Account used when the saved session is missing or rejected"`
	Password       string `long:"password" env:"X_PASSWORD" description:"Password for the account"`
	SiteURL        string `long:"site-url" env:"SITE_URL" default:"https://x.com" description:"Base URL of the timeline site"`
	EmbedURL       string `long:"embed-url" env:"EMBED_URL" default:"https://publish.twitter.com/?query=%s&widget=Tweet" description:"Embed service URL, %s is replaced by the escaped permalink"`
	ElementTimeout int    `long:"element-timeout" env:"ELEMENT_TIMEOUT" default:"10" description:"Seconds to wait for an element before giving up"`
	LoginTimeout   int    `long:"login-timeout" env:"LOGIN_TIMEOUT" default:"15" description:"Seconds to wait for each login step"`
	ChromeBin      string `long:"chrome-bin" env:"CHROME_BIN" description:"Path to the Chrome/Chromium binary"`
	ShowBrowser    bool   `long:"show-browser" env:"SHOW_BROWSER" description:"Run the browser with a visible window"`
	UserAgent      string `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36" description:"User agent string for the browser"`

	// Title generation
	TitleAPIURL  string `long:"title-api-url" env:"TITLE_API_URL" description:"OpenAI-compatible API base URL for entry titles (optional)"`
	TitleAPIKey  string `long:"title-api-key" env:"TITLE_API_KEY" description:"API key for the title service"`
	TitleModel   string `long:"title-model" env:"TITLE_MODEL" default:"gpt-4o-mini" description:"Model used for entry titles"`
	TitleTimeout int    `long:"title-timeout" env:"TITLE_TIMEOUT" default:"30" description:"Title request timeout in seconds"`

	// Serving
	Serve           bool   `long:"serve" env:"SERVE" description:"Serve the generated feeds over HTTP and harvest periodically"`
	Port            string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl         string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://feeds.example.com)"`
	APIAccessKey    string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the management endpoints (optional)"`
	HarvestInterval int    `long:"harvest-interval" env:"HARVEST_INTERVAL" default:"0" description:"Seconds between harvests in serve mode (0 harvests once at startup)"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses command-line flags and environment variables. A nil config
// with a nil error means help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs is Load over an explicit argument list; nil means os.Args.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Authors:           normalizeHandles(raw.Authors),
		AuthorsDir:        raw.AuthorsDir,
		MaxPosts:          raw.MaxPosts,
		MaxScrollAttempts: raw.MaxScrollAttempts,
		CooldownMin:       seconds(raw.CooldownMin),
		CooldownMax:       seconds(raw.CooldownMax),
		OutputDir:         raw.OutputDir,
		SessionFile:       raw.SessionFile,
		HistoryDB:         raw.HistoryDB,
		Username:          raw.Username,
		Password:          raw.Password,
		SiteURL:           strings.TrimRight(raw.SiteURL, "/"),
		EmbedURL:          raw.EmbedURL,
		ElementTimeout:    seconds(raw.ElementTimeout),
		LoginTimeout:      seconds(raw.LoginTimeout),
		ChromeBin:         raw.ChromeBin,
		ShowBrowser:       raw.ShowBrowser,
		UserAgent:         raw.UserAgent,
		TitleAPIURL:       strings.TrimRight(raw.TitleAPIURL, "/"),
		TitleAPIKey:       raw.TitleAPIKey,
		TitleModel:        raw.TitleModel,
		TitleTimeout:      seconds(raw.TitleTimeout),
		Serve:             raw.Serve,
		Port:              raw.Port,
		BaseUrl:           strings.TrimRight(raw.BaseUrl, "/"),
		APIAccessKey:      raw.APIAccessKey,
		HarvestInterval:   seconds(raw.HarvestInterval),
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	positiveFields := map[string]int{
		"max posts":           c.MaxPosts,
		"max scroll attempts": c.MaxScrollAttempts,
	}
	for fieldName, fieldValue := range positiveFields {
		if fieldValue <= 0 {
			return fmt.Errorf("%s must be positive", fieldName)
		}
	}

	nonNegativeFields := map[string]time.Duration{
		"cooldown min":     c.CooldownMin,
		"cooldown max":     c.CooldownMax,
		"element timeout":  c.ElementTimeout,
		"login timeout":    c.LoginTimeout,
		"title timeout":    c.TitleTimeout,
		"harvest interval": c.HarvestInterval,
	}
	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if c.CooldownMax < c.CooldownMin {
		return fmt.Errorf("cooldown max (%s) is lower than cooldown min (%s)", c.CooldownMax, c.CooldownMin)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir is required")
	}
	if c.SiteURL == "" {
		return fmt.Errorf("site URL is required")
	}
	if !strings.Contains(c.EmbedURL, "%s") {
		return fmt.Errorf("embed URL must contain a %%s placeholder")
	}

	return nil
}

func normalizeHandles(handles []string) []string {
	var out []string
	for _, h := range handles {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
