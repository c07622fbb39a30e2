package cfg

import "time"

type Cfg struct {
	// Authors
	Authors           []string
	AuthorsDir        string
	MaxPosts          int
	MaxScrollAttempts int
	CooldownMin       time.Duration
	CooldownMax       time.Duration

	// Storage
	OutputDir   string
	SessionFile string
	HistoryDB   string

	// Site and browser
	Username       string
	Password       string
	SiteURL        string
	EmbedURL       string
	ElementTimeout time.Duration
	LoginTimeout   time.Duration
	ChromeBin      string
	ShowBrowser    bool
	UserAgent      string

	// Title generation (empty TitleAPIURL disables it)
	TitleAPIURL  string
	TitleAPIKey  string
	TitleModel   string
	TitleTimeout time.Duration

	// Serving
	Serve           bool
	Port            string
	BaseUrl         string
	APIAccessKey    string
	HarvestInterval time.Duration

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

// TitlesEnabled reports whether a title generation service is configured.
func (c *Cfg) TitlesEnabled() bool {
	return c.TitleAPIURL != ""
}
