package authors

// Author is one timeline to harvest. Handle is derived from the YAML file
// name, or taken from the command line when no file exists.
type Author struct {
	Handle   string         `yaml:"-"`
	Settings AuthorSettings `yaml:"settings"`
	Feed     FeedSettings   `yaml:"feed"`
}

type AuthorSettings struct {
	Enabled           *bool `yaml:"enabled"`
	MaxPosts          int   `yaml:"max_posts"`
	MaxScrollAttempts int   `yaml:"max_scroll_attempts"`
}

// FeedSettings override the channel metadata seeded for a new feed.
type FeedSettings struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Language    string `yaml:"language"`
}

// Defaults fill settings an author file leaves out.
type Defaults struct {
	MaxPosts          int
	MaxScrollAttempts int
}

func (a *Author) IsEnabled() bool {
	return a.Settings.Enabled == nil || *a.Settings.Enabled
}
