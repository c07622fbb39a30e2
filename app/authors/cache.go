package authors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const (
	authorFileExt  = ".yml"
	reloadDebounce = 500 * time.Millisecond
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// Cache holds the per-author settings files found in a directory.
type Cache struct {
	authorsDir string
	defaults   Defaults
	cache      map[string]*Author
	mu         sync.RWMutex
	debounce   time.Duration
}

// ValidHandle reports whether handle is a well-formed author handle.
func ValidHandle(handle string) bool {
	return handlePattern.MatchString(handle)
}

func NewCache(authorsDir string, defaults Defaults) *Cache {
	return &Cache{
		authorsDir: authorsDir,
		defaults:   defaults,
		cache:      make(map[string]*Author),
		debounce:   reloadDebounce,
	}
}

// Run loads every *.yml file in the directory, replacing what was loaded
// before. A missing directory is not an error.
func (c *Cache) Run() error {
	loaded, err := c.loadAll()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cache = loaded
	c.mu.Unlock()
	return nil
}

func (c *Cache) loadAll() (map[string]*Author, error) {
	loaded := make(map[string]*Author)
	if c.authorsDir == "" {
		return loaded, nil
	}
	if _, err := os.Stat(c.authorsDir); os.IsNotExist(err) {
		return loaded, nil
	}

	files, err := filepath.Glob(filepath.Join(c.authorsDir, "*"+authorFileExt))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		handle := strings.TrimSuffix(filepath.Base(file), authorFileExt)

		author, err := c.readAuthor(handle)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}
		loaded[strings.ToLower(handle)] = author

		slog.Debug("Author settings loaded",
			"author", handle,
			"enabled", author.IsEnabled(),
			"max_posts", author.Settings.MaxPosts)
	}

	return loaded, nil
}

// Watch reloads the directory whenever a settings file changes, until ctx is
// done. A reload that fails keeps the previous settings.
func (c *Cache) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.authorsDir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", c.authorsDir, err)
	}

	go func() {
		defer watcher.Close()

		var debounceTimer *time.Timer
		defer func() {
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Ext(event.Name) != authorFileExt {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}

				// editors write in bursts
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(c.debounce, c.reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Author settings watcher error", "error", err)
			}
		}
	}()

	slog.Info("Watching author settings", "dir", c.authorsDir)
	return nil
}

func (c *Cache) reload() {
	if err := c.Run(); err != nil {
		slog.Error("Failed to reload author settings", "dir", c.authorsDir, "error", err)
		return
	}
	slog.Info("Author settings reloaded", "count", c.GetAuthorCount())
}

func (c *Cache) LoadAuthor(handle string) (*Author, error) {
	author, err := c.readAuthor(handle)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[strings.ToLower(handle)] = author

	return author, nil
}

func (c *Cache) GetAuthor(handle string) (*Author, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	author, ok := c.cache[strings.ToLower(handle)]
	return author, ok
}

func (c *Cache) GetAuthorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Resolve returns the enabled authors to harvest, in run order: handles given
// on the command line first, in the order given, then authors known only from
// files, sorted. Handles are matched case-insensitively and listed once.
func (c *Cache) Resolve(handles []string) ([]Author, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var resolved []Author

	add := func(author Author) {
		key := strings.ToLower(author.Handle)
		if seen[key] {
			return
		}
		seen[key] = true
		if !author.IsEnabled() {
			slog.Info("Author disabled, skipping", "author", author.Handle)
			return
		}
		resolved = append(resolved, author)
	}

	for _, handle := range handles {
		if !handlePattern.MatchString(handle) {
			return nil, fmt.Errorf("invalid author handle %q", handle)
		}
		if author, ok := c.cache[strings.ToLower(handle)]; ok {
			add(*author)
			continue
		}
		add(c.withDefaults(Author{Handle: handle}))
	}

	keys := make([]string, 0, len(c.cache))
	for key := range c.cache {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		add(*c.cache[key])
	}

	return resolved, nil
}

func (c *Cache) readAuthor(handle string) (*Author, error) {
	authorFile := c.getAuthorFilePath(handle)
	author, err := c.parseAuthor(authorFile)
	if err != nil {
		return nil, err
	}
	author.Handle = handle

	if err := validateAuthor(author); err != nil {
		return nil, fmt.Errorf("invalid author settings %s: %w", authorFile, err)
	}
	return author, nil
}

func (c *Cache) parseAuthor(authorFile string) (*Author, error) {
	data, err := os.ReadFile(authorFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var author Author
	if err := yaml.Unmarshal(data, &author); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	author = c.withDefaults(author)
	return &author, nil
}

func (c *Cache) withDefaults(author Author) Author {
	if author.Settings.MaxPosts == 0 {
		author.Settings.MaxPosts = c.defaults.MaxPosts
	}
	if author.Settings.MaxScrollAttempts == 0 {
		author.Settings.MaxScrollAttempts = c.defaults.MaxScrollAttempts
	}
	return author
}

func validateAuthor(author *Author) error {
	if author == nil {
		return fmt.Errorf("author is nil")
	}

	if !handlePattern.MatchString(author.Handle) {
		return fmt.Errorf("invalid author handle %q", author.Handle)
	}

	positiveFields := map[string]int{
		"max posts":           author.Settings.MaxPosts,
		"max scroll attempts": author.Settings.MaxScrollAttempts,
	}

	for fieldName, fieldValue := range positiveFields {
		if fieldValue <= 0 {
			return fmt.Errorf("%s must be positive", fieldName)
		}
	}

	return nil
}

func (c *Cache) getAuthorFilePath(handle string) string {
	return filepath.Join(c.authorsDir, handle+authorFileExt)
}
