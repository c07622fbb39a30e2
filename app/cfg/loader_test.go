package cfg

import (
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	// Test default version
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		// This is fine, version could be set at build time
		t.Logf("Version: %s", version)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.MaxPosts != 100 {
		t.Errorf("Expected max posts 100, got %d", cfg.MaxPosts)
	}
	if cfg.MaxScrollAttempts != 30 {
		t.Errorf("Expected max scroll attempts 30, got %d", cfg.MaxScrollAttempts)
	}
	if cfg.CooldownMin != 30*time.Second || cfg.CooldownMax != 60*time.Second {
		t.Errorf("Expected cooldown 30s-60s, got %s-%s", cfg.CooldownMin, cfg.CooldownMax)
	}
	if cfg.OutputDir != "./rss" {
		t.Errorf("Expected output dir './rss', got '%s'", cfg.OutputDir)
	}
	if cfg.SiteURL != "https://x.com" {
		t.Errorf("Expected site URL 'https://x.com', got '%s'", cfg.SiteURL)
	}
	if cfg.ElementTimeout != 10*time.Second {
		t.Errorf("Expected element timeout 10s, got %s", cfg.ElementTimeout)
	}
	if cfg.TitlesEnabled() {
		t.Error("Title generation should be disabled without an API URL")
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := LoadArgs([]string{
		"--author", "@alice",
		"--author", "bob",
		"--max-posts", "25",
		"--cooldown-min", "1",
		"--cooldown-max", "2",
		"--site-url", "https://example.com/",
		"--title-api-url", "http://localhost:15432/",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(cfg.Authors) != 2 || cfg.Authors[0] != "alice" || cfg.Authors[1] != "bob" {
		t.Errorf("Expected authors [alice bob], got %v", cfg.Authors)
	}
	if cfg.MaxPosts != 25 {
		t.Errorf("Expected max posts 25, got %d", cfg.MaxPosts)
	}
	if cfg.SiteURL != "https://example.com" {
		t.Errorf("Expected trailing slash trimmed, got '%s'", cfg.SiteURL)
	}
	if !cfg.TitlesEnabled() || cfg.TitleAPIURL != "http://localhost:15432" {
		t.Errorf("Expected title API 'http://localhost:15432', got '%s'", cfg.TitleAPIURL)
	}
}

func TestLoadAuthorsFromEnv(t *testing.T) {
	t.Setenv("AUTHORS", "alice, bob ,carol")

	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{"alice", "bob", "carol"}
	if len(cfg.Authors) != len(expected) {
		t.Fatalf("Expected %d authors, got %v", len(expected), cfg.Authors)
	}
	for i, handle := range expected {
		if cfg.Authors[i] != handle {
			t.Errorf("Expected author %d to be '%s', got '%s'", i, handle, cfg.Authors[i])
		}
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero max posts", []string{"--max-posts", "0"}},
		{"zero scroll attempts", []string{"--max-scroll-attempts", "0"}},
		{"inverted cooldown", []string{"--cooldown-min", "10", "--cooldown-max", "5"}},
		{"embed url without placeholder", []string{"--embed-url", "https://publish.example.com/"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := LoadArgs(test.args); err == nil {
				t.Errorf("Expected error for %s", test.name)
			}
		})
	}
}
