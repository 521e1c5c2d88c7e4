package startup

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("MYRIENT_BASE_URL", "")
	t.Setenv("CRAWL_CONCURRENCY", "")
	t.Setenv("CRAWL_DELAY_MS", "")
	t.Setenv("SYNC_SCHEDULE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, defaultBaseURL)
	}
	if cfg.CrawlDelay != defaultDelayMS*time.Millisecond {
		t.Errorf("CrawlDelay = %v, want %dms", cfg.CrawlDelay, defaultDelayMS)
	}
	if cfg.Concurrency < 1 || cfg.Concurrency > defaultConcurrency {
		t.Errorf("Concurrency = %d, want 1..%d", cfg.Concurrency, defaultConcurrency)
	}
	if cfg.SyncSchedule != defaultSyncSchedule {
		t.Errorf("SyncSchedule = %q, want %q", cfg.SyncSchedule, defaultSyncSchedule)
	}
	if cfg.DatabasePath != filepath.Join(cfg.DataDir, "index.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("MYRIENT_BASE_URL", "https://mirror.example.org/files") // no trailing slash
	t.Setenv("CRAWL_CONCURRENCY", "3")
	t.Setenv("CRAWL_DELAY_MS", "200")
	t.Setenv("CRAWL_TIMEOUT", "10")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.BaseURL != "https://mirror.example.org/files/" {
		t.Errorf("trailing slash not added: %q", cfg.BaseURL)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Concurrency)
	}
	if cfg.CrawlDelay != 200*time.Millisecond {
		t.Errorf("CrawlDelay = %v, want 200ms", cfg.CrawlDelay)
	}
	if cfg.CrawlTimeout != 10*time.Second {
		t.Errorf("CrawlTimeout = %v, want 10s", cfg.CrawlTimeout)
	}
}

func TestGetRouteGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path     string
		expected string
	}{
		{"/api/search", "api/search"},
		{"/api/sync/status", "api/sync"},
		{"/health", "health"},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.expected {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT_VALUE", "17")
	if got := getEnvInt("TEST_INT_VALUE", 5); got != 17 {
		t.Errorf("getEnvInt = %d, want 17", got)
	}

	t.Setenv("TEST_INT_VALUE", "not-a-number")
	if got := getEnvInt("TEST_INT_VALUE", 5); got != 5 {
		t.Errorf("getEnvInt fallback = %d, want 5", got)
	}

	if got := getEnvInt("TEST_INT_MISSING", 9); got != 9 {
		t.Errorf("getEnvInt missing = %d, want 9", got)
	}
}
