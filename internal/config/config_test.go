package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	// Verify each default value explicitly
	// This serves as living documentation of the defaults
	t.Run("default BatchSize is 4", func(t *testing.T) {
		t.Parallel()
		if cfg.BatchSize != 4 {
			t.Errorf("expected BatchSize to be 4, got %d", cfg.BatchSize)
		}
	})

	t.Run("default ExtractWorkers is 4", func(t *testing.T) {
		t.Parallel()
		if cfg.ExtractWorkers != 4 {
			t.Errorf("expected ExtractWorkers to be 4, got %d", cfg.ExtractWorkers)
		}
	})

	t.Run("default KeywordLimit is 10", func(t *testing.T) {
		t.Parallel()
		if cfg.KeywordLimit != 10 {
			t.Errorf("expected KeywordLimit to be 10, got %d", cfg.KeywordLimit)
		}
	})

	t.Run("default CrawlTimeout is 60 minutes", func(t *testing.T) {
		t.Parallel()
		if cfg.CrawlTimeout != 60*time.Minute {
			t.Errorf("expected CrawlTimeout to be 60m, got %v", cfg.CrawlTimeout)
		}
	})

	t.Run("default CrawlerCommand is browsertrix-crawler", func(t *testing.T) {
		t.Parallel()
		if cfg.CrawlerCommand != "browsertrix-crawler" {
			t.Errorf("expected CrawlerCommand to be 'browsertrix-crawler', got %q", cfg.CrawlerCommand)
		}
	})

	t.Run("default KeepHTML is false", func(t *testing.T) {
		t.Parallel()
		if cfg.KeepHTML {
			t.Error("expected KeepHTML to be false by default")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := NewConfig()
		cfg.ContainerPaths = []string{"crawl.wacz"}
		return cfg
	}

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()

		if err := valid().Validate(); err != nil {
			t.Errorf("expected valid config, got error: %v", err)
		}
	})

	t.Run("multiple containers is valid", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.ContainerPaths = []string{"a.wacz", "b.wacz"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config, got error: %v", err)
		}
	})

	t.Run("empty containers returns ErrNoContainer", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.ContainerPaths = nil
		if err := cfg.Validate(); !errors.Is(err, ErrNoContainer) {
			t.Errorf("expected ErrNoContainer, got: %v", err)
		}
	})

	t.Run("crawl mode without containers is valid", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.ContainerPaths = nil
		cfg.Crawl = true
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config, got error: %v", err)
		}
	})

	t.Run("zero batch size returns ErrInvalidBatchSize", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.BatchSize = 0
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidBatchSize) {
			t.Errorf("expected ErrInvalidBatchSize, got: %v", err)
		}
	})

	t.Run("negative worker count returns ErrInvalidWorkerCount", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.ExtractWorkers = -1
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidWorkerCount) {
			t.Errorf("expected ErrInvalidWorkerCount, got: %v", err)
		}
	})

	t.Run("negative keyword limit returns ErrInvalidKeywordLimit", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.KeywordLimit = -1
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidKeywordLimit) {
			t.Errorf("expected ErrInvalidKeywordLimit, got: %v", err)
		}
	})

	t.Run("zero crawl timeout returns ErrInvalidCrawlTimeout", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.CrawlTimeout = 0
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidCrawlTimeout) {
			t.Errorf("expected ErrInvalidCrawlTimeout, got: %v", err)
		}
	})
}

func TestFileGetContainerConfig(t *testing.T) {
	t.Parallel()

	t.Run("returns defaults when container not found", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: ContainerConfig{
				PriorInventory: "prior.txt",
				KeywordLimit:   5,
			},
			Containers: map[string]ContainerConfig{},
		}

		got := cf.GetContainerConfig("unknown.wacz")
		if got.PriorInventory != "prior.txt" {
			t.Errorf("expected default prior inventory, got %q", got.PriorInventory)
		}
		if got.KeywordLimit != 5 {
			t.Errorf("expected default keyword limit 5, got %d", got.KeywordLimit)
		}
	})

	t.Run("returns container-specific config", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: ContainerConfig{PriorInventory: "prior.txt"},
			Containers: map[string]ContainerConfig{
				"news.wacz": {
					PriorInventory: "news-prior.txt",
					Outputs:        []string{"news.jsonl", "news.csv"},
					KeywordLimit:   20,
					KeepHTML:       true,
				},
			},
		}

		got := cf.GetContainerConfig("news.wacz")
		if got.PriorInventory != "news-prior.txt" {
			t.Errorf("expected container prior inventory, got %q", got.PriorInventory)
		}
		if len(got.Outputs) != 2 {
			t.Errorf("expected 2 outputs, got %d", len(got.Outputs))
		}
		if got.KeywordLimit != 20 {
			t.Errorf("expected keyword limit 20, got %d", got.KeywordLimit)
		}
		if !got.KeepHTML {
			t.Error("expected KeepHTML to be true")
		}
	})

	t.Run("zero keyword limit uses default", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: ContainerConfig{KeywordLimit: 15},
			Containers: map[string]ContainerConfig{
				"news.wacz": {PriorInventory: "x.txt"},
			},
		}

		got := cf.GetContainerConfig("news.wacz")
		if got.KeywordLimit != 15 {
			t.Errorf("expected default keyword limit 15, got %d", got.KeywordLimit)
		}
	})

	t.Run("nil containers map", func(t *testing.T) {
		t.Parallel()

		cf := &File{Defaults: ContainerConfig{KeywordLimit: 3}}
		got := cf.GetContainerConfig("any.wacz")
		if got.KeywordLimit != 3 {
			t.Errorf("expected default keyword limit 3, got %d", got.KeywordLimit)
		}
	})
}

func TestFileExtractionRules(t *testing.T) {
	t.Parallel()

	t.Run("nil file falls back to defaults", func(t *testing.T) {
		t.Parallel()

		var cf *File
		rules := cf.ExtractionRules()
		if len(rules) == 0 {
			t.Error("expected built-in default rules, got none")
		}
	})

	t.Run("configured rules win over defaults", func(t *testing.T) {
		t.Parallel()

		cf := &File{}
		if err := yamlUnmarshal(t, `rules:
  - field: author
    tag: meta
    match:
      name: author
    attr: content
`, cf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rules := cf.ExtractionRules()
		if len(rules) != 1 || rules[0].Field != "author" {
			t.Errorf("expected the single configured rule, got %+v", rules)
		}
	})
}

// yamlUnmarshal round-trips YAML through LoadConfigFile semantics by
// writing it to a temp file first.
func yamlUnmarshal(t *testing.T, content string, cf *File) error {
	t.Helper()

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	loaded, err := LoadConfigFile(path)
	if err != nil {
		return err
	}
	*cf = *loaded
	return nil
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.harvester")
		if err == nil {
			t.Fatal("expected error for non-existent file")
		}
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, DefaultConfigFile)

		content := `rules:
  - field: og_title
    tag: meta
    match:
      property: "og:title"
    attr: content
defaults:
  keywordLimit: 12
containers:
  news.wacz:
    priorInventory: "news-prior.txt"
    outputs:
      - "news.jsonl"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cfg.Rules) != 1 || cfg.Rules[0].Field != "og_title" {
			t.Errorf("expected one og_title rule, got %+v", cfg.Rules)
		}
		if cfg.Defaults.KeywordLimit != 12 {
			t.Errorf("expected default keyword limit 12, got %d", cfg.Defaults.KeywordLimit)
		}

		cc, ok := cfg.Containers["news.wacz"]
		if !ok {
			t.Fatal("expected news.wacz in containers")
		}
		if cc.PriorInventory != "news-prior.txt" {
			t.Errorf("expected prior inventory, got %q", cc.PriorInventory)
		}
		if len(cc.Outputs) != 1 {
			t.Errorf("expected 1 output, got %d", len(cc.Outputs))
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, DefaultConfigFile)

		content := `invalid: yaml: content: [}`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("returns error for invalid rules", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, DefaultConfigFile)

		content := `rules:
  - field: broken
    tag: meta
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for rule without source attribute")
		}
	})

	t.Run("initializes nil Containers map", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, DefaultConfigFile)

		content := `defaults:
  keywordLimit: 9
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Containers == nil {
			t.Error("expected Containers map to be initialized")
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Run("returns explicit path if exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "custom.yml")
		if err := os.WriteFile(configPath, []byte("defaults:\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		if got := FindConfigFile("/nonexistent/custom.yml"); got != "" {
			t.Errorf("expected empty path, got %q", got)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	t.Run("data dir ends with app name", func(t *testing.T) {
		t.Parallel()
		if filepath.Base(XDGDataDir()) != AppName {
			t.Errorf("expected data dir to end with %q, got %q", AppName, XDGDataDir())
		}
	})

	t.Run("config dir ends with app name", func(t *testing.T) {
		t.Parallel()
		if filepath.Base(XDGConfigDir()) != AppName {
			t.Errorf("expected config dir to end with %q, got %q", AppName, XDGConfigDir())
		}
	})

	t.Run("cache dir ends with app name", func(t *testing.T) {
		t.Parallel()
		if filepath.Base(XDGCacheDir()) != AppName {
			t.Errorf("expected cache dir to end with %q, got %q", AppName, XDGCacheDir())
		}
	})
}
