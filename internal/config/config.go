package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. These are chosen for typical crawl
// archives in the tens-of-thousands-of-pages range; all of them can be
// overridden via CLI flags or the configuration file.
const (
	// DefaultBatchSize is the number of containers processed
	// concurrently when harvesting multiple archives. Each container
	// keeps its decompressed segments in memory, so this bounds peak
	// memory more than CPU.
	DefaultBatchSize = 4

	// DefaultExtractWorkers is the number of capture extractions run
	// concurrently inside one container. Extraction is gzip-bound, so
	// a small pool keeps cores busy without reordering output.
	DefaultExtractWorkers = 4

	// DefaultKeywordLimit is the number of keywords derived per record.
	DefaultKeywordLimit = 10

	// DefaultCrawlTimeout is the maximum duration for one external
	// crawler run. Crawls of large sites routinely take tens of
	// minutes; runs beyond this are aborted.
	DefaultCrawlTimeout = 60 * time.Minute

	// DefaultCrawlerCommand is the external crawler executable invoked
	// by the crawl command. The crawler produces the archive container
	// this tool ingests; it is never linked in.
	DefaultCrawlerCommand = "browsertrix-crawler"

	// AppName is the application name used for XDG directory paths.
	AppName = "harvester"
)

// Config holds all configuration options for a harvest run.
// It is populated from CLI flags plus the optional configuration file
// and passed through the application via dependency injection rather
// than global state.
//
// Design decision: We use a single flat struct instead of nested
// structs for simplicity. The number of options is manageable, and
// nesting would add complexity without significant benefit. Should the
// configuration grow significantly, consider refactoring into
// sub-structs.
type Config struct {
	// ContainerPaths lists the archive containers to harvest.
	// At least one is required for harvest and records commands.
	ContainerPaths []string

	// OutputPaths lists where the assembled record set is written.
	// The file extension selects the format (.jsonl, .csv, .tsv,
	// .xml, .md). When empty, the records command writes JSON Lines
	// to standard output and the harvest command writes no record
	// files.
	OutputPaths []string

	// PriorInventoryPath points at a URL inventory from an earlier
	// crawl: a newline-delimited URL list, or a sitemap when the file
	// has an .xml extension. When set, URLs present there but absent
	// from the current container are emitted as deleted records.
	PriorInventoryPath string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// BatchSize is the number of containers harvested concurrently
	// when multiple container paths are given.
	BatchSize int

	// ExtractWorkers is the number of concurrent capture extractions
	// per container.
	ExtractWorkers int

	// KeywordLimit caps the keywords derived per record.
	// Zero means DefaultKeywordLimit.
	KeywordLimit int

	// KeepHTML retains a base64 copy of each extracted HTML payload
	// in the record output.
	KeepHTML bool

	// VerifyDigests checks every container member against the
	// digests in its datapackage before assembly.
	VerifyDigests bool

	// ConfigFilePath is the path to the configuration file. If empty,
	// the tool searches for .harvester in the current directory and
	// then in the XDG config directory.
	ConfigFilePath string

	// FileConfig holds tag extraction rules and per-container
	// overrides loaded from the configuration file. Populated by
	// LoadConfigFile.
	FileConfig *File

	// DBDir is the directory path for the run-history SQLite
	// database. When set, each harvest is recorded for later
	// comparison and deletion reconciliation. When empty, runs are
	// not persisted. Defaults to the XDG data directory.
	DBDir string

	// SaveToDB indicates whether to record harvests in the database.
	// Automatically set to true when DBDir is configured.
	SaveToDB bool

	// CrawlerCommand is the external crawler executable for the crawl
	// command.
	CrawlerCommand string

	// CrawlerArgs are extra arguments passed to the crawler ahead of
	// the generated ones.
	CrawlerArgs []string

	// CrawlTimeout is the maximum duration for one external crawler
	// run.
	CrawlTimeout time.Duration

	// Crawl runs the external crawler before harvesting. The produced
	// container artifact joins ContainerPaths.
	Crawl bool

	// CrawlCollection is the crawl collection name. It names the
	// crawler's output directory and the artifact file.
	CrawlCollection string

	// CrawlOutputDir is the crawler working directory.
	CrawlOutputDir string

	// CrawlConfigPath is the crawler's own YAML configuration file
	// (seeds, scope, limits).
	CrawlConfigPath string

	// CrawlWorkers is the crawler's page worker count. Zero leaves the
	// crawler's default in place.
	CrawlWorkers int

	// CrawlSitemap seeds the crawl from the site's sitemap.
	CrawlSitemap bool

	// CrawlSitemapFrom limits sitemap-discovered URLs to those modified
	// after the given date (YYYY-MM-DD).
	CrawlSitemapFrom string
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero. This also serves as
// documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ExtractWorkers: DefaultExtractWorkers,
		KeywordLimit:   DefaultKeywordLimit,
		CrawlerCommand: DefaultCrawlerCommand,
		CrawlTimeout:   DefaultCrawlTimeout,
	}
}

// XDGDataDir returns the XDG data directory for harvester.
// On Linux: ~/.local/share/harvester
// On macOS: ~/Library/Application Support/harvester
// On Windows: %LOCALAPPDATA%\harvester
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for harvester.
// On Linux: ~/.config/harvester
// On macOS: ~/Library/Application Support/harvester
// On Windows: %APPDATA%\harvester
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for harvester.
// On Linux: ~/.cache/harvester
// On macOS: ~/Library/Caches/harvester
// On Windows: %LOCALAPPDATA%\harvester\cache
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid. It returns a specific
// error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any container is
// opened. The first error found is returned rather than collecting all
// errors because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.ContainerPaths) == 0 && !c.Crawl {
		return ErrNoContainer
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.ExtractWorkers <= 0 {
		return ErrInvalidWorkerCount
	}
	if c.KeywordLimit < 0 {
		return ErrInvalidKeywordLimit
	}
	if c.CrawlTimeout <= 0 {
		return ErrInvalidCrawlTimeout
	}
	return nil
}
