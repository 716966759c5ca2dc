package crawl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// statusLogInterval is how many crawler status lines pass between
// progress logs. Browsertrix emits one status line per captured page,
// which would flood the log at info level.
const statusLogInterval = 100

// Request describes one crawl to run. The crawler writes its artifact
// under OutputDir/collections/<Collection>/.
type Request struct {
	// Collection is the crawl collection name. It names the output
	// directory and the artifact file. Required.
	Collection string

	// OutputDir is the crawler working directory. Required.
	OutputDir string

	// ConfigPath is the crawler's own YAML configuration (seeds, scope,
	// limits). Optional; when empty, seeds must come from extra args.
	ConfigPath string

	// Workers is the crawler's page worker count. Zero leaves the
	// crawler's default in place.
	Workers int

	// SitemapFromDate limits sitemap-discovered URLs to those modified
	// after the given date (YYYY-MM-DD). Optional.
	SitemapFromDate string

	// UseSitemap seeds the crawl from the site's sitemap.
	UseSitemap bool
}

// WACZPath returns where the crawler leaves the container artifact for
// this request.
func (r Request) WACZPath() string {
	return filepath.Join(r.OutputDir, "collections", r.Collection, r.Collection+".wacz")
}

// validate checks that the request can locate its results.
func (r Request) validate() error {
	if r.Collection == "" {
		return ErrNoCollection
	}
	if r.OutputDir == "" {
		return ErrNoOutputDir
	}
	return nil
}

// Result reports a completed crawl.
type Result struct {
	// WACZPath is the produced container artifact, ready for ingestion.
	WACZPath string
}

// Runner produces a container artifact for ingestion. Implementations
// must respect context cancellation; a harvest-scale crawl can run for
// an hour.
type Runner interface {
	Crawl(ctx context.Context, req Request) (*Result, error)
}

// ExecRunner runs an external crawler command.
//
// Design decision: One runner instance holds the command and its static
// extra arguments while everything per-crawl travels in the Request.
// This lets the CLI build the runner once from configuration and reuse
// it across a batch of crawls.
type ExecRunner struct {
	// command is the crawler executable.
	command string

	// extraArgs are appended after the generated arguments, so they can
	// override them.
	extraArgs []string

	// logger receives the crawler's output.
	logger *slog.Logger
}

// ExecRunnerOption configures an ExecRunner.
type ExecRunnerOption func(*ExecRunner)

// WithExtraArgs appends raw crawler arguments after the generated ones.
func WithExtraArgs(args []string) ExecRunnerOption {
	return func(r *ExecRunner) {
		r.extraArgs = args
	}
}

// WithLogger sets a custom logger for crawler output.
func WithLogger(logger *slog.Logger) ExecRunnerOption {
	return func(r *ExecRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewExecRunner creates a runner for the given crawler command.
func NewExecRunner(command string, opts ...ExecRunnerOption) *ExecRunner {
	r := &ExecRunner{
		command: command,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Crawl runs the crawler and waits for it to finish. The caller bounds
// the run through ctx; on cancellation the crawler process is killed.
//
// A pre-existing collection directory is removed first: the crawler
// appends WARC data to an existing collection instead of replacing it,
// which would mix two crawls in one artifact.
func (r *ExecRunner) Crawl(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	collectionDir := filepath.Join(req.OutputDir, "collections", req.Collection)
	if _, err := os.Stat(collectionDir); err == nil {
		r.logger.Warn("removing pre-existing crawl", "dir", collectionDir)
		if err := os.RemoveAll(collectionDir); err != nil {
			return nil, fmt.Errorf("failed to remove pre-existing crawl: %w", err)
		}
	}

	args := r.buildArgs(req)
	r.logger.Info("starting crawler",
		"command", r.command,
		"collection", req.Collection,
		"args", strings.Join(args, " "),
	)

	cmd := exec.CommandContext(ctx, r.command, args...) //nolint:gosec // The crawler command is user configuration
	cmd.Dir = req.OutputDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open crawler stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open crawler stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start crawler %s: %w", r.command, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.streamOutput(stdout, "stdout")
	}()
	go func() {
		defer wg.Done()
		r.streamOutput(stderr, "stderr")
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("crawler %s failed: %w", r.command, err)
	}

	waczPath := req.WACZPath()
	if _, err := os.Stat(waczPath); err != nil {
		return nil, fmt.Errorf("%w: expected %s", ErrArtifactNotFound, waczPath)
	}

	r.logger.Info("crawl completed", "artifact", waczPath)
	return &Result{WACZPath: waczPath}, nil
}

// buildArgs assembles the crawler's argument vector: generated
// arguments first, extra arguments last so they win.
func (r *ExecRunner) buildArgs(req Request) []string {
	var args []string
	if req.UseSitemap {
		args = append(args, "--useSitemap")
	}

	args = append(args, "--collection", req.Collection)
	if req.ConfigPath != "" {
		args = append(args, "--config", req.ConfigPath)
	}
	args = append(args, "--logging", "stats")

	if req.Workers > 0 {
		args = append(args, "--workers", strconv.Itoa(req.Workers))
	}
	if req.SitemapFromDate != "" {
		args = append(args, "--sitemapFromDate", req.SitemapFromDate)
	}

	args = append(args, r.extraArgs...)
	return args
}

// streamOutput forwards crawler output lines to the logger. Status
// lines are sampled at info level so long crawls stay observable
// without flooding the log.
func (r *ExecRunner) streamOutput(rd io.Reader, stream string) {
	scanner := bufio.NewScanner(rd)
	// Status lines carry full page URLs and can exceed the default
	// scanner buffer.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	statusCount := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.Contains(line, `"context":"crawlStatus"`) {
			statusCount++
			if statusCount%statusLogInterval == 0 {
				r.logger.Info("crawl progress", "status", line)
			}
		}
		r.logger.Debug("crawler output", "stream", stream, "line", line)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn("crawler output stream ended early", "stream", stream, "error", err)
	}
}
