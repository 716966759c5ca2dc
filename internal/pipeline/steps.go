package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/content"
	"github.com/nao1215/harvester/internal/database"
	"github.com/nao1215/harvester/internal/model"
	"github.com/nao1215/harvester/internal/records"
	"github.com/nao1215/harvester/internal/report"
	"github.com/nao1215/harvester/internal/wacz"
)

// Session holds the per-run resources that cannot live on the Harvest:
// the open container and the staged assembler. The model package sits
// below the container reader, so the Harvest carries only data.
//
// Design decision: Steps share these handles through an explicit
// per-run Session owned by the caller instead of package state because:
// 1. Concurrent batch items stay fully isolated
// 2. The caller controls when the container is closed
// 3. Steps remain testable with a plain struct as input
type Session struct {
	container *wacz.Container
	assembler *records.Assembler
}

// NewSession creates an empty session for one pipeline run.
func NewSession() *Session {
	return &Session{}
}

// Container returns the opened container, or nil before validation ran.
func (s *Session) Container() *wacz.Container {
	return s.container
}

// Close releases the session's container. Safe to call when nothing was
// opened.
func (s *Session) Close() error {
	if s.container == nil {
		return nil
	}
	return s.container.Close()
}

// ValidateContainerStep opens the container artifact and validates its
// layout. With digest verification enabled it also checks every member
// against the manifest hashes before any member is trusted.
type ValidateContainerStep struct {
	// session receives the opened container.
	session *Session

	// verify enables manifest digest verification.
	verify bool

	// logger for structured logging.
	logger *slog.Logger
}

// ValidateContainerOption configures a ValidateContainerStep.
type ValidateContainerOption func(*ValidateContainerStep)

// WithVerifyDigests enables digest verification against the container
// manifest.
func WithVerifyDigests(verify bool) ValidateContainerOption {
	return func(s *ValidateContainerStep) {
		s.verify = verify
	}
}

// WithValidateLogger sets a custom logger for the validation step.
func WithValidateLogger(logger *slog.Logger) ValidateContainerOption {
	return func(s *ValidateContainerStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewValidateContainerStep creates a container validation step. The
// opened container is stored on the session for the following steps.
func NewValidateContainerStep(session *Session, opts ...ValidateContainerOption) *ValidateContainerStep {
	s := &ValidateContainerStep{
		session: session,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ValidateContainerStep) Name() string {
	return "validate_container"
}

// Do opens and validates the container.
func (s *ValidateContainerStep) Do(_ context.Context, h *model.Harvest) error {
	c, err := wacz.Open(h.ContainerPath, wacz.WithLogger(s.logger))
	if err != nil {
		return err
	}
	s.session.container = c

	if s.verify {
		if err := c.Verify(); err != nil {
			return err
		}
		s.logger.Debug("container digests verified", "container", h.ContainerPath)
	}

	s.logger.Debug("container opened",
		"container", h.ContainerPath,
		"segments", len(c.Segments()),
	)

	return nil
}

// LoadPagesStep reads the page manifests into the harvest. The primary
// manifest is required; the secondary one fills gaps when present.
type LoadPagesStep struct {
	// session provides the opened container.
	session *Session

	// logger for structured logging.
	logger *slog.Logger
}

// LoadPagesOption configures a LoadPagesStep.
type LoadPagesOption func(*LoadPagesStep)

// WithPagesLogger sets a custom logger for the manifest loading step.
func WithPagesLogger(logger *slog.Logger) LoadPagesOption {
	return func(s *LoadPagesStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewLoadPagesStep creates a manifest loading step.
func NewLoadPagesStep(session *Session, opts ...LoadPagesOption) *LoadPagesStep {
	s := &LoadPagesStep{
		session: session,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *LoadPagesStep) Name() string {
	return "load_pages"
}

// Do loads both page manifests.
func (s *LoadPagesStep) Do(_ context.Context, h *model.Harvest) error {
	c := s.session.Container()
	if c == nil {
		return fmt.Errorf("%w: container is not open", ErrStepNotReady)
	}

	pages, err := c.Pages()
	if err != nil {
		return err
	}
	extra, err := c.ExtraPages()
	if err != nil {
		return err
	}

	h.Pages = pages
	h.ExtraPages = extra

	s.logger.Debug("page manifests loaded",
		"pages", len(pages),
		"extra_pages", len(extra),
	)

	return nil
}

// LoadIndexStep reads the content index into the harvest.
type LoadIndexStep struct {
	// session provides the opened container.
	session *Session

	// logger for structured logging.
	logger *slog.Logger
}

// LoadIndexOption configures a LoadIndexStep.
type LoadIndexOption func(*LoadIndexStep)

// WithIndexLogger sets a custom logger for the index loading step.
func WithIndexLogger(logger *slog.Logger) LoadIndexOption {
	return func(s *LoadIndexStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewLoadIndexStep creates an index loading step.
func NewLoadIndexStep(session *Session, opts ...LoadIndexOption) *LoadIndexStep {
	s := &LoadIndexStep{
		session: session,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *LoadIndexStep) Name() string {
	return "load_index"
}

// Do loads the content index.
func (s *LoadIndexStep) Do(_ context.Context, h *model.Harvest) error {
	c := s.session.Container()
	if c == nil {
		return fmt.Errorf("%w: container is not open", ErrStepNotReady)
	}

	idx, err := c.Index()
	if err != nil {
		return err
	}
	h.Index = idx

	s.logger.Debug("content index loaded",
		"entries", idx.Len(),
		"skipped", idx.Skipped(),
	)

	return nil
}

// LoadPriorInventoryStep loads the previous run's URL inventory for
// deletion reconciliation. The inventory comes from an explicit URL
// list file when configured, otherwise from the latest recorded run in
// the history store.
//
// A missing or unreadable prior inventory is not fatal: the harvest
// proceeds with zero deletions.
type LoadPriorInventoryStep struct {
	// db is the run-history store. May be nil.
	db *database.HarvestDB

	// priorFile is an explicit URL list file. Takes precedence over db.
	priorFile string

	// logger for structured logging.
	logger *slog.Logger
}

// LoadPriorInventoryOption configures a LoadPriorInventoryStep.
type LoadPriorInventoryOption func(*LoadPriorInventoryStep)

// WithPriorFile sets an explicit prior-inventory file: one URL per
// line, or a sitemap when the file carries an .xml extension.
func WithPriorFile(path string) LoadPriorInventoryOption {
	return func(s *LoadPriorInventoryStep) {
		s.priorFile = path
	}
}

// WithPriorLogger sets a custom logger for the prior-inventory step.
func WithPriorLogger(logger *slog.Logger) LoadPriorInventoryOption {
	return func(s *LoadPriorInventoryStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewLoadPriorInventoryStep creates a prior-inventory loading step.
// db may be nil when no history store is configured.
func NewLoadPriorInventoryStep(db *database.HarvestDB, opts ...LoadPriorInventoryOption) *LoadPriorInventoryStep {
	s := &LoadPriorInventoryStep{
		db:     db,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *LoadPriorInventoryStep) Name() string {
	return "load_prior_inventory"
}

// Do loads the prior inventory from the configured source.
func (s *LoadPriorInventoryStep) Do(ctx context.Context, h *model.Harvest) error {
	if s.priorFile != "" {
		urls, err := readURLFile(s.priorFile)
		if err != nil {
			s.logger.Warn("prior inventory unreadable, proceeding without deletions",
				"path", s.priorFile,
				"error", err,
			)
			return nil
		}
		h.PriorInventory = urls
		s.logger.Debug("prior inventory loaded", "path", s.priorFile, "urls", len(urls))
		return nil
	}

	if s.db == nil {
		s.logger.Debug("no prior inventory source configured")
		return nil
	}

	latest, err := s.db.LatestRun(ctx)
	if errors.Is(err, database.ErrRunNotFound) {
		s.logger.Debug("no prior run recorded")
		return nil
	}
	if err != nil {
		s.logger.Warn("history store unreadable, proceeding without deletions", "error", err)
		return nil
	}

	urls, err := s.db.Inventory(ctx, latest.ID)
	if err != nil {
		s.logger.Warn("prior run inventory unreadable, proceeding without deletions",
			"run_id", latest.ID,
			"error", err,
		)
		return nil
	}

	h.PriorInventory = urls
	s.logger.Debug("prior inventory loaded from history",
		"run_id", latest.ID,
		"urls", len(urls),
	)

	return nil
}

// readURLFile reads a prior URL inventory file. Files with an .xml
// extension are parsed as sitemaps; everything else is treated as a
// plain list with one URL per line and blank lines skipped.
func readURLFile(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided inventory path is intentional
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return content.ParseSitemap(bytes.NewReader(data))
	}

	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}

	return urls, nil
}

// AssembleRecordsStep joins the loaded manifests, index, and capture
// segments into assembled rows. The staged assembler is stored on the
// session so the reconciliation step can finish it.
type AssembleRecordsStep struct {
	// session provides the container and receives the assembler.
	session *Session

	// workers is the extraction concurrency.
	workers int

	// keepHTML enables raw payload retention.
	keepHTML bool

	// keywordLimit caps derived keywords per record.
	keywordLimit int

	// rules are the metadata extraction rules.
	rules content.Rules

	// logger for structured logging.
	logger *slog.Logger
}

// AssembleOption configures an AssembleRecordsStep.
type AssembleOption func(*AssembleRecordsStep)

// WithAssembleWorkers sets the extraction concurrency.
func WithAssembleWorkers(n int) AssembleOption {
	return func(s *AssembleRecordsStep) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithAssembleRawHTML enables raw payload retention on assembled rows.
func WithAssembleRawHTML(keep bool) AssembleOption {
	return func(s *AssembleRecordsStep) {
		s.keepHTML = keep
	}
}

// WithAssembleKeywordLimit caps how many keywords are derived per record.
func WithAssembleKeywordLimit(n int) AssembleOption {
	return func(s *AssembleRecordsStep) {
		if n > 0 {
			s.keywordLimit = n
		}
	}
}

// WithAssembleRules sets the metadata extraction rules.
func WithAssembleRules(rules content.Rules) AssembleOption {
	return func(s *AssembleRecordsStep) {
		if rules != nil {
			s.rules = rules
		}
	}
}

// WithAssembleLogger sets a custom logger for the assembly step.
func WithAssembleLogger(logger *slog.Logger) AssembleOption {
	return func(s *AssembleRecordsStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewAssembleRecordsStep creates a record assembly step.
func NewAssembleRecordsStep(session *Session, opts ...AssembleOption) *AssembleRecordsStep {
	s := &AssembleRecordsStep{
		session:      session,
		workers:      config.DefaultExtractWorkers,
		keywordLimit: config.DefaultKeywordLimit,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *AssembleRecordsStep) Name() string {
	return "assemble_records"
}

// Do runs the assembler through content extraction.
func (s *AssembleRecordsStep) Do(ctx context.Context, h *model.Harvest) error {
	c := s.session.Container()
	if c == nil {
		return fmt.Errorf("%w: container is not open", ErrStepNotReady)
	}

	asmOpts := []records.Option{
		records.WithLogger(s.logger),
		records.WithWorkers(s.workers),
		records.WithRawHTML(s.keepHTML),
		records.WithKeywordLimit(s.keywordLimit),
		records.WithRules(s.rules),
	}

	asm := records.New(asmOpts...)
	if err := asm.LoadInventory(h.Pages, h.ExtraPages); err != nil {
		return err
	}
	if err := asm.AttachIndex(h.Index); err != nil {
		return err
	}
	if err := asm.Extract(ctx, c); err != nil {
		return err
	}

	s.session.assembler = asm
	return nil
}

// ReconcileDeletionsStep reconciles the prior inventory against the
// assembled rows and finalizes the record set onto the harvest.
type ReconcileDeletionsStep struct {
	// session provides the staged assembler.
	session *Session

	// logger for structured logging.
	logger *slog.Logger
}

// ReconcileDeletionsOption configures a ReconcileDeletionsStep.
type ReconcileDeletionsOption func(*ReconcileDeletionsStep)

// WithReconcileLogger sets a custom logger for the reconciliation step.
func WithReconcileLogger(logger *slog.Logger) ReconcileDeletionsOption {
	return func(s *ReconcileDeletionsStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewReconcileDeletionsStep creates a deletion reconciliation step.
func NewReconcileDeletionsStep(session *Session, opts ...ReconcileDeletionsOption) *ReconcileDeletionsStep {
	s := &ReconcileDeletionsStep{
		session: session,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ReconcileDeletionsStep) Name() string {
	return "reconcile_deletions"
}

// Do reconciles deletions and finalizes the record set.
func (s *ReconcileDeletionsStep) Do(_ context.Context, h *model.Harvest) error {
	asm := s.session.assembler
	if asm == nil {
		return fmt.Errorf("%w: records have not been assembled", ErrStepNotReady)
	}

	if err := asm.ReconcileDeletions(h.PriorInventory); err != nil {
		return err
	}

	set, err := asm.Finalize()
	if err != nil {
		return err
	}
	h.RecordSet = set

	s.logger.Debug("record set finalized",
		"total", set.Len(),
		"active", set.Active(),
		"deleted", set.Deleted(),
	)

	return nil
}

// SaveHistoryStep records the finished run in the history store.
type SaveHistoryStep struct {
	// db is the run-history store. May be nil, which disables recording.
	db *database.HarvestDB

	// logger for structured logging.
	logger *slog.Logger
}

// SaveHistoryOption configures a SaveHistoryStep.
type SaveHistoryOption func(*SaveHistoryStep)

// WithHistoryLogger sets a custom logger for the history step.
func WithHistoryLogger(logger *slog.Logger) SaveHistoryOption {
	return func(s *SaveHistoryStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSaveHistoryStep creates a history recording step. db may be nil
// when history recording is disabled.
func NewSaveHistoryStep(db *database.HarvestDB, opts ...SaveHistoryOption) *SaveHistoryStep {
	s := &SaveHistoryStep{
		db:     db,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *SaveHistoryStep) Name() string {
	return "save_history"
}

// Do records the run.
func (s *SaveHistoryStep) Do(ctx context.Context, h *model.Harvest) error {
	if s.db == nil {
		s.logger.Debug("history recording disabled")
		return nil
	}
	if h.RecordSet == nil {
		return fmt.Errorf("%w: record set has not been finalized", ErrStepNotReady)
	}

	info := model.RunInfo{
		Container:  h.ContainerPath,
		StartedAt:  h.StartedAt,
		FinishedAt: time.Now(),
	}

	id, err := s.db.SaveRun(ctx, info, h.RecordSet)
	if err != nil {
		return err
	}
	h.RunID = id

	s.logger.Info("run recorded", "run_id", id)
	return nil
}

// WriteOutputsStep writes the record set to every configured output
// path, with the format chosen by file extension.
type WriteOutputsStep struct {
	// paths are the output files to write.
	paths []string

	// logger for structured logging.
	logger *slog.Logger
}

// WriteOutputsOption configures a WriteOutputsStep.
type WriteOutputsOption func(*WriteOutputsStep)

// WithOutputLogger sets a custom logger for the output step.
func WithOutputLogger(logger *slog.Logger) WriteOutputsOption {
	return func(s *WriteOutputsStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewWriteOutputsStep creates an output writing step.
func NewWriteOutputsStep(paths []string, opts ...WriteOutputsOption) *WriteOutputsStep {
	s := &WriteOutputsStep{
		paths:  paths,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *WriteOutputsStep) Name() string {
	return "write_outputs"
}

// Do writes all configured outputs.
func (s *WriteOutputsStep) Do(_ context.Context, h *model.Harvest) error {
	if h.RecordSet == nil {
		return fmt.Errorf("%w: record set has not been finalized", ErrStepNotReady)
	}
	if len(s.paths) == 0 {
		s.logger.Debug("no outputs configured")
		return nil
	}

	for _, path := range s.paths {
		n, err := s.writeOne(path, h.RecordSet)
		if err != nil {
			return err
		}
		h.OutputPaths = append(h.OutputPaths, path)
		s.logger.Info("output written", "path", path, "bytes", n)
	}

	return nil
}

// writeOne writes the record set to a single output file.
func (s *WriteOutputsStep) writeOne(path string, set *model.RecordSet) (int, error) {
	f, err := os.Create(path) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return 0, fmt.Errorf("failed to create output %s: %w", path, err)
	}

	w, err := report.WriterForPath(path, f)
	if err != nil {
		_ = f.Close()
		return 0, err
	}

	n, err := w.Write(set)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write output %s: %w", path, err)
	}

	return n, nil
}

// DefaultPipeline creates a pipeline with all standard steps configured.
// This is the standard flow for harvesting one container.
//
// Design decision: We provide a default pipeline because:
// 1. Most users want the full flow
// 2. Reduces boilerplate in CLI
// 3. Ensures consistent ordering
//
// The session is owned by the caller, which closes it after Execute
// returns. db may be nil to disable history recording and the
// history-based prior inventory.
func DefaultPipeline(session *Session, cfg *config.Config, db *database.HarvestDB, logger *slog.Logger, pipelineOpts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	opts := append([]Option{WithLogger(logger)}, pipelineOpts...)
	p := New(opts...)

	priorOpts := []LoadPriorInventoryOption{WithPriorLogger(logger)}
	if cfg.PriorInventoryPath != "" {
		priorOpts = append(priorOpts, WithPriorFile(cfg.PriorInventoryPath))
	}

	p.AddSteps(
		NewValidateContainerStep(session,
			WithValidateLogger(logger),
			WithVerifyDigests(cfg.VerifyDigests),
		),
		NewLoadPagesStep(session, WithPagesLogger(logger)),
		NewLoadIndexStep(session, WithIndexLogger(logger)),
		NewLoadPriorInventoryStep(db, priorOpts...),
		NewAssembleRecordsStep(session,
			WithAssembleLogger(logger),
			WithAssembleWorkers(cfg.ExtractWorkers),
			WithAssembleRules(cfg.FileConfig.ExtractionRules()),
			WithAssembleRawHTML(cfg.KeepHTML),
			WithAssembleKeywordLimit(cfg.KeywordLimit),
		),
		NewReconcileDeletionsStep(session, WithReconcileLogger(logger)),
		NewSaveHistoryStep(db, WithHistoryLogger(logger)),
		NewWriteOutputsStep(cfg.OutputPaths, WithOutputLogger(logger)),
	)

	return p
}
