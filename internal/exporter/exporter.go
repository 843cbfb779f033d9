// Package exporter drives a space export end to end: discovery phases over
// the persistent queue, a bounded worker pool fetching and transforming
// pages, attachment downloads, manifest and journal bookkeeping, and the
// final link-rewriting pass.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/rgonek/confluence-space-export/internal/cleanup"
	"github.com/rgonek/confluence-space-export/internal/confluence"
	"github.com/rgonek/confluence-space-export/internal/fs"
	"github.com/rgonek/confluence-space-export/internal/journal"
	"github.com/rgonek/confluence-space-export/internal/manifest"
	"github.com/rgonek/confluence-space-export/internal/queue"
	"github.com/rgonek/confluence-space-export/internal/resume"
	"github.com/rgonek/confluence-space-export/internal/transform"
)

// ErrValidation marks structural manifest or output validation failures that
// cannot be recovered from.
var ErrValidation = errors.New("validation failed")

// Defaults for the discovery loop.
const (
	DefaultConcurrency        = 5
	DefaultBatchSize          = 25
	DefaultMaxDiscoveryPhases = 1000
	DefaultMaxEmptyPhases     = 3
	DefaultPauseBetweenPhases = 200 * time.Millisecond
	DefaultSearchPageSize     = 500
)

// SpacesDirName is the directory under the output root holding per-space
// trees.
const SpacesDirName = "spaces"

// Progress receives user-facing progress updates. The CLI backs it with a
// progress bar; tests pass nil.
type Progress interface {
	SetDescription(string)
	SetTotal(int)
	Add(int)
	Done()
}

type nopProgress struct{}

func (nopProgress) SetDescription(string) {}
func (nopProgress) SetTotal(int)          {}
func (nopProgress) Add(int)               {}
func (nopProgress) Done()                 {}

// Config tunes one export run.
type Config struct {
	BaseURL    string
	SpaceKey   string
	RootPageID string
	OutputDir  string

	Concurrency        int
	BatchSize          int
	MaxDiscoveryPhases int
	MaxEmptyPhases     int
	PauseBetweenPhases time.Duration
	// PhaseTimeout bounds one discovery phase; unfinished items return to
	// pending for the next phase. Zero disables the deadline.
	PhaseTimeout   time.Duration
	SearchPageSize int

	DryRun          bool
	SkipAttachments bool
	Resume          bool

	Queue           queue.Options
	Retry           RetryConfig
	Thresholds      Thresholds
	BackupRetention int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxDiscoveryPhases <= 0 {
		c.MaxDiscoveryPhases = DefaultMaxDiscoveryPhases
	}
	if c.MaxEmptyPhases <= 0 {
		c.MaxEmptyPhases = DefaultMaxEmptyPhases
	}
	if c.PauseBetweenPhases <= 0 {
		c.PauseBetweenPhases = DefaultPauseBetweenPhases
	}
	if c.SearchPageSize <= 0 {
		c.SearchPageSize = DefaultSearchPageSize
	}
	if c.Retry.MaxRetries == 0 && c.Retry.BaseDelay == 0 {
		c.Retry = DefaultRetryConfig()
	}
	if c.Queue.SpaceKey == "" {
		c.Queue.SpaceKey = c.SpaceKey
	}
	return c
}

// Run states reported in the result.
const (
	RunCompleted   = "completed"
	RunInterrupted = "interrupted"
)

// Result summarizes one export run.
type Result struct {
	SpaceKey string
	State    string

	PagesExported  int
	PagesUnchanged int
	PagesDenied    int
	PagesRemoved   int
	PagesFailed    int

	AttachmentsExported int
	AttachmentsFailed   int
	AttachmentsTotal    int

	Phases             int
	Rewrite            RewriteResult
	Restricted         RestrictedSummary
	Errors             []ProcessingError
	Recovery           queue.RecoveryReport
	QueueMetrics       queue.MetricsSnapshot
	HealthScore        int
	ThresholdsExceeded bool
	Duration           time.Duration
}

// Exporter owns the queue, manifest-in-progress, and journal for the
// lifetime of one export. The API adapter and transformer are stateless
// collaborators.
type Exporter struct {
	api      confluence.API
	cfg      Config
	log      log.Logger
	progress Progress

	queue      *queue.Queue
	monitor    *queue.Monitor
	manifest   *manifest.Manifest
	journal    *journal.Journal
	restricted *restrictedHandler
	resolver   *transform.UserResolver
	cleaner    *cleanup.Pipeline
	recovery   queue.RecoveryReport

	// priorEntries is a read-only snapshot of the previous run's manifest,
	// taken before workers start. Workers consult it without locking while
	// e.manifest is being appended to under e.mu.
	priorEntries map[string]manifest.Entry

	mu      sync.Mutex
	planner *pathPlanner
	errors  []ProcessingError

	pagesExported       int
	pagesUnchanged      int
	pagesDenied         int
	pagesRemoved        int
	pagesFailed         int
	attachmentsExported int
	attachmentsFailed   int
	attachmentsTotal    int
}

// New creates an exporter. A nil progress is replaced with a no-op sink.
func New(api confluence.API, cfg Config, logger log.Logger, progress Progress) *Exporter {
	if progress == nil {
		progress = nopProgress{}
	}
	cfg = cfg.withDefaults()
	return &Exporter{
		api:        api,
		cfg:        cfg,
		log:        logger,
		progress:   progress,
		monitor:    queue.NewMonitor(queue.MonitorConfig{MaxQueueSize: cfg.Queue.MaxQueueSize}),
		restricted: newRestrictedHandler(),
		resolver:   transform.NewUserResolver(api),
		cleaner:    cleanup.NewPipeline(cleanup.DefaultRules()),
		planner:    newPathPlanner(cfg.RootPageID),
	}
}

// Manifest exposes the manifest built by the run, for post-export consumers
// like the search indexer.
func (e *Exporter) Manifest() *manifest.Manifest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manifest
}

func (e *Exporter) spaceDir() string {
	return filepath.Join(e.cfg.OutputDir, SpacesDirName, e.cfg.SpaceKey)
}

// Run executes the export. Cancelling ctx requests a graceful stop: no new
// items are pulled, state is persisted, and the in-progress sentinel records
// the interruption.
func (e *Exporter) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	if err := e.prepareState(); err != nil {
		return Result{SpaceKey: e.cfg.SpaceKey}, err
	}
	if err := e.seed(ctx); err != nil {
		return e.buildResult(RunInterrupted, start), fmt.Errorf("seed queue: %w", err)
	}

	if !e.cfg.DryRun {
		err := resume.WriteInProgress(e.cfg.OutputDir, resume.InProgressSentinel{
			SpaceKey: e.cfg.SpaceKey,
		})
		if err != nil {
			return e.buildResult(RunInterrupted, start), fmt.Errorf("write in-progress sentinel: %w", err)
		}
	}

	phases := e.runPhases(ctx)

	if ctx.Err() != nil {
		e.finalizeInterrupted()
		result := e.buildResult(RunInterrupted, start)
		result.Phases = phases
		return result, nil
	}

	result := e.buildResult(RunCompleted, start)
	result.Phases = phases
	if err := e.finalizeCompleted(&result); err != nil {
		return result, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

// prepareState restores or initializes the queue, journal, and manifest.
func (e *Exporter) prepareState() error {
	if e.cfg.Resume {
		q, report, err := queue.Restore(e.cfg.OutputDir, e.cfg.Queue)
		if err != nil {
			return fmt.Errorf("restore queue: %w", err)
		}
		e.queue = q
		e.recovery = report

		j, err := journal.Load(filepath.Join(e.cfg.OutputDir, journal.FileName), e.cfg.SpaceKey)
		if err != nil {
			return fmt.Errorf("load journal: %w", err)
		}
		e.journal = j
	} else {
		e.queue = queue.New(e.cfg.Queue)
		e.journal = journal.New(e.cfg.SpaceKey)
		e.recovery = queue.RecoveryReport{Source: "fresh"}
	}

	manifestPath := filepath.Join(e.cfg.OutputDir, manifest.FileName)
	prior, err := manifest.Load(manifestPath)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		prior = manifest.New(e.cfg.SpaceKey)
	default:
		return fmt.Errorf("load prior manifest: %w", err)
	}

	e.priorEntries = make(map[string]manifest.Entry, len(prior.Entries))
	for _, entry := range prior.Entries {
		e.priorEntries[entry.ID] = entry
	}

	if e.cfg.Resume {
		// The prior manifest carries forward so a resumed run ends with the
		// full entry set; its paths stay reserved.
		e.manifest = prior
		for _, entry := range prior.Entries {
			e.planner.reserve(entry.ID, entry.Path)
		}
	} else {
		e.manifest = manifest.New(e.cfg.SpaceKey)
	}
	return nil
}

// seed enqueues the initial work: the root page when one is given, otherwise
// every page of the space found by search.
func (e *Exporter) seed(ctx context.Context) error {
	if !e.queue.IsEmpty() || e.queue.ProcessedCount() > 0 {
		return nil
	}

	if e.cfg.RootPageID != "" {
		_, err := e.queue.Add(queue.Item{
			PageID:     e.cfg.RootPageID,
			SourceType: queue.SourceInitial,
		})
		return err
	}

	cql := fmt.Sprintf(`space = %q AND type = page`, e.cfg.SpaceKey)
	refs, err := e.api.SearchPages(ctx, cql, e.cfg.SearchPageSize)
	if err != nil {
		return err
	}
	items := make([]queue.Item, 0, len(refs))
	for _, ref := range refs {
		items = append(items, queue.Item{PageID: ref.ID, SourceType: queue.SourceInitial})
	}
	added, err := e.queue.AddBatch(items)
	if err != nil {
		return err
	}
	e.progress.SetTotal(added)
	e.log.Info().Str("space", e.cfg.SpaceKey).Int("pages", added).Msg("seeded export queue")
	return nil
}

// runPhases drains the queue in discovery phases until it empties or the
// context is cancelled. Returns the number of phases run.
func (e *Exporter) runPhases(ctx context.Context) int {
	phase := 0
	emptyPhases := 0

	for ctx.Err() == nil && phase < e.cfg.MaxDiscoveryPhases {
		phase++

		batch := e.drainBatch()
		if len(batch) == 0 {
			if e.queue.IsEmpty() {
				break
			}
			emptyPhases++
			if emptyPhases >= e.cfg.MaxEmptyPhases {
				break
			}
			e.pause(ctx)
			continue
		}
		emptyPhases = 0

		phaseCtx := ctx
		cancelPhase := func() {}
		if e.cfg.PhaseTimeout > 0 {
			phaseCtx, cancelPhase = context.WithTimeout(ctx, e.cfg.PhaseTimeout)
		}

		var g errgroup.Group
		g.SetLimit(e.cfg.Concurrency)
		for _, item := range batch {
			item := item
			g.Go(func() error {
				e.processItem(phaseCtx, item)
				return nil
			})
		}
		_ = g.Wait()
		cancelPhase()

		if phaseCtx.Err() != nil && ctx.Err() == nil {
			// Soft deadline: unfinished items go back to pending and the
			// next phase picks them up.
			for _, item := range batch {
				e.queue.Requeue(item.PageID)
			}
			e.log.Warn().Int("phase", phase).Dur("timeout", e.cfg.PhaseTimeout).Msg("phase deadline exceeded")
		}

		if e.queue.ShouldPersist() {
			e.persistQueue()
		}
		metrics := e.queue.GetMetrics()
		for _, alert := range e.monitor.Check(metrics) {
			entry := e.log.Warn()
			if alert.Severity == queue.SeverityCritical {
				entry = e.log.Error()
			}
			entry.Str("kind", alert.Kind).Msg(alert.Message)
		}

		e.pause(ctx)
	}
	return phase
}

func (e *Exporter) drainBatch() []queue.Item {
	batch := []queue.Item{}
	for len(batch) < e.cfg.BatchSize {
		item, ok := e.queue.Next()
		if !ok {
			break
		}
		batch = append(batch, item)
	}
	return batch
}

func (e *Exporter) pause(ctx context.Context) {
	select {
	case <-time.After(e.cfg.PauseBetweenPhases):
	case <-ctx.Done():
	}
}

// processItem runs the per-page pipeline: fetch, transform, write, manifest,
// discovery, mark processed. Cancellation before the write discards the work;
// the finalizer returns the item to pending.
func (e *Exporter) processItem(ctx context.Context, item queue.Item) {
	if ctx.Err() != nil {
		return
	}
	e.journal.Record(item.PageID, journal.TypePage, journal.StatusPending, "", "")

	page, classification, perr := fetchPageWithRetry(ctx, e.api, item.PageID, e.cfg.Retry)
	if perr != nil {
		e.handleFetchFailure(item, classification, perr)
		return
	}
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	relPath := e.planner.planFor(page)
	e.mu.Unlock()
	base := strings.TrimSuffix(relPath, ".md")

	result, err := transform.Transform(page, transform.Context{
		BaseURL:  e.cfg.BaseURL,
		SpaceKey: e.cfg.SpaceKey,
		PageSlug: path.Base(base),
	})
	if err != nil {
		e.recordTerminalFailure(item.PageID, &ProcessingError{
			PageID:   item.PageID,
			Kind:     KindContent,
			Severity: SeverityMedium,
			Message:  err.Error(),
			Err:      err,
		})
		return
	}

	content := result.Content
	if resolved, err := e.resolver.Resolve(ctx, content, result.Users); err == nil {
		content = resolved
	}
	content, _ = e.cleaner.Run(content, cleanup.Context{
		PageID:    page.ID,
		PageTitle: page.Title,
		SpaceKey:  e.cfg.SpaceKey,
	})

	doc, err := fs.FormatMarkdownDocument(fs.MarkdownDocument{
		Frontmatter: result.FrontMatter,
		Body:        content,
	})
	if err != nil {
		e.recordTerminalFailure(item.PageID, &ProcessingError{
			PageID:   item.PageID,
			Kind:     KindContent,
			Severity: SeverityMedium,
			Message:  err.Error(),
			Err:      err,
		})
		return
	}

	hash := fs.ContentHash(doc)
	status := manifest.StatusExported
	if prior, ok := e.priorEntries[page.ID]; ok &&
		prior.Hash == hash && prior.Path == relPath && e.fileExists(relPath) {
		status = manifest.StatusUnchanged
	}

	if ctx.Err() != nil {
		return
	}
	if status == manifest.StatusExported && !e.cfg.DryRun {
		target := filepath.Join(e.spaceDir(), filepath.FromSlash(relPath))
		if err := fs.WriteFileAtomic(target, doc); err != nil {
			e.recordTerminalFailure(item.PageID, &ProcessingError{
				PageID:   item.PageID,
				Kind:     KindFilesystem,
				Severity: SeverityHigh,
				Message:  err.Error(),
				Err:      err,
			})
			return
		}
	}

	e.mu.Lock()
	e.manifest.Upsert(manifest.Entry{
		ID:       page.ID,
		Title:    page.Title,
		Path:     relPath,
		Hash:     hash,
		Status:   status,
		Version:  page.Version,
		ParentID: page.ParentID,
	})
	if status == manifest.StatusUnchanged {
		e.pagesUnchanged++
	} else {
		e.pagesExported++
	}
	e.mu.Unlock()

	e.enqueueDiscoveries(ctx, page, result)
	if !e.cfg.SkipAttachments && !e.cfg.DryRun {
		e.exportAttachments(ctx, page, base)
	}

	if err := e.queue.MarkProcessed(page.ID); err != nil {
		e.log.Warn().Str("pageId", page.ID).Err(err).Msg("mark processed")
	}
	e.journal.Record(page.ID, journal.TypePage, journal.StatusCompleted, relPath, "")
	if e.queue.ShouldPersist() {
		e.persistQueue()
	}
	e.progress.Add(1)
	e.log.Debug().Str("pageId", page.ID).Str("path", relPath).Str("status", status).Msg("page done")
}

func (e *Exporter) fileExists(relPath string) bool {
	_, err := os.Stat(filepath.Join(e.spaceDir(), filepath.FromSlash(relPath)))
	return err == nil
}

// handleFetchFailure routes a classified fetch failure: restricted outcomes
// produce a manifest entry and never retry; transient ones go back through
// the queue's retry accounting.
func (e *Exporter) handleFetchFailure(item queue.Item, classification string, perr *ProcessingError) {
	switch classification {
	case FetchPermissionDenied, FetchRestrictedSpace:
		e.restricted.record(item.PageID, classification, perr.Message)
		e.upsertStatusOnly(item.PageID, manifest.StatusDenied)
		e.mu.Lock()
		e.pagesDenied++
		e.mu.Unlock()
		_ = e.queue.MarkFailed(item.PageID, perr, false)
		e.journal.Record(item.PageID, journal.TypePage, journal.StatusFailed, "", perr.Message)

	case FetchNotFound, FetchArchived, FetchDeleted:
		e.restricted.record(item.PageID, classification, perr.Message)
		e.upsertStatusOnly(item.PageID, manifest.StatusRemoved)
		e.mu.Lock()
		e.pagesRemoved++
		e.mu.Unlock()
		_ = e.queue.MarkFailed(item.PageID, perr, false)
		e.journal.Record(item.PageID, journal.TypePage, journal.StatusFailed, "", perr.Message)

	default:
		retryable := classification == FetchTransient || classification == FetchAPIError
		_ = e.queue.MarkFailed(item.PageID, perr, retryable)
		terminal := !retryable || item.RetryCount+1 >= e.queueMaxRetries()
		if terminal {
			e.recordError(perr)
			e.mu.Lock()
			e.pagesFailed++
			e.mu.Unlock()
			e.journal.Record(item.PageID, journal.TypePage, journal.StatusFailed, "", perr.Message)
		} else {
			e.log.Warn().Str("pageId", item.PageID).Str("kind", perr.Kind).Msg("fetch failed, requeued")
		}
	}
}

// recordTerminalFailure marks a queue item failed with no retry and records
// the error.
func (e *Exporter) recordTerminalFailure(pageID string, perr *ProcessingError) {
	_ = e.queue.MarkFailed(pageID, perr, false)
	e.recordError(perr)
	e.mu.Lock()
	e.pagesFailed++
	e.mu.Unlock()
	e.journal.Record(pageID, journal.TypePage, journal.StatusFailed, "", perr.Message)
}

func (e *Exporter) upsertStatusOnly(pageID, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manifest.Upsert(manifest.Entry{ID: pageID, Status: status})
}

func (e *Exporter) recordError(perr *ProcessingError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, *perr)
}

func (e *Exporter) queueMaxRetries() int {
	if e.cfg.Queue.MaxRetries > 0 {
		return e.cfg.Queue.MaxRetries
	}
	return 3
}

// enqueueDiscoveries adds the page's children, link targets, and macro page
// sets to the queue. Queue-full is logged, not fatal: the already-queued
// closure still completes.
func (e *Exporter) enqueueDiscoveries(ctx context.Context, page confluence.Page, result transform.Result) {
	items := []queue.Item{}
	for _, id := range result.DiscoveredPageIDs {
		items = append(items, queue.Item{
			PageID:       id,
			SourceType:   queue.SourceReference,
			ParentPageID: page.ID,
		})
	}

	// Structural children keep the breadth-first walk going.
	for _, child := range e.listChildren(ctx, page.ID) {
		items = append(items, queue.Item{
			PageID:       child.ID,
			SourceType:   queue.SourceReference,
			ParentPageID: page.ID,
		})
	}

	requests, err := transform.Discover(page.BodyStorage, page.ID)
	if err != nil {
		e.log.Warn().Str("pageId", page.ID).Err(err).Msg("macro discovery")
	}
	for _, req := range requests {
		switch req.Kind {
		case transform.DiscoverChildren:
			parents := []string{}
			if req.PageID != "" && req.PageID != page.ID {
				parents = append(parents, req.PageID)
			}
			if req.Title != "" {
				cql := fmt.Sprintf(`space = %q AND type = page AND title = %q`, e.cfg.SpaceKey, req.Title)
				if refs, err := e.api.SearchPages(ctx, cql, 10); err == nil {
					for _, ref := range refs {
						parents = append(parents, ref.ID)
					}
				}
			}
			for _, parent := range parents {
				for _, child := range e.listChildren(ctx, parent) {
					items = append(items, queue.Item{
						PageID:       child.ID,
						SourceType:   queue.SourceMacro,
						ParentPageID: parent,
					})
				}
			}
		case transform.DiscoverLabel:
			cql := fmt.Sprintf(`space = %q AND type = page AND label = %q`, e.cfg.SpaceKey, req.Label)
			refs, err := e.api.SearchPages(ctx, cql, e.cfg.SearchPageSize)
			if err != nil {
				e.log.Warn().Str("pageId", page.ID).Str("label", req.Label).Err(err).Msg("label search")
				continue
			}
			for _, ref := range refs {
				items = append(items, queue.Item{
					PageID:     ref.ID,
					SourceType: queue.SourceMacro,
				})
			}
		}
	}

	added, err := e.queue.AddBatch(items)
	if err != nil {
		e.log.Warn().Str("pageId", page.ID).Err(err).Msg("discovery enqueue stopped")
	}
	if added > 0 {
		e.progress.SetTotal(e.queue.Size() + e.queue.ProcessedCount())
	}
}

func (e *Exporter) listChildren(ctx context.Context, pageID string) []confluence.PageRef {
	children := []confluence.PageRef{}
	cursor := ""
	for {
		list, err := e.api.GetChildPages(ctx, pageID, cursor)
		if err != nil {
			e.log.Warn().Str("pageId", pageID).Err(err).Msg("list child pages")
			return children
		}
		children = append(children, list.Pages...)
		if list.NextCursor == "" {
			return children
		}
		cursor = list.NextCursor
	}
}

// exportAttachments downloads a page's attachments next to its Markdown file.
func (e *Exporter) exportAttachments(ctx context.Context, page confluence.Page, base string) {
	cursor := ""
	for {
		list, err := e.api.ListAttachments(ctx, page.ID, cursor)
		if err != nil {
			e.log.Warn().Str("pageId", page.ID).Err(err).Msg("list attachments")
			return
		}
		for _, att := range list.Attachments {
			if ctx.Err() != nil {
				return
			}
			e.mu.Lock()
			e.attachmentsTotal++
			e.mu.Unlock()

			relPath := base + "/attachments/" + fs.SanitizeFilename(att.Filename)
			data, err := e.api.DownloadAttachment(ctx, att.DownloadURL)
			if err == nil {
				err = fs.WriteFileAtomic(filepath.Join(e.spaceDir(), filepath.FromSlash(relPath)), data)
			}
			if err != nil {
				e.mu.Lock()
				e.attachmentsFailed++
				e.mu.Unlock()
				e.journal.Record(att.ID, journal.TypeAttachment, journal.StatusFailed, relPath, err.Error())
				e.log.Warn().Str("pageId", page.ID).Str("file", att.Filename).Err(err).Msg("attachment failed")
				continue
			}
			e.mu.Lock()
			e.attachmentsExported++
			e.mu.Unlock()
			e.journal.Record(att.ID, journal.TypeAttachment, journal.StatusCompleted, relPath, "")
		}
		if list.NextCursor == "" {
			return
		}
		cursor = list.NextCursor
	}
}

// persistQueue writes the queue snapshot and journal so a crash between
// finalizations loses as little progress as possible. Two consecutive
// failures escalate to a persistence alert.
func (e *Exporter) persistQueue() {
	if e.cfg.DryRun {
		return
	}
	snapshot := e.queue.Snapshot()
	err := queue.Persist(e.cfg.OutputDir, snapshot, e.cfg.BackupRetention)
	if err != nil {
		e.log.Warn().Err(err).Msg("persist queue snapshot")
	} else if err = e.journal.Save(filepath.Join(e.cfg.OutputDir, journal.FileName)); err != nil {
		e.log.Warn().Err(err).Msg("save journal")
	}
	if alert, fire := e.monitor.ReportPersistOutcome(err); fire {
		e.log.Error().Str("kind", alert.Kind).Msg(alert.Message)
	}
}

// finalizeInterrupted records the interruption and persists all state so a
// later --resume can continue.
func (e *Exporter) finalizeInterrupted() {
	e.queue.MarkInterrupted()
	if e.cfg.DryRun {
		return
	}

	err := resume.WriteInProgress(e.cfg.OutputDir, resume.InProgressSentinel{
		SpaceKey: e.cfg.SpaceKey,
		Signal:   "interrupt",
		Message:  "export interrupted before completion",
	})
	if err != nil {
		e.log.Error().Err(err).Msg("write interrupt sentinel")
	}
	e.persistQueue()
	if err := e.journal.Save(filepath.Join(e.cfg.OutputDir, journal.FileName)); err != nil {
		e.log.Error().Err(err).Msg("save journal")
	}
	if err := manifest.Save(filepath.Join(e.cfg.OutputDir, manifest.FileName), e.manifest); err != nil {
		e.log.Error().Err(err).Msg("save manifest")
	}
	e.log.Info().Str("space", e.cfg.SpaceKey).Msg("export interrupted; state persisted for --resume")
}

// finalizeCompleted runs the link rewriter, saves final state, and swaps the
// sentinels.
func (e *Exporter) finalizeCompleted(result *Result) error {
	if e.cfg.DryRun {
		e.progress.Done()
		return nil
	}

	rewriter := newLinkRewriter(e.cfg.BaseURL, e.cfg.SpaceKey, e.manifest)
	rewrite, err := rewriter.RewriteTree(e.spaceDir(), e.manifest)
	if err != nil {
		return fmt.Errorf("%w: link rewriting: %v", ErrValidation, err)
	}
	result.Rewrite = rewrite

	if err := manifest.Save(filepath.Join(e.cfg.OutputDir, manifest.FileName), e.manifest); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := e.journal.Save(filepath.Join(e.cfg.OutputDir, journal.FileName)); err != nil {
		e.log.Warn().Err(err).Msg("save journal")
	}
	e.persistQueue()

	if err := resume.RemoveInProgress(e.cfg.OutputDir); err != nil {
		return fmt.Errorf("remove in-progress sentinel: %w", err)
	}
	err = resume.WriteCompleted(e.cfg.OutputDir, resume.CompletedSentinel{
		Message: fmt.Sprintf("exported %d pages from %s", result.PagesExported, e.cfg.SpaceKey),
	})
	if err != nil {
		return fmt.Errorf("write completed sentinel: %w", err)
	}
	e.progress.Done()
	return nil
}

func (e *Exporter) buildResult(state string, start time.Time) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	restricted := e.restricted.summary()
	result := Result{
		SpaceKey:            e.cfg.SpaceKey,
		State:               state,
		PagesExported:       e.pagesExported,
		PagesUnchanged:      e.pagesUnchanged,
		PagesDenied:         e.pagesDenied,
		PagesRemoved:        e.pagesRemoved,
		PagesFailed:         e.pagesFailed,
		AttachmentsExported: e.attachmentsExported,
		AttachmentsFailed:   e.attachmentsFailed,
		AttachmentsTotal:    e.attachmentsTotal,
		Restricted:          restricted,
		Errors:              append([]ProcessingError{}, e.errors...),
		Recovery:            e.recovery,
		QueueMetrics:        e.queue.GetMetrics(),
		Duration:            time.Since(start),
	}
	result.HealthScore = e.monitor.HealthScore(result.QueueMetrics)
	result.ThresholdsExceeded = e.cfg.Thresholds.Exceeded(
		e.pagesFailed, restricted.Total, e.attachmentsFailed, e.attachmentsTotal)
	return result
}
