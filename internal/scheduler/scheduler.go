// Package scheduler drives scrape runs: it turns backend categories into
// tasks, fans them out over a bounded number of browser pages, and feeds
// the results through validation and reconciliation.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pricewatch/storefront-scraper/internal/catalog"
	"github.com/pricewatch/storefront-scraper/internal/profile"
	"github.com/pricewatch/storefront-scraper/internal/ratelimit"
	"github.com/pricewatch/storefront-scraper/internal/scraper"
)

// Pacing between tasks. Category batches are spaced far apart; products
// within a refresh run and tasks within a batch are staggered so the
// store never sees a burst of simultaneous navigations.
const (
	intraBatchDelayMin = 5 * time.Second
	intraBatchDelayMax = 6 * time.Second
	batchDelayMin      = 15 * time.Second
	batchDelayMax      = 25 * time.Second
	refreshDelayMin    = 8 * time.Second
	refreshDelayMax    = 10 * time.Second

	listingTimeout = 15 * time.Second
)

// TaskState tracks where a category task is in its lifecycle.
type TaskState string

const (
	StatePending     TaskState = "pending"
	StateNavigating  TaskState = "navigating"
	StatePaginating  TaskState = "paginating"
	StateExtracting  TaskState = "extracting"
	StateValidating  TaskState = "validating"
	StateReconciling TaskState = "reconciling"
	StateDone        TaskState = "done"
	StateFailed      TaskState = "failed"
)

// Task is one category scrape with its lifecycle state. A failed task
// never aborts the run; the scheduler records the error and moves on.
type Task struct {
	ID       string
	Category catalog.Category
	State    TaskState
	Err      error
}

// PageSource hands out browser pages and enforces the restart budget.
// Satisfied by session.Controller.
type PageSource interface {
	AcquirePage() (scraper.Driver, error)
	ReleasePage(drv scraper.Driver) error
	MaybeRestart() error
	Restarts() int
}

// CategorySource supplies scrape targets and the known-product list.
// Satisfied by catalog.Client.
type CategorySource interface {
	Categories(ctx context.Context, storeID, categoryID int) ([]catalog.Category, error)
	Products(ctx context.Context) ([]catalog.Product, error)
}

type navigator interface {
	Load(ctx context.Context, drv scraper.Driver, targetURL string, p profile.StoreProfile) error
	WaitForListing(ctx context.Context, drv scraper.Driver, p profile.StoreProfile, timeout time.Duration) error
	Paginate(ctx context.Context, drv scraper.Driver, p profile.StoreProfile) error
}

type extractor interface {
	Extract(drv scraper.Driver, p profile.StoreProfile) ([]scraper.RawCard, error)
	ExtractPrice(drv scraper.Driver, p profile.StoreProfile) (int, error)
	IsSoldOut(drv scraper.Driver, p profile.StoreProfile) (bool, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, rec scraper.ProductRecord) (catalog.Outcome, error)
	ReconcileRefresh(ctx context.Context, ref catalog.ProductRef, currentPrice int, soldOut bool) (catalog.Outcome, error)
}

type outcomePublisher interface {
	PublishOutcome(ctx context.Context, out catalog.Outcome) error
}

// Report summarizes one run for the operator and for tests.
type Report struct {
	TasksDone      int
	TasksFailed    int
	RecordsValid   int
	RecordsDropped int
	Outcomes       map[catalog.Action]int
}

func newReport() *Report {
	return &Report{Outcomes: make(map[catalog.Action]int)}
}

// Deps are the collaborators a Scheduler orchestrates.
type Deps struct {
	Pages      PageSource
	Backend    CategorySource
	Navigator  navigator
	Extractor  extractor
	Reconciler reconciler
	Publisher  outcomePublisher
	Registry   *profile.Registry
	Metrics    *Metrics
	Sleep      ratelimit.SleepFunc
	// NavLimiter spaces navigations out across concurrent tasks; the
	// run kind sets its range before tasks start.
	NavLimiter *ratelimit.Limiter
}

// Scheduler runs discovery and refresh passes for one store.
type Scheduler struct {
	deps          Deps
	maxCategoryID int
	concurrency   int
	logger        *slog.Logger

	mu           sync.Mutex
	lastRestarts int
}

func NewScheduler(deps Deps, maxCategoryID, concurrency int, logger *slog.Logger) *Scheduler {
	if deps.Sleep == nil {
		deps.Sleep = ratelimit.RandomDelay
	}
	if deps.NavLimiter == nil {
		deps.NavLimiter = ratelimit.NewLimiter(intraBatchDelayMin, intraBatchDelayMax)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		deps:          deps,
		maxCategoryID: maxCategoryID,
		concurrency:   concurrency,
		logger:        logger.With("component", "scheduler"),
	}
}

// RunDiscovery scrapes every backend category of one store: loads each
// listing, paginates it, extracts and validates cards, and reconciles
// the survivors against the catalog. Returns a per-run report; only a
// setup failure (unknown store, unreachable backend) is an error.
func (s *Scheduler) RunDiscovery(ctx context.Context, storeKey string) (*Report, error) {
	p, err := s.deps.Registry.ProfileFor(storeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store %q: %w", storeKey, err)
	}

	tasks, err := s.collectTasks(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger.Info("discovery run starting",
		"store", p.Key, "tasks", len(tasks), "concurrency", s.concurrency)

	report := newReport()
	for start := 0; start < len(tasks); start += s.concurrency {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		end := start + s.concurrency
		if end > len(tasks) {
			end = len(tasks)
		}
		s.runBatch(ctx, tasks[start:end], p, report)

		if end < len(tasks) {
			if err := s.deps.Sleep(ctx, batchDelayMin, batchDelayMax); err != nil {
				return report, err
			}
		}
	}

	s.logger.Info("discovery run finished",
		"store", p.Key,
		"done", report.TasksDone,
		"failed", report.TasksFailed,
		"valid_records", report.RecordsValid,
		"dropped_records", report.RecordsDropped)
	return report, nil
}

// collectTasks probes category ids up to the configured ceiling. An id
// the backend does not know simply yields no tasks.
func (s *Scheduler) collectTasks(ctx context.Context, p profile.StoreProfile) ([]*Task, error) {
	var tasks []*Task
	for categoryID := 1; categoryID <= s.maxCategoryID; categoryID++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cats, err := s.deps.Backend.Categories(ctx, p.ID, categoryID)
		if err != nil {
			return nil, fmt.Errorf("failed to list categories for store %d: %w", p.ID, err)
		}
		for _, cat := range cats {
			tasks = append(tasks, &Task{
				ID:       uuid.New().String(),
				Category: cat,
				State:    StatePending,
			})
		}
	}
	return tasks, nil
}

// runBatch fans a batch out over goroutines. The shared NavLimiter
// spaces the tasks' navigations so they do not land on the store at the
// same instant.
func (s *Scheduler) runBatch(ctx context.Context, batch []*Task, p profile.StoreProfile, report *Report) {
	var wg sync.WaitGroup
	results := make([]*Report, len(batch))

	for i, task := range batch {
		wg.Add(1)
		go func(i int, task *Task) {
			defer wg.Done()
			results[i] = s.runTask(ctx, task, p)
		}(i, task)
	}
	wg.Wait()

	for _, r := range results {
		if r == nil {
			continue
		}
		report.TasksDone += r.TasksDone
		report.TasksFailed += r.TasksFailed
		report.RecordsValid += r.RecordsValid
		report.RecordsDropped += r.RecordsDropped
		for action, n := range r.Outcomes {
			report.Outcomes[action] += n
		}
	}
}

// runTask walks one category through the full pipeline. Every exit path
// releases the page and gives the session a restart opportunity.
func (s *Scheduler) runTask(ctx context.Context, task *Task, p profile.StoreProfile) *Report {
	report := newReport()
	started := time.Now()
	logger := s.logger.With("task_id", task.ID, "category", task.Category.Name)

	fail := func(err error) *Report {
		task.State = StateFailed
		task.Err = err
		report.TasksFailed++
		s.deps.Metrics.IncTask("failed")
		s.deps.Metrics.ObserveTask(time.Since(started))
		logger.Error("task failed", "state", task.State, "error", err)
		return report
	}

	if err := s.deps.NavLimiter.Wait(ctx); err != nil {
		return fail(err)
	}

	drv, err := s.deps.Pages.AcquirePage()
	if err != nil {
		return fail(fmt.Errorf("failed to acquire page: %w", err))
	}
	defer func() {
		if err := s.deps.Pages.ReleasePage(drv); err != nil {
			logger.Warn("failed to release page", "error", err)
		}
		s.restartIfDue(logger)
	}()

	task.State = StateNavigating
	if err := s.deps.Navigator.Load(ctx, drv, task.Category.URL, p); err != nil {
		return fail(fmt.Errorf("failed to load %s: %w", task.Category.URL, err))
	}
	if err := s.deps.Navigator.WaitForListing(ctx, drv, p, listingTimeout); err != nil {
		return fail(fmt.Errorf("listing never appeared: %w", err))
	}

	task.State = StatePaginating
	if err := s.deps.Navigator.Paginate(ctx, drv, p); err != nil {
		return fail(fmt.Errorf("pagination failed: %w", err))
	}

	task.State = StateExtracting
	cards, err := s.deps.Extractor.Extract(drv, p)
	if err != nil {
		return fail(fmt.Errorf("extraction failed: %w", err))
	}

	task.State = StateValidating
	capturedAt := time.Now().UTC()
	records := make([]scraper.ProductRecord, 0, len(cards))
	for _, card := range cards {
		records = append(records, scraper.Normalize(card, p.BaseURL, p.ID, task.Category.ID, capturedAt))
	}
	records = scraper.Dedupe(records)
	valid, _ := scraper.FilterComplete(records)
	dropped := len(cards) - len(valid) // duplicates plus incomplete records
	s.deps.Metrics.AddRecords(len(cards), dropped)
	report.RecordsValid += len(valid)
	report.RecordsDropped += dropped
	if len(valid) == 0 {
		logger.Warn("no valid records extracted", "raw_cards", len(cards), "dropped", dropped)
	}

	task.State = StateReconciling
	reconcileErrs := 0
	for _, rec := range valid {
		out, err := s.deps.Reconciler.Reconcile(ctx, rec)
		if err != nil {
			reconcileErrs++
			logger.Error("reconciliation failed", "url", rec.URL, "error", err)
			continue
		}
		s.recordOutcome(ctx, out, report, logger)
	}
	// Remaining records were still processed, but a failed backend call
	// means the task cannot be reported clean.
	if reconcileErrs > 0 {
		return fail(fmt.Errorf("%d of %d reconciliation calls failed", reconcileErrs, len(valid)))
	}

	task.State = StateDone
	report.TasksDone++
	s.deps.Metrics.IncTask("done")
	s.deps.Metrics.ObserveTask(time.Since(started))
	logger.Info("task finished",
		"raw_cards", len(cards), "valid", len(valid), "dropped", dropped)
	return report
}

// RunRefresh revisits every known product of one store sequentially and
// updates the catalog when the observed price differs.
func (s *Scheduler) RunRefresh(ctx context.Context, storeKey string) (*Report, error) {
	p, err := s.deps.Registry.ProfileFor(storeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store %q: %w", storeKey, err)
	}

	products, err := s.deps.Backend.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	refs := make([]catalog.ProductRef, 0, len(products))
	for _, prod := range products {
		if prod.StoreID != p.ID {
			s.logger.Debug("skipping product from another store",
				"store", s.deps.Registry.StoreName(prod.StoreID), "url", prod.URL)
			continue
		}
		refs = append(refs, catalog.ProductRef{
			URL:            prod.URL,
			StoreID:        prod.StoreID,
			Name:           prod.Name,
			LastKnownPrice: prod.Price,
		})
	}
	s.logger.Info("refresh run starting", "store", p.Key, "products", len(refs))

	report := newReport()
	for i, ref := range refs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if i > 0 {
			if err := s.deps.Sleep(ctx, refreshDelayMin, refreshDelayMax); err != nil {
				return report, err
			}
		}
		s.refreshOne(ctx, ref, p, report)
	}

	s.logger.Info("refresh run finished",
		"store", p.Key, "done", report.TasksDone, "failed", report.TasksFailed)
	return report, nil
}

func (s *Scheduler) refreshOne(ctx context.Context, ref catalog.ProductRef, p profile.StoreProfile, report *Report) {
	logger := s.logger.With("url", ref.URL)

	fail := func(err error) {
		report.TasksFailed++
		s.deps.Metrics.IncTask("failed")
		logger.Error("refresh failed", "error", err)
	}

	drv, err := s.deps.Pages.AcquirePage()
	if err != nil {
		fail(fmt.Errorf("failed to acquire page: %w", err))
		return
	}
	defer func() {
		if err := s.deps.Pages.ReleasePage(drv); err != nil {
			logger.Warn("failed to release page", "error", err)
		}
		s.restartIfDue(logger)
	}()

	if err := s.deps.Navigator.Load(ctx, drv, ref.URL, p); err != nil {
		fail(fmt.Errorf("failed to load product page: %w", err))
		return
	}

	soldOut, err := s.deps.Extractor.IsSoldOut(drv, p)
	if err != nil {
		fail(fmt.Errorf("sold-out check failed: %w", err))
		return
	}

	price := scraper.PriceMissing
	if !soldOut {
		price, err = s.deps.Extractor.ExtractPrice(drv, p)
		if err != nil {
			fail(fmt.Errorf("price extraction failed: %w", err))
			return
		}
	}

	out, err := s.deps.Reconciler.ReconcileRefresh(ctx, ref, price, soldOut)
	if err != nil {
		fail(fmt.Errorf("reconciliation failed: %w", err))
		return
	}
	s.recordOutcome(ctx, out, report, logger)
	report.TasksDone++
	s.deps.Metrics.IncTask("done")
}

func (s *Scheduler) recordOutcome(ctx context.Context, out catalog.Outcome, report *Report, logger *slog.Logger) {
	report.Outcomes[out.Action]++
	s.deps.Metrics.IncReconcile(string(out.Action))
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.PublishOutcome(ctx, out); err != nil {
		logger.Warn("failed to publish outcome", "action", out.Action, "error", err)
	}
}

// restartIfDue lets the session restart the browser when the page budget
// is spent and mirrors any restart into the metrics.
func (s *Scheduler) restartIfDue(logger *slog.Logger) {
	if err := s.deps.Pages.MaybeRestart(); err != nil {
		logger.Error("browser restart failed", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.deps.Pages.Restarts(); n > s.lastRestarts {
		s.deps.Metrics.AddRestarts(n - s.lastRestarts)
		s.lastRestarts = n
	}
}
