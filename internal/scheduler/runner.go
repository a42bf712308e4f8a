package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/boardwatch/boardwatch/internal/scraper"
	"github.com/boardwatch/boardwatch/internal/store"
	"github.com/boardwatch/boardwatch/pkg/config"
	"github.com/boardwatch/boardwatch/pkg/logging"
	"github.com/boardwatch/boardwatch/pkg/metrics"
	"github.com/boardwatch/boardwatch/pkg/resilience"
)

// Operation categories tracked by the resilience layer. Each category
// has its own circuit breaker, so a failing dependency never blocks
// the others.
const (
	CategoryConfigStore    = "store:configurations"
	CategoryExecutionStore = "store:executions"
	CategoryScraper        = "scraper:ptt"
	CategoryTelegram       = "telegram:send"
	CategorySecrets        = "secrets:telegram-token"
)

// BoardScraper fetches matching articles from a board
type BoardScraper interface {
	FetchArticles(ctx context.Context, board string, postCount int, keywords []string) ([]scraper.Article, error)
}

// MessageSender delivers articles to a chat
type MessageSender interface {
	SendArticles(ctx context.Context, chatID, board string, articles []scraper.Article) error
}

// ArticleDeduper claims article links so repeats are not redelivered
type ArticleDeduper interface {
	Claim(ctx context.Context, chatID, link string) (bool, error)
}

// Deps bundles the runner's collaborators
type Deps struct {
	Configs    store.ConfigRepositoryInterface
	Executions store.ExecutionRepositoryInterface
	Scraper    BoardScraper
	Sender     MessageSender
	Dedupe     ArticleDeduper
	Runtime    *resilience.Runtime
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
}

// Runner evaluates watch configurations on a fixed tick and executes
// the due ones through the resilience layer
type Runner struct {
	deps Deps
	cfg  config.SchedulerConfig
	now  func() time.Time
}

// JobResult is the outcome of one configuration run
type JobResult struct {
	ConfigID      string  `json:"config_id"`
	ConfigName    string  `json:"config_name"`
	Status        string  `json:"status"`
	ArticlesFound int     `json:"articles_found"`
	ArticlesSent  int     `json:"articles_sent"`
	Duration      float64 `json:"duration_seconds"`
	ErrorMessage  string  `json:"error_message,omitempty"`
}

// RunSummary aggregates one scheduler pass
type RunSummary struct {
	Evaluated int         `json:"evaluated"`
	Due       int         `json:"due"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Results   []JobResult `json:"results"`
}

// NewRunner creates a scheduler runner
func NewRunner(deps Deps, cfg config.SchedulerConfig) *Runner {
	if deps.Logger == nil {
		deps.Logger = logging.GetLogger()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Runner{
		deps: deps,
		cfg:  cfg,
		now:  time.Now,
	}
}

// Run evaluates configurations on every tick until the context is
// cancelled
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	r.deps.Logger.Info("Scheduler started",
		"tick_interval", r.cfg.TickInterval.String(),
		"max_concurrent", r.cfg.MaxConcurrent,
	)

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.deps.Logger.Error("Scheduler pass failed", "error", err.Error())
		}

		select {
		case <-ctx.Done():
			r.deps.Logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce evaluates all active configurations and executes the due
// ones with bounded concurrency
func (r *Runner) RunOnce(ctx context.Context) (*RunSummary, error) {
	result, err := r.deps.Runtime.Executor.ExecuteWithResult(ctx, "list active configurations", CategoryConfigStore, func(ctx context.Context) (interface{}, error) {
		return r.deps.Configs.ListActive(ctx)
	})
	if err != nil {
		return nil, err
	}
	configs := result.([]*store.WatchConfig)

	now := r.now()
	var due []*store.WatchConfig
	for _, cfg := range configs {
		if IsDue(cfg, now) {
			due = append(due, cfg)
		}
	}

	summary := &RunSummary{
		Evaluated: len(configs),
		Due:       len(due),
		Results:   make([]JobResult, len(due)),
	}
	if len(due) == 0 {
		return summary, nil
	}

	r.deps.Logger.Info("Executing due configurations", "evaluated", len(configs), "due", len(due))

	sem := make(chan struct{}, r.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i, cfg := range due {
		wg.Add(1)
		go func(i int, cfg *store.WatchConfig) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			jobCtx := ctx
			if r.cfg.JobTimeout > 0 {
				var cancel context.CancelFunc
				jobCtx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
				defer cancel()
			}

			summary.Results[i] = r.executeJob(jobCtx, cfg)
		}(i, cfg)
	}
	wg.Wait()

	for _, res := range summary.Results {
		if res.Status == store.StatusError {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}

	return summary, nil
}

// executeJob runs one configuration: scrape, dedupe, deliver, record
func (r *Runner) executeJob(ctx context.Context, cfg *store.WatchConfig) JobResult {
	start := r.now()
	res := JobResult{
		ConfigID:   cfg.ID.String(),
		ConfigName: cfg.Name,
		Status:     store.StatusError,
	}

	ctx = logging.WithConfigID(ctx, cfg.ID.String())
	r.deps.Logger.LogJobEvent(ctx, "job_started", cfg.ID.String(), cfg.Name, logrus.Fields{
		"board": cfg.Board,
	})

	scraped, err := r.deps.Runtime.Executor.ExecuteWithResult(ctx, "scrape board "+cfg.Board, CategoryScraper, func(ctx context.Context) (interface{}, error) {
		return r.deps.Scraper.FetchArticles(ctx, cfg.Board, cfg.PostCount, cfg.Keywords)
	})
	if err != nil {
		res.ErrorMessage = "scrape failed: " + err.Error()
		r.finishJob(ctx, cfg, &res, start)
		return res
	}

	articles := scraped.([]scraper.Article)
	res.ArticlesFound = len(articles)

	if len(articles) == 0 {
		res.Status = store.StatusNoArticles
		r.finishJob(ctx, cfg, &res, start)
		return res
	}

	fresh := r.filterDelivered(ctx, cfg.ChatID, articles)

	if len(fresh) > 0 {
		err = r.deps.Runtime.Executor.Execute(ctx, "deliver articles", CategoryTelegram, func(ctx context.Context) error {
			return r.deps.Sender.SendArticles(ctx, cfg.ChatID, cfg.Board, fresh)
		})
		if err != nil {
			res.ErrorMessage = "delivery failed: " + err.Error()
			r.finishJob(ctx, cfg, &res, start)
			return res
		}
	}

	res.ArticlesSent = len(fresh)
	res.Status = store.StatusSuccess
	r.finishJob(ctx, cfg, &res, start)
	return res
}

// filterDelivered drops articles already sent to the chat. A dedupe
// backend failure keeps the article: an occasional repeat beats a
// silently dropped delivery.
func (r *Runner) filterDelivered(ctx context.Context, chatID string, articles []scraper.Article) []scraper.Article {
	if r.deps.Dedupe == nil {
		return articles
	}

	fresh := make([]scraper.Article, 0, len(articles))
	for _, article := range articles {
		claimed, err := r.deps.Dedupe.Claim(ctx, chatID, article.Link)
		if err != nil {
			r.deps.Logger.Warn("Dedupe claim failed, keeping article",
				"link", article.Link,
				"error", err.Error(),
			)
			fresh = append(fresh, article)
			continue
		}
		if claimed {
			fresh = append(fresh, article)
		}
	}
	return fresh
}

// finishJob records the outcome in both stores and the metric surfaces.
// Recording is best-effort: a store outage must not fail a job whose
// delivery already succeeded.
func (r *Runner) finishJob(ctx context.Context, cfg *store.WatchConfig, res *JobResult, start time.Time) {
	duration := r.now().Sub(start)
	res.Duration = duration.Seconds()

	if r.deps.Metrics != nil {
		r.deps.Metrics.RecordJob(res.Status, cfg.Board, duration)
		r.deps.Metrics.RecordArticles(cfg.Board, res.ArticlesFound, res.ArticlesSent)
		if res.Status == store.StatusError {
			r.deps.Metrics.RecordError("scheduler", "job_failed")
		}
	}

	// Recording may outlive a job that timed out
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	executedAt := r.now()
	err := r.deps.Runtime.Executor.Execute(recordCtx, "update configuration status", CategoryConfigStore, func(ctx context.Context) error {
		return r.deps.Configs.UpdateExecutionStatus(ctx, cfg.ID, executedAt, res.Status, res.ErrorMessage)
	})
	if err != nil {
		r.deps.Logger.LogError(ctx, err, "Failed to update configuration status", logrus.Fields{
			"config_id": cfg.ID.String(),
		})
	}

	errMsg := (*string)(nil)
	if res.ErrorMessage != "" {
		errMsg = &res.ErrorMessage
	}
	record := &store.ExecutionRecord{
		ConfigID:        cfg.ID,
		ExecutedAt:      executedAt,
		Status:          res.Status,
		ArticlesFound:   res.ArticlesFound,
		ArticlesSent:    res.ArticlesSent,
		DurationSeconds: res.Duration,
		ErrorMessage:    errMsg,
	}
	err = r.deps.Runtime.Executor.Execute(recordCtx, "create execution record", CategoryExecutionStore, func(ctx context.Context) error {
		return r.deps.Executions.Create(ctx, record)
	})
	if err != nil {
		r.deps.Logger.LogError(ctx, err, "Failed to create execution record", logrus.Fields{
			"config_id": cfg.ID.String(),
		})
	}

	r.deps.Logger.LogJobEvent(ctx, "job_finished", cfg.ID.String(), cfg.Name, logrus.Fields{
		"board":            cfg.Board,
		"status":           res.Status,
		"articles_found":   res.ArticlesFound,
		"articles_sent":    res.ArticlesSent,
		"duration_seconds": res.Duration,
	})
}
