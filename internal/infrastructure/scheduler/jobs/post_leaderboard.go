// Package jobs contains the step battle's scheduled jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/schedule"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/pkg/logger"
)

// Lock kinds.
const (
	KindPost     = "post"
	KindReminder = "reminder"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Announcer delivers scheduled messages to a scope's posting channel.
type Announcer interface {
	AnnounceLeaderboard(ctx context.Context, channelRef string, board *query.GetLeaderboardResult) error
	AnnounceReminder(ctx context.Context, channelRef string, post time.Time) error
}

// LeaderboardSource builds the leaderboard to post.
type LeaderboardSource interface {
	Handle(ctx context.Context, q query.GetLeaderboardQuery) (*query.GetLeaderboardResult, error)
}

// PostingLock guards one occurrence of one kind of post per scope.
type PostingLock interface {
	TryAcquire(ctx context.Context, scope shared.ScopeID, kind string, at time.Time) (bool, error)
	Release(ctx context.Context, scope shared.ScopeID, kind string, at time.Time) error
}

// ══════════════════════════════════════════════════════════════════════════════
// POST LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// PostLeaderboardConfig contains configuration for the posting job.
type PostLeaderboardConfig struct {
	// Reminders enables the one-hour warning before each post.
	Reminders bool

	// MaxConcurrent bounds scopes handled in parallel by one run.
	MaxConcurrent int

	// Lookback is how far back the first run of a scope looks for a
	// missed occurrence.
	Lookback time.Duration

	// RetryWindow is how long after an occurrence a failed post is retried.
	RetryWindow time.Duration
}

// DefaultPostLeaderboardConfig returns sensible defaults.
func DefaultPostLeaderboardConfig() PostLeaderboardConfig {
	return PostLeaderboardConfig{
		Reminders:     true,
		MaxConcurrent: 8,
		Lookback:      time.Minute,
		RetryWindow:   30 * time.Minute,
	}
}

// PostStats contains statistics from one run.
type PostStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Scopes    int
	Posts     int
	Reminders int
	Skipped   int
	Failures  int
}

// PostLeaderboardJob posts each scope's leaderboard when its schedule fires.
// Every run checks the interval since that scope's previous successful check.
type PostLeaderboardJob struct {
	repo       competition.Repository
	boards     LeaderboardSource
	announcer  Announcer
	lock       PostingLock
	calculator *schedule.Calculator
	log        *logger.Logger
	config     PostLeaderboardConfig
	now        func() time.Time

	mu          sync.Mutex
	checkedUpTo map[shared.ScopeID]time.Time

	lastStats atomic.Pointer[PostStats]
}

// NewPostLeaderboardJob creates the job. A nil lock falls back to an
// in-process one.
func NewPostLeaderboardJob(
	repo competition.Repository,
	boards LeaderboardSource,
	announcer Announcer,
	lock PostingLock,
	log *logger.Logger,
	config PostLeaderboardConfig,
) *PostLeaderboardJob {
	if log == nil {
		log = logger.Nop()
	}
	if lock == nil {
		lock = NewLocalPostingLock()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	return &PostLeaderboardJob{
		repo:        repo,
		boards:      boards,
		announcer:   announcer,
		lock:        lock,
		calculator:  schedule.NewCalculator(),
		log:         log.WithComponent("post_leaderboard"),
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
		checkedUpTo: make(map[shared.ScopeID]time.Time),
	}
}

// WithClock replaces the clock, for tests.
func (j *PostLeaderboardJob) WithClock(now func() time.Time) *PostLeaderboardJob {
	if now != nil {
		j.now = now
	}
	return j
}

// Name returns the job name.
func (j *PostLeaderboardJob) Name() string {
	return "post_leaderboard"
}

// Description returns a human-readable description.
func (j *PostLeaderboardJob) Description() string {
	return "Posts scheduled leaderboards and one-hour reminders to each server's channel"
}

// LastStats returns the statistics of the latest run, or nil.
func (j *PostLeaderboardJob) LastStats() *PostStats {
	return j.lastStats.Load()
}

// Run checks every configured scope once.
func (j *PostLeaderboardJob) Run(ctx context.Context) error {
	now := j.now()
	stats := &PostStats{StartedAt: now}

	configs, err := j.repo.ListCompetitionConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list competition configs: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(j.config.MaxConcurrent)

	for _, cfg := range configs {
		if !cfg.HasChannel() || !cfg.Schedule.Enabled {
			continue
		}
		stats.Scopes++

		g.Go(func() error {
			res, err := j.runScope(ctx, cfg, now)

			mu.Lock()
			defer mu.Unlock()
			stats.Posts += res.posts
			stats.Reminders += res.reminders
			stats.Skipped += res.skipped
			if err != nil {
				stats.Failures++
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Duration = j.now().Sub(now)
	j.lastStats.Store(stats)

	if stats.Posts > 0 || stats.Reminders > 0 || stats.Failures > 0 {
		j.log.Info("scheduled posting finished",
			logger.Int("scopes", stats.Scopes),
			logger.Int("posts", stats.Posts),
			logger.Int("reminders", stats.Reminders),
			logger.Int("skipped", stats.Skipped),
			logger.Int("failures", stats.Failures),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("posting completed with %d errors: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

type scopeResult struct {
	posts, reminders, skipped int
}

// runScope fires the post and reminder of one scope that fell into
// (checkedUpTo, now]. On failure the watermark stays put so the next run
// retries, until RetryWindow has passed.
func (j *PostLeaderboardJob) runScope(ctx context.Context, cfg *competition.CompetitionConfig, now time.Time) (scopeResult, error) {
	var res scopeResult
	scope := cfg.ScopeID
	log := j.log.With(logger.ScopeID(string(scope)))

	after := j.watermark(scope, now)

	var errs []error
	if at, ok := j.calculator.DueBetween(cfg.Schedule, after, now); ok {
		sent, err := j.fire(ctx, scope, KindPost, at, func(ctx context.Context) error {
			board, err := j.boards.Handle(ctx, query.GetLeaderboardQuery{ScopeID: string(scope)})
			if err != nil {
				return fmt.Errorf("build leaderboard: %w", err)
			}
			for _, u := range board.Unverified {
				log.Warn("participant left out: membership check failed",
					logger.ParticipantID(u.ParticipantID), logger.ChatUserID(u.ChatIdentity), logger.Err(u.Err))
			}
			return j.announcer.AnnounceLeaderboard(ctx, cfg.PostingChannelRef, board)
		})
		switch {
		case err != nil:
			log.Error("scheduled leaderboard post failed", logger.Occurrence(at), logger.Err(err))
			errs = append(errs, j.retryable(scope, at, now, err))
		case sent:
			res.posts++
			log.Info("leaderboard posted", logger.Occurrence(at), logger.String("channel", cfg.PostingChannelRef))
		default:
			res.skipped++
		}
	}

	if j.config.Reminders {
		if at, ok := j.calculator.ReminderDueBetween(cfg.Schedule, after, now); ok {
			post := at.Add(schedule.ReminderLead)
			sent, err := j.fire(ctx, scope, KindReminder, at, func(ctx context.Context) error {
				return j.announcer.AnnounceReminder(ctx, cfg.PostingChannelRef, post)
			})
			switch {
			case err != nil:
				log.Error("scheduled reminder failed", logger.Occurrence(at), logger.Err(err))
				errs = append(errs, j.retryable(scope, at, now, err))
			case sent:
				res.reminders++
				log.Info("reminder posted", logger.Occurrence(at))
			default:
				res.skipped++
			}
		}
	}

	if retry := errors.Join(errs...); retry != nil && errors.Is(retry, errRetryLater) {
		return res, retry
	}
	j.advance(scope, now)
	return res, errors.Join(errs...)
}

// fire sends one post under the lock. A lost race is not an error.
func (j *PostLeaderboardJob) fire(ctx context.Context, scope shared.ScopeID, kind string, at time.Time, send func(context.Context) error) (bool, error) {
	ok, err := j.lock.TryAcquire(ctx, scope, kind, at)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := send(ctx); err != nil {
		if relErr := j.lock.Release(ctx, scope, kind, at); relErr != nil {
			j.log.Warn("release post lock", logger.ScopeID(string(scope)), logger.Err(relErr))
		}
		return false, err
	}
	return true, nil
}

var errRetryLater = errors.New("retry on next run")

// retryable marks err for a retry while the occurrence is still fresh.
func (j *PostLeaderboardJob) retryable(scope shared.ScopeID, at, now time.Time, err error) error {
	if now.Sub(at) < j.config.RetryWindow {
		return fmt.Errorf("scope %s: %w: %w", scope, errRetryLater, err)
	}
	return fmt.Errorf("scope %s: %w", scope, err)
}

func (j *PostLeaderboardJob) watermark(scope shared.ScopeID, now time.Time) time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	if t, ok := j.checkedUpTo[scope]; ok {
		return t
	}
	t := now.Add(-j.config.Lookback)
	j.checkedUpTo[scope] = t
	return t
}

func (j *PostLeaderboardJob) advance(scope shared.ScopeID, to time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.checkedUpTo[scope] = to
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCAL POSTING LOCK
// ══════════════════════════════════════════════════════════════════════════════

// LocalPostingLock is a PostingLock for a single worker process.
type LocalPostingLock struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalPostingLock creates an empty lock set.
func NewLocalPostingLock() *LocalPostingLock {
	return &LocalPostingLock{held: make(map[string]time.Time)}
}

func localKey(scope shared.ScopeID, kind string, at time.Time) string {
	return string(scope) + ":" + kind + ":" + strconv.FormatInt(at.Unix(), 10)
}

// TryAcquire returns true the first time an occurrence is seen. Entries
// older than a day are pruned.
func (l *LocalPostingLock) TryAcquire(_ context.Context, scope shared.ScopeID, kind string, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, t := range l.held {
		if at.Sub(t) > 24*time.Hour {
			delete(l.held, k)
		}
	}

	key := localKey(scope, kind, at)
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = at
	return true, nil
}

// Release forgets an occurrence.
func (l *LocalPostingLock) Release(_ context.Context, scope shared.ScopeID, kind string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, localKey(scope, kind, at))
	return nil
}
