package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/metrics"
	"github.com/chain-portfolio/internal/models"
	"github.com/chain-portfolio/internal/tracker"
	"github.com/chain-portfolio/internal/types"
)

const (
	// defaultSnapshotConcurrency bounds how many users are snapshotted at once
	defaultSnapshotConcurrency = 5
	defaultHistoryDays         = 30
	maxHistoryDays             = 365
)

// SnapshotRepository interface for snapshot data operations
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot *models.PortfolioSnapshot) error
	UpsertDaily(ctx context.Context, userID string, day time.Time, value float64) error
	ListSnapshots(ctx context.Context, userID string, since time.Time) ([]*models.PortfolioSnapshot, error)
	ListDaily(ctx context.Context, userID string, since time.Time) ([]*models.PortfolioDaily, error)
}

// SnapshotRunResult is the outcome of one snapshot job run
type SnapshotRunResult struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
	Failed  int    `json:"failed,omitempty"`
}

// SnapshotHistory is a user's hourly snapshots and daily rollups
type SnapshotHistory struct {
	Days      int                         `json:"days"`
	Snapshots []*models.PortfolioSnapshot `json:"snapshots"`
	Daily     []*models.PortfolioDaily    `json:"daily"`
}

// SnapshotService records hourly portfolio values for every user
type SnapshotService struct {
	snapshotRepo SnapshotRepository
	wallets      *WalletService
	portfolio    *PortfolioService
	trackerCfg   tracker.Config
	concurrency  int
	now          func() time.Time

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(
	snapshotRepo SnapshotRepository,
	wallets *WalletService,
	portfolio *PortfolioService,
	trackerCfg tracker.Config,
) *SnapshotService {
	return &SnapshotService{
		snapshotRepo: snapshotRepo,
		wallets:      wallets,
		portfolio:    portfolio,
		trackerCfg:   trackerCfg,
		concurrency:  defaultSnapshotConcurrency,
		now:          time.Now,
	}
}

// SetConcurrency changes how many users one run processes at once
func (s *SnapshotService) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// Start begins the hourly scheduler. Runs happen at minute 0 of every hour (UTC).
func (s *SnapshotService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("snapshot scheduler is already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan

	logger := logging.FromContext(ctx)
	go func() {
		for {
			now := s.now().UTC()
			next := now.Truncate(time.Hour).Add(time.Hour)
			logger.WithField("next_run", next.Format(time.RFC3339)).Info("snapshot scheduler waiting")

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-timer.C:
				result, err := s.Run(ctx)
				if err != nil {
					logger.WithError(err).Error("snapshot run failed")
					continue
				}
				logger.WithFields(map[string]interface{}{
					"count":  result.Count,
					"failed": result.Failed,
				}).Info(result.Message)
			case <-stop:
				timer.Stop()
				logger.Info("snapshot scheduler stopped")
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop gracefully stops the snapshot scheduler
func (s *SnapshotService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return fmt.Errorf("snapshot scheduler is not running")
	}
	close(s.stopChan)
	s.running = false
	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *SnapshotService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run snapshots every user that tracks at least one wallet. A failure for
// one user is logged and counted and does not stop the others.
func (s *SnapshotService) Run(ctx context.Context) (*SnapshotRunResult, error) {
	userIDs, err := s.wallets.repo.ListUserIDs(ctx)
	if err != nil {
		return nil, databaseError("failed to list users", err)
	}
	if len(userIDs) == 0 {
		return &SnapshotRunResult{Message: "No users to snapshot", Count: 0}, nil
	}

	logger := logging.FromContext(ctx)
	logger.WithField("users", len(userIDs)).Info("starting snapshot run")

	var (
		mu     sync.Mutex
		count  int
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			err := s.snapshotUser(gctx, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				metrics.SnapshotsWritten.WithLabelValues("failed").Inc()
				logger.WithField("user_id", userID).WithError(err).Warn("snapshot failed")
				return nil
			}
			count++
			metrics.SnapshotsWritten.WithLabelValues("ok").Inc()
			return nil
		})
	}
	_ = g.Wait()

	return &SnapshotRunResult{Message: "Snapshots created", Count: count, Failed: failed}, nil
}

// snapshotUser merges the user's wallets and records the total
func (s *SnapshotService) snapshotUser(ctx context.Context, userID string) error {
	t := tracker.New(s.wallets.Store(userID), s.portfolio, s.trackerCfg)
	if err := t.Load(ctx); err != nil {
		return err
	}
	view := t.View()
	if len(view.Wallets) > 0 && allFailed(view.Wallets) {
		return fmt.Errorf("every wallet fetch failed")
	}

	snapshot := &models.PortfolioSnapshot{
		UserID:       userID,
		TotalValue:   view.TotalValue,
		ValueByChain: ValueByChain(view.Assets),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.snapshotRepo.Create(ctx, snapshot); err != nil {
		return err
	}
	return s.snapshotRepo.UpsertDaily(ctx, userID, snapshot.CreatedAt, snapshot.TotalValue)
}

func allFailed(wallets []tracker.WalletSummary) bool {
	for _, w := range wallets {
		if w.Error == "" {
			return false
		}
	}
	return true
}

// ValueByChain sums asset value per chain
func ValueByChain(assets []types.Asset) map[types.ChainID]float64 {
	out := make(map[types.ChainID]float64)
	for _, a := range assets {
		out[a.Chain] += a.Value
	}
	return out
}

// History returns a user's snapshots for the last days days. days <= 0
// means the default window; larger values are capped.
func (s *SnapshotService) History(ctx context.Context, userID string, days int) (*SnapshotHistory, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	since := s.now().UTC().AddDate(0, 0, -days)

	snapshots, err := s.snapshotRepo.ListSnapshots(ctx, userID, since)
	if err != nil {
		return nil, databaseError("failed to load snapshots", err)
	}
	daily, err := s.snapshotRepo.ListDaily(ctx, userID, since)
	if err != nil {
		return nil, databaseError("failed to load daily rollups", err)
	}
	if snapshots == nil {
		snapshots = []*models.PortfolioSnapshot{}
	}
	if daily == nil {
		daily = []*models.PortfolioDaily{}
	}
	return &SnapshotHistory{Days: days, Snapshots: snapshots, Daily: daily}, nil
}
