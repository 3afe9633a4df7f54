package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Expirer auto-rejects approval tickets past their deadline.
type Expirer interface {
	ExpireTickets(ctx context.Context) (int, error)
	PendingCount() int
}

// Pruner deletes archived result sets older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

type Config struct {
	ExpiryInterval    time.Duration
	RetentionInterval time.Duration

	// ArchiveRetention of zero disables pruning.
	ArchiveRetention time.Duration
}

type Service struct {
	Expirer Expirer
	Pruners map[string]Pruner
	Config  Config
	Logger  *slog.Logger
	Clock   func() time.Time
}

type ExpirySummary struct {
	TicketsExpired int `json:"tickets_expired"`
	StillPending   int `json:"still_pending"`
}

type RetentionSummary struct {
	TargetsScanned int `json:"targets_scanned"`
	ObjectsDeleted int `json:"objects_deleted"`
	Failures       int `json:"failures"`
}

// Run sweeps expired tickets and stale archives until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	expiryTicker := time.NewTicker(s.Config.ExpiryInterval)
	defer expiryTicker.Stop()
	retentionTicker := time.NewTicker(s.Config.RetentionInterval)
	defer retentionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-expiryTicker.C:
			summary, err := s.RunExpiryOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "approval expiry sweep failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil && summary.TicketsExpired > 0 {
				s.Logger.InfoContext(ctx, "approval expiry sweep completed", slog.Any("summary", summary))
			}
		case <-retentionTicker.C:
			if s.Config.ArchiveRetention <= 0 || len(s.Pruners) == 0 {
				continue
			}
			summary, err := s.RunRetentionOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "archive retention failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "archive retention completed", slog.Any("summary", summary))
			}
		}
	}
}

func (s *Service) RunExpiryOnce(ctx context.Context) (ExpirySummary, error) {
	s.ensureDefaults()
	if s.Expirer == nil {
		return ExpirySummary{}, fmt.Errorf("expirer is required")
	}

	expired, err := s.Expirer.ExpireTickets(ctx)
	summary := ExpirySummary{TicketsExpired: expired, StillPending: s.Expirer.PendingCount()}
	if expired > 0 {
		ticketsExpiredTotal.Add(float64(expired))
	}
	if err != nil {
		sweepRunsTotal.WithLabelValues("expiry", "failed").Inc()
		return summary, fmt.Errorf("expire tickets: %w", err)
	}
	sweepRunsTotal.WithLabelValues("expiry", "completed").Inc()
	return summary, nil
}

// RunRetentionOnce prunes every target's archive. A failing target does not
// stop the others.
func (s *Service) RunRetentionOnce(ctx context.Context) (RetentionSummary, error) {
	s.ensureDefaults()
	if s.Config.ArchiveRetention <= 0 {
		return RetentionSummary{}, fmt.Errorf("archive retention is disabled")
	}

	names := make([]string, 0, len(s.Pruners))
	for name := range s.Pruners {
		names = append(names, name)
	}
	sort.Strings(names)

	summary := RetentionSummary{TargetsScanned: len(names)}
	failures := make([]string, 0)
	cutoff := s.Clock().Add(-s.Config.ArchiveRetention)

	for _, name := range names {
		deleted, err := s.Pruners[name].Prune(ctx, cutoff)
		summary.ObjectsDeleted += deleted
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("target %s prune: %v", name, err))
		}
	}

	if summary.ObjectsDeleted > 0 {
		archivesDeletedTotal.Add(float64(summary.ObjectsDeleted))
	}
	if len(failures) > 0 {
		sweepRunsTotal.WithLabelValues("retention", "failed").Inc()
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	sweepRunsTotal.WithLabelValues("retention", "completed").Inc()
	return summary, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.ExpiryInterval <= 0 {
		s.Config.ExpiryInterval = time.Minute
	}
	if s.Config.RetentionInterval <= 0 {
		s.Config.RetentionInterval = time.Hour
	}
}
