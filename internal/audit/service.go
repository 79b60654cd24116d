package audit

import (
	"context"
	"fmt"
	"time"
)

// Service coordinates query log reads and writes.
type Service struct {
	repo Repository
}

// NewService builds the query log service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record persists one query record.
func (s *Service) Record(ctx context.Context, rec QueryRecord) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	return s.repo.InsertQuery(ctx, rec)
}

// Recent lists recent query records, newest first.
func (s *Service) Recent(ctx context.Context, filters QueryFilters) ([]QueryRecord, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.ListQueries(ctx, filters)
}

// Prune deletes query records older than the retention window and returns
// how many were removed.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("audit: repository not configured")
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return s.repo.PruneQueries(ctx, time.Now().UTC().Add(-retention))
}
