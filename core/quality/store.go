package quality

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ryansmccoy/spine-core/core/repository"
)

const tableName = "core_quality"

// Store persists Runner results to core_quality.
type Store struct {
	repo *repository.Repository
}

// NewStore binds a Store to a repository.
func NewStore(repo *repository.Repository) *Store {
	return &Store{repo: repo}
}

// Save records every result from a RunAll call, tagged with domain and
// the execution that produced them.
func (s *Store) Save(ctx context.Context, domain string, executionID string, results []Result) error {
	now := time.Now().UTC()
	for _, res := range results {
		values := repository.Row{
			"id":            uuid.NewString(),
			"domain":        domain,
			"check_name":    res.CheckName,
			"category":      res.Category,
			"status":        string(res.Status),
			"message":       res.Message,
			"actual":        res.Actual,
			"expected":      res.Expected,
			"partition_key": res.PartitionKey,
			"execution_id":  executionID,
			"captured_at":   now,
		}
		if _, err := s.repo.Insert(ctx, tableName, values); err != nil {
			return err
		}
	}
	return nil
}
