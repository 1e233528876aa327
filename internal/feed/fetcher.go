// Package feed loads the ordered list of repositories to consider.
// Every worker must see the same order for partitioning to be complete.
package feed

import (
	"context"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
)

// Fetcher returns the full repository list in feed order
type Fetcher interface {
	Fetch(ctx context.Context) ([]domain.Repository, error)
}
