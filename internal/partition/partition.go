// Package partition assigns disjoint slices of the repository feed to
// independent worker processes.
package partition

import (
	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
)

// Validate checks that batchSize >= 1 and 0 <= offset < batchSize
func Validate(batchSize, offset int) error {
	if batchSize < 1 || offset < 0 || offset >= batchSize {
		return apperrors.NewInvalidBatchConfigError(batchSize, offset)
	}
	return nil
}

// Select returns the repositories whose position in repos satisfies
// index % batchSize == offset, in feed order.
func Select(repos []domain.Repository, batchSize, offset int) ([]domain.Repository, error) {
	if err := Validate(batchSize, offset); err != nil {
		return nil, err
	}

	selected := make([]domain.Repository, 0, len(repos)/batchSize+1)
	for i := offset; i < len(repos); i += batchSize {
		selected = append(selected, repos[i])
	}
	return selected, nil
}

// Limit caps repos to the first limit entries; limit <= 0 means no cap
func Limit(repos []domain.Repository, limit int) []domain.Repository {
	if limit <= 0 || limit >= len(repos) {
		return repos
	}
	return repos[:limit]
}
