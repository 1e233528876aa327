package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
)

func makeRepos(n int) []domain.Repository {
	repos := make([]domain.Repository, n)
	for i := range repos {
		repos[i] = domain.Repository{Org: "alphagov", Name: fmt.Sprintf("repo%d", i)}
	}
	return repos
}

func names(repos []domain.Repository) []string {
	out := make([]string, len(repos))
	for i, r := range repos {
		out[i] = r.Name
	}
	return out
}

func TestSelect_Example(t *testing.T) {
	got, err := Select(makeRepos(25), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"repo3", "repo13", "repo23"}, names(got))
}

func TestSelect_DefaultSelectsEverything(t *testing.T) {
	repos := makeRepos(7)
	got, err := Select(repos, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, names(repos), names(got))
}

func TestSelect_PartitionsCompletely(t *testing.T) {
	for _, length := range []int{0, 1, 9, 25, 101} {
		for n := 1; n <= 12; n++ {
			repos := makeRepos(length)
			seen := map[string]int{}
			total := 0

			for m := 0; m < n; m++ {
				part, err := Select(repos, n, m)
				require.NoError(t, err)

				// order preserved within a partition
				for i := 1; i < len(part); i++ {
					var prev, cur int
					fmt.Sscanf(part[i-1].Name, "repo%d", &prev)
					fmt.Sscanf(part[i].Name, "repo%d", &cur)
					assert.Less(t, prev, cur)
				}
				for _, r := range part {
					seen[r.Name]++
				}
				total += len(part)
			}

			assert.Equal(t, length, total, "L=%d N=%d", length, n)
			assert.Len(t, seen, length)
			for name, count := range seen {
				assert.Equal(t, 1, count, "duplicate %s", name)
			}
		}
	}
}

func TestSelect_BatchLargerThanFeed(t *testing.T) {
	got, err := Select(makeRepos(3), 10, 7)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelect_InvalidConfiguration(t *testing.T) {
	cases := []struct{ n, m int }{{0, 0}, {3, 3}, {3, 5}, {2, -1}, {-1, 0}}
	for _, c := range cases {
		_, err := Select(makeRepos(5), c.n, c.m)
		require.Error(t, err, "N=%d M=%d", c.n, c.m)
		assert.Equal(t, apperrors.ErrCodeInvalidBatchConfig, apperrors.CodeOf(err))
		assert.True(t, apperrors.IsFatal(err))
	}
}

func TestLimit(t *testing.T) {
	repos := makeRepos(5)
	assert.Len(t, Limit(repos, 0), 5)
	assert.Len(t, Limit(repos, -1), 5)
	assert.Equal(t, []string{"repo0", "repo1"}, names(Limit(repos, 2)))
	assert.Len(t, Limit(repos, 50), 5)
}
