package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
)

func TestGitHubFetcher_ListsAndSorts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/zeta/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "public", r.URL.Query().Get("type"))
		fmt.Fprint(w, `[
			{"name":"beta","html_url":"https://github.com/zeta/beta","pushed_at":"2024-01-02T00:00:00Z"},
			{"name":"old","html_url":"https://github.com/zeta/old","pushed_at":"2020-01-02T00:00:00Z","archived":true}
		]`)
	})
	mux.HandleFunc("/orgs/alpha/repos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/orgs/alpha/repos?page=2>; rel="next"`, r.Host))
			fmt.Fprint(w, `[{"name":"zed","html_url":"https://github.com/alpha/zed","pushed_at":"2024-03-01T00:00:00Z"}]`)
			return
		}
		fmt.Fprint(w, `[{"name":"app","html_url":"https://github.com/alpha/app","pushed_at":"2024-02-01T00:00:00Z"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f, err := NewGitHubFetcherWithClient(srv.Client(), srv.URL, []string{"zeta", "alpha"}, newRetrier(retry.NewFakeClock(time.Now())), nil)
	require.NoError(t, err)

	repos, err := f.Fetch(context.Background())
	require.NoError(t, err)

	var names []string
	for _, r := range repos {
		names = append(names, r.FullName())
	}
	assert.Equal(t, []string{"alpha/app", "alpha/zed", "zeta/beta"}, names)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), repos[0].PushedAt)
	assert.Equal(t, "https://github.com/alpha/app", repos[0].URL)
}

func TestGitHubFetcher_UnknownOrgIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}))
	defer srv.Close()

	f, err := NewGitHubFetcherWithClient(srv.Client(), srv.URL, []string{"ghost"}, newRetrier(retry.NewFakeClock(time.Now())), nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background())
	assert.Equal(t, apperrors.ErrCodeFeedFetch, apperrors.CodeOf(err))
	assert.Equal(t, 1, calls)
}
