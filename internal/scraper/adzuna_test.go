package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/aggregator-service/internal/model"
)

func adzunaResults(ids ...string) []byte {
	results := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		results = append(results, map[string]any{
			"id":           id,
			"title":        "Data Engineer",
			"redirect_url": "https://www.adzuna.co.uk/jobs/land/ad/" + id,
		})
	}
	b, _ := json.Marshal(map[string]any{"results": results, "count": len(results)})
	return b
}

func TestAdzunaFetch_SearchesEveryPairAndDedups(t *testing.T) {
	var mu sync.Mutex
	var searches []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "id-1", q.Get("app_id"))
		assert.Equal(t, "key-1", q.Get("app_key"))
		assert.Equal(t, "50", q.Get("results_per_page"))
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v1/api/jobs/fr/search/"), r.URL.Path)

		mu.Lock()
		searches = append(searches, q.Get("what")+"@"+q.Get("where"))
		mu.Unlock()

		// Both searches return the shared posting "common".
		_, _ = w.Write(adzunaResults("common", q.Get("what")))
	}))
	defer srv.Close()

	records, err := NewAdzuna(testClient()).Fetch(context.Background(), Params{
		"app_id":   "id-1",
		"app_key":  "key-1",
		"country":  "fr",
		"what":     "golang, python",
		"where":    "Paris",
		"base_url": srv.URL,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"golang@Paris", "python@Paris"}, searches)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, "fr", rec.Board)
	}
}

func TestAdzunaFetch_StopsAfterMaxPages(t *testing.T) {
	var mu sync.Mutex
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pages = append(pages, r.URL.Path)
		mu.Unlock()
		page := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		ids := make([]string, adzunaPageSize)
		for i := range ids {
			ids[i] = fmt.Sprintf("p%s-%d", page, i)
		}
		_, _ = w.Write(adzunaResults(ids...))
	}))
	defer srv.Close()

	records, err := NewAdzuna(testClient()).Fetch(context.Background(), Params{
		"app_id": "id", "app_key": "key", "base_url": srv.URL,
	})
	require.NoError(t, err)
	assert.Len(t, records, adzunaPageSize*adzunaMaxPages)
	assert.Equal(t, []string{
		"/v1/api/jobs/gb/search/1",
		"/v1/api/jobs/gb/search/2",
		"/v1/api/jobs/gb/search/3",
	}, pages)
}

func TestAdzunaFetch_MissingCredentials(t *testing.T) {
	_, err := NewAdzuna(testClient()).Fetch(context.Background(), Params{"app_id": "", "what": "golang"})
	var cfgErr *SourceConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"app_id", "app_key"}, cfgErr.Params)
}

func TestAdzunaFetch_ErrorDoesNotLeakKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorised", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewAdzuna(testClient()).Fetch(context.Background(), Params{
		"app_id": "id", "app_key": "top-secret-key", "base_url": srv.URL,
	})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "top-secret-key")

	var unavailable *SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, http.StatusUnauthorized, unavailable.StatusCode)
}

func TestAdzunaNormalize(t *testing.T) {
	p, err := NewAdzuna(testClient()).Normalize(RawRecord{
		Source:    model.SourceAdzuna,
		Board:     "gb",
		FetchedAt: testFetchedAt,
		Payload: []byte(`{
			"id": "4567",
			"title": "<strong>Java</strong> Developer",
			"description": "Spring and SQL. Remote friendly.",
			"company": {"display_name": "Initech"},
			"location": {"display_name": "London, UK"},
			"redirect_url": "https://www.adzuna.co.uk/jobs/land/ad/4567",
			"created": "2024-02-28T08:00:00Z",
			"contract_time": "part_time",
			"contract_type": "contract",
			"salary_min": 40000
		}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "4567", p.ExternalID)
	assert.Equal(t, "Java Developer", p.Title)
	assert.Equal(t, "Initech", p.CompanyName)
	assert.Equal(t, "London, UK", p.Location)
	assert.Equal(t, model.JobTypeContract, p.JobType)
	assert.Equal(t, model.WorkModeOnsite, p.WorkMode)
	assert.Equal(t, time.Date(2024, 2, 28, 8, 0, 0, 0, time.UTC), p.PostedAt)
	assert.Equal(t, []string{"java", "sql"}, p.Skills)
}

func TestAdzunaNormalize_ContractTime(t *testing.T) {
	p, err := NewAdzuna(testClient()).Normalize(RawRecord{
		Source: model.SourceAdzuna, Board: "gb", FetchedAt: testFetchedAt,
		Payload: []byte(`{"id": 9, "redirect_url": "https://www.adzuna.co.uk/jobs/land/ad/9", "contract_time": "part_time"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "9", p.ExternalID)
	assert.Equal(t, model.JobTypePartTime, p.JobType)
	assert.Equal(t, "Unknown", p.CompanyName)
}
