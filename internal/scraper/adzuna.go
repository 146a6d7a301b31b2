package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"jobmate/aggregator-service/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com"
	adzunaPageSize = 50
	adzunaMaxPages = 3 // max 150 results per (what × where) pair
)

type adzunaParams struct {
	AppID   string   `mapstructure:"app_id" validate:"required"`
	AppKey  string   `mapstructure:"app_key" validate:"required"`
	Country string   `mapstructure:"country"`
	What    []string `mapstructure:"what"`
	Where   []string `mapstructure:"where"`
	BaseURL string   `mapstructure:"base_url" validate:"omitempty,url"`
}

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []json.RawMessage `json:"results"`
	Count   int               `json:"count"`
}

// Adzuna fetches job offers from the Adzuna search API. what and where accept
// comma-separated lists; every (what, where) pair is searched.
type Adzuna struct {
	client *Client
}

// NewAdzuna constructs the adapter.
func NewAdzuna(client *Client) *Adzuna {
	return &Adzuna{client: client}
}

func (a *Adzuna) Name() model.SourceName { return model.SourceAdzuna }

// Fetch runs every search, paging until no more results or adzunaMaxPages is
// reached. A posting returned by more than one search is kept once.
func (a *Adzuna) Fetch(ctx context.Context, params Params) ([]RawRecord, error) {
	var p adzunaParams
	if err := decodeParams(a.Name(), params, &p); err != nil {
		return nil, err
	}
	if p.Country == "" {
		p.Country = "gb"
	}
	base := strings.TrimRight(p.BaseURL, "/")
	if base == "" {
		base = adzunaBaseURL
	}
	whats := nonEmpty(p.What)
	wheres := nonEmpty(p.Where)

	fetchedAt := a.client.fetchedAt()
	seen := make(map[string]struct{})
	var records []RawRecord
	for _, what := range whats {
		for _, where := range wheres {
			for page := 1; page <= adzunaMaxPages; page++ {
				batch, err := a.fetchPage(ctx, base, p, what, where, page)
				if err != nil {
					return nil, fmt.Errorf("page %d: %w", page, err)
				}
				for _, raw := range batch {
					id := ""
					if obj, err := decodeObject(raw); err == nil {
						id = obj.String("id")
					}
					if id != "" {
						if _, dup := seen[id]; dup {
							continue
						}
						seen[id] = struct{}{}
					}
					records = append(records, RawRecord{
						Source:    a.Name(),
						Board:     p.Country,
						FetchedAt: fetchedAt,
						Payload:   raw,
					})
				}
				if len(batch) < adzunaPageSize {
					break // last page
				}
			}
		}
	}
	return records, nil
}

func (a *Adzuna) fetchPage(ctx context.Context, base string, p adzunaParams, what, where string, page int) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("app_id", p.AppID)
	q.Set("app_key", p.AppKey)
	q.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	if what != "" {
		q.Set("what", what)
	}
	if where != "" {
		q.Set("where", where)
	}
	q.Set("content-type", "application/json")
	q.Set("sort_by", "date")

	endpoint := fmt.Sprintf("%s/v1/api/jobs/%s/search/%d?%s", base, url.PathEscape(p.Country), page, q.Encode())
	var resp adzunaResponse
	if err := a.client.getJSON(ctx, a.Name(), endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Normalize maps an Adzuna result onto the canonical posting.
func (a *Adzuna) Normalize(rec RawRecord) (model.Posting, error) {
	result, err := decodeObject(rec.Payload)
	if err != nil {
		return model.Posting{}, decodeFailure(rec, err)
	}

	var jobType model.JobType
	if strings.EqualFold(result.String("contract_type"), "contract") {
		jobType = model.JobTypeContract
	} else {
		jobType, _ = model.ParseJobType(result.String("contract_time"))
	}
	created, _ := result.Time("created")
	description := HTMLToText(result.String("description"))
	title := HTMLToText(result.String("title"))

	p := model.Posting{
		ExternalID:  result.String("id"),
		Title:       title,
		CompanyName: result.Object("company").String("display_name"),
		Description: description,
		JobType:     jobType,
		ApplyURL:    result.String("redirect_url"),
		PostedAt:    created,
		Skills:      MatchSkills(title+"\n"+description, DefaultSkills),
	}
	if p.CompanyName == "" {
		p.CompanyName = "Unknown"
	}
	return finalize(rec, p, result.Object("location").String("display_name"))
}

// nonEmpty trims the values and drops blanks; an empty input yields a single
// blank entry, meaning "no filter".
func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}
