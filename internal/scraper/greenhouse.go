package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"jobmate/aggregator-service/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io"

type greenhouseParams struct {
	BoardToken  string `mapstructure:"board_token" validate:"required"`
	CompanyName string `mapstructure:"company_name"`
	BaseURL     string `mapstructure:"base_url" validate:"omitempty,url"`
}

// greenhouseResponse mirrors the job board listing. Jobs are kept raw so the
// stored payload is exactly what upstream sent.
type greenhouseResponse struct {
	Jobs []json.RawMessage `json:"jobs"`
}

// Greenhouse fetches postings from the Greenhouse Job Board API.
type Greenhouse struct {
	client *Client
}

// NewGreenhouse constructs the adapter.
func NewGreenhouse(client *Client) *Greenhouse {
	return &Greenhouse{client: client}
}

func (g *Greenhouse) Name() model.SourceName { return model.SourceGreenhouse }

// Fetch retrieves every published job on the board in a single request.
func (g *Greenhouse) Fetch(ctx context.Context, params Params) ([]RawRecord, error) {
	var p greenhouseParams
	if err := decodeParams(g.Name(), params, &p); err != nil {
		return nil, err
	}
	base := strings.TrimRight(p.BaseURL, "/")
	if base == "" {
		base = greenhouseBaseURL
	}
	endpoint := fmt.Sprintf("%s/v1/boards/%s/jobs?content=true", base, url.PathEscape(p.BoardToken))

	fetchedAt := g.client.fetchedAt()
	var resp greenhouseResponse
	if err := g.client.getJSON(ctx, g.Name(), endpoint, &resp); err != nil {
		return nil, err
	}

	records := make([]RawRecord, 0, len(resp.Jobs))
	for _, job := range resp.Jobs {
		records = append(records, RawRecord{
			Source:      g.Name(),
			Board:       p.BoardToken,
			CompanyHint: p.CompanyName,
			FetchedAt:   fetchedAt,
			Payload:     job,
		})
	}
	return records, nil
}

// Normalize maps a Greenhouse job onto the canonical posting. Greenhouse has
// no job type or work mode fields, so those follow the defaults.
func (g *Greenhouse) Normalize(rec RawRecord) (model.Posting, error) {
	job, err := decodeObject(rec.Payload)
	if err != nil {
		return model.Posting{}, decodeFailure(rec, err)
	}

	description := HTMLToText(job.String("content"))
	posted, ok := job.Time("first_published")
	if !ok {
		posted, _ = job.Time("updated_at")
	}

	p := model.Posting{
		ExternalID:  job.String("id"),
		Title:       job.String("title"),
		CompanyName: job.String("company_name"),
		Description: description,
		ApplyURL:    job.String("absolute_url"),
		PostedAt:    posted,
		Skills:      MatchSkills(job.String("title")+"\n"+description, DefaultSkills),
	}
	return finalize(rec, p, job.Object("location").String("name"))
}
