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
	leverBaseURL  = "https://api.lever.co"
	leverPageSize = 100
	leverMaxPages = 20
)

type leverParams struct {
	Site        string `mapstructure:"site" validate:"required"`
	CompanyName string `mapstructure:"company_name"`
	BaseURL     string `mapstructure:"base_url" validate:"omitempty,url"`
}

// Lever fetches postings from the Lever Postings API.
type Lever struct {
	client *Client
}

// NewLever constructs the adapter.
func NewLever(client *Client) *Lever {
	return &Lever{client: client}
}

func (l *Lever) Name() model.SourceName { return model.SourceLever }

// Fetch pages through the site's postings until a short page. A site that
// still has full pages after leverMaxPages yields the records read so far and
// a *TruncatedError.
func (l *Lever) Fetch(ctx context.Context, params Params) ([]RawRecord, error) {
	var p leverParams
	if err := decodeParams(l.Name(), params, &p); err != nil {
		return nil, err
	}
	base := strings.TrimRight(p.BaseURL, "/")
	if base == "" {
		base = leverBaseURL
	}

	fetchedAt := l.client.fetchedAt()
	var records []RawRecord
	for page := 0; page < leverMaxPages; page++ {
		q := url.Values{}
		q.Set("mode", "json")
		q.Set("skip", strconv.Itoa(page*leverPageSize))
		q.Set("limit", strconv.Itoa(leverPageSize))
		endpoint := fmt.Sprintf("%s/v0/postings/%s?%s", base, url.PathEscape(p.Site), q.Encode())

		var batch []json.RawMessage
		if err := l.client.getJSON(ctx, l.Name(), endpoint, &batch); err != nil {
			return nil, fmt.Errorf("page %d: %w", page+1, err)
		}
		for _, posting := range batch {
			records = append(records, RawRecord{
				Source:      l.Name(),
				Board:       p.Site,
				CompanyHint: p.CompanyName,
				FetchedAt:   fetchedAt,
				Payload:     posting,
			})
		}
		if len(batch) < leverPageSize {
			return records, nil
		}
	}
	return records, &TruncatedError{Source: l.Name(), Limit: leverMaxPages * leverPageSize}
}

// Normalize maps a Lever posting onto the canonical posting.
func (l *Lever) Normalize(rec RawRecord) (model.Posting, error) {
	posting, err := decodeObject(rec.Payload)
	if err != nil {
		return model.Posting{}, decodeFailure(rec, err)
	}
	categories := posting.Object("categories")

	description := posting.String("descriptionPlain")
	if description == "" {
		description = HTMLToText(posting.String("description"))
	} else {
		description = collapseWhitespace(description)
	}

	applyURL := posting.String("applyUrl")
	if applyURL == "" {
		applyURL = posting.String("hostedUrl")
	}

	jobType, _ := model.ParseJobType(categories.String("commitment"))
	workMode, _ := model.ParseWorkMode(posting.String("workplaceType"))
	postedAt, _ := posting.Time("createdAt")
	requirements := leverRequirements(posting.Objects("lists"))

	p := model.Posting{
		ExternalID:   posting.String("id"),
		Title:        posting.String("text"),
		Description:  description,
		Requirements: requirements,
		JobType:      jobType,
		WorkMode:     workMode,
		ApplyURL:     applyURL,
		PostedAt:     postedAt,
		Skills: MergeSkills(
			posting.Strings("tags"),
			MatchSkills(strings.Join([]string{posting.String("text"), description, requirements}, "\n"), DefaultSkills),
		),
	}
	return finalize(rec, p, categories.String("location"))
}

// leverRequirements picks the list titled like "Requirements", else the first list.
func leverRequirements(lists []object) string {
	if len(lists) == 0 {
		return ""
	}
	chosen := lists[0]
	for _, list := range lists {
		if strings.Contains(strings.ToLower(list.String("text")), "requirement") {
			chosen = list
			break
		}
	}
	return HTMLToText(chosen.String("content"))
}
