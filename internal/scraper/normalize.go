package scraper

import (
	"errors"
	"slices"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"jobmate/aggregator-service/internal/model"
)

// DefaultLocation is stored when upstream gives no location.
const DefaultLocation = "Remote"

// finalize applies the shared defaults to a posting an adapter has extracted
// and validates the required fields. rawLocation is the location exactly as
// upstream gave it; work mode inference looks at that, not at the default.
func finalize(rec RawRecord, p model.Posting, rawLocation string) (model.Posting, error) {
	p.Source = rec.Source
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.ApplyURL = strings.TrimSpace(p.ApplyURL)

	p.Location = strings.TrimSpace(rawLocation)
	if p.Location == "" {
		p.Location = DefaultLocation
	}
	if p.JobType == "" {
		p.JobType = model.JobTypeFullTime
	}
	if p.WorkMode == "" {
		p.WorkMode = model.InferWorkMode(rawLocation)
	}
	if strings.TrimSpace(p.CompanyName) == "" {
		p.CompanyName = companyFromBoard(rec)
	}
	if p.PostedAt.IsZero() {
		p.PostedAt = rec.FetchedAt
	}
	p.PostedAt = p.PostedAt.UTC()
	p.Skills = MergeSkills(p.Skills)
	p.IsActive = true
	p.RawPayload = slices.Clone(rec.Payload)

	if err := validate.Struct(p); err != nil {
		reason := err.Error()
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			reason = "invalid " + verrs[0].Field()
		}
		return model.Posting{}, &NormalizationError{Source: rec.Source, ExternalID: p.ExternalID, Reason: reason}
	}
	return p, nil
}

// companyFromBoard derives a display name when upstream omits the company:
// the configured name if any, else the board identifier in title case
// ("acme-corp" becomes "Acme Corp").
func companyFromBoard(rec RawRecord) string {
	if hint := strings.TrimSpace(rec.CompanyHint); hint != "" {
		return hint
	}
	words := strings.FieldsFunc(rec.Board, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	if len(words) == 0 {
		return string(rec.Source)
	}
	return strings.Join(words, " ")
}

func decodeFailure(rec RawRecord, err error) error {
	return &NormalizationError{Source: rec.Source, Reason: "undecodable payload", Err: err}
}
