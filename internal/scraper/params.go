package scraper

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"jobmate/aggregator-service/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report parameter names the way they appear in connection_config.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeParams decodes params into the adapter's typed parameter struct and
// validates it. Values are trimmed first so that whitespace-only counts as
// missing. Comma-separated values decode into string slices.
func decodeParams(source model.SourceName, params Params, out any) error {
	trimmed := make(map[string]any, len(params))
	for k, v := range params {
		if v = strings.TrimSpace(v); v != "" {
			trimmed[k] = v
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return fmt.Errorf("create params decoder: %w", err)
	}
	if err := dec.Decode(trimmed); err != nil {
		return &SourceConfigError{Source: source, Msg: err.Error()}
	}

	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &SourceConfigError{Source: source, Msg: err.Error()}
		}
		names := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			names = append(names, fe.Field())
		}
		sort.Strings(names)
		return &SourceConfigError{Source: source, Params: names, Msg: "missing or invalid parameter"}
	}
	return nil
}
