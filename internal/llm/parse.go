package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/spherical/account-planner/internal/domain"
)

var (
	fenceRe         = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseObject decodes the JSON object in a model reply. Prose around the
// object, markdown fences and trailing commas are tolerated. Numbers are
// kept as json.Number. Any other problem is an extraction parse error
// carrying the offending text.
func ParseObject(raw string) (map[string]any, error) {
	span := fenceRe.ReplaceAllString(raw, "")
	start := strings.Index(span, "{")
	end := strings.LastIndex(span, "}")
	if start < 0 || end < start {
		return nil, domain.ExtractionParseError(truncate(raw, 2048), errors.New("no JSON object found"))
	}
	span = span[start : end+1]

	obj, err := decodeObject(span)
	if err != nil {
		// Only retry with the relaxed form when the strict parse failed.
		relaxed := trailingCommaRe.ReplaceAllString(span, "$1")
		if relaxed == span {
			return nil, domain.ExtractionParseError(truncate(span, 2048), err)
		}
		if obj, err = decodeObject(relaxed); err != nil {
			return nil, domain.ExtractionParseError(truncate(span, 2048), err)
		}
	}
	return obj, nil
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON object")
	}
	if obj == nil {
		return nil, errors.New("JSON value is null")
	}
	return obj, nil
}
