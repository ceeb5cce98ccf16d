package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/matchsight/matchsight-be/internal/features"
)

// ErrMalformedOutput indicates the completion did not contain a well-formed
// result payload. A job must never persist a partial result.
var ErrMalformedOutput = errors.New("malformed inference output")

// ResultPayload is the structured report attached to a completed job.
// Immutable once persisted.
type ResultPayload struct {
	Summary         string           `json:"summary"`
	Metrics         []string         `json:"metrics"`
	Recommendations []string         `json:"recommendations"`
	Events          []features.Event `json:"events"`
}

// ParseResult extracts and validates the single JSON object expected inside a
// completion. The collaborator enforces no schema, so everything is checked
// here: summary present, at least one recommendation, metrics a list.
func ParseResult(completion string) (*ResultPayload, error) {
	raw, err := extractJSONObject(completion)
	if err != nil {
		return nil, err
	}

	var result ResultPayload
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&result); err != nil {
		// Models occasionally add fields beyond the contract; tolerate them but
		// not a shape mismatch on the known fields.
		var unmarshalErr *json.UnmarshalTypeError
		if errors.As(err, &unmarshalErr) || !strings.Contains(err.Error(), "unknown field") {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
	}

	if strings.TrimSpace(result.Summary) == "" {
		return nil, fmt.Errorf("%w: missing summary", ErrMalformedOutput)
	}
	if result.Metrics == nil {
		return nil, fmt.Errorf("%w: missing metrics", ErrMalformedOutput)
	}
	if len(result.Recommendations) == 0 {
		return nil, fmt.Errorf("%w: missing recommendations", ErrMalformedOutput)
	}
	if result.Events == nil {
		result.Events = []features.Event{}
	}

	return &result, nil
}

// extractJSONObject returns the outermost JSON object embedded in free-form
// completion text. Models often wrap the object in prose or code fences.
func extractJSONObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON object in completion", ErrMalformedOutput)
	}
	return s[start : end+1], nil
}
