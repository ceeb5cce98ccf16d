package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// promptTemplate is the fixed instruction contract for the completion
// collaborator. The feature payload is embedded verbatim and the completion
// must come back as a single JSON object matching ResultPayload.
const promptTemplate = `
You are a sports scientist and expert pickleball coach.
Here are the match features I extracted from a video:
%s

1) Give me a one-sentence PERFORMANCE SUMMARY.
2) List KEY METRICS as bullets (e.g. "Average shot speed: 2.3 units/s").
3) Provide THREE SPECIFIC, ACTIONABLE RECOMMENDATIONS, each tied to one metric.
4) Echo back any time-stamped events in "events".

Return exactly this JSON shape:
{
  "summary": "...",
  "metrics": ["...", "...", "..."],
  "recommendations": ["...", "...", "..."],
  "events": [ /* original events */ ]
}
`

// BuildPrompt renders the instruction with the feature payload pretty-printed
// for readability.
func BuildPrompt(featuresJSON json.RawMessage) (string, error) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, featuresJSON, "", "  "); err != nil {
		return "", fmt.Errorf("formatting feature payload: %w", err)
	}
	return fmt.Sprintf(promptTemplate, pretty.String()), nil
}
