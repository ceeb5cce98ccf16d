package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// AnalysisCursor marks a position in the (created_at, id) DESC ordering
type AnalysisCursor struct {
	CreatedAt  time.Time
	AnalysisID string
}

func DecodeAnalysisCursor(cursorStr string) (*AnalysisCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &AnalysisCursor{
		CreatedAt:  time.Unix(0, createdAt),
		AnalysisID: parts[1],
	}, nil
}

func EncodeAnalysisCursor(cursor *AnalysisCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.AnalysisID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
