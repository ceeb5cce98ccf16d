package dto

import "encoding/json"

type CreateAnalysisRequest struct {
	OwnerID  string `json:"owner_id" binding:"required"`
	VideoKey string `json:"video_key" binding:"required"`
}

type ProcessAnalysisRequest struct {
	ID       string          `json:"id"`
	Features json.RawMessage `json:"features"`
}

type ListAnalysesRequest struct {
	OwnerID  string `form:"owner_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListAnalysesResponse struct {
	Analyses   []AnalysisDTO `json:"analyses"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type AnalysisDTO struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	VideoKey     string          `json:"video_key"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    string          `json:"created_at"`
	CompletedAt  string          `json:"completed_at,omitempty"`
}
