package model

import (
	"database/sql"
	"time"
)

// Analysis is one video submission tracked through the job lifecycle.
// Result is set if and only if Status is complete.
type Analysis struct {
	ID           string         `db:"id"`
	OwnerID      string         `db:"owner_id"`
	VideoKey     string         `db:"video_key"`
	Status       string         `db:"status"`
	Features     []byte         `db:"features"`
	Result       []byte         `db:"result"`
	ErrorMessage sql.NullString `db:"error_message"`
	WorkerID     sql.NullString `db:"worker_id"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
}
