package domain

// AnalysisJob is the slice of an analysis row the worker needs to run inference
type AnalysisJob struct {
	ID       string
	OwnerID  string
	VideoKey string
	Features []byte
	Status   string
	WorkerID string
}

// JobMessage represents an analysis message from RabbitMQ
type JobMessage struct {
	AnalysisID  string `json:"analysis_id"`
	DeliveryTag uint64 `json:"-"`
}
