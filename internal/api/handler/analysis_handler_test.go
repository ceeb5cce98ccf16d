package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchsight/matchsight-be/internal/api/domain"
	"github.com/matchsight/matchsight-be/internal/api/model"
	"github.com/matchsight/matchsight-be/shared/logger"
)

type fakeStore struct {
	analyses       map[string]*model.Analysis
	createErr      error
	setFeaturesErr error
	listErr        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{analyses: make(map[string]*model.Analysis)}
}

func (s *fakeStore) CreateAnalysis(ctx context.Context, ownerID, videoKey string) (*model.Analysis, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	analysis := &model.Analysis{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		VideoKey:  videoKey,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.analyses[analysis.ID] = analysis
	return analysis, nil
}

func (s *fakeStore) GetAnalysisByID(ctx context.Context, id string) (*model.Analysis, error) {
	analysis, ok := s.analyses[id]
	if !ok {
		return nil, domain.ErrAnalysisNotFound
	}
	return analysis, nil
}

func (s *fakeStore) ListAnalyses(ctx context.Context, ownerID, status string, limit int, cursorCreatedAt time.Time, cursorID string) ([]model.Analysis, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Analysis
	for _, analysis := range s.analyses {
		if analysis.OwnerID != ownerID {
			continue
		}
		if status != "" && analysis.Status != status {
			continue
		}
		out = append(out, *analysis)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) SetFeatures(ctx context.Context, id string, features []byte) error {
	if s.setFeaturesErr != nil {
		return s.setFeaturesErr
	}
	analysis, ok := s.analyses[id]
	if !ok || analysis.Status != domain.StatusPending {
		return domain.ErrAnalysisNotFound
	}
	analysis.Features = features
	return nil
}

type fakeQueue struct {
	publishErr error
	published  [][]byte
}

func (q *fakeQueue) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, body)
	return nil
}

func newTestRouter(store *fakeStore, queue *fakeQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewAnalysisHandler(&Dependencies{
		Logger: logger.NewDefault().Logger,
		Store:  store,
		Queue:  queue,
	})

	r := gin.New()
	v1 := r.Group("/api/v1")
	analyses := v1.Group("/analyses")
	analyses.POST("", h.CreateAnalysis)
	analyses.GET("", h.ListAnalyses)
	analyses.GET("/:analysis_id", h.GetAnalysis)
	analyses.POST("/:analysis_id/process", h.ProcessAnalysis)
	return r
}

func doRequest(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAnalysis(t *testing.T) {
	store := newFakeStore()
	r := newTestRouter(store, &fakeQueue{})

	w := doRequest(r, http.MethodPost, "/api/v1/analyses", []byte(`{"owner_id":"owner-1","video_key":"1700_match.mp4"}`))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "owner-1", resp["owner_id"])
	assert.NotEmpty(t, resp["id"])
	assert.NotContains(t, resp, "result")
}

func TestCreateAnalysis_InvalidBody(t *testing.T) {
	r := newTestRouter(newFakeStore(), &fakeQueue{})

	w := doRequest(r, http.MethodPost, "/api/v1/analyses", []byte(`{"owner_id":"owner-1"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAnalysis(t *testing.T) {
	store := newFakeStore()
	analysis, err := store.CreateAnalysis(context.Background(), "owner-1", "k1")
	require.NoError(t, err)

	r := newTestRouter(store, &fakeQueue{})

	t.Run("pending job has no result", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/analyses/"+analysis.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "pending", resp["status"])
		assert.NotContains(t, resp, "result")
	})

	t.Run("complete job carries result", func(t *testing.T) {
		analysis.Status = domain.StatusComplete
		analysis.Result = []byte(`{"summary":"ok"}`)
		analysis.CompletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

		w := doRequest(r, http.MethodGet, "/api/v1/analyses/"+analysis.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "complete", resp["status"])
		assert.Contains(t, resp, "result")
		assert.Contains(t, resp, "completed_at")
	})

	t.Run("error job exposes message but no result", func(t *testing.T) {
		analysis.Status = domain.StatusError
		analysis.Result = nil
		analysis.ErrorMessage = sql.NullString{String: "inference failed", Valid: true}

		w := doRequest(r, http.MethodGet, "/api/v1/analyses/"+analysis.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "error", resp["status"])
		assert.Equal(t, "inference failed", resp["error_message"])
		assert.NotContains(t, resp, "result")
	})

	t.Run("unknown id", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/analyses/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/analyses/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListAnalyses(t *testing.T) {
	store := newFakeStore()
	_, err := store.CreateAnalysis(context.Background(), "owner-1", "k1")
	require.NoError(t, err)
	_, err = store.CreateAnalysis(context.Background(), "owner-2", "k2")
	require.NoError(t, err)

	r := newTestRouter(store, &fakeQueue{})

	t.Run("filters by owner", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/analyses?owner_id=owner-1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Analyses []map[string]interface{} `json:"analyses"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Analyses, 1)
		assert.Equal(t, "owner-1", resp.Analyses[0]["owner_id"])
	})

	t.Run("owner_id is required", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/analyses", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects bad cursor", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/analyses?owner_id=owner-1&cursor=%25%25", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProcessAnalysis(t *testing.T) {
	validFeatures := `{"duration_seconds":3,"serve_count":1,"avg_balance":9.1,"events":[]}`

	t.Run("accepts features and enqueues", func(t *testing.T) {
		store := newFakeStore()
		queue := &fakeQueue{}
		analysis, err := store.CreateAnalysis(context.Background(), "owner-1", "k1")
		require.NoError(t, err)

		r := newTestRouter(store, queue)
		w := doRequest(r, http.MethodPost, "/api/v1/analyses/"+analysis.ID+"/process",
			[]byte(`{"features":`+validFeatures+`}`))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())

		assert.JSONEq(t, validFeatures, string(store.analyses[analysis.ID].Features))
		require.Len(t, queue.published, 1)
		assert.Contains(t, string(queue.published[0]), analysis.ID)
	})

	t.Run("body id matching path is accepted", func(t *testing.T) {
		store := newFakeStore()
		analysis, err := store.CreateAnalysis(context.Background(), "owner-1", "k1")
		require.NoError(t, err)

		r := newTestRouter(store, &fakeQueue{})
		w := doRequest(r, http.MethodPost, "/api/v1/analyses/"+analysis.ID+"/process",
			[]byte(`{"id":"`+analysis.ID+`","features":`+validFeatures+`}`))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("body id mismatching path is rejected", func(t *testing.T) {
		store := newFakeStore()
		analysis, err := store.CreateAnalysis(context.Background(), "owner-1", "k1")
		require.NoError(t, err)

		r := newTestRouter(store, &fakeQueue{})
		w := doRequest(r, http.MethodPost, "/api/v1/analyses/"+analysis.ID+"/process",
			[]byte(`{"id":"`+uuid.NewString()+`","features":`+validFeatures+`}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		// Nothing was stored on the row
		assert.Empty(t, store.analyses[analysis.ID].Features)
	})

	t.Run("missing features", func(t *testing.T) {
		store := newFakeStore()
		analysis, err := store.CreateAnalysis(context.Background(), "owner-1", "k1")
		require.NoError(t, err)

		r := newTestRouter(store, &fakeQueue{})
		w := doRequest(r, http.MethodPost, "/api/v1/analyses/"+analysis.ID+"/process", []byte(`{}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		r := newTestRouter(newFakeStore(), &fakeQueue{})
		w := doRequest(r, http.MethodPost, "/api/v1/analyses/"+uuid.NewString()+"/process",
			[]byte(`{"features":`+validFeatures+`}`))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		r := newTestRouter(newFakeStore(), &fakeQueue{})
		w := doRequest(r, http.MethodPost, "/api/v1/analyses/nope/process",
			[]byte(`{"features":`+validFeatures+`}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("storage failure", func(t *testing.T) {
		store := newFakeStore()
		store.setFeaturesErr = errors.New("connection reset")
		analysis, err := store.CreateAnalysis(context.Background(), "owner-1", "k1")
		require.NoError(t, err)

		r := newTestRouter(store, &fakeQueue{})
		w := doRequest(r, http.MethodPost, "/api/v1/analyses/"+analysis.ID+"/process",
			[]byte(`{"features":`+validFeatures+`}`))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("enqueue failure leaves job retryable", func(t *testing.T) {
		store := newFakeStore()
		queue := &fakeQueue{publishErr: errors.New("broker down")}
		analysis, err := store.CreateAnalysis(context.Background(), "owner-1", "k1")
		require.NoError(t, err)

		r := newTestRouter(store, queue)
		w := doRequest(r, http.MethodPost, "/api/v1/analyses/"+analysis.ID+"/process",
			[]byte(`{"features":`+validFeatures+`}`))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		// The row keeps its features and stays pending for a retry
		assert.Equal(t, domain.StatusPending, store.analyses[analysis.ID].Status)
	})
}
