package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/shipyard/internal/deployments/domain"
)

// mockService implements Service with canned responses
type mockService struct {
	deployment *domain.Deployment
	getErr     error
	listResult *domain.ListResult
	listErr    error
}

func (m *mockService) Get(ctx context.Context, id string) (*domain.Deployment, error) {
	return m.deployment, m.getErr
}

func (m *mockService) GetByAddress(ctx context.Context, network, address string) (*domain.Deployment, error) {
	return m.deployment, m.getErr
}

func (m *mockService) List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error) {
	return m.listResult, m.listErr
}

func newTestRouter(svc Service) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/v1/deployments", func(r chi.Router) {
		NewHandler(svc).RegisterRoutes(r)
	})
	return r
}

func sampleDeployment() *domain.Deployment {
	return &domain.Deployment{
		ID:       "dep-1",
		Contract: "Token",
		Network:  "sepolia",
		ChainID:  11155111,
		Address:  "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		TxHash:   "0xabc",
		Status:   "success",
		Verified: true,
	}
}

func TestHandler_List(t *testing.T) {
	svc := &mockService{listResult: &domain.ListResult{
		Deployments: []domain.Deployment{*sampleDeployment()},
		HasMore:     true,
		NextCursor:  "dep-1",
	}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/deployments?network=sepolia&limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data       []map[string]any `json:"data"`
		Pagination map[string]any   `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Token", body.Data[0]["contract"])
	assert.Equal(t, true, body.Pagination["hasMore"])
	assert.Equal(t, "dep-1", body.Pagination["nextCursor"])
}

func TestHandler_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		router := newTestRouter(&mockService{deployment: sampleDeployment()})

		req := httptest.NewRequest(http.MethodGet, "/v1/deployments/dep-1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var d domain.Deployment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
		assert.Equal(t, "dep-1", d.ID)
		assert.True(t, d.Verified)
	})

	t.Run("not found", func(t *testing.T) {
		router := newTestRouter(&mockService{getErr: domain.ErrNotFound})

		req := httptest.NewRequest(http.MethodGet, "/v1/deployments/missing", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})
}

func TestHandler_GetByAddress(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		router := newTestRouter(&mockService{deployment: sampleDeployment()})

		req := httptest.NewRequest(http.MethodGet, "/v1/deployments/sepolia/0x5FbDB2315678afecb367f032d93F642f64180aa3", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid address", func(t *testing.T) {
		router := newTestRouter(&mockService{getErr: domain.ErrInvalidAddress})

		req := httptest.NewRequest(http.MethodGet, "/v1/deployments/sepolia/bogus", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_WritesAreNotRouted(t *testing.T) {
	router := newTestRouter(&mockService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/deployments", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
