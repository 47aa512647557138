package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extractdesk/backend/internal/models"
)

func TestHealthHandler(t *testing.T) {
	f := newAPIFixture(t, `{}`)
	f.mount(t)
	require.NoError(t, f.journal.Record(context.Background(), &models.Attempt{ID: "a1", Outcome: models.OutcomeFallback}))

	h := NewHealthHandler("1.2.3", f.endpoint.UploadURL(), f.mgr, f.journal)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if assert.NoError(t, h.HandleHealth(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "1.2.3", body["version"])
		assert.Equal(t, f.endpoint.UploadURL(), body["uploadEndpoint"])
		assert.Equal(t, float64(1), body["widgets"])
		assert.Equal(t, map[string]interface{}{"fallback": float64(1)}, body["attempts"])
	}
}

func TestHealthHandler_NoJournal(t *testing.T) {
	f := newAPIFixture(t, `{}`)
	h := NewHealthHandler("dev", "http://127.0.0.1:8000/api/upload/", f.mgr, nil)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/health", nil), rec)

	require.NoError(t, h.HandleHealth(c))
	assert.NotContains(t, rec.Body.String(), "attempts")
}
