package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dashboardFunc func(ctx context.Context) (*Dashboard, error)

func (f dashboardFunc) Dashboard(ctx context.Context) (*Dashboard, error) { return f(ctx) }

func TestDashboardHandler(t *testing.T) {
	h := NewHandler(dashboardFunc(func(context.Context) (*Dashboard, error) {
		return &Dashboard{
			Totals:        Totals{Leads: 5, Submissions: 3, AverageScore: 72.5},
			LeadsByStatus: map[string]int{"new": 4, "lost": 1},
			PostsByStatus: map[string]int{"published": 2},
			GeneratedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}, nil
	}))

	rr := httptest.NewRecorder()
	h.Dashboard(rr, httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var doc struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.EqualValues(t, 5, doc.Data["leads"])
	assert.EqualValues(t, 72.5, doc.Data["averageSubmissionScore"])
	assert.Equal(t, map[string]any{"new": float64(4), "lost": float64(1)}, doc.Data["leadsByStatus"])
}

func TestDashboardHandlerError(t *testing.T) {
	h := NewHandler(dashboardFunc(func(context.Context) (*Dashboard, error) {
		return nil, errors.New("db down")
	}))
	rr := httptest.NewRecorder()
	h.Dashboard(rr, httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
