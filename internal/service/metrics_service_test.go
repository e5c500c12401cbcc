package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-identity-api/internal/models"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordProvisioning(models.RoleStudent, nil)
	m.RecordProvisioning(models.RoleStudent, errors.New("boom"))
	m.RecordLoginIDCollision(models.RoleTeacher)
	m.RecordLeaveDecision("guardian", models.LeaveApproved)
	m.RecordNotificationFailure("deliver")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.provisioningTotal.WithLabelValues("STUDENT", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.provisioningTotal.WithLabelValues("STUDENT", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loginIDCollisions.WithLabelValues("TEACHER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leaveDecisions.WithLabelValues("guardian", "APPROVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationFailures.WithLabelValues("deliver")))
}

func TestMetricsServiceHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordProvisioning(models.RoleParent, nil)
	m.RecordCacheOperation(true, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
