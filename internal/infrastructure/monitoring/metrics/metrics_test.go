package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveHTTPRequestExposed(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest("GET", "/api/v1/contracts", "200", 25*time.Millisecond)
	m.ResolverIssuesTotal.WithLabelValues("CTR_005").Inc()
	m.RemindersSentTotal.WithLabelValues("sent").Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `dealdesk_http_requests_total{method="GET",path="/api/v1/contracts",status_code="200"} 1`))
	assert.True(t, strings.Contains(body, `dealdesk_resolver_issues_total{code="CTR_005"} 1`))
	assert.True(t, strings.Contains(body, `dealdesk_reminders_sent_total{outcome="sent"} 3`))
}

func TestSeparateRegistries(t *testing.T) {
	a := New()
	b := New()
	a.ResolverRunsTotal.Inc()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.False(t, strings.Contains(rec.Body.String(), "dealdesk_resolver_runs_total 1"))
}
