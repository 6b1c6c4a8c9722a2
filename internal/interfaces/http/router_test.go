package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcalendar "github.com/dealdeskhq/dealdesk/internal/application/calendar"
	appcontract "github.com/dealdeskhq/dealdesk/internal/application/contract"
	appextraction "github.com/dealdeskhq/dealdesk/internal/application/extraction"
	appreminder "github.com/dealdeskhq/dealdesk/internal/application/reminder"
	appuser "github.com/dealdeskhq/dealdesk/internal/application/user"
	domainuser "github.com/dealdeskhq/dealdesk/internal/domain/user"
	"github.com/dealdeskhq/dealdesk/internal/config"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/auth"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/metrics"
	"github.com/dealdeskhq/dealdesk/internal/interfaces/http/handlers"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

type stubVerifier struct{}

func (stubVerifier) Verify(context.Context, string) (*auth.Claims, error) {
	return &auth.Claims{Subject: "sub-1", Email: "agent@example.com"}, nil
}

type stubUserService struct {
	appuser.Service
}

func (stubUserService) EnsureUser(context.Context, *auth.Claims) (*domainuser.User, error) {
	return &domainuser.User{ID: common.UserID("user-1"), Email: "agent@example.com"}, nil
}

type stubCalendarService struct{}

func (stubCalendarService) ExportICS(context.Context, common.UserID) ([]byte, error) {
	return []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), nil
}

func (stubCalendarService) ListEvents(context.Context, common.UserID, int, int) (*appcalendar.EventList, error) {
	return &appcalendar.EventList{Today: common.Today()}, nil
}

type stubContractService struct{ appcontract.Service }
type stubReminderService struct{ appreminder.Service }
type stubExtractionService struct{ appextraction.Service }

func testRouter(t *testing.T) *RouterConfig {
	t.Helper()
	log := logging.NewNopLogger()
	return &RouterConfig{
		ServerConfig: config.ServerConfig{Mode: "test", Port: 8080},
		Logger:       log,
		Metrics:      metrics.New(),
		Verifier:     stubVerifier{},
		Users:        stubUserService{},

		ContractHandler: handlers.NewContractHandler(stubContractService{}, log),
		CalendarHandler: handlers.NewCalendarHandler(stubCalendarService{}, log),
		ReminderHandler: handlers.NewReminderHandler(stubReminderService{}, log),
		UploadHandler:   handlers.NewUploadHandler(stubExtractionService{}, log),
		UserHandler:     handlers.NewUserHandler(stubUserService{}, log),
		HealthHandler: handlers.NewHealthHandler("test", map[string]handlers.Pinger{
			"postgres": handlers.PingerFunc(func(context.Context) error { return nil }),
		}, log),
	}
}

func TestRouterProbesArePublic(t *testing.T) {
	r := NewRouter(*testRouter(t))

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouterAPIRequiresToken(t *testing.T) {
	r := NewRouter(*testRouter(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/calendar/export.ics", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterAuthorizedCalendarExport(t *testing.T) {
	r := NewRouter(*testRouter(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calendar/export.ics", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, w.Body.String(), "BEGIN:VCALENDAR")
}

func TestRouterRequestIDPropagates(t *testing.T) {
	r := NewRouter(*testRouter(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-7", w.Header().Get("X-Request-ID"))
}
