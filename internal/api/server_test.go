package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/core"
)

// fakeProvider serves a canned deployment snapshot.
type fakeProvider struct {
	statuses []core.ServiceStatus
	table    *core.RoutingTable
}

func (f *fakeProvider) Status() []core.ServiceStatus { return f.statuses }
func (f *fakeProvider) Routes() *core.RoutingTable   { return f.table }

func TestStatusHandler(t *testing.T) {
	provider := &fakeProvider{
		statuses: []core.ServiceStatus{
			{Name: "db", Image: "postgres:15", Batch: 0, ContainerID: "ctr-db", State: core.StateRunning},
			{Name: "api", Image: "example/api", Batch: 1, State: core.StateFailed},
		},
	}
	server := NewServer(0, provider, zerolog.Nop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var payload struct {
		Services []core.ServiceStatus `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Services, 2)
	assert.Equal(t, "db", payload.Services[0].Name)
	assert.Equal(t, core.StateFailed, payload.Services[1].State)
}

func TestRoutesHandler(t *testing.T) {
	provider := &fakeProvider{
		table: &core.RoutingTable{
			SecurePort: 443,
			Rows: []core.Row{
				{
					Entrypoint:  core.EntrypointHTTPS,
					PathPrefix:  "/api",
					Service:     "api",
					Target:      core.Endpoint{Host: "api", Port: 5000},
					Middlewares: []string{core.MiddlewareStripPrefix},
				},
			},
		},
	}
	server := NewServer(0, provider, zerolog.Nop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/routes", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Rows []struct {
			Entrypoint string `json:"entrypoint"`
			Target     string `json:"target"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Rows, 1)
	assert.Equal(t, "websecure", payload.Rows[0].Entrypoint)
	assert.Equal(t, "api:5000", payload.Rows[0].Target)
}

func TestRoutesHandlerNoTable(t *testing.T) {
	server := NewServer(0, &fakeProvider{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/routes", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	server := NewServer(0, &fakeProvider{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	server := NewServer(0, &fakeProvider{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
