package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	adactor "github.com/berfenger/mpp2mqtt/internal/adapter/actor"
	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/internal/core/port"
	"github.com/berfenger/mpp2mqtt/internal/core/service"
	"github.com/berfenger/mpp2mqtt/internal/metrics"
	"github.com/berfenger/mpp2mqtt/internal/mqtt"
	"github.com/berfenger/mpp2mqtt/internal/util"
	"github.com/berfenger/mpp2mqtt/internal/util/actorutil"
	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testHandler serves the routes against a device actor standing in for the
// master, which forwards device requests unchanged.
func testHandler(t *testing.T, exec *mppsolar.TestExecutor) http.Handler {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	m := metrics.NewMetrics()
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewDeviceActor(func() (port.InverterService, error) {
			return service.NewAggregator("/dev/ttyUSB0", mppsolar.InstrumentedOpener(exec.Opener(), logger, m.ExecutorInstrument()))
		}, time.Second, logger)
	}))
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	cfg := util.LoadTestConfig()
	return newServer(cfg, as.Root, pid, m.Handler()).RegisterRoutes()
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {

	h := testHandler(t, mppsolar.CreateTestExecutor())
	rec := get(h, "/healthcheck")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())
}

func TestSnapshotRoutes(t *testing.T) {

	require := require.New(t)
	h := testHandler(t, mppsolar.CreateTestExecutor())

	rec := get(h, "/api/serial")
	require.Equal(http.StatusOK, rec.Code)
	require.JSONEq(`{"serial_number":"92931509101901"}`, rec.Body.String())

	rec = get(h, "/api/status")
	require.Equal(http.StatusOK, rec.Code)
	require.Contains(rec.Body.String(), `"battery_voltage":{"value":"57.50","unit":"V"}`)

	rec = get(h, "/api/settings")
	require.Equal(http.StatusOK, rec.Code)
	require.Contains(rec.Body.String(), `"buzzer":{"value":"disabled","unit":"","default":"enabled"}`)

	rec = get(h, "/api/commands")
	require.Equal(http.StatusOK, rec.Code)
	require.Contains(rec.Body.String(), `"QPIGS"`)
}

func TestCommandRoutes(t *testing.T) {

	assert := assert.New(t)
	h := testHandler(t, mppsolar.CreateTestExecutor())

	rec := get(h, "/api/commands/qid")
	assert.Equal(http.StatusOK, rec.Code)
	assert.JSONEq(`{"command":"QID","fields":{"serial_number":{"value":"92931509101901","unit":""}}}`, rec.Body.String())

	rec = get(h, "/api/commands/QID/raw")
	assert.Equal(http.StatusOK, rec.Code)
	assert.JSONEq(`{"command":"QID","raw":"(92931509101901"}`, rec.Body.String())

	rec = get(h, "/api/commands/QMOD")
	assert.Equal(http.StatusNotFound, rec.Code)

	rec = get(h, "/api/commands/POP02")
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestDeviceErrors(t *testing.T) {

	exec := mppsolar.CreateTestExecutor()
	exec.SetError(mppsolar.CommandStatus, errors.New("crc mismatch"))
	h := testHandler(t, exec)

	rec := get(h, "/api/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"crc mismatch"}`, rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {

	h := testHandler(t, mppsolar.CreateTestExecutor())
	require.Equal(t, http.StatusOK, get(h, "/api/serial").Code)

	rec := get(h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `command="QID"`)
}

func TestStatusCode(t *testing.T) {

	assert := assert.New(t)
	assert.Equal(http.StatusNotFound, statusCode(mppsolar.ErrUnknownCommand))
	assert.Equal(http.StatusGatewayTimeout, statusCode(domain.ErrDeviceTimeout))
	assert.Equal(http.StatusGatewayTimeout, statusCode(actor.ErrTimeout))
	assert.Equal(http.StatusBadRequest, statusCode(mqtt.ErrNotAQuery))
	assert.Equal(http.StatusServiceUnavailable, statusCode(errors.New("boom")))
}
