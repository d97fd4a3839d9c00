package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/internal/mqtt"
	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type serialView struct {
	SerialNumber string `json:"serial_number"`
}

type commandsView struct {
	Commands []string `json:"commands"`
}

type commandView struct {
	Command string                       `json:"command"`
	Fields  map[string]domain.FieldValue `json:"fields,omitempty"`
	Raw     string                       `json:"raw,omitempty"`
}

type errorView struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/serial", s.SerialHandler)
	api.GET("/status", s.StatusHandler)
	api.GET("/settings", s.SettingsHandler)
	api.GET("/commands", s.CommandsHandler)
	api.GET("/commands/:name", s.CommandHandler)
	api.GET("/commands/:name/raw", s.RawCommandHandler)

	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) SerialHandler(c echo.Context) error {
	res, err := request[domain.GetSerialNumberResponse](s, domain.GetSerialNumberRequest{})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, serialView{SerialNumber: res.SerialNumber})
}

func (s *Server) StatusHandler(c echo.Context) error {
	res, err := request[domain.GetFullStatusResponse](s, domain.GetFullStatusRequest{})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res.Status)
}

func (s *Server) SettingsHandler(c echo.Context) error {
	res, err := request[domain.GetSettingsResponse](s, domain.GetSettingsRequest{})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res.Settings)
}

func (s *Server) CommandsHandler(c echo.Context) error {
	res, err := request[domain.GetKnownCommandsResponse](s, domain.GetKnownCommandsRequest{})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, commandsView{Commands: res.Commands})
}

func (s *Server) CommandHandler(c echo.Context) error {
	command, err := queryCommand(c)
	if err != nil {
		return errorJSON(c, err)
	}
	res, err := request[domain.GetResponseMapResponse](s, domain.GetResponseMapRequest{Command: command})
	if err != nil {
		return errorJSON(c, err)
	}
	fields := make(map[string]domain.FieldValue, len(res.Fields))
	for k, v := range res.Fields {
		fields[k] = domain.FieldValue{Value: v.Value, Unit: v.Unit}
	}
	return c.JSON(http.StatusOK, commandView{Command: command, Fields: fields})
}

func (s *Server) RawCommandHandler(c echo.Context) error {
	command, err := queryCommand(c)
	if err != nil {
		return errorJSON(c, err)
	}
	res, err := request[domain.GetRawResponseResponse](s, domain.GetRawResponseRequest{Command: command})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, commandView{Command: command, Raw: res.Raw})
}

func queryCommand(c echo.Context) (string, error) {
	command := strings.ToUpper(c.Param("name"))
	if !strings.HasPrefix(command, "Q") {
		return "", mqtt.ErrNotAQuery
	}
	return command, nil
}

// request asks the master actor and unwraps the response error.
func request[R domain.ActorResponse](s *Server, req domain.DeviceRequest) (R, error) {
	var zero R
	res, err := s.rootContext.RequestFuture(s.masterActor, req, s.requestTimeout).Result()
	if err != nil {
		return zero, err
	}
	typed, ok := res.(R)
	if !ok {
		return zero, errors.New("unexpected response")
	}
	if typed.HasResponseError() {
		return zero, typed.GetResponseError()
	}
	return typed, nil
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(statusCode(err), errorView{Error: err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, mqtt.ErrNotAQuery):
		return http.StatusBadRequest
	case errors.Is(err, mppsolar.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDeviceTimeout), errors.Is(err, actor.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}
