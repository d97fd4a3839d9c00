package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/mpp2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

type Server struct {
	port           uint
	httpLog        bool
	requestTimeout time.Duration
	rootContext    *actor.RootContext
	masterActor    *actor.PID
	metrics        http.Handler
}

// NewServer serves the HTTP API in front of the master actor. metrics may be
// nil, in which case /metrics is not exposed.
func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, metrics http.Handler) *http.Server {
	NewServer := newServer(cfg, rootContext, masterActor, metrics)

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: NewServer.requestTimeout + 10*time.Second,
	}

	return server
}

func newServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, metrics http.Handler) *Server {
	return &Server{
		port:           cfg.Port,
		httpLog:        cfg.HttpLog,
		requestTimeout: 3*cfg.Device.CommandTimeout() + time.Second,
		rootContext:    rootContext,
		masterActor:    masterActor,
		metrics:        metrics,
	}
}
