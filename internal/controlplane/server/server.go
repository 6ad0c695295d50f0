package server

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbot/gotrade/internal/services"
	"github.com/agentbot/gotrade/pkg/config"
)

// Agent is the scheduler surface the control plane drives. Handlers never
// touch live agent state; reads go through the published status snapshot.
type Agent interface {
	Enable() error
	Disable()
	Kill(reason string)
	ForceTick()
	Status() services.StatusSnapshot
	CurrentConfig() *config.Config
	UpdateConfig(next *config.Config) error
}

type Config struct {
	Listen string
	// AuthToken guards every endpoint except the health check.
	AuthToken string
	// KillToken is a second, distinct credential required by the kill
	// endpoint on top of the regular bearer token.
	KillToken string
}

type Server struct {
	cfg   Config
	agent Agent
	http  *http.Server
}

func New(cfg Config, agent Agent) (*Server, error) {
	if cfg.Listen == "" {
		cfg.Listen = ":8090"
	}
	if cfg.AuthToken == "" {
		return nil, errors.New("auth token is required")
	}
	if cfg.KillToken == "" {
		return nil, errors.New("kill token is required")
	}
	if cfg.KillToken == cfg.AuthToken {
		return nil, errors.New("kill token must differ from the auth token")
	}
	return &Server{cfg: cfg, agent: agent}, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api", s.requireAuth())

	agent := api.Group("/agent")
	agent.POST("/enable", s.handleEnable)
	agent.POST("/disable", s.handleDisable)
	agent.POST("/force_tick", s.handleForceTick)
	agent.GET("/status", s.handleStatus)
	agent.PUT("/config", s.handleConfigUpdate)
	agent.POST("/kill", s.handleKill)

	api.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	return r
}

// Run blocks until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
