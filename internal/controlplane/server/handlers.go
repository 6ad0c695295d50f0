package server

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/agentbot/gotrade/pkg/config"
	"github.com/agentbot/gotrade/pkg/logger"
)

func (s *Server) handleEnable(c *gin.Context) {
	if err := s.agent.Enable(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

func (s *Server) handleDisable(c *gin.Context) {
	s.agent.Disable()
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

func (s *Server) handleForceTick(c *gin.Context) {
	s.agent.ForceTick()
	c.JSON(http.StatusAccepted, gin.H{"forced": true})
}

// handleStatus returns the snapshot published by the last tick plus a recent
// log tail. It never reads live agent state.
func (s *Server) handleStatus(c *gin.Context) {
	snap := s.agent.Status()
	c.JSON(http.StatusOK, gin.H{
		"agent": snap,
		"logs":  logger.Tail(100),
	})
}

// handleConfigUpdate accepts a full config document (YAML; JSON parses as a
// YAML subset). Validation runs before anything is swapped; a rejected update
// leaves the previous config authoritative.
func (s *Server) handleConfigUpdate(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return
	}
	var next config.Config
	if err := yaml.Unmarshal(body, &next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parse config: " + err.Error()})
		return
	}
	if err := s.agent.UpdateConfig(&next); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

type killRequest struct {
	Reason string `json:"reason"`
}

// handleKill is irreversible within the session: it requires the dedicated
// kill credential on top of the bearer token, disables the loop and clears
// derived caches. It deliberately does NOT close open positions.
func (s *Server) handleKill(c *gin.Context) {
	killToken := c.GetHeader("X-Kill-Token")
	if killToken == "" || subtle.ConstantTimeCompare([]byte(killToken), []byte(s.cfg.KillToken)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing or invalid kill token"})
		return
	}

	var req killRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "operator kill"
	}

	s.agent.Kill(req.Reason)
	c.JSON(http.StatusOK, gin.H{"killed": true, "note": "open positions are left untouched"})
}
