//go:build gin_admin

package hitl

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminServer exposes read-only visibility into the approval IPC state,
// grounded on codeready-toolchain-tarsy's cmd/tarsy/main.go gin.Default() +
// JSON-handler convention.
type AdminServer struct {
	store  ApprovalStore
	engine *gin.Engine
}

// NewAdminServer builds an AdminServer backed by store.
func NewAdminServer(store ApprovalStore) *AdminServer {
	router := gin.Default()
	s := &AdminServer{store: store, engine: router}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/pending", s.handlePending)

	return s
}

// Run starts the admin HTTP server on addr, blocking until it stops.
func (s *AdminServer) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *AdminServer) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *AdminServer) handlePending(c *gin.Context) {
	req, ok, err := s.store.LoadPending()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"pending": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": true, "request": req})
}
