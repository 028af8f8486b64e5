package server

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// handleLogs streams log entries as Server-Sent Events until the client
// disconnects. The buffer is drained destructively on each tick, so the
// stream has a single logical observer; a second concurrent consumer would
// see an arbitrary interleaving of entries.
func (s *Server) handleLogs(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ticker := time.NewTicker(s.cfg.LogPollInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case <-ticker.C:
			for _, e := range s.logs.DrainAll() {
				c.SSEvent("message", gin.H{"log": e.String()})
			}
			return true
		}
	})
}
