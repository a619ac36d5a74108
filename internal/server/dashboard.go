package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

type keyEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// handleDashboardKeys enumerates store keys matching a glob pattern with
// their current values. Debugging aid; defaults to all keys.
func (s *Server) handleDashboardKeys(c *gin.Context) {
	pattern := c.DefaultQuery("pattern", "*")

	keys := s.deps.Store.Keys(c.Request.Context(), pattern)
	entries := make([]keyEntry, 0, len(keys))
	for _, key := range keys {
		raw, ok := s.deps.Store.GetRaw(c.Request.Context(), key)
		if !ok {
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		entries = append(entries, keyEntry{Key: key, Value: value})
	}

	c.JSON(http.StatusOK, gin.H{
		"pattern": pattern,
		"count":   len(entries),
		"keys":    entries,
	})
}
