package handlers

import (
	"log"
	"net/http"

	"fitness-gateway-api/internal/apiclient"
	"fitness-gateway-api/internal/offline"

	"github.com/gin-gonic/gin"
)

// InvalidateRequest is the payload for pattern invalidation.
type InvalidateRequest struct {
	Pattern string `json:"pattern" binding:"required"`
}

// Diagnostics exposes cache introspection and recovery endpoints. All
// dependencies are injected so tests can run against isolated instances.
type Diagnostics struct {
	api      *apiclient.Client
	control  *offline.Controller
	gens     *offline.Generations
	replayer *offline.Replayer
}

// NewDiagnostics wires the handler set.
func NewDiagnostics(api *apiclient.Client, control *offline.Controller, gens *offline.Generations, replayer *offline.Replayer) *Diagnostics {
	return &Diagnostics{api: api, control: control, gens: gens, replayer: replayer}
}

// Stats handles GET /internal/cache/stats
func (h *Diagnostics) Stats(c *gin.Context) {
	generations, err := h.gens.Names()
	if err != nil {
		log.Printf("diagnostics: list generations failed: %v", err)
		generations = nil
	}
	c.JSON(http.StatusOK, gin.H{
		"stores":      h.api.Stats(),
		"generations": generations,
		"lifecycle":   h.control.State().String(),
	})
}

// Invalidate handles POST /internal/cache/invalidate
// Removes every request-cache entry whose key contains the pattern; used
// after mutations to keep derived reads fresh.
func (h *Diagnostics) Invalidate(c *gin.Context) {
	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Field 'pattern' is required",
		})
		return
	}
	removed := h.api.InvalidateCache(req.Pattern)
	c.JSON(http.StatusOK, gin.H{
		"pattern": req.Pattern,
		"removed": removed,
	})
}

// Clear handles POST /internal/cache/clear
// Empties every request-cache store, every offline generation and all
// persisted snapshots. Intended for diagnostic/recovery use.
func (h *Diagnostics) Clear(c *gin.Context) {
	h.api.ClearAllCaches()
	if err := h.gens.DeleteAll(); err != nil {
		log.Printf("diagnostics: clear generations failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to clear offline caches",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cleared": true,
	})
}

// SyncFlush handles POST /internal/sync/flush
// Drains the pending-mutation queue once, reporting how many items were
// replayed and how many stay queued for the next trigger.
func (h *Diagnostics) SyncFlush(c *gin.Context) {
	result, err := h.replayer.Replay(c.Request.Context())
	if err != nil {
		log.Printf("diagnostics: sync flush failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to drain the sync queue",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}
