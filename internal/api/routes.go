package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/parley/internal/dialogue"
)

// debugHeader gates internal error detail. Callers that set it see the
// aggregated provider errors; everyone else gets the apologetic message
// only.
const debugHeader = "X-Parley-Debug"

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealth())
	router.GET("/cases", handleCaseList(opts))

	router.POST("/cases/:case/start", handleStart(opts))
	router.POST("/cases/:case/turn", handleTurn(opts))
	router.POST("/cases/:case/review", handleReview(opts))
	router.POST("/cases/:case/stop", handleStop(opts))

	if opts.Stats != nil {
		router.GET("/stats", handleStatsSummary(opts))
		router.GET("/stats/:user", handleStatsForUser(opts))
	}
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleCaseList(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"cases": opts.Registry.IDs()})
	}
}

type startRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

func handleStart(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := opts.Orchestrator.StartCase(c.Request.Context(), req.UserID, c.Param("case")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": dialogue.StateAwaitingInput})
	}
}

type turnRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Text      string `json:"text"`
	Audio     []byte `json:"audio"`
	AudioMIME string `json:"audio_mime"`
}

func handleTurn(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req turnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := opts.Orchestrator.SubmitTurn(c.Request.Context(), req.UserID, c.Param("case"), req.Text, dialogue.TurnOpts{
			Audio:     req.Audio,
			AudioMIME: req.AudioMIME,
		})
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		body := gin.H{
			"reply":      result.ReplyText,
			"components": result.Components,
			"turn_count": result.TurnCount,
			"achieved":   result.Achieved,
		}
		if result.Completion != dialogue.CompletionNone {
			body["completion"] = string(result.Completion)
			body["review"] = result.Review
			body["first_completion"] = result.FirstCompletion
		}
		if result.Failed {
			body["failed"] = true
			if c.GetHeader(debugHeader) != "" {
				body["detail"] = result.Detail
			}
		}
		c.JSON(http.StatusOK, body)
	}
}

type reviewRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

func handleReview(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		review, err := opts.Orchestrator.RequestReview(c.Request.Context(), req.UserID, c.Param("case"))
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"review": review})
	}
}

func handleStop(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := opts.Orchestrator.StopCase(c.Request.Context(), req.UserID, c.Param("case")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": "idle"})
	}
}

func handleStatsSummary(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := opts.Stats.Summary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cases": summary})
	}
}

func handleStatsForUser(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("user"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id must be an integer"})
			return
		}
		rows, err := opts.Stats.ForUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stats": rows})
	}
}
