package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"local-rag-platform/internal/logger"
	"local-rag-platform/models"
	"local-rag-platform/services"
	"local-rag-platform/utils"
)

// SetupChatRoutes registers question answering, history and export
// endpoints on the authenticated API group.
func SetupChatRoutes(api *gin.RouterGroup, rag *services.RAGService, exporter *services.ExportService) {
	api.POST("/chat/ask", handleAsk(rag))
	api.GET("/chat/history/:session", handleHistory(rag))
	api.POST("/chat/export", handleExport(exporter))
}

func handleAsk(rag *services.RAGService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid chat request", err.Error())
			return
		}

		resp, err := rag.Ask(c.Request.Context(), &req)
		if err != nil {
			logger.Error("Question answering failed", "session_id", req.SessionID, "error", err)
			utils.RespondWithServiceUnavailable(c, "Failed to generate an answer")
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleHistory(rag *services.RAGService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session")
		if sessionID == "" {
			utils.RespondWithBadRequest(c, "Session id required", nil)
			return
		}

		messages, err := rag.History(c.Request.Context(), sessionID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load history", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"messages":   messages,
			"count":      len(messages),
		})
	}
}

func handleExport(exporter *services.ExportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.ExportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid export request", err.Error())
			return
		}

		data, contentType, err := exporter.Export(c.Request.Context(), &req)
		if err != nil {
			utils.RespondWithInternalError(c, "Export failed", nil)
			return
		}

		ext := "json"
		if req.Format == "excel" {
			ext = "xlsx"
		}
		filename := fmt.Sprintf("conversations_%s.%s", time.Now().Format("20060102_150405"), ext)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Data(http.StatusOK, contentType, data)
	}
}
