package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	api := r.Group("/api")

	// Tree
	api.GET("/tree", h.GetTree)
	api.GET("/nodes", h.ListNodes)
	api.POST("/groups", h.CreateGroup)
	api.POST("/chats", h.CreateChat)
	api.PATCH("/nodes/rename", h.RenameNode)
	api.PATCH("/nodes/move", h.MoveNode)
	api.DELETE("/nodes", h.DeleteNode)

	// Active chat
	api.GET("/active", h.GetActive)
	api.PUT("/active", h.SelectChat)
	api.DELETE("/active", h.DeselectChat)

	// Messages - static routes first
	api.GET("/messages/last", h.GetLastMessage)
	api.GET("/messages", h.GetMessages)
	api.POST("/messages", h.AppendMessage)
	api.PUT("/messages", h.ReplaceMessages)
	api.DELETE("/messages", h.ClearMessages)

	// Settings and stats
	api.GET("/settings", h.GetSettings)
	api.PUT("/settings", h.UpdateSettings)
	api.GET("/stats", h.GetStats)

	// Export / import
	api.GET("/export", h.ExportChats)
	api.POST("/import", h.ImportChats)
	api.POST("/backup", h.BackupChats)

	// Model replies
	api.POST("/reply", h.Reply)

	// Notifications (SSE)
	api.GET("/notifications/stream", h.NotificationStream)
}
