package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
)

type appendMessageRequest struct {
	Path    string      `json:"path"`
	Role    models.Role `json:"role" binding:"required"`
	Content string      `json:"content"`
	Image   string      `json:"image"`
}

type replaceMessagesRequest struct {
	Path     string           `json:"path"`
	Messages []models.Message `json:"messages"`
}

type clearByRoleResponse struct {
	Removed int `json:"removed"`
}

// GetMessages handles GET /api/messages?path=
func (h *Handlers) GetMessages(c *gin.Context) {
	path, err := h.chatPath(c.Query("path"))
	if err != nil {
		RespondStoreError(c, err)
		return
	}

	messages, err := h.store().Messages(c.Request.Context(), path)
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	RespondData(c, messages)
}

// GetLastMessage handles GET /api/messages/last?path=
func (h *Handlers) GetLastMessage(c *gin.Context) {
	path, err := h.chatPath(c.Query("path"))
	if err != nil {
		RespondStoreError(c, err)
		return
	}

	message, err := h.store().LastMessage(c.Request.Context(), path)
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondData(c, message)
}

// AppendMessage handles POST /api/messages
func (h *Handlers) AppendMessage(c *gin.Context) {
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}
	path, err := h.chatPath(req.Path)
	if err != nil {
		RespondStoreError(c, err)
		return
	}

	var options []models.MessageOption
	if req.Image != "" {
		options = append(options, models.WithMedia(req.Image))
	}
	msg := models.NewMessage(req.Role, req.Content, options...)
	if err := h.store().Append(c.Request.Context(), path, msg); err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondCreated(c, msg)
}

// ReplaceMessages handles PUT /api/messages
func (h *Handlers) ReplaceMessages(c *gin.Context) {
	var req replaceMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}
	path, err := h.chatPath(req.Path)
	if err != nil {
		RespondStoreError(c, err)
		return
	}

	if err := h.store().ReplaceAll(c.Request.Context(), path, req.Messages); err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondNoContent(c)
}

// ClearMessages handles DELETE /api/messages?path=&mode=all|last|range|role
//
//	mode=all               drop every message
//	mode=last&n=N          drop the last N messages
//	mode=range&start=&end= drop messages start..end inclusive
//	mode=role&role=R       drop every message with role R (not system)
func (h *Handlers) ClearMessages(c *gin.Context) {
	path, err := h.chatPath(c.Query("path"))
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	ctx := c.Request.Context()

	switch c.DefaultQuery("mode", "all") {
	case "all":
		err = h.store().ClearAll(ctx, path)
	case "last":
		n, convErr := strconv.Atoi(c.DefaultQuery("n", "1"))
		if convErr != nil {
			RespondBadRequest(c, "n must be an integer")
			return
		}
		err = h.store().ClearLastN(ctx, path, n)
	case "range":
		start, startErr := strconv.Atoi(c.Query("start"))
		end, endErr := strconv.Atoi(c.Query("end"))
		if startErr != nil || endErr != nil {
			RespondBadRequest(c, "start and end must be integers")
			return
		}
		err = h.store().ClearRange(ctx, path, start, end)
	case "role":
		role := models.Role(c.Query("role"))
		if role == models.RoleSystem {
			RespondUnprocessable(c, "System role cannot be cleared")
			return
		}
		removed, roleErr := h.store().ClearByRole(ctx, path, role)
		if roleErr != nil {
			RespondStoreError(c, roleErr)
			return
		}
		RespondData(c, clearByRoleResponse{Removed: removed})
		return
	default:
		RespondBadRequest(c, "mode must be one of all, last, range, role")
		return
	}

	if err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondNoContent(c)
}

// GetStats handles GET /api/stats?path=
func (h *Handlers) GetStats(c *gin.Context) {
	path, err := h.chatPath(c.Query("path"))
	if err != nil {
		RespondStoreError(c, err)
		return
	}

	stats, err := h.store().Stats(c.Request.Context(), path)
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondData(c, stats)
}
