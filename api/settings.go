package api

import (
	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
)

type updateSettingsRequest struct {
	Path     string              `json:"path"`
	Settings models.ChatSettings `json:"settings"`
}

// GetSettings handles GET /api/settings?path=
func (h *Handlers) GetSettings(c *gin.Context) {
	path, err := h.chatPath(c.Query("path"))
	if err != nil {
		RespondStoreError(c, err)
		return
	}

	settings, err := h.store().Settings(c.Request.Context(), path)
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondData(c, settings)
}

// UpdateSettings handles PUT /api/settings
func (h *Handlers) UpdateSettings(c *gin.Context) {
	// Missing fields fall back to the defaults, not to false.
	req := updateSettingsRequest{Settings: models.DefaultChatSettings()}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}
	path, err := h.chatPath(req.Path)
	if err != nil {
		RespondStoreError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.store().SetSettings(ctx, path, req.Settings); err != nil {
		RespondStoreError(c, err)
		return
	}

	settings, err := h.store().Settings(ctx, path)
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondData(c, settings)
}
