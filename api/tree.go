package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-life-chat/chats"
	"github.com/xiaoyuanzhu-com/my-life-chat/log"
)

var treeLogger = log.GetLogger("ApiTree")

type createNodeRequest struct {
	Parent string `json:"parent"`
	Name   string `json:"name" binding:"required"`
}

type renameNodeRequest struct {
	Path string `json:"path" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type moveNodeRequest struct {
	Path     string `json:"path" binding:"required"`
	Target   string `json:"target"`
	Position *int   `json:"position"`
}

// GetTree handles GET /api/tree
func (h *Handlers) GetTree(c *gin.Context) {
	tree, err := h.store().Tree(c.Request.Context())
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondData(c, tree)
}

// ListNodes handles GET /api/nodes?path=
func (h *Handlers) ListNodes(c *gin.Context) {
	children, err := h.store().ListChildren(c.Request.Context(), chats.ParsePath(c.Query("path")))
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	if children == nil {
		children = []chats.NodeInfo{}
	}
	RespondData(c, children)
}

// CreateGroup handles POST /api/groups
func (h *Handlers) CreateGroup(c *gin.Context) {
	h.createNode(c, h.store().CreateGroup)
}

// CreateChat handles POST /api/chats
func (h *Handlers) CreateChat(c *gin.Context) {
	h.createNode(c, h.store().CreateChat)
}

func (h *Handlers) createNode(c *gin.Context, create func(ctx context.Context, parent chats.Path, name string) (chats.Path, error)) {
	var req createNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	path, err := create(c.Request.Context(), chats.ParsePath(req.Parent), req.Name)
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	treeLogger.Debug().Str("path", path.String()).Msg("node created")
	RespondCreated(c, pathResponse{Path: path.String()})
}

// RenameNode handles PATCH /api/nodes/rename
func (h *Handlers) RenameNode(c *gin.Context) {
	var req renameNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	path, err := h.store().Rename(c.Request.Context(), chats.ParsePath(req.Path), req.Name)
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondData(c, pathResponse{Path: path.String()})
}

// MoveNode handles PATCH /api/nodes/move
func (h *Handlers) MoveNode(c *gin.Context) {
	var req moveNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	var options []chats.MoveOption
	if req.Position != nil {
		options = append(options, chats.AtPosition(*req.Position))
	}
	path, err := h.store().Move(c.Request.Context(), chats.ParsePath(req.Path), chats.ParsePath(req.Target), options...)
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondData(c, pathResponse{Path: path.String()})
}

// DeleteNode handles DELETE /api/nodes?path=
func (h *Handlers) DeleteNode(c *gin.Context) {
	raw := c.Query("path")
	if raw == "" {
		RespondBadRequest(c, "path is required")
		return
	}
	if err := h.store().Delete(c.Request.Context(), chats.ParsePath(raw)); err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondNoContent(c)
}

type activeResponse struct {
	Path     string `json:"path"`
	Selected bool   `json:"selected"`
}

type selectRequest struct {
	Path string `json:"path" binding:"required"`
}

// GetActive handles GET /api/active
func (h *Handlers) GetActive(c *gin.Context) {
	path, ok := h.store().Active()
	if !ok {
		RespondData(c, activeResponse{})
		return
	}
	RespondData(c, activeResponse{Path: path.String(), Selected: true})
}

// SelectChat handles PUT /api/active
func (h *Handlers) SelectChat(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	path := chats.ParsePath(req.Path)
	if err := h.store().Select(c.Request.Context(), path); err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondData(c, activeResponse{Path: path.String(), Selected: true})
}

// DeselectChat handles DELETE /api/active
func (h *Handlers) DeselectChat(c *gin.Context) {
	if err := h.store().Deselect(c.Request.Context()); err != nil {
		RespondStoreError(c, err)
		return
	}
	RespondNoContent(c)
}
