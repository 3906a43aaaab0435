package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-life-chat/chats"
	"github.com/xiaoyuanzhu-com/my-life-chat/log"
	"github.com/xiaoyuanzhu-com/my-life-chat/vendors"
)

var replyLogger = log.GetLogger("ApiReply")

type replyRequest struct {
	Path string `json:"path"`
}

type replyResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Reply handles POST /api/reply
// The streamed answer is committed token by token; clients follow it
// through chat-updated events and get the full text once it is done.
func (h *Handlers) Reply(c *gin.Context) {
	replier := h.server.Replier()
	if replier == nil {
		RespondServiceUnavailable(c, "Replies are not configured")
		return
	}

	var req replyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondBadRequest(c, "Invalid request body")
			return
		}
	}
	path, err := h.chatPath(req.Path)
	if err != nil {
		RespondStoreError(c, err)
		return
	}

	content, err := replier.Reply(c.Request.Context(), path)
	switch {
	case err == nil:
		RespondData(c, replyResponse{Path: path.String(), Content: content})
	case errors.Is(err, vendors.ErrRepliesDisabled):
		RespondUnprocessable(c, err.Error())
	case chats.KindOf(err) != nil:
		RespondStoreError(c, err)
	default:
		replyLogger.Error().Err(err).Str("path", path.String()).Msg("reply failed")
		RespondServiceUnavailable(c, "Model request failed")
	}
}
