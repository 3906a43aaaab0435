package api

import (
	"github.com/xiaoyuanzhu-com/my-life-chat/chats"
	"github.com/xiaoyuanzhu-com/my-life-chat/server"
)

// Handlers holds references to server components
type Handlers struct {
	server *server.Server
}

// NewHandlers creates a new Handlers instance with server reference
func NewHandlers(srv *server.Server) *Handlers {
	return &Handlers{server: srv}
}

func (h *Handlers) store() *chats.Store {
	return h.server.Store()
}

// chatPath parses a path argument; an empty one addresses the active chat.
func (h *Handlers) chatPath(raw string) (chats.Path, error) {
	if raw == "" {
		return h.store().RequireActive()
	}
	return chats.ParsePath(raw), nil
}

// pathResponse is returned by operations that create or relocate a node.
type pathResponse struct {
	Path string `json:"path"`
}
