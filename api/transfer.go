package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-life-chat/backup"
	"github.com/xiaoyuanzhu-com/my-life-chat/log"
)

var transferLogger = log.GetLogger("ApiTransfer")

var contentTypes = map[backup.Format]string{
	backup.FormatJSON:    "application/json; charset=utf-8",
	backup.FormatYAML:    "application/yaml; charset=utf-8",
	backup.FormatArchive: "application/gzip",
}

// formatFromContentType picks the import decoder; anything unrecognised is JSON.
func formatFromContentType(header string) backup.Format {
	mediaType, _, _ := mime.ParseMediaType(header)
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return backup.FormatYAML
	case "application/gzip", "application/x-gzip", "application/x-tar+gzip":
		return backup.FormatArchive
	}
	return backup.FormatJSON
}

type backupResponse struct {
	Path  string `json:"path"`
	Chats int    `json:"chats"`
}

// ExportChats handles GET /api/export?format=json|yaml|tar.gz
func (h *Handlers) ExportChats(c *gin.Context) {
	format := backup.Format(c.DefaultQuery("format", string(backup.FormatJSON)))
	contentType, ok := contentTypes[format]
	if !ok {
		RespondBadRequest(c, "format must be one of json, yaml, tar.gz")
		return
	}

	ctx := c.Request.Context()
	doc, err := h.store().Export(ctx)
	if err != nil {
		RespondStoreError(c, err)
		return
	}

	c.Header("Content-Type", contentType)
	if format == backup.FormatArchive {
		c.Header("Content-Disposition", `attachment; filename="chats.tar.gz"`)
	}
	c.Status(http.StatusOK)
	if err := backup.Encode(ctx, c.Writer, format, doc); err != nil {
		// Headers are gone already; all we can do is log and cut the body short.
		transferLogger.Error().Err(err).Str("format", string(format)).Msg("export encode failed")
		c.Error(err)
	}
}

// ImportChats handles POST /api/import
// The body is decoded by its Content-Type and replaces the whole tree.
func (h *Handlers) ImportChats(c *gin.Context) {
	ctx := c.Request.Context()
	format := formatFromContentType(c.GetHeader("Content-Type"))

	doc, err := backup.Decode(ctx, c.Request.Body, format)
	if err != nil {
		RespondBadRequest(c, "Invalid document: "+err.Error())
		return
	}
	if err := h.store().Import(ctx, doc); err != nil {
		RespondStoreError(c, err)
		return
	}

	transferLogger.Info().Int("chats", len(doc.Chats)).Str("format", string(format)).Msg("chats imported")
	RespondNoContent(c)
}

// BackupChats handles POST /api/backup
// Writes the current tree to the configured history file.
func (h *Handlers) BackupChats(c *gin.Context) {
	target := h.server.Config().HistoryPath
	if target == "" {
		RespondUnprocessable(c, "CHAT_HISTORY_PATH is not configured")
		return
	}

	ctx := c.Request.Context()
	doc, err := h.store().Export(ctx)
	if err != nil {
		RespondStoreError(c, err)
		return
	}
	if err := backup.Save(ctx, target, doc); err != nil {
		if errors.Is(err, backup.ErrUnknownFormat) {
			RespondUnprocessable(c, err.Error())
			return
		}
		transferLogger.Error().Err(err).Str("path", target).Msg("backup failed")
		RespondInternalError(c, "Failed to write backup")
		return
	}
	RespondData(c, backupResponse{Path: target, Chats: len(doc.Chats)})
}
