package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-life-chat/chats"
)

// -----------------------------------------------------------------------------
// Error Response Types
// -----------------------------------------------------------------------------

// ErrorCode defines standard error codes for programmatic handling
type ErrorCode string

const (
	// Client errors (4xx)
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"   // 400 - Malformed request
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"     // 404 - Node does not exist
	ErrCodeConflict      ErrorCode = "CONFLICT"      // 409 - Sibling name taken
	ErrCodeUnprocessable ErrorCode = "UNPROCESSABLE" // 422 - Operation not valid for this node

	// Server errors (5xx)
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"      // 500 - Storage failure
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // 503 - Responder not configured
)

// ErrorResponse is the standard error response structure
type ErrorResponse struct {
	Error struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
		Kind    string    `json:"kind,omitempty"` // store error kind, when there is one
	} `json:"error"`
}

// DataResponse wraps a single resource or object response
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// -----------------------------------------------------------------------------
// Response Helpers
// -----------------------------------------------------------------------------

// RespondData sends a successful response with a single data object
// Status: 200 OK
func RespondData[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, DataResponse[T]{Data: data})
}

// RespondCreated sends a 201 Created response with the created resource
func RespondCreated[T any](c *gin.Context, data T) {
	c.JSON(http.StatusCreated, DataResponse[T]{Data: data})
}

// RespondNoContent sends a 204 No Content response
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, status int, code ErrorCode, message, kind string) {
	resp := ErrorResponse{}
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Kind = kind
	c.JSON(status, resp)
}

// RespondBadRequest sends a 400 Bad Request error
func RespondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, ErrCodeBadRequest, message, "")
}

// RespondUnprocessable sends a 422 Unprocessable Entity error
func RespondUnprocessable(c *gin.Context, message string) {
	respondError(c, http.StatusUnprocessableEntity, ErrCodeUnprocessable, message, "")
}

// RespondInternalError sends a 500 Internal Server Error
func RespondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, ErrCodeInternal, message, "")
}

// RespondServiceUnavailable sends a 503 Service Unavailable error
func RespondServiceUnavailable(c *gin.Context, message string) {
	respondError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message, "")
}

// RespondStoreError maps a chat store error to its HTTP status.
func RespondStoreError(c *gin.Context, err error) {
	kind := chats.KindOf(err)
	kindName := ""
	if kind != nil {
		kindName = kind.Error()
	}
	switch {
	case errors.Is(err, chats.ErrNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, err.Error(), kindName)
	case errors.Is(err, chats.ErrConflict):
		respondError(c, http.StatusConflict, ErrCodeConflict, err.Error(), kindName)
	case errors.Is(err, chats.ErrInvalidOperation), errors.Is(err, chats.ErrEmpty):
		respondError(c, http.StatusUnprocessableEntity, ErrCodeUnprocessable, err.Error(), kindName)
	default:
		c.Error(err)
		respondError(c, http.StatusInternalServerError, ErrCodeInternal, "storage failure", kindName)
	}
}
