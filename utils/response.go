package utils

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error,omitempty"`
}

// APIError carries a stable code derived from the HTTP status and an
// optional detail payload such as a validation message.
type APIError struct {
	Code   string      `json:"code"`
	Detail interface{} `json:"detail,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// ErrorCode turns a status into its snake_case name, e.g. 404 -> "not_found".
func ErrorCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ToLower(strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text))
}

func succeed(c *gin.Context, status int, message string, data interface{}, page *Pagination) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data, Pagination: page})
}

func SuccessResponse(c *gin.Context, message string, data interface{}) {
	succeed(c, http.StatusOK, message, data, nil)
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	succeed(c, http.StatusCreated, message, data, nil)
}

func PaginatedSuccessResponse(c *gin.Context, message string, data interface{}, page *Pagination) {
	succeed(c, http.StatusOK, message, data, page)
}

// ErrorResponse writes a failed envelope. detail may be nil.
func ErrorResponse(c *gin.Context, status int, message string, detail interface{}) {
	c.JSON(status, Envelope{
		Message: message,
		Error:   &APIError{Code: ErrorCode(status), Detail: detail},
	})
}

func BadRequestResponse(c *gin.Context, message string, detail interface{}) {
	ErrorResponse(c, http.StatusBadRequest, message, detail)
}

func ConflictResponse(c *gin.Context, message string, detail interface{}) {
	ErrorResponse(c, http.StatusConflict, message, detail)
}

func InternalServerErrorResponse(c *gin.Context, message string, detail interface{}) {
	ErrorResponse(c, http.StatusInternalServerError, message, detail)
}

func UnauthorizedResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, message, nil)
}

func ForbiddenResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusForbidden, message, nil)
}

func NotFoundResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusNotFound, message, nil)
}

func PayloadTooLargeResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusRequestEntityTooLarge, message, nil)
}

func ServiceUnavailableResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusServiceUnavailable, message, nil)
}
