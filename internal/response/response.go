package response

import (
	"github.com/gin-gonic/gin"
)

// SuccessResponse is the envelope of every successful response
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse is the envelope of every error response
type ErrorResponse struct {
	Error interface{} `json:"error"`
}

// ErrorBody carries only the category and a minimal message
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendSuccess writes data wrapped in a SuccessResponse
func SendSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{Data: data})
}

// SendError writes an ErrorResponse and aborts the handler chain
func SendError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}
