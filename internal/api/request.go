package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	apperrors "character-nexus/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// fail records err for the error middleware and stops the chain.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// decodeBody binds the request body as JSON. For map and any targets numbers
// decode to float64 and arrays to []any, which is what the schemas expect.
func decodeBody(c *gin.Context, dst any) error {
	err := c.ShouldBindJSON(dst)
	var maxErr *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &maxErr):
		return apperrors.NewError(apperrors.KindValidation, http.StatusRequestEntityTooLarge, apperrors.CodeValidation,
			fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit))
	case errors.Is(err, io.EOF), c.Request.Body == nil:
		return apperrors.NewValidationError("Request body is required", nil)
	default:
		return apperrors.NewValidationError("Invalid JSON body", nil).WithCause(err)
	}
}

// queryInt parses an integer query parameter. Missing or malformed values
// yield 0, which the repositories read as "use the default".
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
