package restapi

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SuccessResponse is the success envelope every 2xx handler writes.
type SuccessResponse struct {
	Data any `json:"data"`
}

func respondJSON(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessResponse{Data: data})
}

func respondAPIError(c *gin.Context, err error) {
	apiErr := translateError(err)
	c.AbortWithStatusJSON(apiErr.HTTPStatus, apiErr)
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondAPIError(c, errInvalidJSON)
		return false
	}
	return true
}

func requireParam(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if v == "" {
		respondAPIError(c, errMissingParameter)
		return "", false
	}
	return v, true
}

func queryInt64(c *gin.Context, name string, def int64) int64 {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
