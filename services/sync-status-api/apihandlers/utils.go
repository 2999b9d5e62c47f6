package apihandlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	pc "github.com/case-framework/tracker-sync-backend/pkg/permission-checker"
)

const (
	API_KEY_HEADER = "X-API-Key"

	DEFAULT_PAGE_SIZE = 20
)

type RequiredPermission struct {
	Actions []string
}

// useAuthorisedHandler runs handler only for api keys granting one of the
// required actions.
func (h *HttpEndpoints) useAuthorisedHandler(
	requiredPermission RequiredPermission,
	handler gin.HandlerFunc,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(API_KEY_HEADER)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}

		name, hasPermission := pc.IsAuthorized(key, requiredPermission.Actions)
		if !hasPermission {
			slog.Warn("unauthorised access attempted",
				slog.String("client", name),
				slog.String("path", c.FullPath()),
				slog.String("action", strings.Join(requiredPermission.Actions, ",")),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorised access attempted"})
			return
		}

		c.Set("client", name)
		handler(c)
	}
}

// paginationParams reads ?page=&limit=, falling back to page 1 and
// DEFAULT_PAGE_SIZE.
func paginationParams(c *gin.Context) (int64, int64) {
	page, err := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", strconv.Itoa(DEFAULT_PAGE_SIZE)), 10, 64)
	if err != nil || limit < 1 {
		limit = DEFAULT_PAGE_SIZE
	}
	return page, limit
}
