package server

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pmr-run/pmr/internal/errdef"
)

// writeError maps the error taxonomy onto HTTP status codes and the JSON
// error envelope shared with the CLI's --format json mode.
func writeError(c *gin.Context, err error) {
	kind := errdef.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errdef.KindNotFound:
		status = http.StatusNotFound
	case errdef.KindAlreadyExists, errdef.KindStateConflict:
		status = http.StatusConflict
	case errdef.KindAuth:
		status = http.StatusUnauthorized
	case errdef.KindSpawn:
		status = http.StatusBadRequest
	case errdef.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": gin.H{"kind": string(kind), "message": err.Error()}})
}

// isSafeAbsPath accepts empty (meaning default) or an absolute path free
// of traversal once cleaned.
func isSafeAbsPath(p string) bool {
	if p == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	trimmed := strings.TrimRight(p, string(filepath.Separator))
	if trimmed == "" {
		trimmed = p
	}
	return clean == p || clean == trimmed
}
