package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"filevault-backend/internal/shared/server/respond"
	"filevault-backend/internal/shared/storage/object"
	localstore "filevault-backend/internal/shared/storage/object/local"
)

// objectsHandler serves objects of the filesystem store, checking the
// signature on private ones.
type objectsHandler struct {
	store *localstore.Store
}

func (h *objectsHandler) serve(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		respond.Error(c, http.StatusNotFound, "not_found", "Object not found", nil)
		return
	}

	if !h.store.IsPublic(key) {
		if err := h.store.Verify(key, c.Query("expires"), c.Query("signature")); err != nil {
			respond.Error(c, http.StatusForbidden, "forbidden", "Invalid or expired signature", nil)
			return
		}
	}

	rc, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, object.ErrObjectNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "Object not found", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "invalid_key", "Invalid object key", nil)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Status(http.StatusOK)
	c.Header("Content-Type", contentType)
	_, _ = io.Copy(c.Writer, rc)
}
