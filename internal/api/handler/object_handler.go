package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/api/objectstore"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// ObjectHandler serves result files behind presigned urls.
type ObjectHandler struct {
	logger *slog.Logger
	store  *objectstore.FileStore
}

func NewObjectHandler(deps *Dependencies) *ObjectHandler {
	return &ObjectHandler{
		logger: deps.Logger,
		store:  deps.ObjectStore,
	}
}

// Download handles GET /api/v1/objects/*key
func (h *ObjectHandler) Download(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	if err := h.store.Verify(key, c.Query("expires"), c.Query("signature")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	obj, err := h.store.Open(key)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// Serve the type declared at upload; sniff only objects stored without one
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
		if mtype, err := mimetype.DetectReader(obj); err == nil {
			contentType = mtype.String()
		}
		if _, err := obj.Seek(0, io.SeekStart); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	http.ServeContent(c.Writer, c.Request, path.Base(key), info.ModTime(), obj)
}
