package handler

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/middleware"
	"github.com/andresverguilla1987/mixtli-nube/pkg/response"
)

// attachmentWriter sends the ZIP headers on the first write, so errors before
// any byte can still be answered with JSON.
type attachmentWriter struct {
	c        *gin.Context
	filename string
	started  bool
}

func (w *attachmentWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.started = true
		h := w.c.Writer.Header()
		h.Set("Content-Type", "application/zip")
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": w.filename}))
		h.Set("Cache-Control", "no-store")
		w.c.Writer.WriteHeader(http.StatusOK)
	}
	return w.c.Writer.Write(p)
}

// Zip streams an album, or the keys listed in the body or ?key=, as a ZIP file.
func (h *Handler) Zip(c *gin.Context) {
	album := c.Param("id")
	ctx := log.WithAlbum(c.Request.Context(), album)
	l := log.Ctx(ctx)

	keys := c.QueryArray("key")
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		var req domain.ZipRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		keys = append(keys, req.Keys...)
	}

	plan, err := h.svc.Archive.PrepareZip(ctx, album, keys, middleware.AlbumToken(c))
	if err != nil {
		h.fail(c, err, "failed to prepare zip")
		return
	}

	w := &attachmentWriter{c: c, filename: plan.Filename()}
	if err := h.svc.Archive.WriteZip(ctx, plan, w); err != nil {
		if !w.started {
			h.fail(c, err, "failed to stream zip")
			return
		}
		l.Error().Err(err).Int(log.FieldCount, len(plan.Entries)).Msg("aborting zip stream")
		panic(http.ErrAbortHandler)
	}
}
