package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresverguilla1987/mixtli-nube/internal/audit"
	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/internal/service"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/middleware"
	"github.com/andresverguilla1987/mixtli-nube/pkg/response"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
	"github.com/andresverguilla1987/mixtli-nube/pkg/token"
)

const serviceName = "mixtli-gateway"

// multipartSlack covers multipart boundaries and headers on top of the file itself.
const multipartSlack = 1 << 20

// Services groups everything the handler calls into.
type Services struct {
	Presign service.PresignService
	Listing service.ListingService
	Access  service.AccessService
	Trash   service.TrashService
	Archive service.ArchiveService
	Upload  service.UploadService
	Audit   audit.Recorder
}

// Options configures the HTTP surface.
type Options struct {
	AdminToken     string
	Version        string
	MaxUploadBytes int64
}

// Handler handles HTTP requests for the gateway.
type Handler struct {
	svc  Services
	opts Options
}

// NewHandler creates a new HTTP handler.
func NewHandler(svc Services, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &Handler{svc: svc, opts: opts}
}

// RegisterRoutes registers every route at the root and again under /api.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	h.register(r.Group(""))
	h.register(r.Group("/api"))
}

func (h *Handler) register(g *gin.RouterGroup) {
	g.GET("/health", h.Health)
	g.GET("/salud", h.Health)

	g.GET("/albums", h.ListAlbums)
	album := g.Group("/album/:id")
	{
		album.GET("/items", h.ListAlbum)
		album.GET("/thumb", h.Thumbnail)
		album.POST("/pin/check", h.CheckPin)
		album.GET("/zip", h.Zip)
		album.POST("/zip", h.Zip)
	}

	g.POST("/presign/put", h.PresignPut)
	g.POST("/presign/get", h.PresignGet)
	g.POST("/upload", h.Upload)
	g.POST("/upload/complete", h.CompleteUpload)

	admin := g.Group("/admin")
	admin.Use(middleware.RequireAdmin(h.opts.AdminToken), withAuditActor())
	{
		admin.POST("/pin/set", h.SetPin)
		admin.POST("/pin/clear", h.ClearPin)
		admin.POST("/item/delete", h.DeleteItem)
		admin.POST("/item/rename", h.RenameItem)
		admin.POST("/album/trash", h.TrashAlbum)
		admin.POST("/album/restore", h.RestoreAlbum)
		admin.GET("/album/snapshots", h.ListSnapshots)
		admin.GET("/audit", h.ListAudit)
	}
}

// withAuditActor tags the request context so audit entries carry who acted.
func withAuditActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithActor(c.Request.Context(), middleware.GetActor(c), log.RequestID(c))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// fail maps a service or storage error onto the error envelope.
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrExpiredToken):
		response.Unauthorized(c, "unauthorized")
	case errors.Is(err, service.ErrTooLarge), errors.As(err, &maxErr):
		response.TooLarge(c, "payload too large")
	case errors.Is(err, service.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		response.NotFound(c, "not found")
	case errors.Is(err, service.ErrConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, storage.ErrUnsupported), errors.Is(err, audit.ErrDisabled):
		response.NotImplemented(c, err.Error())
	case errors.Is(err, storage.ErrAccessDenied):
		l.Error().Err(err).Msg(msg)
		response.BadGateway(c, "object store denied access")
	case errors.Is(err, storage.ErrUnavailable):
		l.Warn().Err(err).Msg(msg)
		response.Unavailable(c, "object store unavailable")
	case errors.Is(err, context.Canceled):
		l.Debug().Err(err).Msg("client went away")
		c.Abort()
	default:
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}

// Health answers liveness probes.
func (h *Handler) Health(c *gin.Context) {
	response.OK(c, gin.H{
		"ts":      time.Now().UTC().Format(time.RFC3339),
		"service": serviceName,
		"version": h.opts.Version,
	})
}

// ListAlbums lists album names.
func (h *Handler) ListAlbums(c *gin.Context) {
	albums, err := h.svc.Listing.ListAlbums(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to list albums")
		return
	}
	response.OK(c, gin.H{"albums": albums})
}

// ListAlbum lists the items of an album, paged when limit or pageToken is given.
func (h *Handler) ListAlbum(c *gin.Context) {
	ctx := log.WithAlbum(c.Request.Context(), c.Param("id"))

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "limit must be a number")
			return
		}
		limit = n
	}

	page, err := h.svc.Listing.ListAlbum(ctx, c.Param("id"), middleware.AlbumToken(c), limit, c.Query("pageToken"))
	if err != nil {
		h.fail(c, err, "failed to list album")
		return
	}
	response.OK(c, gin.H{"album": page.Album, "items": page.Items, "nextToken": page.NextToken})
}

// Thumbnail returns a presigned URL to the thumbnail of ?name=.
func (h *Handler) Thumbnail(c *gin.Context) {
	ctx := log.WithAlbum(c.Request.Context(), c.Param("id"))

	name := c.Query("name")
	if name == "" {
		response.BadRequest(c, "name is required")
		return
	}

	res, err := h.svc.Listing.ThumbnailURL(ctx, c.Param("id"), name, middleware.AlbumToken(c))
	if err != nil {
		h.fail(c, err, "failed to get thumbnail")
		return
	}
	response.OK(c, gin.H{"key": res.Key, "url": res.URL, "expiresIn": res.ExpiresIn})
}

// CheckPin exchanges a PIN for an album access token.
func (h *Handler) CheckPin(c *gin.Context) {
	ctx := log.WithAlbum(c.Request.Context(), c.Param("id"))

	var req domain.PinCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	grant, err := h.svc.Access.CheckPin(ctx, c.Param("id"), req.Pin)
	if err != nil {
		h.fail(c, err, "failed to check pin")
		return
	}
	response.OK(c, gin.H{"accessToken": grant.AccessToken, "exp": grant.Exp})
}

// PresignPut issues an upload URL.
func (h *Handler) PresignPut(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.PresignPutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid presign put request")
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.svc.Presign.PresignPut(ctx, &req)
	if err != nil {
		h.fail(c, err, "failed to presign upload")
		return
	}
	response.OK(c, gin.H{"url": res.URL, "key": res.Key, "expiresIn": res.ExpiresIn})
}

// PresignGet issues a download URL.
func (h *Handler) PresignGet(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.PresignGetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid presign get request")
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.svc.Presign.PresignGet(ctx, &req, middleware.AlbumToken(c))
	if err != nil {
		h.fail(c, err, "failed to presign download")
		return
	}
	response.OK(c, gin.H{"url": res.URL, "key": res.Key, "expiresIn": res.ExpiresIn})
}

// Upload relays a multipart file into the store.
func (h *Handler) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes+multipartSlack)
	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.TooLarge(c, "payload too large")
			return
		}
		response.BadRequest(c, "multipart field \"file\" is required")
		return
	}

	album := c.Query("album")
	if album == "" {
		album = c.PostForm("album")
	}

	f, err := fh.Open()
	if err != nil {
		h.fail(c, err, "failed to read upload")
		return
	}
	defer f.Close()

	res, err := h.svc.Upload.Upload(ctx, album, fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f)
	if err != nil {
		h.fail(c, err, "failed to store upload")
		return
	}
	response.OK(c, gin.H{"key": res.Key, "size": res.Size, "contentType": res.ContentType})
}

// CompleteUpload announces an upload made through a presigned URL.
func (h *Handler) CompleteUpload(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.svc.Upload.CompleteUpload(ctx, req.Key)
	if err != nil {
		h.fail(c, err, "failed to complete upload")
		return
	}
	response.OK(c, gin.H{"key": res.Key, "size": res.Size, "contentType": res.ContentType})
}

// SetPin protects an album.
func (h *Handler) SetPin(c *gin.Context) {
	var req domain.SetPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.svc.Access.SetPin(c.Request.Context(), req.Album, req.Pin); err != nil {
		h.fail(c, err, "failed to set pin")
		return
	}
	response.OK(c, nil)
}

// ClearPin makes an album public.
func (h *Handler) ClearPin(c *gin.Context) {
	var req domain.AlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.svc.Access.ClearPin(c.Request.Context(), req.Album); err != nil {
		h.fail(c, err, "failed to clear pin")
		return
	}
	response.OK(c, nil)
}

// DeleteItem moves one object to the trash.
func (h *Handler) DeleteItem(c *gin.Context) {
	var req domain.ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	movedTo, err := h.svc.Trash.DeleteItem(c.Request.Context(), req.Key)
	if err != nil {
		h.fail(c, err, "failed to delete item")
		return
	}
	response.OK(c, gin.H{"movedTo": movedTo})
}

// RenameItem moves an object to a new key.
func (h *Handler) RenameItem(c *gin.Context) {
	var req domain.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.svc.Trash.RenameItem(c.Request.Context(), req.From, req.To); err != nil {
		h.fail(c, err, "failed to rename item")
		return
	}
	response.OK(c, gin.H{"from": req.From, "to": req.To})
}

// TrashAlbum moves an album into a trash snapshot.
func (h *Handler) TrashAlbum(c *gin.Context) {
	var req domain.AlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.svc.Trash.TrashAlbum(c.Request.Context(), req.Album)
	if err != nil {
		h.fail(c, err, "failed to trash album")
		return
	}

	fields := gin.H{"movedCount": res.MovedCount, "snapshot": res.Snapshot}
	if len(res.Errors) > 0 {
		response.Partial(c, fields, res.Errors)
		return
	}
	response.OK(c, fields)
}

// RestoreAlbum copies a snapshot back into its album. Without "snapshot" the
// newest one wins, which can be a single deleted item; GET /admin/album/snapshots
// lists the ids.
func (h *Handler) RestoreAlbum(c *gin.Context) {
	var req domain.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.svc.Trash.RestoreAlbum(c.Request.Context(), req.Album, req.Snapshot)
	if err != nil {
		h.fail(c, err, "failed to restore album")
		return
	}

	fields := gin.H{"restoredCount": res.RestoredCount, "snapshot": res.Snapshot}
	if len(res.Errors) > 0 {
		response.Partial(c, fields, res.Errors)
		return
	}
	response.OK(c, fields)
}

// ListSnapshots lists the trash snapshots of ?album=.
func (h *Handler) ListSnapshots(c *gin.Context) {
	album := c.Query("album")
	if album == "" {
		response.BadRequest(c, "album is required")
		return
	}

	snapshots, err := h.svc.Trash.ListSnapshots(c.Request.Context(), album)
	if err != nil {
		h.fail(c, err, "failed to list snapshots")
		return
	}
	response.OK(c, gin.H{"album": album, "snapshots": snapshots})
}

// ListAudit returns recent audit entries.
func (h *Handler) ListAudit(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "limit must be a positive number")
			return
		}
		limit = n
	}

	entries, err := h.svc.Audit.List(c.Request.Context(), c.Query("album"), limit)
	if err != nil {
		h.fail(c, err, "failed to list audit entries")
		return
	}
	response.OK(c, gin.H{"entries": entries})
}
