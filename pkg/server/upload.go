package server

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"clusterfs/pkg/attachment"
	"clusterfs/pkg/cluster"
	"clusterfs/pkg/interpolate"
	"clusterfs/pkg/log"
)

// kindPattern restricts kinds to type-like names; they end up in paths.
var kindPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// uploadDocument handles POST /documents/:kind. The multipart field "file"
// carries the upload; every other form field becomes a document attribute.
func (srv *Server) uploadDocument(ctx echo.Context) error {
	kind := ctx.Param("kind")
	log.Info().Str("kind", kind).Str("request_id", requestID(ctx)).Msg("Document upload request received")

	if !kindPattern.MatchString(kind) {
		log.Warn().Str("kind", kind).Msg("Invalid document kind")
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid document kind",
		})
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		log.Error().Err(err).Msg("File parameter is required")
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "file parameter is required",
		})
	}

	attributes := make(map[string]string)
	if form, formErr := ctx.MultipartForm(); formErr == nil {
		for name, values := range form.Value {
			if len(values) > 0 {
				attributes[name] = values[0]
			}
		}
	}

	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open uploaded file")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to open uploaded file",
		})
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close source file")
		}
	}()

	reqCtx := ctx.Request().Context()
	document, err := srv.documents.CreateDocument(reqCtx, kind, file.Filename, attributes)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("Failed to create document")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to create document",
		})
	}

	upload := attachment.NewUpload(src, file.Filename, file.Header.Get(echo.HeaderContentType))
	record := srv.documents.Record(document, upload)

	if _, err := srv.pipeline.For(record).Save(reqCtx); err != nil {
		if deleteErr := srv.documents.DeleteDocument(reqCtx, document.ID); deleteErr != nil {
			log.Error().Err(deleteErr).Int64("id", document.ID).Msg("Failed to remove document after save error")
		}
		return srv.handleSaveError(ctx, err)
	}

	log.Info().
		Int64("id", document.ID).
		Str("kind", kind).
		Str("path", document.AttachmentPath).
		Msg("Document stored")
	return ctx.JSON(http.StatusCreated, record.Document())
}

// handleSaveError maps save failures to JSON responses.
func (srv *Server) handleSaveError(ctx echo.Context, err error) error {
	var resolutionErr *interpolate.TemplateResolutionError
	if errors.As(err, &resolutionErr) {
		log.Warn().Err(err).Msg("Storage template could not be resolved")
		return ctx.JSON(http.StatusUnprocessableEntity, map[string]string{
			"error":       "storage template could not be resolved",
			"placeholder": resolutionErr.Placeholder,
		})
	}
	if errors.Is(err, cluster.ErrDepthMismatch) {
		log.Warn().Err(err).Msg("Cluster depth mismatch")
		return ctx.JSON(http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	}
	if errors.Is(err, attachment.ErrUnsafePath) {
		log.Warn().Err(err).Msg("Rejected attachment path")
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}
	if errors.Is(err, cluster.ErrInvalidRequest) {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}
	log.Error().Err(err).Msg("Failed to save attachment")
	return ctx.JSON(http.StatusInternalServerError, map[string]string{
		"error": "failed to save attachment",
	})
}
