package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"clusterfs/pkg/log"
	"clusterfs/pkg/store"
)

func (srv *Server) downloadDocument(ctx echo.Context) error {
	document, err := srv.loadDocument(ctx)
	if document == nil {
		return err
	}
	log.Info().Int64("id", document.ID).Msg("Document download request")

	if !document.HasAttachment() {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "document has no attachment",
		})
	}

	info, err := srv.pipeline.For(srv.documents.Record(document, nil)).Stat()
	var notFound store.FileNotFoundError
	if errors.As(err, &notFound) {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "file not found",
		})
	}
	if err != nil {
		log.Error().Err(err).Int64("id", document.ID).Msg("Failed to stat attachment")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to download file",
		})
	}

	if document.AttachmentContentType != "" {
		ctx.Response().Header().Set(echo.HeaderContentType, document.AttachmentContentType)
	}
	log.Info().
		Int64("id", document.ID).
		Str("file_path", info.Path).
		Int64("size", info.Size).
		Msg("Serving file download")
	return ctx.File(info.Path)
}
