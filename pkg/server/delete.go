package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"clusterfs/pkg/log"
)

// deleteDocument handles DELETE /documents/:id. The stored file is removed
// before the record; a file already gone from disk is not an error.
func (srv *Server) deleteDocument(ctx echo.Context) error {
	document, err := srv.loadDocument(ctx)
	if document == nil {
		return err
	}

	log.Info().
		Int64("id", document.ID).
		Str("method", "DELETE").
		Str("path", ctx.Request().URL.Path).
		Msg("Document delete request")

	removed, err := srv.pipeline.For(srv.documents.Record(document, nil)).Destroy()
	if err != nil {
		log.Error().Err(err).Int64("id", document.ID).Msg("Failed to remove attachment")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Internal server error",
		})
	}

	if err := srv.documents.DeleteDocument(ctx.Request().Context(), document.ID); err != nil {
		log.Error().Err(err).Int64("id", document.ID).Msg("Delete failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Internal server error",
		})
	}

	log.Info().Int64("id", document.ID).Bool("file_removed", removed).Msg("Document deleted successfully")
	return ctx.JSON(http.StatusOK, map[string]any{
		"message":      "Document deleted successfully",
		"id":           document.ID,
		"file_removed": removed,
	})
}
