package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"clusterfs/pkg/catalog"
	"clusterfs/pkg/log"
	"clusterfs/pkg/models"
)

// loadDocument resolves the :id parameter. On failure the response has
// already been written and the returned document is nil.
func (srv *Server) loadDocument(ctx echo.Context) (*models.Document, error) {
	documentID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || documentID < 1 {
		return nil, ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid document id",
		})
	}

	document, err := srv.documents.GetDocument(ctx.Request().Context(), documentID)
	if err != nil {
		if errors.Is(err, catalog.ErrDocumentNotFound) {
			return nil, ctx.JSON(http.StatusNotFound, map[string]string{
				"error": "document not found",
			})
		}
		log.Error().Err(err).Int64("id", documentID).Msg("Failed to load document")
		return nil, ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to load document",
		})
	}
	return document, nil
}

func (srv *Server) getDocument(ctx echo.Context) error {
	document, err := srv.loadDocument(ctx)
	if document == nil {
		return err
	}
	return ctx.JSON(http.StatusOK, document)
}

func (srv *Server) listDocuments(ctx echo.Context) error {
	documents, err := srv.documents.ListDocuments(ctx.Request().Context(), ctx.QueryParam("kind"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list documents")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list documents",
		})
	}
	return ctx.JSON(http.StatusOK, models.DocumentListResponse{Documents: documents})
}
