package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"clusterfs/pkg/cluster"
	"clusterfs/pkg/log"
	"clusterfs/pkg/models"
)

func (srv *Server) getCluster(ctx echo.Context) error {
	bucket := ctx.Param("bucket")

	state, err := srv.allocator.Peek(ctx.Request().Context(), bucket)
	if err != nil {
		if errors.Is(err, cluster.ErrStateNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{
				"error": "cluster not found",
			})
		}
		log.Error().Err(err).Str("bucket", bucket).Msg("Failed to read cluster")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to read cluster",
		})
	}

	return ctx.JSON(http.StatusOK, models.ClusterState{
		Bucket:    state.Name,
		Digits:    state.Digits.String(),
		UpdatedAt: state.UpdatedAt,
	})
}

// allocate handles POST /clusters/:bucket/allocate. Query parameters override
// the storage settings configured for the bucket.
func (srv *Server) allocate(ctx echo.Context) error {
	bucket := ctx.Param("bucket")
	settings := srv.pipeline.Settings(bucket)

	req := cluster.Request{
		Bucket:   bucket,
		Depth:    settings.Depth,
		MaxItems: settings.MaxItems,
		Hex:      settings.Hex,
	}

	var err error
	if raw := ctx.QueryParam("depth"); raw != "" {
		if req.Depth, err = strconv.Atoi(raw); err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid depth"})
		}
	}
	if raw := ctx.QueryParam("max_items"); raw != "" {
		if req.MaxItems, err = strconv.Atoi(raw); err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid max_items"})
		}
	}
	if raw := ctx.QueryParam("hex"); raw != "" {
		if req.Hex, err = strconv.ParseBool(raw); err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid hex"})
		}
	}

	result, err := srv.allocator.Allocate(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, cluster.ErrInvalidRequest):
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, cluster.ErrDepthMismatch):
			return ctx.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			return ctx.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to allocate",
			})
		}
	}

	return ctx.JSON(http.StatusOK, models.AllocationResponse{
		Bucket:  result.Bucket,
		Path:    strings.Join(result.Path, "/"),
		Digits:  result.Digits.String(),
		Next:    result.Next.String(),
		Wrapped: result.Wrapped,
	})
}
