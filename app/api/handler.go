package api

import (
	"context"

	"placement-ai/types"

	"github.com/gofiber/fiber/v2"
)

// QueryService is the query-side surface the handler needs.
type QueryService interface {
	Query(ctx context.Context, params types.QueryParams) (*types.QueryResult, error)
}

type RequestHandler struct {
	svc QueryService
}

func NewRequestHandler(svc QueryService) *RequestHandler {
	return &RequestHandler{svc: svc}
}

// HandleQuery answers POST /api/v1/query. Validation failures never reach
// the backends; backend faults surface through the error handler.
func (h *RequestHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := types.Validate(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}

	result, err := h.svc.Query(c.Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(result)
}
