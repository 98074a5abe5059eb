package web

import (
	"errors"

	"github.com/dukex/trackcollab/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

var errActorRequired = errors.New("missing " + ActorHeader + " header")

// problem is an RFC 7807 document with the service error code attached.
type problem struct {
	*problems.Problem

	Code string `json:"code,omitempty"`
}

func newProblem(c fiber.Ctx, status int, problemType, code, detail string) error {
	p := problem{
		Problem: problems.NewStatusProblem(status).
			WithInstance(c.Path()).
			WithType(problemType).
			WithDetail(detail),
		Code: code,
	}

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return newProblem(c, fiber.StatusBadRequest, "validation_error", "invalid_body", detail)
}

func unauthenticated(c fiber.Ctx) error {
	return newProblem(c, fiber.StatusUnauthorized, "unauthenticated", "actor_required", errActorRequired.Error())
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps the service error kinds onto problem documents. A conflict tells
// the client to re-fetch and retry; a validation error tells it to change the input.
func handleServiceError(c fiber.Ctx, err error) error {
	code := services.Code(err)

	switch {
	case services.IsValidationError(err):
		return newProblem(c, fiber.StatusBadRequest, "validation_error", code, err.Error())

	case services.IsConflictError(err):
		return newProblem(c, fiber.StatusConflict, "conflict", code, err.Error())

	case services.IsNotFoundError(err):
		return newProblem(c, fiber.StatusNotFound, "not_found", code, err.Error())

	case services.IsAuthorizationError(err):
		return newProblem(c, fiber.StatusForbidden, "forbidden", code, err.Error())

	default:
		return internalError(c, err)
	}
}
