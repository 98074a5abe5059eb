// Package web provides HTTP handlers and REST API endpoints for collaboration requests.
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	collaboration *services.Collaboration
	validator     *validator.Validate
}

func NewAPIHandlers(collaboration *services.Collaboration, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		collaboration: collaboration,
		validator:     validator,
	}
}

// actor returns the caller id from the actor header.
func actor(c fiber.Ctx) (string, bool) {
	id := strings.TrimSpace(c.Get(ActorHeader))

	return id, id != ""
}

// statusFilter parses the optional status query parameter.
func statusFilter(c fiber.Ctx) *models.RequestStatus {
	raw := c.Query("status")
	if raw == "" {
		return nil
	}

	status := models.RequestStatus(strings.ToLower(raw))

	return &status
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.collaboration.HealthCheck(c.Context())

	status := "unhealthy"
	message := "trackcollab API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "trackcollab API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetAvailableParts(c fiber.Ctx) error {
	itemID := c.Params("id")

	parts, err := h.collaboration.AvailableParts(c.Context(), itemID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(AvailablePartsResponse{ItemID: itemID, AvailableParts: parts})
}

func (h *APIHandlers) CreateRequest(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return unauthenticated(c)
	}

	var req CreateRequestRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.collaboration.CreateRequest(c.Context(), services.CreateRequestInput{
		RequesterID:    actorID,
		ItemID:         req.ItemID,
		Message:        req.Message,
		RequestedParts: req.RequestedParts,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetRequest(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return unauthenticated(c)
	}

	req, err := h.collaboration.GetRequest(c.Context(), c.Params("id"), actorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(req)
}

func (h *APIHandlers) ListReceived(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return unauthenticated(c)
	}

	requests, err := h.collaboration.ListReceived(c.Context(), actorID, statusFilter(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newRequestListResponse(requests))
}

func (h *APIHandlers) ListSent(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return unauthenticated(c)
	}

	requests, err := h.collaboration.ListSent(c.Context(), actorID, statusFilter(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newRequestListResponse(requests))
}

func (h *APIHandlers) RespondRequest(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return unauthenticated(c)
	}

	var req RespondRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	decision, err := models.ParseDecision(req.Decision)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.collaboration.Respond(c.Context(), services.RespondInput{
		RequestID:                c.Params("id"),
		ActorID:                  actorID,
		Decision:                 decision,
		ResponseMessage:          req.ResponseMessage,
		AssignedParts:            req.AssignedParts,
		GrantFullPackPermissions: req.GrantFullPackPermissions,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ReopenRequest(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return unauthenticated(c)
	}

	reopened, err := h.collaboration.Reopen(c.Context(), c.Params("id"), actorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(reopened)
}

func (h *APIHandlers) CancelRequest(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return unauthenticated(c)
	}

	if err := h.collaboration.Cancel(c.Context(), c.Params("id"), actorID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateBatch(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return unauthenticated(c)
	}

	var req CreateBatchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.collaboration.CreateBatch(c.Context(), services.CreateBatchInput{
		RequesterID: actorID,
		OwnerID:     req.OwnerID,
		ItemIDs:     req.ItemIDs,
		Message:     req.Message,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(newBatchResponse(result))
}

func (h *APIHandlers) GetBatch(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return unauthenticated(c)
	}

	result, err := h.collaboration.GetBatch(c.Context(), c.Params("id"), actorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newBatchResponse(result))
}

func (h *APIHandlers) RespondBatch(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return unauthenticated(c)
	}

	var req RespondBatchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.collaboration.RespondBatch(c.Context(), services.BatchRespondInput{
		BatchID:                  c.Params("id"),
		ActorID:                  actorID,
		Action:                   models.BatchAction(req.Action),
		Decisions:                req.Decisions,
		ResponseMessage:          req.ResponseMessage,
		GrantFullPackPermissions: req.GrantFullPackPermissions,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newBatchResponse(result))
}
