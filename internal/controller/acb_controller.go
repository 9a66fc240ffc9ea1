package controller

import (
	"errors"

	"agent-memory-be/internal/dto"
	"agent-memory-be/internal/pkg/serverutils"
	"agent-memory-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IAcbController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Health(ctx *fiber.Ctx) error
	Build(ctx *fiber.Ctx) error
	RecordEvent(ctx *fiber.Ctx) error
	GetAudit(ctx *fiber.Ctx) error
	ListSessionAudits(ctx *fiber.Ctx) error
	Profiles(ctx *fiber.Ctx) error
}

type acbController struct {
	service service.IAcbService
}

func NewAcbController(service service.IAcbService) IAcbController {
	return &acbController{service: service}
}

func (c *acbController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	v1 := r.Group("/v1")
	v1.Get("/acb/health", c.Health)

	h := v1.Group("", auth)
	h.Post("/acb/build", c.Build)
	h.Get("/acb/profiles", c.Profiles)
	h.Get("/acb/audits/:id", c.GetAudit)
	h.Get("/acb/sessions/:session_id/audits", c.ListSessionAudits)
	h.Post("/events", c.RecordEvent)
}

func (c *acbController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("ok", fiber.Map{"status": "healthy"}))
}

func (c *acbController) Build(ctx *fiber.Ctx) error {
	var req dto.BuildBundleRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	tenantID, err := serverutils.ResolveTenant(ctx, req.TenantId)
	if err != nil {
		return err
	}

	res, err := c.service.Build(ctx.UserContext(), tenantID, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Bundle built", res))
}

func (c *acbController) RecordEvent(ctx *fiber.Ctx) error {
	var req dto.RecordEventRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	tenantID, err := serverutils.ResolveTenant(ctx, req.TenantId)
	if err != nil {
		return err
	}

	res, err := c.service.RecordEvent(ctx.UserContext(), tenantID, &req)
	if err != nil {
		return mapServiceError(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Event recorded", res))
}

func (c *acbController) GetAudit(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid audit id")
	}

	res, err := c.service.GetAudit(ctx.UserContext(), serverutils.TenantID(ctx), id)
	if err != nil {
		return mapServiceError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get bundle audit", res))
}

func (c *acbController) ListSessionAudits(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 20)
	offset := ctx.QueryInt("offset", 0)

	res, err := c.service.ListSessionAudits(ctx.UserContext(), serverutils.TenantID(ctx), ctx.Params("session_id"), limit, offset)
	if err != nil {
		return mapServiceError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list bundle audits", res))
}

func (c *acbController) Profiles(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get profiles", c.service.Profiles()))
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrStorageUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrAuditNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
