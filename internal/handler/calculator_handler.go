package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/abushana-oss/mithran-sub003/internal/domain/apperror"
	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/modules/calculator"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// CalculatorHandler exposes calculator definitions, execution and batch jobs.
type CalculatorHandler struct {
	svc *calculator.Service
}

// NewCalculatorHandler creates a new calculator handler
func NewCalculatorHandler(svc *calculator.Service) *CalculatorHandler {
	return &CalculatorHandler{svc: svc}
}

// Register mounts the routes on router.
func (h *CalculatorHandler) Register(router fiber.Router) {
	calcs := router.Group("/calculators")
	calcs.Post("/", h.create)
	calcs.Get("/", h.list)
	calcs.Get("/:id", h.get)
	calcs.Put("/:id", h.update)
	calcs.Delete("/:id", h.delete)
	calcs.Post("/:id/execute", h.execute)
	calcs.Post("/:id/batch", h.submitBatch)

	jobs := router.Group("/jobs")
	jobs.Get("/:id", h.getJob)
	jobs.Get("/:id/runs", h.listRuns)
}

type batchRequest struct {
	Inputs []map[string]any `json:"inputs"`
}

func (h *CalculatorHandler) create(c *fiber.Ctx) error {
	var calc entity.Calculator
	if err := c.BodyParser(&calc); err != nil {
		return apperror.InvalidRequest("invalid request body: %v", err)
	}
	created, err := h.svc.Create(c.UserContext(), &calc, callerID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *CalculatorHandler) list(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	calcs, err := h.svc.List(c.UserContext(), callerID(c), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":   calcs,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *CalculatorHandler) get(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	calc, err := h.svc.Get(c.UserContext(), id, callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(calc)
}

func (h *CalculatorHandler) update(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var calc entity.Calculator
	if err := c.BodyParser(&calc); err != nil {
		return apperror.InvalidRequest("invalid request body: %v", err)
	}
	updated, err := h.svc.Update(c.UserContext(), id, &calc, callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (h *CalculatorHandler) delete(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.UserContext(), id, callerID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CalculatorHandler) execute(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req entity.ExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperror.InvalidRequest("invalid request body: %v", err)
		}
	}
	out, err := h.svc.Execute(c.UserContext(), id, req, callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

func (h *CalculatorHandler) submitBatch(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.InvalidRequest("invalid request body: %v", err)
	}
	job, err := h.svc.SubmitBatch(c.UserContext(), id, req.Inputs, callerID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":  job.ID,
		"message": "Batch execution queued",
		"status":  job.Status,
	})
}

func (h *CalculatorHandler) getJob(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	job, err := h.svc.GetJob(c.UserContext(), id, callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"job":      job,
		"progress": job.Progress(),
	})
}

func (h *CalculatorHandler) listRuns(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	runs, err := h.svc.ListRuns(c.UserContext(), id, callerID(c), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

func paramID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, apperror.InvalidRequest("invalid id %q", c.Params("id"))
	}
	return id, nil
}

func pagination(c *fiber.Ctx) (int, int) {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
