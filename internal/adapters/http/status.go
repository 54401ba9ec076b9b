package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/cage-verify/internal/core/ports"
)

// StatusHandler exposes the progress of a run while it executes.
type StatusHandler struct {
	report  ports.RunReporter
	service ports.ContainerController
}

func NewStatusHandler(report ports.RunReporter, service ports.ContainerController) *StatusHandler {
	return &StatusHandler{report: report, service: service}
}

func (h *StatusHandler) GetRun(c *fiber.Ctx) error {
	return c.JSON(h.report.Snapshot())
}

func (h *StatusHandler) GetInstance(c *fiber.Ctx) error {
	inst := h.report.Snapshot().Instance
	if inst == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No instance is running",
		})
	}
	return c.JSON(inst)
}

func (h *StatusHandler) GetInstanceLogs(c *fiber.Ctx) error {
	inst := h.report.Snapshot().Instance
	if inst == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No instance is running",
		})
	}

	tail := c.QueryInt("tail", 100)
	if tail <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tail must be a positive integer",
		})
	}

	lines, err := h.service.Logs(c.UserContext(), inst, tail)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set("Content-Type", "text/plain")
	return c.SendString(strings.Join(lines, "\n"))
}

// NewApp wires the status routes.
func NewApp(h *StatusHandler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	v1 := app.Group("/api").Group("/v1")
	v1.Get("/run", h.GetRun)
	v1.Get("/instance", h.GetInstance)
	v1.Get("/instance/logs", h.GetInstanceLogs)
	return app
}
