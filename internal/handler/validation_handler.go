package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/promocheck/internal/domain"
	"github.com/kursadbilgin/promocheck/internal/engine"
	"github.com/kursadbilgin/promocheck/internal/service"
)

type ValidationService interface {
	CreateBatch(ctx context.Context, name string, codes []string) (*domain.Batch, []domain.CodeRecord, error)
	ValidateBatch(ctx context.Context, batchID string, onProgress engine.ProgressFunc) (*engine.BatchReport, error)
	ValidateCodes(ctx context.Context, codes []string) (*engine.BatchReport, error)
	OverrideStatus(ctx context.Context, codeID string, status string, message string) (*domain.CodeRecord, error)
	GetBatchSummary(ctx context.Context, batchID string) (*service.BatchSummary, error)
	EnqueueBatchValidation(ctx context.Context, batchID string) (*domain.BatchProgress, error)
	GetProgress(ctx context.Context, batchID string) (*domain.BatchProgress, error)
}

type ValidationHandler struct {
	service ValidationService
}

func NewValidationHandler(service ValidationService) (*ValidationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("validation service is required")
	}
	return &ValidationHandler{service: service}, nil
}

func RegisterValidationRoutes(router fiber.Router, service ValidationService) error {
	h, err := NewValidationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/validate", h.ValidateBatch)
	v1.Post("/validate-codes", h.ValidateCodes)
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches/:batchId", h.GetBatchSummary)
	v1.Post("/batches/:batchId/validate-async", h.EnqueueBatchValidation)
	v1.Get("/batches/:batchId/progress", h.GetProgress)
	v1.Post("/codes/:id/status", h.OverrideStatus)

	return nil
}

type validateBatchRequest struct {
	BatchID string `json:"batchId"`
}

type validateCodesRequest struct {
	Codes []string `json:"codes"`
}

type createBatchRequest struct {
	Name  string   `json:"name"`
	Codes []string `json:"codes"`
}

type overrideStatusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type codeResultResponse struct {
	ID       string `json:"id,omitempty"`
	Code     string `json:"code"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

type validateResponse struct {
	BatchID   string               `json:"batchId,omitempty"`
	Validated int                  `json:"validated"`
	Results   []codeResultResponse `json:"results"`
	Summary   domain.Summary       `json:"summary"`
}

type codeResponse struct {
	ID        string    `json:"id"`
	BatchID   string    `json:"batchId"`
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type batchResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"createdAt"`
	Codes     []codeResponse `json:"codes"`
}

type batchSummaryResponse struct {
	BatchID   string         `json:"batchId"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"createdAt"`
	Summary   domain.Summary `json:"summary"`
}

func (h *ValidationHandler) ValidateBatch(c *fiber.Ctx) error {
	var req validateBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	report, err := h.service.ValidateBatch(c.UserContext(), req.BatchID, nil)
	if err != nil {
		return toHTTPError(err)
	}

	resp := toValidateResponse(report)
	resp.BatchID = strings.TrimSpace(req.BatchID)
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *ValidationHandler) ValidateCodes(c *fiber.Ctx) error {
	var req validateCodesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	report, err := h.service.ValidateCodes(c.UserContext(), req.Codes)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toValidateResponse(report))
}

func (h *ValidationHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	batch, codes, err := h.service.CreateBatch(c.UserContext(), req.Name, req.Codes)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]codeResponse, 0, len(codes))
	for i := range codes {
		items = append(items, toCodeResponse(&codes[i]))
	}

	return c.Status(fiber.StatusCreated).JSON(batchResponse{
		ID:        batch.ID,
		Name:      batch.Name,
		CreatedAt: batch.CreatedAt,
		Codes:     items,
	})
}

func (h *ValidationHandler) GetBatchSummary(c *fiber.Ctx) error {
	summary, err := h.service.GetBatchSummary(c.UserContext(), c.Params("batchId"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(batchSummaryResponse{
		BatchID:   summary.Batch.ID,
		Name:      summary.Batch.Name,
		CreatedAt: summary.Batch.CreatedAt,
		Summary:   summary.Summary,
	})
}

func (h *ValidationHandler) EnqueueBatchValidation(c *fiber.Ctx) error {
	progress, err := h.service.EnqueueBatchValidation(c.UserContext(), c.Params("batchId"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(progress)
}

func (h *ValidationHandler) GetProgress(c *fiber.Ctx) error {
	progress, err := h.service.GetProgress(c.UserContext(), c.Params("batchId"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(progress)
}

func (h *ValidationHandler) OverrideStatus(c *fiber.Ctx) error {
	var req overrideStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	code, err := h.service.OverrideStatus(c.UserContext(), c.Params("id"), req.Status, req.Message)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toCodeResponse(code))
}

func toValidateResponse(report *engine.BatchReport) validateResponse {
	if report == nil {
		return validateResponse{Results: []codeResultResponse{}}
	}

	results := make([]codeResultResponse, 0, len(report.Results))
	for _, r := range report.Results {
		results = append(results, codeResultResponse{
			ID:       r.CodeID,
			Code:     r.Code,
			Status:   r.Verdict.Status.String(),
			Message:  r.Verdict.Message,
			Attempts: r.Attempts,
		})
	}

	return validateResponse{
		Validated: len(results),
		Results:   results,
		Summary:   report.Summary,
	}
}

func toCodeResponse(c *domain.CodeRecord) codeResponse {
	if c == nil {
		return codeResponse{}
	}

	return codeResponse{
		ID:        c.ID,
		BatchID:   c.BatchID,
		Code:      c.Code,
		Status:    c.Status.String(),
		Message:   c.Message,
		Timestamp: c.Timestamp,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
