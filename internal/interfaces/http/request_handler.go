package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/contratos-api/internal/application/dto"
	"github.com/jhoicas/contratos-api/internal/application/request"
	"github.com/jhoicas/contratos-api/internal/domain/entity"
)

const dateLayout = "2006-01-02"

type requestService interface {
	Create(ctx context.Context, requesterID string, in request.CreateInput) (*entity.UpdateRequest, error)
	Approve(ctx context.Context, requestID, evaluatorID string) (*entity.UpdateRequest, error)
	Reject(ctx context.Context, requestID, evaluatorID, reason string) (*entity.UpdateRequest, error)
	Get(ctx context.Context, requestID, viewerID string) (*entity.UpdateRequest, error)
	ListMine(ctx context.Context, userID, status string) ([]*entity.UpdateRequest, error)
	ListForReview(ctx context.Context, status, supplierID string, from, to *time.Time) ([]*entity.UpdateRequest, error)
	Stats(ctx context.Context) (*entity.RequestStats, error)
}

// RequestHandler endpoints del flujo de solicitudes de actualización.
type RequestHandler struct {
	uc requestService
}

// NewRequestHandler construye el handler de solicitudes.
func NewRequestHandler(uc requestService) *RequestHandler {
	return &RequestHandler{uc: uc}
}

// Create godoc
// @Summary      Crear solicitud de actualización
// @Description  Valida proveedor -> contrato -> secuencia y avisa a compras.
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.CreateUpdateRequest  true  "solicitud"
// @Success      201   {object}  dto.UpdateRequestResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/requests [post]
func (h *RequestHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateUpdateRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	req, err := h.uc.Create(c.UserContext(), GetUserID(c), request.CreateInput{
		SupplierID:       in.SupplierID,
		ContractID:       in.ContractID,
		SequenceID:       in.SequenceID,
		Justification:    in.Justification,
		AttachmentRef:    in.AttachmentRef,
		ProposedValue:    in.ProposedValue,
		ProposedIssueDay: in.ProposedIssueDay,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.ToUpdateRequestResponse(req))
}

// ListMine godoc
// @Summary      Mis solicitudes
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status  query  string  false  "pending | approved | rejected"
// @Success      200  {object}  dto.UpdateRequestListResponse
// @Router       /api/requests [get]
func (h *RequestHandler) ListMine(c *fiber.Ctx) error {
	list, err := h.uc.ListMine(c.UserContext(), GetUserID(c), c.Query("status"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toListResponse(list))
}

// ListForReview godoc
// @Summary      Solicitudes para evaluar (compras)
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status       query  string  false  "pending | approved | rejected"
// @Param        supplier_id  query  string  false  "proveedor"
// @Param        from         query  string  false  "YYYY-MM-DD"
// @Param        to           query  string  false  "YYYY-MM-DD (inclusive)"
// @Success      200  {object}  dto.UpdateRequestListResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/requests/review [get]
func (h *RequestHandler) ListForReview(c *fiber.Ctx) error {
	from, ok := parseDate(c.Query("from"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "from debe ser YYYY-MM-DD"})
	}
	to, ok := parseDate(c.Query("to"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "to debe ser YYYY-MM-DD"})
	}
	if to != nil {
		next := to.AddDate(0, 0, 1)
		to = &next
	}
	list, err := h.uc.ListForReview(c.UserContext(), c.Query("status"), c.Query("supplier_id"), from, to)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toListResponse(list))
}

// Stats godoc
// @Summary      Contadores del mes (compras)
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.RequestStatsResponse
// @Router       /api/requests/stats [get]
func (h *RequestHandler) Stats(c *fiber.Ctx) error {
	s, err := h.uc.Stats(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.RequestStatsResponse{
		Pending:           s.Pending,
		ApprovedThisMonth: s.ApprovedThisMonth,
		RejectedThisMonth: s.RejectedThisMonth,
		CreatedThisMonth:  s.CreatedThisMonth,
	})
}

// GetByID godoc
// @Summary      Detalle de una solicitud
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "ID de la solicitud"
// @Success      200  {object}  dto.UpdateRequestResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/requests/{id} [get]
func (h *RequestHandler) GetByID(c *fiber.Ctx) error {
	req, err := h.uc.Get(c.UserContext(), c.Params("id"), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ToUpdateRequestResponse(req))
}

// Approve godoc
// @Summary      Aprobar solicitud
// @Description  Aplica los valores propuestos a la secuencia y notifica al solicitante.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "ID de la solicitud"
// @Success      200  {object}  dto.UpdateRequestResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/requests/{id}/approve [patch]
func (h *RequestHandler) Approve(c *fiber.Ctx) error {
	req, err := h.uc.Approve(c.UserContext(), c.Params("id"), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ToUpdateRequestResponse(req))
}

// Reject godoc
// @Summary      Rechazar solicitud
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string             true  "ID de la solicitud"
// @Param        body  body  dto.RejectRequest  true  "motivo"
// @Success      200  {object}  dto.UpdateRequestResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/requests/{id}/reject [patch]
func (h *RequestHandler) Reject(c *fiber.Ctx) error {
	var in dto.RejectRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	req, err := h.uc.Reject(c.UserContext(), c.Params("id"), GetUserID(c), in.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ToUpdateRequestResponse(req))
}

func toListResponse(list []*entity.UpdateRequest) dto.UpdateRequestListResponse {
	items := make([]dto.UpdateRequestResponse, 0, len(list))
	for _, r := range list {
		items = append(items, dto.ToUpdateRequestResponse(r))
	}
	return dto.UpdateRequestListResponse{Items: items}
}

// parseDate "" -> (nil, true); formato inválido -> (nil, false).
func parseDate(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
