package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/contratos-api/internal/application/notification"
	"github.com/jhoicas/contratos-api/internal/domain"
	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/jhoicas/contratos-api/internal/domain/repository"
)

const (
	resourceUpdateRequest = "update_request"
	mailTimeout           = 30 * time.Second
)

// CreateInput datos de una nueva solicitud de actualización.
type CreateInput struct {
	SupplierID       string
	ContractID       string
	SequenceID       string
	Justification    string
	AttachmentRef    *string
	ProposedValue    *decimal.Decimal
	ProposedIssueDay *int
}

// UseCase máquina de estados de UpdateRequest: pending -> approved | rejected.
// Cada transición muta los datos referenciados, audita y notifica; los pasos de
// escritura corren en una sola transacción y la guarda es un UPDATE condicional.
type UseCase struct {
	txRunner  TxRunner
	requests  repository.UpdateRequestRepository
	contracts repository.ContractRepository
	users     repository.UserRepository
	notifier  Notifier
	mailer    Mailer
	baseURL   string
	log       zerolog.Logger
	now       func() time.Time

	background sync.WaitGroup
}

// NewUseCase construye el caso de uso. mailer puede ser nil (e-mail deshabilitado).
func NewUseCase(
	txRunner TxRunner,
	requests repository.UpdateRequestRepository,
	contracts repository.ContractRepository,
	users repository.UserRepository,
	notifier Notifier,
	mailer Mailer,
	baseURL string,
	log zerolog.Logger,
) *UseCase {
	return &UseCase{
		txRunner:  txRunner,
		requests:  requests,
		contracts: contracts,
		users:     users,
		notifier:  notifier,
		mailer:    mailer,
		baseURL:   strings.TrimRight(baseURL, "/"),
		log:       log,
		now:       time.Now,
	}
}

// Create valida la consistencia proveedor -> contrato -> secuencia, persiste la solicitud
// en pending junto con su registro de auditoría y avisa a quienes tienen la capacidad compras.
func (uc *UseCase) Create(ctx context.Context, requesterID string, in CreateInput) (*entity.UpdateRequest, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	requester, err := uc.users.FindByID(ctx, requesterID)
	if err != nil {
		return nil, persistence("buscar solicitante", err)
	}
	if requester == nil || !requester.Active {
		return nil, domain.ErrUserNotFound
	}

	contract, err := uc.contracts.GetContract(ctx, in.ContractID)
	if err != nil {
		return nil, persistence("buscar contrato", err)
	}
	if contract == nil || contract.SupplierID != in.SupplierID {
		return nil, fmt.Errorf("%w: el contrato no pertenece al proveedor", domain.ErrReferentialMismatch)
	}
	seq, err := uc.contracts.GetSequence(ctx, in.SequenceID)
	if err != nil {
		return nil, persistence("buscar secuencia", err)
	}
	if seq == nil || seq.ContractID != contract.ID {
		return nil, fmt.Errorf("%w: la secuencia no pertenece al contrato", domain.ErrReferentialMismatch)
	}
	supplierName := "N/A"
	if supplier, err := uc.contracts.GetSupplier(ctx, in.SupplierID); err == nil && supplier != nil {
		supplierName = supplier.Name
	}

	now := uc.now()
	req := &entity.UpdateRequest{
		ID:               uuid.New().String(),
		RequesterID:      requester.ID,
		SectorID:         requester.SectorID,
		SupplierID:       in.SupplierID,
		ContractID:       in.ContractID,
		SequenceID:       in.SequenceID,
		Justification:    in.Justification,
		AttachmentRef:    in.AttachmentRef,
		ProposedValue:    in.ProposedValue,
		ProposedIssueDay: in.ProposedIssueDay,
		Status:           entity.RequestPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = uc.txRunner.RunRequest(ctx, func(
		requests repository.UpdateRequestRepository,
		_ repository.ContractRepository,
		audit repository.AuditRecorder,
	) error {
		if err := requests.Create(ctx, req); err != nil {
			return err
		}
		return audit.Record(ctx, &entity.AuditEvent{
			ID:          uuid.New().String(),
			ActorID:     requester.ID,
			Action:      entity.AuditActionCreate,
			Resource:    resourceUpdateRequest,
			ResourceID:  req.ID,
			Description: fmt.Sprintf("Solicitação criada para o contrato %s - %s", contract.Number, supplierName),
			After: map[string]any{
				"contract":           contract.Number,
				"sequence":           seq.Number,
				"proposed_value":     decimalOrNil(req.ProposedValue),
				"proposed_issue_day": intOrNil(req.ProposedIssueDay),
				"attachment":         req.AttachmentRef != nil,
			},
			Level:     "INFO",
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, persistence("crear solicitud", err)
	}

	requesterName := requester.DisplayName()
	_, err = uc.notifier.NotifyByCapability(ctx, entity.CapabilityCompras, notification.Notice{
		Kind:        entity.KindRequestCreated,
		Title:       "Nova solicitação de atualização",
		Body:        fmt.Sprintf("%s enviou uma solicitação para o contrato %s (%s)", requesterName, contract.Number, supplierName),
		ReferenceID: &req.ID,
		Metadata: map[string]any{
			"request_id":      req.ID,
			"requester_name":  requesterName,
			"contract_number": contract.Number,
			"supplier_name":   supplierName,
		},
	})
	if err != nil {
		uc.log.Error().Err(err).Str("request_id", req.ID).Msg("notificar compras")
	}
	uc.mailCompras(ctx, requesterName, contract.Number, supplierName)

	return req, nil
}

// Approve transiciona pending -> approved. En una sola transacción: UPDATE condicional del estado,
// reescritura de los campos propuestos de la secuencia y registro de auditoría con antes/después.
// Si cualquier paso falla no queda nada persistido. Después del commit notifica al solicitante.
func (uc *UseCase) Approve(ctx context.Context, requestID, evaluatorID string) (*entity.UpdateRequest, error) {
	req, err := uc.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}
	now := uc.now()

	err = uc.txRunner.RunRequest(ctx, func(
		requests repository.UpdateRequestRepository,
		contracts repository.ContractRepository,
		audit repository.AuditRecorder,
	) error {
		won, err := requests.MarkEvaluated(ctx, entity.Evaluation{
			RequestID:   req.ID,
			Status:      entity.RequestApproved,
			EvaluatorID: evaluatorID,
			EvaluatedAt: now,
		})
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrAlreadyEvaluated
		}

		before, after := map[string]any{}, map[string]any{}
		description := "Solicitação aprovada"
		if req.ChangesSequence() {
			seq, err := contracts.GetSequenceForUpdate(ctx, req.SequenceID)
			if err != nil {
				return err
			}
			if seq == nil {
				return fmt.Errorf("%w: secuencia %s", domain.ErrNotFound, req.SequenceID)
			}
			value, issueDay := seq.Value, seq.IssueDay
			if req.ProposedValue != nil {
				before["value"], after["value"] = seq.Value, *req.ProposedValue
				value = *req.ProposedValue
			}
			if req.ProposedIssueDay != nil {
				before["issue_day"], after["issue_day"] = seq.IssueDay, *req.ProposedIssueDay
				issueDay = *req.ProposedIssueDay
			}
			if err := contracts.UpdateSequenceTerms(ctx, seq.ID, value, issueDay); err != nil {
				return err
			}
			description = fmt.Sprintf("Solicitação aprovada; sequência %d atualizada", seq.Number)
		}

		return audit.Record(ctx, &entity.AuditEvent{
			ID:          uuid.New().String(),
			ActorID:     evaluatorID,
			Action:      entity.AuditActionApprove,
			Resource:    resourceUpdateRequest,
			ResourceID:  req.ID,
			Description: description,
			Before:      before,
			After:       after,
			Level:       "WARN",
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, persistence("aprobar solicitud", err)
	}

	req.Status = entity.RequestApproved
	req.EvaluatorID = &evaluatorID
	req.EvaluatedAt = &now
	req.UpdatedAt = now
	uc.notifyRequester(ctx, req)
	return req, nil
}

// Reject transiciona pending -> rejected guardando el motivo tal como fue enviado.
// No muta datos referenciados.
func (uc *UseCase) Reject(ctx context.Context, requestID, evaluatorID, reason string) (*entity.UpdateRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: el motivo del rechazo es obligatorio", domain.ErrInvalidInput)
	}
	req, err := uc.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}
	now := uc.now()

	err = uc.txRunner.RunRequest(ctx, func(
		requests repository.UpdateRequestRepository,
		_ repository.ContractRepository,
		audit repository.AuditRecorder,
	) error {
		won, err := requests.MarkEvaluated(ctx, entity.Evaluation{
			RequestID:       req.ID,
			Status:          entity.RequestRejected,
			EvaluatorID:     evaluatorID,
			EvaluatedAt:     now,
			RejectionReason: &reason,
		})
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrAlreadyEvaluated
		}
		return audit.Record(ctx, &entity.AuditEvent{
			ID:          uuid.New().String(),
			ActorID:     evaluatorID,
			Action:      entity.AuditActionReject,
			Resource:    resourceUpdateRequest,
			ResourceID:  req.ID,
			Description: "Solicitação reprovada",
			Before:      map[string]any{"status": string(entity.RequestPending)},
			After:       map[string]any{"status": string(entity.RequestRejected), "rejection_reason": reason},
			Level:       "INFO",
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, persistence("rechazar solicitud", err)
	}

	req.Status = entity.RequestRejected
	req.EvaluatorID = &evaluatorID
	req.EvaluatedAt = &now
	req.RejectionReason = &reason
	req.UpdatedAt = now
	uc.notifyRequester(ctx, req)
	return req, nil
}

// Get devuelve la solicitud si el lector es el solicitante o tiene la capacidad compras.
func (uc *UseCase) Get(ctx context.Context, requestID, viewerID string) (*entity.UpdateRequest, error) {
	req, err := uc.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID == viewerID {
		return req, nil
	}
	viewer, err := uc.users.FindByID(ctx, viewerID)
	if err != nil {
		return nil, persistence("buscar usuario", err)
	}
	if !viewer.HasCapability(entity.CapabilityCompras) {
		return nil, domain.ErrForbidden
	}
	return req, nil
}

// ListMine solicitudes del usuario, más recientes primero. status vacío = todas.
func (uc *UseCase) ListMine(ctx context.Context, userID, status string) ([]*entity.UpdateRequest, error) {
	st, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	return uc.list(ctx, entity.RequestFilter{RequesterID: userID, Status: st})
}

// ListForReview todas las solicitudes (evaluadores), con filtros opcionales.
func (uc *UseCase) ListForReview(ctx context.Context, status, supplierID string, from, to *time.Time) ([]*entity.UpdateRequest, error) {
	st, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	return uc.list(ctx, entity.RequestFilter{Status: st, SupplierID: supplierID, From: from, To: to})
}

// Stats contadores del mes en curso para el panel de compras.
func (uc *UseCase) Stats(ctx context.Context) (*entity.RequestStats, error) {
	now := uc.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	stats, err := uc.requests.Stats(ctx, monthStart)
	if err != nil {
		return nil, persistence("estadísticas", err)
	}
	return stats, nil
}

// Wait espera los envíos en segundo plano (e-mails); usar en el apagado.
func (uc *UseCase) Wait() {
	uc.background.Wait()
}

func (uc *UseCase) list(ctx context.Context, filter entity.RequestFilter) ([]*entity.UpdateRequest, error) {
	list, err := uc.requests.List(ctx, filter)
	if err != nil {
		return nil, persistence("listar solicitudes", err)
	}
	return list, nil
}

func (uc *UseCase) load(ctx context.Context, requestID string) (*entity.UpdateRequest, error) {
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, domain.ErrNotFound
	}
	req, err := uc.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, persistence("buscar solicitud", err)
	}
	if req == nil {
		return nil, domain.ErrNotFound
	}
	return req, nil
}

// loadPending carga y descarta rápido las ya evaluadas; la garantía real la da MarkEvaluated.
func (uc *UseCase) loadPending(ctx context.Context, requestID string) (*entity.UpdateRequest, error) {
	req, err := uc.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != entity.RequestPending {
		return nil, domain.ErrAlreadyEvaluated
	}
	return req, nil
}

func (uc *UseCase) notifyRequester(ctx context.Context, req *entity.UpdateRequest) {
	evaluatorID := *req.EvaluatorID
	evaluatorName := evaluatorID
	if u, err := uc.users.FindByID(ctx, evaluatorID); err == nil && u != nil {
		evaluatorName = u.DisplayName()
	}
	contractNumber := req.ContractID
	if c, err := uc.contracts.GetContract(ctx, req.ContractID); err == nil && c != nil {
		contractNumber = c.Number
	}
	meta := map[string]any{
		"request_id":      req.ID,
		"evaluator_id":    evaluatorID,
		"evaluator_name":  evaluatorName,
		"contract_number": contractNumber,
	}

	n := notification.Notice{
		RecipientIDs: []string{req.RequesterID},
		ReferenceID:  &req.ID,
		Metadata:     meta,
	}
	switch req.Status {
	case entity.RequestApproved:
		n.Kind = entity.KindRequestApproved
		n.Title = "Solicitação aprovada"
		n.Body = fmt.Sprintf("Sua solicitação para o contrato %s foi aprovada por %s", contractNumber, evaluatorName)
	case entity.RequestRejected:
		n.Kind = entity.KindRequestRejected
		n.Title = "Solicitação reprovada"
		n.Body = fmt.Sprintf("Sua solicitação para o contrato %s foi reprovada por %s. Motivo: %s",
			contractNumber, evaluatorName, *req.RejectionReason)
		meta["rejection_reason"] = *req.RejectionReason
	default:
		return
	}
	if _, err := uc.notifier.Notify(ctx, n); err != nil {
		uc.log.Error().Err(err).Str("request_id", req.ID).Msg("notificar solicitante")
	}
}

func (uc *UseCase) mailCompras(ctx context.Context, requesterName, contractNumber, supplierName string) {
	if uc.mailer == nil {
		return
	}
	uc.background.Add(1)
	go func() {
		defer uc.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
		defer cancel()

		users, err := uc.users.ListActiveByCapability(ctx, entity.CapabilityCompras)
		if err != nil {
			uc.log.Warn().Err(err).Msg("e-mail compras: buscar destinatarios")
			return
		}
		to := make([]string, 0, len(users))
		for _, u := range users {
			if u.Email != "" {
				to = append(to, u.Email)
			}
		}
		if len(to) == 0 {
			return
		}
		subject := "Nova solicitação de atualização - contrato " + contractNumber
		body := fmt.Sprintf("%s enviou uma solicitação de atualização do contrato %s (%s).\n\nAcesse %s/compras para avaliar.",
			requesterName, contractNumber, supplierName, uc.baseURL)
		if err := uc.mailer.Send(ctx, to, subject, body); err != nil {
			uc.log.Warn().Err(err).Int("recipients", len(to)).Msg("e-mail compras no enviado")
		}
	}()
}

func validateCreate(in CreateInput) error {
	if in.SupplierID == "" || in.ContractID == "" || in.SequenceID == "" {
		return fmt.Errorf("%w: supplier_id, contract_id y sequence_id son requeridos", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Justification) == "" {
		return fmt.Errorf("%w: la justificación es obligatoria", domain.ErrInvalidInput)
	}
	if in.ProposedIssueDay != nil && (*in.ProposedIssueDay < 1 || *in.ProposedIssueDay > 31) {
		return fmt.Errorf("%w: el día de emisión debe estar entre 1 y 31", domain.ErrInvalidInput)
	}
	if in.ProposedValue != nil && in.ProposedValue.IsNegative() {
		return fmt.Errorf("%w: el valor propuesto no puede ser negativo", domain.ErrInvalidInput)
	}
	return nil
}

func parseStatus(s string) (entity.RequestStatus, error) {
	if s == "" {
		return "", nil
	}
	st := entity.RequestStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: estado %q", domain.ErrInvalidInput, s)
	}
	return st, nil
}

// persistence deja pasar los errores de dominio y envuelve el resto como ErrPersistence.
func persistence(op string, err error) error {
	for _, known := range []error{
		domain.ErrPersistence,
		domain.ErrAlreadyEvaluated,
		domain.ErrNotFound,
		domain.ErrReferentialMismatch,
		domain.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

func decimalOrNil(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}

func intOrNil(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
