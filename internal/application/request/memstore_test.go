package request

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/jhoicas/contratos-api/internal/domain/repository"
)

// memDB base en memoria con transacciones: RunRequest trabaja sobre una copia y solo la
// publica si fn no devuelve error. El mutex serializa transacciones como un lock de fila.
type memDB struct {
	mu        sync.Mutex
	st        state
	contracts map[string]*entity.Contract
	suppliers map[string]*entity.Supplier

	failSequenceUpdate error
	failAudit          error
	txCount            int
}

type state struct {
	requests  map[string]entity.UpdateRequest
	sequences map[string]entity.Sequence
	audits    []entity.AuditEvent
}

func (s state) clone() state {
	out := state{
		requests:  make(map[string]entity.UpdateRequest, len(s.requests)),
		sequences: make(map[string]entity.Sequence, len(s.sequences)),
		audits:    append([]entity.AuditEvent(nil), s.audits...),
	}
	for k, v := range s.requests {
		out.requests[k] = v
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	return out
}

func newMemDB() *memDB {
	return &memDB{
		st: state{
			requests:  map[string]entity.UpdateRequest{},
			sequences: map[string]entity.Sequence{},
		},
		contracts: map[string]*entity.Contract{},
		suppliers: map[string]*entity.Supplier{},
	}
}

func (db *memDB) RunRequest(_ context.Context, fn func(
	requests repository.UpdateRequestRepository,
	contracts repository.ContractRepository,
	audit repository.AuditRecorder,
) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.txCount++
	work := db.st.clone()
	v := &txView{db: db, st: &work}
	if err := fn(v, v, v); err != nil {
		return err
	}
	db.st = work
	return nil
}

func (db *memDB) sequence(id string) entity.Sequence {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.sequences[id]
}

func (db *memDB) request(id string) entity.UpdateRequest {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.requests[id]
}

func (db *memDB) auditLog() []entity.AuditEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]entity.AuditEvent(nil), db.st.audits...)
}

// txView repos atados a una transacción (sin locks: el llamador ya tiene db.mu).
type txView struct {
	db *memDB
	st *state
}

func (v *txView) Create(_ context.Context, req *entity.UpdateRequest) error {
	v.st.requests[req.ID] = *req
	return nil
}

func (v *txView) GetByID(_ context.Context, id string) (*entity.UpdateRequest, error) {
	r, ok := v.st.requests[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (v *txView) List(_ context.Context, f entity.RequestFilter) ([]*entity.UpdateRequest, error) {
	list := []*entity.UpdateRequest{}
	for _, r := range v.st.requests {
		if f.RequesterID != "" && r.RequesterID != f.RequesterID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.SupplierID != "" && r.SupplierID != f.SupplierID {
			continue
		}
		list = append(list, &r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (v *txView) MarkEvaluated(_ context.Context, ev entity.Evaluation) (bool, error) {
	r, ok := v.st.requests[ev.RequestID]
	if !ok || r.Status != entity.RequestPending {
		return false, nil
	}
	r.Status = ev.Status
	r.EvaluatorID = &ev.EvaluatorID
	at := ev.EvaluatedAt
	r.EvaluatedAt = &at
	r.RejectionReason = ev.RejectionReason
	r.UpdatedAt = ev.EvaluatedAt
	v.st.requests[r.ID] = r
	return true, nil
}

func (v *txView) Stats(_ context.Context, monthStart time.Time) (*entity.RequestStats, error) {
	var s entity.RequestStats
	for _, r := range v.st.requests {
		switch {
		case r.Status == entity.RequestPending:
			s.Pending++
		case r.Status == entity.RequestApproved && !r.EvaluatedAt.Before(monthStart):
			s.ApprovedThisMonth++
		case r.Status == entity.RequestRejected && !r.EvaluatedAt.Before(monthStart):
			s.RejectedThisMonth++
		}
		if !r.CreatedAt.Before(monthStart) {
			s.CreatedThisMonth++
		}
	}
	return &s, nil
}

func (v *txView) GetContract(_ context.Context, id string) (*entity.Contract, error) {
	return v.db.contracts[id], nil
}

func (v *txView) GetSupplier(_ context.Context, id string) (*entity.Supplier, error) {
	return v.db.suppliers[id], nil
}

func (v *txView) GetSequence(_ context.Context, id string) (*entity.Sequence, error) {
	s, ok := v.st.sequences[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (v *txView) GetSequenceForUpdate(ctx context.Context, id string) (*entity.Sequence, error) {
	return v.GetSequence(ctx, id)
}

func (v *txView) UpdateSequenceTerms(_ context.Context, id string, value decimal.Decimal, issueDay int) error {
	if v.db.failSequenceUpdate != nil {
		return v.db.failSequenceUpdate
	}
	s := v.st.sequences[id]
	s.Value = value
	s.IssueDay = issueDay
	v.st.sequences[id] = s
	return nil
}

func (v *txView) Record(_ context.Context, ev *entity.AuditEvent) error {
	if v.db.failAudit != nil {
		return v.db.failAudit
	}
	v.st.audits = append(v.st.audits, *ev)
	return nil
}

// poolView acceso fuera de transacción: toma el lock en cada llamada.
type poolView struct{ db *memDB }

func (p poolView) tx() *txView { return &txView{db: p.db, st: &p.db.st} }

func (p poolView) Create(ctx context.Context, req *entity.UpdateRequest) error {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	return p.tx().Create(ctx, req)
}

func (p poolView) GetByID(ctx context.Context, id string) (*entity.UpdateRequest, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	return p.tx().GetByID(ctx, id)
}

func (p poolView) List(ctx context.Context, f entity.RequestFilter) ([]*entity.UpdateRequest, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	return p.tx().List(ctx, f)
}

func (p poolView) MarkEvaluated(ctx context.Context, ev entity.Evaluation) (bool, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	return p.tx().MarkEvaluated(ctx, ev)
}

func (p poolView) Stats(ctx context.Context, monthStart time.Time) (*entity.RequestStats, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	return p.tx().Stats(ctx, monthStart)
}

func (p poolView) GetContract(ctx context.Context, id string) (*entity.Contract, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	return p.tx().GetContract(ctx, id)
}

func (p poolView) GetSupplier(ctx context.Context, id string) (*entity.Supplier, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	return p.tx().GetSupplier(ctx, id)
}

func (p poolView) GetSequence(ctx context.Context, id string) (*entity.Sequence, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	return p.tx().GetSequence(ctx, id)
}

func (p poolView) GetSequenceForUpdate(ctx context.Context, id string) (*entity.Sequence, error) {
	return p.GetSequence(ctx, id)
}

func (p poolView) UpdateSequenceTerms(ctx context.Context, id string, value decimal.Decimal, issueDay int) error {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	return p.tx().UpdateSequenceTerms(ctx, id, value, issueDay)
}
