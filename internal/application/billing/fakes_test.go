package billing_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Base de datos en memoria con semántica transaccional mínima: RunBilling
// serializa las transacciones (equivalente al bloqueo de fila del contador),
// trabaja sobre una copia y solo la publica si fn no falla.
// ──────────────────────────────────────────────────────────────────────────────

const (
	testCompanyID = "company-1"
	testBranchID  = "branch-1"
	testRUC       = "20100066603"
)

type memState struct {
	counters map[string]int64
	docs     map[string]*entity.Document
}

func (s *memState) clone() *memState {
	c := &memState{
		counters: make(map[string]int64, len(s.counters)),
		docs:     make(map[string]*entity.Document, len(s.docs)),
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	for k, v := range s.docs {
		c.docs[k] = copyDoc(v)
	}
	return c
}

func copyDoc(d *entity.Document) *entity.Document {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

type memDB struct {
	mu    sync.Mutex
	st    *memState
	txs   int
	fails int // commits que fallarán con domain.ErrTransient

	companies map[string]*entity.Company
	branches  map[string]*entity.Branch
	series    map[string]*entity.BranchSeries
	clients   map[string]*entity.Client
	detract   map[string]*entity.DetractionCode
	payments  map[string]*entity.PaymentMethod
}

func newMemDB() *memDB {
	db := &memDB{
		st:        &memState{counters: map[string]int64{}, docs: map[string]*entity.Document{}},
		companies: map[string]*entity.Company{},
		branches:  map[string]*entity.Branch{},
		series:    map[string]*entity.BranchSeries{},
		clients:   map[string]*entity.Client{},
		detract:   map[string]*entity.DetractionCode{},
		payments:  map[string]*entity.PaymentMethod{},
	}
	db.companies[testCompanyID] = &entity.Company{ID: testCompanyID, RUC: testRUC, RazonSocial: "EMPRESA DEMO S.A.C.", Status: "active"}
	db.branches[testBranchID] = &entity.Branch{ID: testBranchID, CompanyID: testCompanyID, Code: "0000", Name: "Principal", Active: true}
	for _, s := range []struct{ tipo, serie string }{
		{"01", "F001"}, {"03", "B001"}, {"07", "F001"}, {"07", "B001"}, {"08", "F001"},
		{"09", "T001"}, {"20", "R001"}, {"NV", "NV01"},
	} {
		db.addSeries(s.tipo, s.serie, 0)
	}
	db.clients["client-ruc"] = &entity.Client{ID: "client-ruc", CompanyID: testCompanyID, TipoDocumento: "6", NumeroDocumento: "20601030013", RazonSocial: "CLIENTE S.A."}
	db.clients["client-dni"] = &entity.Client{ID: "client-dni", CompanyID: testCompanyID, TipoDocumento: "1", NumeroDocumento: "46027897", RazonSocial: "JUAN PEREZ"}
	db.detract["037"] = &entity.DetractionCode{Code: "037", Description: "Demás servicios gravados con el IGV", Rate: decimal.NewFromInt(12), Active: true}
	db.payments["001"] = &entity.PaymentMethod{Code: "001", Description: "Depósito en cuenta", Bankarized: true}
	db.payments["008"] = &entity.PaymentMethod{Code: "008", Description: "Efectivo", Bankarized: false}
	return db
}

func (db *memDB) addSeries(tipo, serie string, initial int64) {
	db.series[testBranchID+"|"+tipo+"|"+serie] = &entity.BranchSeries{
		ID: tipo + serie, BranchID: testBranchID, TipoDocumento: tipo, Serie: serie,
		CorrelativoInicial: initial, Active: true,
	}
}

// put inserta un comprobante directamente, fuera de transacción.
func (db *memDB) put(d *entity.Document) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.docs[d.ID] = copyDoc(d)
}

// get lee el estado confirmado.
func (db *memDB) get(id string) *entity.Document {
	db.mu.Lock()
	defer db.mu.Unlock()
	return copyDoc(db.st.docs[id])
}

func (db *memDB) count() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.st.docs)
}

func (db *memDB) RunBilling(ctx context.Context, fn func(repository.CorrelativeRepository, repository.DocumentRepository) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.txs++
	tx := db.st.clone()
	if err := fn(&memCorrelatives{st: tx}, &memDocuments{db: db, tx: tx}); err != nil {
		return err
	}
	if db.fails > 0 {
		db.fails--
		return fmt.Errorf("commit: %w", domain.ErrTransient)
	}
	db.st = tx
	return nil
}

// ── Correlativos ─────────────────────────────────────────────────────────────

type memCorrelatives struct{ st *memState }

func (r *memCorrelatives) Next(_ context.Context, branchID, tipo, serie string, initial int64) (int64, error) {
	k := branchID + "|" + tipo + "|" + serie
	if _, ok := r.st.counters[k]; !ok {
		r.st.counters[k] = initial
	}
	r.st.counters[k]++
	return r.st.counters[k], nil
}

func (r *memCorrelatives) Current(_ context.Context, branchID, tipo, serie string) (int64, error) {
	return r.st.counters[branchID+"|"+tipo+"|"+serie], nil
}

// ── Comprobantes ─────────────────────────────────────────────────────────────

type memDocuments struct {
	db *memDB
	tx *memState // nil fuera de transacción
}

func (r *memDocuments) with(fn func(st *memState) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return fn(r.db.st)
}

func (r *memDocuments) Create(_ context.Context, doc *entity.Document) error {
	return r.with(func(st *memState) error {
		if _, ok := st.docs[doc.ID]; ok {
			return domain.ErrDuplicate
		}
		for _, d := range st.docs {
			if d.CompanyID == doc.CompanyID && d.TipoDocumento == doc.TipoDocumento && d.Serie == doc.Serie && d.Correlativo == doc.Correlativo {
				return domain.ErrDuplicate
			}
		}
		st.docs[doc.ID] = copyDoc(doc)
		return nil
	})
}

func (r *memDocuments) GetByID(_ context.Context, id string) (*entity.Document, error) {
	var out *entity.Document
	_ = r.with(func(st *memState) error {
		out = copyDoc(st.docs[id])
		return nil
	})
	return out, nil
}

func (r *memDocuments) GetByNumber(_ context.Context, companyID, tipo, serie string, correlativo int64) (*entity.Document, error) {
	var out *entity.Document
	_ = r.with(func(st *memState) error {
		for _, d := range st.docs {
			if d.CompanyID == companyID && d.TipoDocumento == tipo && d.Serie == serie && d.Correlativo == correlativo {
				out = copyDoc(d)
			}
		}
		return nil
	})
	return out, nil
}

func (r *memDocuments) ListByIDs(_ context.Context, companyID string, ids []string) ([]*entity.Document, error) {
	var out []*entity.Document
	_ = r.with(func(st *memState) error {
		for _, id := range ids {
			if d, ok := st.docs[id]; ok && d.CompanyID == companyID {
				out = append(out, copyDoc(d))
			}
		}
		return nil
	})
	return out, nil
}

func (r *memDocuments) UpdateSunatResult(_ context.Context, doc *entity.Document, expected string) error {
	return r.with(func(st *memState) error {
		cur, ok := st.docs[doc.ID]
		if !ok {
			return domain.ErrNotFound
		}
		if cur.SunatStatus != expected {
			return domain.ErrConflict
		}
		cur.SunatStatus = doc.SunatStatus
		cur.EstadoProceso = doc.EstadoProceso
		cur.Ticket = doc.Ticket
		cur.SunatCode = doc.SunatCode
		cur.SunatMessage = doc.SunatMessage
		cur.SunatNotes = doc.SunatNotes
		cur.SunatResponse = doc.SunatResponse
		cur.SendAttempts = doc.SendAttempts
		cur.LastError = doc.LastError
		cur.HashCPE = doc.HashCPE
		cur.XMLPath = doc.XMLPath
		cur.CDRPath = doc.CDRPath
		cur.UpdatedAt = doc.UpdatedAt
		return nil
	})
}

func (r *memDocuments) UpdateAnnulment(_ context.Context, doc *entity.Document) error {
	return r.with(func(st *memState) error {
		cur, ok := st.docs[doc.ID]
		if !ok {
			return domain.ErrNotFound
		}
		cur.EstadoAnulacion = doc.EstadoAnulacion
		cur.AnuladaLocalmente = doc.AnuladaLocalmente
		cur.MotivoAnulacion = doc.MotivoAnulacion
		cur.FechaAnulacion = doc.FechaAnulacion
		cur.AnulacionDocumentID = doc.AnulacionDocumentID
		return nil
	})
}

func (r *memDocuments) MarkAnnulmentPending(_ context.Context, ids []string, annulID, motivo string, at time.Time) error {
	return r.with(func(st *memState) error {
		for _, id := range ids {
			d, ok := st.docs[id]
			if !ok || d.SunatStatus != entity.SunatAceptado || d.EstadoAnulacion != entity.AnulacionNinguna {
				return domain.ErrConflict
			}
			d.EstadoAnulacion = entity.AnulacionPendiente
			d.AnulacionDocumentID = annulID
			d.MotivoAnulacion = motivo
			d.UpdatedAt = at
		}
		return nil
	})
}

func (r *memDocuments) BulkUpdateSunatStatus(_ context.Context, ids []string, status, code, message string) (int64, error) {
	var n int64
	err := r.with(func(st *memState) error {
		for _, id := range ids {
			if d, ok := st.docs[id]; ok {
				d.SunatStatus = status
				d.SunatCode = code
				d.SunatMessage = message
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *memDocuments) BulkUpdateAnnulment(_ context.Context, ids []string, estado string) (int64, error) {
	var n int64
	err := r.with(func(st *memState) error {
		for _, id := range ids {
			if d, ok := st.docs[id]; ok {
				d.EstadoAnulacion = estado
				if estado == entity.AnulacionNinguna {
					d.AnulacionDocumentID = ""
				}
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *memDocuments) ListPendingForSummary(_ context.Context, branchID string, fecha time.Time) ([]*entity.Document, error) {
	var out []*entity.Document
	_ = r.with(func(st *memState) error {
		for _, d := range st.docs {
			if d.BranchID != branchID || d.Family() != entity.FamilyBoleta || d.ResumenID != "" {
				continue
			}
			switch d.Kind {
			case entity.KindBoleta, entity.KindCreditNote, entity.KindDebitNote:
			default:
				continue
			}
			if d.SunatStatus != entity.SunatPendiente && d.SunatStatus != entity.SunatRechazado {
				continue
			}
			if d.AnuladaLocalmente || !sameDay(d.FechaEmision, fecha) {
				continue
			}
			out = append(out, copyDoc(d))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Numero < out[j].Numero })
	return out, nil
}

func (r *memDocuments) LinkToSummary(_ context.Context, ids []string, summaryID string) error {
	return r.with(func(st *memState) error {
		for _, id := range ids {
			d, ok := st.docs[id]
			if !ok {
				continue
			}
			if summaryID != "" {
				if d.ResumenID != "" || (d.SunatStatus != entity.SunatPendiente && d.SunatStatus != entity.SunatRechazado) {
					return domain.ErrConflict
				}
			}
			d.ResumenID = summaryID
		}
		return nil
	})
}

func (r *memDocuments) ClaimQueued(_ context.Context, limit int, _ time.Duration) ([]*entity.Document, error) {
	return r.claim(entity.SunatEnCola, limit), nil
}

func (r *memDocuments) ClaimProcessing(_ context.Context, limit int, _ time.Duration) ([]*entity.Document, error) {
	return r.claim(entity.SunatProcesando, limit), nil
}

func (r *memDocuments) claim(status string, limit int) []*entity.Document {
	var out []*entity.Document
	_ = r.with(func(st *memState) error {
		for _, d := range st.docs {
			if len(out) >= limit {
				break
			}
			if d.SunatStatus == status {
				out = append(out, copyDoc(d))
			}
		}
		return nil
	})
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ── Lecturas ─────────────────────────────────────────────────────────────────

type memCompanies struct{ db *memDB }

func (r memCompanies) GetByID(_ context.Context, id string) (*entity.Company, error) {
	return r.db.companies[id], nil
}

type memBranches struct{ db *memDB }

func (r memBranches) GetByID(_ context.Context, id string) (*entity.Branch, error) {
	return r.db.branches[id], nil
}

func (r memBranches) GetSeries(_ context.Context, branchID, tipo, serie string) (*entity.BranchSeries, error) {
	return r.db.series[branchID+"|"+tipo+"|"+serie], nil
}

type memClients struct{ db *memDB }

func (r memClients) GetByID(_ context.Context, companyID, id string) (*entity.Client, error) {
	c := r.db.clients[id]
	if c == nil || c.CompanyID != companyID {
		return nil, nil
	}
	return c, nil
}

type memCatalog struct{ db *memDB }

func (r memCatalog) GetDetractionCode(_ context.Context, code string) (*entity.DetractionCode, error) {
	return r.db.detract[code], nil
}

func (r memCatalog) GetPaymentMethod(_ context.Context, code string) (*entity.PaymentMethod, error) {
	return r.db.payments[code], nil
}

func (r memCatalog) ListVoidedReasons(_ context.Context) ([]*entity.VoidedReason, error) {
	return nil, nil
}

// ── Publicador que registra eventos ──────────────────────────────────────────

type recordedEvent struct {
	CompanyID string
	Event     string
	Payload   interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) Trigger(_ context.Context, companyID, event string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{CompanyID: companyID, Event: event, Payload: payload})
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Event
	}
	return out
}

// ── Almacenamiento en memoria ────────────────────────────────────────────────

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{files: map[string][]byte{}} }

func (s *memStorage) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = append([]byte(nil), data...)
	return key, nil
}

func (s *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}
