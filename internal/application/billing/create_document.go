package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/sunat"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
	catalog "github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// BuilderConfig tasas y umbrales vigentes.
type BuilderConfig struct {
	Rates         sunat.TaxRates
	Bankarization sunat.BankarizationThresholds
}

// DefaultBuilderConfig IGV 18%, ICBPER 0.50, bancarización S/ 2,000 y US$ 500.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Rates:         sunat.DefaultTaxRates(),
		Bankarization: sunat.DefaultBankarizationThresholds(),
	}
}

// BuildResult comprobante persistido y advertencias no bloqueantes.
type BuildResult struct {
	Document *entity.Document
	Warnings []string
}

// DocumentBuilder valida, calcula y numera comprobantes con líneas (01, 03, 07, 08, 09, 20, NV).
type DocumentBuilder struct {
	allocator    *CorrelativeAllocator
	branchRepo   repository.BranchRepository
	clientRepo   repository.ClientRepository
	catalogRepo  repository.CatalogRepository
	documentRepo repository.DocumentRepository
	notifier     notifier
	cfg          BuilderConfig
	log          *logger.Logger
	now          func() time.Time
}

// NewDocumentBuilder construye el builder.
func NewDocumentBuilder(
	allocator *CorrelativeAllocator,
	branchRepo repository.BranchRepository,
	clientRepo repository.ClientRepository,
	catalogRepo repository.CatalogRepository,
	documentRepo repository.DocumentRepository,
	events EventPublisher,
	cfg BuilderConfig,
	log *logger.Logger,
) *DocumentBuilder {
	l := log.Named("document_builder")
	return &DocumentBuilder{
		allocator:    allocator,
		branchRepo:   branchRepo,
		clientRepo:   clientRepo,
		catalogRepo:  catalogRepo,
		documentRepo: documentRepo,
		notifier:     notifier{events: events, log: l},
		cfg:          cfg,
		log:          l,
		now:          time.Now,
	}
}

// SetClock reemplaza el reloj (tests).
func (b *DocumentBuilder) SetClock(now func() time.Time) { b.now = now }

// Create arma el comprobante, asigna su correlativo y lo guarda en PENDIENTE.
func (b *DocumentBuilder) Create(ctx context.Context, companyID string, kind entity.DocumentKind, in dto.CreateDocumentRequest) (*BuildResult, error) {
	if !kind.Valid() || kind == entity.KindDailySummary || kind == entity.KindVoided {
		return nil, fmt.Errorf("%w: clase de comprobante %q", domain.ErrInvalidInput, kind)
	}
	tipo := kind.TipoDocumento()

	// ── 1. Sucursal y serie registrada ─────────────────────────────────────────
	branch, err := b.branchRepo.GetByID(ctx, in.BranchID)
	if err != nil {
		return nil, fmt.Errorf("obtener sucursal: %w", err)
	}
	if branch == nil || branch.CompanyID != companyID || !branch.Active {
		return nil, domain.ErrUnknownBranch
	}
	family := ""
	if in.Note != nil && in.Note.TipoDocAfectado == catalog.DocBoleta {
		family = entity.FamilyBoleta
	}
	if err := sunat.ValidateSeries(tipo, in.Serie, family); err != nil {
		return nil, err
	}
	series, err := b.branchRepo.GetSeries(ctx, branch.ID, tipo, in.Serie)
	if err != nil {
		return nil, fmt.Errorf("obtener serie: %w", err)
	}
	if series == nil || !series.Active {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrUnknownSeries, tipo, in.Serie)
	}

	now := b.now()
	doc := &entity.Document{
		ID:               uuid.New().String(),
		CompanyID:        companyID,
		BranchID:         branch.ID,
		Kind:             kind,
		TipoDocumento:    tipo,
		Serie:            series.Serie,
		TipoOperacion:    in.TipoOperacion,
		Moneda:           in.Moneda,
		FechaEmision:     now,
		FechaVencimiento: in.FechaVencimiento,
		FormaPago:        in.FormaPago,
		Observacion:      in.Observacion,
		SunatStatus:      entity.SunatPendiente,
		EstadoAnulacion:  entity.AnulacionNinguna,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.FechaEmision != nil {
		doc.FechaEmision = *in.FechaEmision
	}
	if doc.Moneda == "" {
		doc.Moneda = catalog.CurrencyPEN
	}
	if !catalog.ValidCurrencies[doc.Moneda] {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCurrency, doc.Moneda)
	}
	if doc.TipoOperacion == "" {
		doc.TipoOperacion = catalog.OperacionVentaInterna
	}
	if kind.Async() {
		doc.EstadoProceso = entity.ProcesoGenerado
	}

	// ── 2. Adquiriente ────────────────────────────────────────────────────────
	if err := b.resolveClient(ctx, doc, in); err != nil {
		return nil, err
	}

	// ── 3. Líneas y datos propios de cada clase ───────────────────────────────
	var warnings []string
	switch {
	case kind.HasMonetaryLines():
		if err := b.evaluateLines(doc, in.Items); err != nil {
			return nil, err
		}
		w, err := b.evaluatePolicies(ctx, doc, in)
		if err != nil {
			return nil, err
		}
		warnings = w
	case kind == entity.KindDispatchGuide:
		if err := buildDispatch(doc, in); err != nil {
			return nil, err
		}
	case kind == entity.KindRetention:
		if err := buildRetention(doc, in); err != nil {
			return nil, err
		}
	}

	if kind == entity.KindCreditNote || kind == entity.KindDebitNote {
		if err := b.resolveNote(ctx, doc, in.Note); err != nil {
			return nil, err
		}
	}

	// ── 4. Correlativo + insert en una sola transacción ───────────────────────
	_, err = b.allocator.Allocate(ctx, branch.ID, tipo, series.Serie, series.CorrelativoInicial,
		func(n int64, documentRepo repository.DocumentRepository) error {
			doc.Correlativo = n
			doc.Numero = sunat.FormatNumber(tipo, series.Serie, n)
			return documentRepo.Create(ctx, doc)
		})
	if err != nil {
		return nil, fmt.Errorf("guardar comprobante: %w", err)
	}

	b.log.Info().
		Str("document_id", doc.ID).Str("company_id", companyID).Str("kind", string(kind)).
		Str("numero", doc.Numero).Str("total", doc.MtoImpVenta.StringFixed(2)).
		Msg("comprobante creado")
	b.notifier.publish(ctx, entity.EventDocumentCreated, doc)

	return &BuildResult{Document: doc, Warnings: warnings}, nil
}

func (b *DocumentBuilder) resolveClient(ctx context.Context, doc *entity.Document, in dto.CreateDocumentRequest) error {
	switch {
	case in.ClientID != "":
		client, err := b.clientRepo.GetByID(ctx, doc.CompanyID, in.ClientID)
		if err != nil {
			return fmt.Errorf("obtener cliente: %w", err)
		}
		if client == nil {
			return fmt.Errorf("%w: cliente %s no registrado", domain.ErrClientRequired, in.ClientID)
		}
		doc.ClientID = client.ID
		doc.Client = client.Ref()
	case in.Client != nil:
		if err := catalog.ValidateIdentity(in.Client.TipoDocumento, in.Client.NumeroDocumento); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		doc.Client = in.Client.ToRef()
	}

	switch doc.Kind {
	case entity.KindInvoice, entity.KindRetention:
		if doc.Client == nil {
			return domain.ErrClientRequired
		}
		if doc.Client.TipoDocumento != catalog.IdentityRUC {
			return fmt.Errorf("%w: el %s requiere un cliente con RUC", domain.ErrInvalidInput, doc.Kind)
		}
	case entity.KindCreditNote, entity.KindDebitNote, entity.KindDispatchGuide:
		if doc.Client == nil {
			return domain.ErrClientRequired
		}
	}
	return nil
}

func (b *DocumentBuilder) evaluateLines(doc *entity.Document, items []dto.LineRequest) error {
	if len(items) == 0 {
		return domain.ErrNoLines
	}
	lines := make([]entity.DocumentLine, len(items))
	for i, it := range items {
		lines[i] = it.ToEntity()
	}
	calculated, err := sunat.CalculateLines(lines, doc.TipoOperacion, b.cfg.Rates)
	if err != nil {
		return err
	}
	doc.Lines = calculated
	sunat.ApplyTotals(doc, sunat.CalculateTotals(calculated))
	return nil
}

func (b *DocumentBuilder) evaluatePolicies(ctx context.Context, doc *entity.Document, in dto.CreateDocumentRequest) ([]string, error) {
	var warnings []string

	// Bancarización: informativa, nunca bloquea.
	hasPayment := false
	if in.MedioPago != "" {
		pm, err := b.catalogRepo.GetPaymentMethod(ctx, in.MedioPago)
		if err != nil {
			return nil, fmt.Errorf("obtener medio de pago: %w", err)
		}
		if pm == nil {
			return nil, fmt.Errorf("%w: medio de pago %q", domain.ErrUnknownCatalogCode, in.MedioPago)
		}
		doc.MedioPago = pm.Code
		hasPayment = pm.Bankarized
	}
	bank := sunat.EvaluateBankarization(doc.MtoImpVenta, doc.Moneda, hasPayment, b.cfg.Bankarization)
	doc.BancarizacionAplica = bank.Applies
	doc.BancarizacionUmbral = bank.Threshold
	doc.BancarizacionAdvertencia = bank.Warning
	if bank.Warning != "" {
		warnings = append(warnings, bank.Warning)
	}

	if in.DetraccionCodigo != "" {
		if doc.Kind != entity.KindInvoice {
			return nil, fmt.Errorf("%w: la detracción solo aplica a facturas", domain.ErrInvalidInput)
		}
		code, err := b.catalogRepo.GetDetractionCode(ctx, in.DetraccionCodigo)
		if err != nil {
			return nil, fmt.Errorf("obtener código de detracción: %w", err)
		}
		if code == nil || !code.Active {
			return nil, fmt.Errorf("%w: detracción %q", domain.ErrUnknownCatalogCode, in.DetraccionCodigo)
		}
		sunat.EvaluateDetraction(doc, *code)
		doc.DetraccionCuenta = in.DetraccionCuenta
	}

	if in.PercepcionCodigo != "" {
		if doc.Kind != entity.KindInvoice && doc.Kind != entity.KindBoleta {
			return nil, fmt.Errorf("%w: la percepción solo aplica a facturas y boletas", domain.ErrInvalidInput)
		}
		if err := sunat.EvaluatePerception(doc, in.PercepcionCodigo); err != nil {
			return nil, err
		}
		if doc.TipoOperacion == catalog.OperacionVentaInterna {
			doc.TipoOperacion = catalog.OperacionPercepcion
		}
	}
	return warnings, nil
}

func (b *DocumentBuilder) resolveNote(ctx context.Context, doc *entity.Document, in *dto.NoteRequest) error {
	if in == nil {
		return fmt.Errorf("%w: la nota requiere el comprobante afectado", domain.ErrInvalidInput)
	}
	reasons := catalog.CreditNoteReasons
	if doc.Kind == entity.KindDebitNote {
		reasons = catalog.DebitNoteReasons
	}
	desc, ok := reasons[in.CodMotivo]
	if !ok {
		return fmt.Errorf("%w: motivo %q", domain.ErrUnknownCatalogCode, in.CodMotivo)
	}
	serie, n, err := sunat.ParseNumber(in.NumDocAfectado)
	if err != nil {
		return err
	}
	note := &entity.NoteData{
		TipoDocAfectado: in.TipoDocAfectado,
		NumDocAfectado:  sunat.FormatNumber(in.TipoDocAfectado, serie, n),
		CodMotivo:       in.CodMotivo,
		DesMotivo:       in.DesMotivo,
	}
	if note.DesMotivo == "" {
		note.DesMotivo = desc
	}

	affected, err := b.documentRepo.GetByNumber(ctx, doc.CompanyID, in.TipoDocAfectado, serie, n)
	if err != nil {
		return fmt.Errorf("obtener comprobante afectado: %w", err)
	}
	if affected != nil {
		if affected.SunatStatus == entity.SunatRechazado {
			return domain.NewRuleError("comprobante_afectado", affected.ID,
				fmt.Errorf("%w: el comprobante afectado fue rechazado por SUNAT", domain.ErrInvalidInput))
		}
		note.DocAfectadoID = affected.ID
	}
	doc.Note = note
	return nil
}

func buildDispatch(doc *entity.Document, in dto.CreateDocumentRequest) error {
	d := in.Dispatch
	if d == nil {
		return fmt.Errorf("%w: la guía requiere los datos de traslado", domain.ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return domain.ErrNoLines
	}
	if _, ok := catalog.MotivosTraslado[d.MotivoTraslado]; !ok {
		return fmt.Errorf("%w: motivo de traslado %q", domain.ErrUnknownCatalogCode, d.MotivoTraslado)
	}
	data := &entity.DispatchData{
		FechaTraslado:     d.FechaTraslado,
		MotivoTraslado:    d.MotivoTraslado,
		DesTraslado:       d.DesTraslado,
		ModalidadTraslado: d.ModalidadTraslado,
		PesoTotal:         d.PesoTotal,
		UnidadPeso:        d.UnidadPeso,
		NumeroBultos:      d.NumeroBultos,
		Partida:           entity.Address{Ubigeo: d.Partida.Ubigeo, Direccion: d.Partida.Direccion},
		Llegada:           entity.Address{Ubigeo: d.Llegada.Ubigeo, Direccion: d.Llegada.Direccion},
	}
	if data.DesTraslado == "" {
		data.DesTraslado = catalog.MotivosTraslado[d.MotivoTraslado]
	}
	if data.UnidadPeso == "" {
		data.UnidadPeso = "KGM"
	}
	switch d.ModalidadTraslado {
	case catalog.ModalidadTransportePublico:
		if d.Transportista == nil {
			return fmt.Errorf("%w: transporte público requiere transportista", domain.ErrInvalidInput)
		}
		data.Transportista = &entity.Carrier{
			TipoDocumento:   d.Transportista.TipoDocumento,
			NumeroDocumento: d.Transportista.NumeroDocumento,
			RazonSocial:     d.Transportista.RazonSocial,
			NroMTC:          d.Transportista.NroMTC,
		}
	case catalog.ModalidadTransportePrivado:
		if d.Conductor == nil {
			return fmt.Errorf("%w: transporte privado requiere conductor y placa", domain.ErrInvalidInput)
		}
		c := entity.Driver(*d.Conductor)
		data.Conductor = &c
	}

	lines := make([]entity.DocumentLine, len(in.Items))
	for i, it := range in.Items {
		if !it.Cantidad.IsPositive() {
			return fmt.Errorf("%w: línea %d sin cantidad", domain.ErrInvalidInput, i+1)
		}
		lines[i] = entity.DocumentLine{
			Codigo:      it.Codigo,
			CodigoSunat: it.CodigoSunat,
			Descripcion: it.Descripcion,
			Unidad:      it.Unidad,
			Cantidad:    it.Cantidad,
		}
		if lines[i].Unidad == "" {
			lines[i].Unidad = "NIU"
		}
	}
	doc.Lines = lines
	doc.Dispatch = data
	doc.Moneda = ""
	return nil
}

func buildRetention(doc *entity.Document, in dto.CreateDocumentRequest) error {
	r := in.Retention
	if r == nil || len(r.Items) == 0 {
		return fmt.Errorf("%w: la retención requiere comprobantes pagados", domain.ErrInvalidInput)
	}
	data := &entity.RetentionData{Regimen: r.Regimen, Items: make([]entity.RetentionItem, len(r.Items))}
	for i, it := range r.Items {
		if !it.ImportePagado.IsPositive() {
			return fmt.Errorf("%w: importe pagado del ítem %d", domain.ErrInvalidInput, i+1)
		}
		moneda := it.Moneda
		if moneda == "" {
			moneda = catalog.CurrencyPEN
		}
		data.Items[i] = entity.RetentionItem{
			TipoDocumento:   it.TipoDocumento,
			NumeroDocumento: it.NumeroDocumento,
			FechaEmision:    it.FechaEmision,
			Moneda:          moneda,
			ImporteTotal:    it.ImporteTotal,
			FechaPago:       it.FechaPago,
			ImportePagado:   it.ImportePagado,
		}
	}
	if err := sunat.CalculateRetention(data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnknownCatalogCode, err)
	}
	doc.Retention = data
	doc.Moneda = catalog.CurrencyPEN
	doc.MtoImpVenta = data.ImporteTotalRetenido
	doc.SubTotal = data.ImporteTotalPagado
	doc.TotalImpuestos = decimal.Zero
	return nil
}
