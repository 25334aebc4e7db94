package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo comprobantes sobre PostgreSQL. Montos en NUMERIC; líneas, notas y demás
// satélites en JSONB.
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

const documentColumns = `
	id, company_id, branch_id, COALESCE(client_id, ''), kind, tipo_documento, serie, correlativo, numero,
	tipo_operacion, moneda, fecha_emision, fecha_vencimiento, forma_pago, observacion, client,
	mto_oper_gravadas, mto_oper_exoneradas, mto_oper_inafectas, mto_oper_exportacion, mto_oper_gratuitas,
	mto_igv, mto_igv_gratuitas, mto_isc, mto_icbper, total_impuestos, valor_venta, sub_total, mto_imp_venta,
	detraccion_codigo, detraccion_porcentaje, detraccion_cuenta, mto_detraccion, mto_neto_pagar,
	percepcion_codigo, percepcion_porcentaje, mto_percepcion, mto_total_con_percepcion,
	bancarizacion_aplica, bancarizacion_umbral, medio_pago, bancarizacion_advertencia,
	sunat_status, estado_proceso, ticket, sunat_code, sunat_message, sunat_notes, sunat_response,
	send_attempts, last_error, hash_cpe, xml_path, cdr_path, pdf_path,
	estado_anulacion, anulada_localmente, motivo_anulacion, fecha_anulacion,
	COALESCE(anulacion_document_id, ''), COALESCE(resumen_id, ''),
	lines, note, dispatch, summary, voided, retention,
	created_at, updated_at`

// Create persiste el comprobante. Un número repetido devuelve domain.ErrDuplicate.
func (r *DocumentRepo) Create(ctx context.Context, d *entity.Document) error {
	client, err := toJSON(d.Client)
	if err != nil {
		return fmt.Errorf("serializar cliente: %w", err)
	}
	notes, err := toJSON(d.SunatNotes)
	if err != nil {
		return fmt.Errorf("serializar observaciones: %w", err)
	}
	var lines []byte
	if len(d.Lines) > 0 {
		if lines, err = toJSON(d.Lines); err != nil {
			return fmt.Errorf("serializar líneas: %w", err)
		}
	}
	sats := make([][]byte, 0, 5)
	for _, v := range []any{d.Note, d.Dispatch, d.Summary, d.Voided, d.Retention} {
		b, err := satellite(v)
		if err != nil {
			return err
		}
		sats = append(sats, b)
	}

	query := `
		INSERT INTO documents (
			id, company_id, branch_id, client_id, kind, tipo_documento, serie, correlativo, numero,
			tipo_operacion, moneda, fecha_emision, fecha_vencimiento, forma_pago, observacion, client,
			mto_oper_gravadas, mto_oper_exoneradas, mto_oper_inafectas, mto_oper_exportacion, mto_oper_gratuitas,
			mto_igv, mto_igv_gratuitas, mto_isc, mto_icbper, total_impuestos, valor_venta, sub_total, mto_imp_venta,
			detraccion_codigo, detraccion_porcentaje, detraccion_cuenta, mto_detraccion, mto_neto_pagar,
			percepcion_codigo, percepcion_porcentaje, mto_percepcion, mto_total_con_percepcion,
			bancarizacion_aplica, bancarizacion_umbral, medio_pago, bancarizacion_advertencia,
			sunat_status, estado_proceso, ticket, sunat_code, sunat_message, sunat_notes, sunat_response,
			send_attempts, last_error, hash_cpe, xml_path, cdr_path, pdf_path,
			estado_anulacion, anulada_localmente, motivo_anulacion, fecha_anulacion,
			anulacion_document_id, resumen_id,
			lines, note, dispatch, summary, voided, retention,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21,
			$22, $23, $24, $25, $26, $27, $28, $29,
			$30, $31, $32, $33, $34,
			$35, $36, $37, $38,
			$39, $40, $41, $42,
			$43, $44, $45, $46, $47, $48, $49,
			$50, $51, $52, $53, $54, $55,
			$56, $57, $58, $59,
			$60, $61,
			$62, $63, $64, $65, $66, $67,
			$68, $69
		)`
	_, err = r.q.Exec(ctx, query,
		d.ID, d.CompanyID, d.BranchID, nullIfEmpty(d.ClientID), string(d.Kind), d.TipoDocumento, d.Serie, d.Correlativo, d.Numero,
		d.TipoOperacion, d.Moneda, d.FechaEmision, d.FechaVencimiento, d.FormaPago, d.Observacion, client,
		d.MtoOperGravadas, d.MtoOperExoneradas, d.MtoOperInafectas, d.MtoOperExportacion, d.MtoOperGratuitas,
		d.MtoIGV, d.MtoIGVGratuitas, d.MtoISC, d.MtoICBPER, d.TotalImpuestos, d.ValorVenta, d.SubTotal, d.MtoImpVenta,
		d.DetraccionCodigo, d.DetraccionPorcentaje, d.DetraccionCuenta, d.MtoDetraccion, d.MtoNetoPagar,
		d.PercepcionCodigo, d.PercepcionPorcentaje, d.MtoPercepcion, d.MtoTotalConPercepcion,
		d.BancarizacionAplica, d.BancarizacionUmbral, d.MedioPago, d.BancarizacionAdvertencia,
		d.SunatStatus, d.EstadoProceso, d.Ticket, d.SunatCode, d.SunatMessage, notes, []byte(d.SunatResponse),
		d.SendAttempts, d.LastError, d.HashCPE, d.XMLPath, d.CDRPath, d.PDFPath,
		d.EstadoAnulacion, d.AnuladaLocalmente, d.MotivoAnulacion, d.FechaAnulacion,
		nullIfEmpty(d.AnulacionDocumentID), nullIfEmpty(d.ResumenID),
		lines, sats[0], sats[1], sats[2], sats[3], sats[4],
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: comprobante %s ya existe", domain.ErrDuplicate, d.Numero)
		}
		return wrapTransient("insert document", err)
	}
	return nil
}

func satellite(v any) ([]byte, error) {
	switch t := v.(type) {
	case *entity.NoteData:
		if t == nil {
			return nil, nil
		}
	case *entity.DispatchData:
		if t == nil {
			return nil, nil
		}
	case *entity.SummaryData:
		if t == nil {
			return nil, nil
		}
	case *entity.VoidedData:
		if t == nil {
			return nil, nil
		}
	case *entity.RetentionData:
		if t == nil {
			return nil, nil
		}
	}
	b, err := toJSON(v)
	if err != nil {
		return nil, fmt.Errorf("serializar datos del comprobante: %w", err)
	}
	return b, nil
}

// GetByID devuelve nil, nil si no existe.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	d, err := scanDocument(r.q.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// GetByNumber busca por número completo dentro de la empresa.
func (r *DocumentRepo) GetByNumber(ctx context.Context, companyID, tipoDocumento, serie string, correlativo int64) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE company_id = $1 AND tipo_documento = $2 AND serie = $3 AND correlativo = $4`
	d, err := scanDocument(r.q.QueryRow(ctx, query, companyID, tipoDocumento, serie, correlativo))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document by number: %w", err)
	}
	return d, nil
}

// ListByIDs comprobantes de la empresa entre los ids dados; los ajenos se omiten.
func (r *DocumentRepo) ListByIDs(ctx context.Context, companyID string, ids []string) ([]*entity.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE company_id = $1 AND id = ANY($2) ORDER BY numero`
	rows, err := r.q.Query(ctx, query, companyID, ids)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collectDocuments(rows)
}

// UpdateSunatResult actualiza solo si el estado SUNAT sigue siendo expected; libera el lease.
func (r *DocumentRepo) UpdateSunatResult(ctx context.Context, d *entity.Document, expected string) error {
	notes, err := toJSON(d.SunatNotes)
	if err != nil {
		return fmt.Errorf("serializar observaciones: %w", err)
	}
	query := `
		UPDATE documents
		SET sunat_status   = $3,
		    estado_proceso = $4,
		    ticket         = $5,
		    sunat_code     = $6,
		    sunat_message  = $7,
		    sunat_notes    = $8,
		    sunat_response = COALESCE($9, sunat_response),
		    send_attempts  = $10,
		    last_error     = $11,
		    hash_cpe       = $12,
		    xml_path       = $13,
		    cdr_path       = $14,
		    pdf_path       = $15,
		    locked_until   = NULL,
		    updated_at     = $16
		WHERE id = $1 AND sunat_status = $2`
	tag, err := r.q.Exec(ctx, query,
		d.ID, expected,
		d.SunatStatus, d.EstadoProceso, d.Ticket, d.SunatCode, d.SunatMessage, notes, []byte(d.SunatResponse),
		d.SendAttempts, d.LastError, d.HashCPE, d.XMLPath, d.CDRPath, d.PDFPath, d.UpdatedAt,
	)
	if err != nil {
		return wrapTransient("update sunat result", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missingOrConflict(ctx, d.ID)
}

func (r *DocumentRepo) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check document: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

// UpdateAnnulment persiste el eje de anulación.
func (r *DocumentRepo) UpdateAnnulment(ctx context.Context, d *entity.Document) error {
	query := `
		UPDATE documents
		SET estado_anulacion      = $2,
		    anulada_localmente    = $3,
		    motivo_anulacion      = $4,
		    fecha_anulacion       = $5,
		    anulacion_document_id = $6,
		    updated_at            = $7
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		d.ID, d.EstadoAnulacion, d.AnuladaLocalmente, d.MotivoAnulacion, d.FechaAnulacion,
		nullIfEmpty(d.AnulacionDocumentID), d.UpdatedAt,
	)
	if err != nil {
		return wrapTransient("update annulment", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkAnnulmentPending falla con ErrConflict si algún comprobante dejó de ser anulable.
func (r *DocumentRepo) MarkAnnulmentPending(ctx context.Context, ids []string, anulacionDocumentID, motivo string, at time.Time) error {
	query := `
		UPDATE documents
		SET estado_anulacion      = 'pendiente_anulacion',
		    anulacion_document_id = $2,
		    motivo_anulacion      = $3,
		    updated_at            = $4
		WHERE id = ANY($1) AND sunat_status = 'ACEPTADO' AND estado_anulacion = 'sin_anular'`
	tag, err := r.q.Exec(ctx, query, ids, anulacionDocumentID, motivo, at)
	if err != nil {
		return wrapTransient("mark annulment pending", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("%w: %d de %d comprobantes ya no son anulables", domain.ErrConflict, int64(len(ids))-tag.RowsAffected(), len(ids))
	}
	return nil
}

// BulkUpdateSunatStatus fija estado, código y mensaje SUNAT de varios comprobantes.
func (r *DocumentRepo) BulkUpdateSunatStatus(ctx context.Context, ids []string, status, code, message string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE documents
		SET sunat_status = $2, sunat_code = $3, sunat_message = $4, updated_at = now()
		WHERE id = ANY($1)`
	tag, err := r.q.Exec(ctx, query, ids, status, code, message)
	if err != nil {
		return 0, wrapTransient("bulk update sunat status", err)
	}
	return tag.RowsAffected(), nil
}

// BulkUpdateAnnulment con sin_anular también borra el vínculo al documento de anulación.
func (r *DocumentRepo) BulkUpdateAnnulment(ctx context.Context, ids []string, estado string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE documents
		SET estado_anulacion      = $2,
		    anulacion_document_id = CASE WHEN $2 = 'sin_anular' THEN NULL ELSE anulacion_document_id END,
		    fecha_anulacion       = CASE WHEN $2 = 'anulada' THEN now() ELSE fecha_anulacion END,
		    updated_at            = now()
		WHERE id = ANY($1)`
	tag, err := r.q.Exec(ctx, query, ids, estado)
	if err != nil {
		return 0, wrapTransient("bulk update annulment", err)
	}
	return tag.RowsAffected(), nil
}

// ListPendingForSummary boletas y notas de serie B de la fecha (hora de Lima) sin resumen,
// aún no aceptadas ni anuladas localmente.
func (r *DocumentRepo) ListPendingForSummary(ctx context.Context, branchID string, fecha time.Time) ([]*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE branch_id = $1
		  AND kind IN ('boleta', 'credit_note', 'debit_note')
		  AND serie LIKE 'B%'
		  AND resumen_id IS NULL
		  AND anulada_localmente = FALSE
		  AND sunat_status IN ('PENDIENTE', 'RECHAZADO')
		  AND (fecha_emision AT TIME ZONE 'America/Lima')::date = $2::date
		ORDER BY tipo_documento, serie, correlativo`
	rows, err := r.q.Query(ctx, query, branchID, fecha.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("list pending for summary: %w", err)
	}
	return collectDocuments(rows)
}

// LinkToSummary vincula las boletas al resumen; summaryID vacío las libera.
// Solo vincula boletas libres y aún no aceptadas: si otra transacción ya tomó alguna, ErrConflict.
func (r *DocumentRepo) LinkToSummary(ctx context.Context, ids []string, summaryID string) error {
	if len(ids) == 0 {
		return nil
	}
	if summaryID == "" {
		_, err := r.q.Exec(ctx, `UPDATE documents SET resumen_id = NULL, updated_at = now() WHERE id = ANY($1)`, ids)
		if err != nil {
			return wrapTransient("unlink from summary", err)
		}
		return nil
	}
	query := `
		UPDATE documents
		SET resumen_id = $2, updated_at = now()
		WHERE id = ANY($1)
		  AND resumen_id IS NULL
		  AND sunat_status IN ('PENDIENTE', 'RECHAZADO')`
	tag, err := r.q.Exec(ctx, query, ids, summaryID)
	if err != nil {
		return wrapTransient("link to summary", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("%w: %d de %d boletas ya fueron informadas en otro resumen", domain.ErrConflict, int64(len(ids))-tag.RowsAffected(), len(ids))
	}
	return nil
}

// ClaimQueued reserva comprobantes EN_COLA con SKIP LOCKED y un lease; varias instancias
// pueden drenar la cola sin tomar el mismo comprobante.
func (r *DocumentRepo) ClaimQueued(ctx context.Context, limit int, lease time.Duration) ([]*entity.Document, error) {
	return r.claim(ctx, entity.SunatEnCola, "", limit, lease)
}

// ClaimProcessing reserva comprobantes PROCESANDO con ticket.
func (r *DocumentRepo) ClaimProcessing(ctx context.Context, limit int, lease time.Duration) ([]*entity.Document, error) {
	return r.claim(ctx, entity.SunatProcesando, `AND ticket <> ''`, limit, lease)
}

func (r *DocumentRepo) claim(ctx context.Context, status, extra string, limit int, lease time.Duration) ([]*entity.Document, error) {
	query := `
		UPDATE documents
		SET locked_until = now() + make_interval(secs => $3)
		WHERE id IN (
			SELECT id FROM documents
			WHERE sunat_status = $1 ` + extra + `
			  AND (locked_until IS NULL OR locked_until < now())
			ORDER BY updated_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + documentColumns
	rows, err := r.q.Query(ctx, query, status, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", strings.ToLower(status), err)
	}
	return collectDocuments(rows)
}

func collectDocuments(rows pgx.Rows) ([]*entity.Document, error) {
	defer rows.Close()
	var list []*entity.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func scanDocument(row pgx.Row) (*entity.Document, error) {
	var d entity.Document
	var kind string
	var client, notes, response, lines []byte
	var note, dispatch, summary, voided, retention []byte
	err := row.Scan(
		&d.ID, &d.CompanyID, &d.BranchID, &d.ClientID, &kind, &d.TipoDocumento, &d.Serie, &d.Correlativo, &d.Numero,
		&d.TipoOperacion, &d.Moneda, &d.FechaEmision, &d.FechaVencimiento, &d.FormaPago, &d.Observacion, &client,
		&d.MtoOperGravadas, &d.MtoOperExoneradas, &d.MtoOperInafectas, &d.MtoOperExportacion, &d.MtoOperGratuitas,
		&d.MtoIGV, &d.MtoIGVGratuitas, &d.MtoISC, &d.MtoICBPER, &d.TotalImpuestos, &d.ValorVenta, &d.SubTotal, &d.MtoImpVenta,
		&d.DetraccionCodigo, &d.DetraccionPorcentaje, &d.DetraccionCuenta, &d.MtoDetraccion, &d.MtoNetoPagar,
		&d.PercepcionCodigo, &d.PercepcionPorcentaje, &d.MtoPercepcion, &d.MtoTotalConPercepcion,
		&d.BancarizacionAplica, &d.BancarizacionUmbral, &d.MedioPago, &d.BancarizacionAdvertencia,
		&d.SunatStatus, &d.EstadoProceso, &d.Ticket, &d.SunatCode, &d.SunatMessage, &notes, &response,
		&d.SendAttempts, &d.LastError, &d.HashCPE, &d.XMLPath, &d.CDRPath, &d.PDFPath,
		&d.EstadoAnulacion, &d.AnuladaLocalmente, &d.MotivoAnulacion, &d.FechaAnulacion,
		&d.AnulacionDocumentID, &d.ResumenID,
		&lines, &note, &dispatch, &summary, &voided, &retention,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Kind = entity.DocumentKind(kind)
	if len(response) > 0 {
		d.SunatResponse = response
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{client, &d.Client},
		{notes, &d.SunatNotes},
		{lines, &d.Lines},
		{note, &d.Note},
		{dispatch, &d.Dispatch},
		{summary, &d.Summary},
		{voided, &d.Voided},
		{retention, &d.Retention},
	} {
		if err := fromJSON(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decodificar JSONB de %s: %w", d.ID, err)
		}
	}
	return &d, nil
}
