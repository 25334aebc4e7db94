package billing

import (
	"context"
	"fmt"
	"path"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// Formatos descargables.
const (
	FormatXML = "xml"
	FormatCDR = "cdr"
	FormatPDF = "pdf"
)

// Artifact archivo listo para entregar al cliente HTTP.
type Artifact struct {
	Data        []byte
	ContentType string
	FileName    string
}

// DownloadUseCase entrega el XML firmado, el CDR o la representación impresa de un comprobante.
type DownloadUseCase struct {
	documentRepo repository.DocumentRepository
	companyRepo  repository.CompanyRepository
	branchRepo   repository.BranchRepository
	storage      ArtifactStorage
	generator    PDFGenerator
	log          *logger.Logger
}

// NewDownloadUseCase construye el caso de uso inyectando todas sus dependencias.
func NewDownloadUseCase(
	documentRepo repository.DocumentRepository,
	companyRepo repository.CompanyRepository,
	branchRepo repository.BranchRepository,
	storage ArtifactStorage,
	generator PDFGenerator,
	log *logger.Logger,
) *DownloadUseCase {
	return &DownloadUseCase{
		documentRepo: documentRepo,
		companyRepo:  companyRepo,
		branchRepo:   branchRepo,
		storage:      storage,
		generator:    generator,
		log:          log.Named("download"),
	}
}

// Download devuelve el artefacto pedido.
//
// Retorna:
//   - domain.ErrNotFound     si el comprobante no existe, no es de la empresa o aún no tiene el archivo.
//   - domain.ErrInvalidInput si el formato no es xml, cdr o pdf.
func (uc *DownloadUseCase) Download(ctx context.Context, doc *entity.Document, format string) (*Artifact, error) {
	switch format {
	case FormatXML:
		// ── XML firmado ────────────────────────────────────────────────────────
		if doc.XMLPath == "" {
			return nil, fmt.Errorf("%w: el comprobante aún no tiene XML generado", domain.ErrNotFound)
		}
		data, err := uc.storage.Get(ctx, doc.XMLPath)
		if err != nil {
			return nil, fmt.Errorf("descarga: obtener XML: %w", err)
		}
		return &Artifact{Data: data, ContentType: "application/xml", FileName: path.Base(doc.XMLPath)}, nil

	case FormatCDR:
		// ── Constancia de recepción ────────────────────────────────────────────
		if doc.CDRPath == "" {
			return nil, fmt.Errorf("%w: SUNAT aún no emitió la constancia", domain.ErrNotFound)
		}
		data, err := uc.storage.Get(ctx, doc.CDRPath)
		if err != nil {
			return nil, fmt.Errorf("descarga: obtener CDR: %w", err)
		}
		return &Artifact{Data: data, ContentType: "application/zip", FileName: path.Base(doc.CDRPath)}, nil

	case FormatPDF:
		return uc.pdf(ctx, doc)
	}
	return nil, fmt.Errorf("%w: formato %q no soportado", domain.ErrInvalidInput, format)
}

func (uc *DownloadUseCase) pdf(ctx context.Context, doc *entity.Document) (*Artifact, error) {
	if uc.generator == nil {
		return nil, fmt.Errorf("%w: representación impresa no disponible", domain.ErrNotFound)
	}
	company, err := uc.companyRepo.GetByID(ctx, doc.CompanyID)
	if err != nil || company == nil {
		return nil, fmt.Errorf("pdf: obtener empresa: %v", err)
	}
	branch, err := uc.branchRepo.GetByID(ctx, doc.BranchID)
	if err != nil || branch == nil {
		return nil, fmt.Errorf("pdf: obtener sucursal: %v", err)
	}
	data, err := uc.generator.GenerateDocumentPDF(doc, company, branch)
	if err != nil {
		return nil, fmt.Errorf("pdf: generación fallida: %w", err)
	}
	name := fmt.Sprintf("%s-%s-%s.pdf", company.RUC, doc.TipoDocumento, doc.Numero)
	if doc.PDFPath == "" {
		// Se conserva una copia; un fallo aquí no impide la descarga.
		if key, perr := uc.storage.Put(ctx, artifactKey(doc, name), data, "application/pdf"); perr != nil {
			uc.log.Warn().Err(perr).Str("document_id", doc.ID).Msg("no se pudo guardar el PDF")
		} else {
			doc.PDFPath = key
		}
	}
	return &Artifact{Data: data, ContentType: "application/pdf", FileName: name}, nil
}
