package sunat

import (
	"fmt"
	"strconv"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// writeDespatch guía de remisión remitente (09).
func (s *XMLBuilderService) writeDespatch(w *ublWriter, ctx *billing.XMLContext) error {
	doc := ctx.Document
	d := doc.Dispatch
	if d == nil {
		return fmt.Errorf("sunat: la guía %s no tiene datos de traslado", doc.Numero)
	}
	if len(doc.Lines) == 0 {
		return fmt.Errorf("sunat: la guía %s no tiene bienes", doc.Numero)
	}

	w.root("DespatchAdvice", NsDespatch)
	w.extensions()
	w.elem("cbc:UBLVersionID", "2.1")
	w.elem("cbc:CustomizationID", "2.0")
	w.elem("cbc:ID", doc.Numero)
	w.elem("cbc:IssueDate", formatDate(doc.FechaEmision))
	w.elem("cbc:IssueTime", formatTime(doc.FechaEmision))
	w.elem("cbc:DespatchAdviceTypeCode", sunat.DocGuiaRemision)
	if doc.Observacion != "" {
		w.elem("cbc:Note", doc.Observacion)
	}
	w.signatureRef(ctx.Company)

	w.start("cac:DespatchSupplierParty")
	w.party(sunat.IdentityRUC, ctx.Company.RUC, "", ctx.Company.RazonSocial, nil, "")
	w.end("cac:DespatchSupplierParty")
	w.customer("cac:DeliveryCustomerParty", doc.Client)

	w.start("cac:Shipment")
	w.elem("cbc:ID", "SUNAT_Envio")
	w.elem("cbc:HandlingCode", d.MotivoTraslado)
	if d.DesTraslado != "" {
		w.elem("cbc:HandlingInstructions", d.DesTraslado)
	}
	unidad := d.UnidadPeso
	if unidad == "" {
		unidad = "KGM"
	}
	w.elem("cbc:GrossWeightMeasure", formatQuantity(d.PesoTotal), "unitCode", unidad)
	if d.NumeroBultos > 0 {
		w.elem("cbc:TotalTransportHandlingUnitQuantity", strconv.Itoa(d.NumeroBultos))
	}

	w.start("cac:ShipmentStage")
	w.elem("cbc:TransportModeCode", d.ModalidadTraslado)
	w.start("cac:TransitPeriod")
	w.elem("cbc:StartDate", formatDate(d.FechaTraslado))
	w.end("cac:TransitPeriod")
	if d.ModalidadTraslado == sunat.ModalidadTransportePublico && d.Transportista != nil {
		t := d.Transportista
		w.start("cac:CarrierParty")
		w.start("cac:PartyIdentification")
		w.elem("cbc:ID", t.NumeroDocumento, "schemeID", t.TipoDocumento)
		w.end("cac:PartyIdentification")
		w.start("cac:PartyLegalEntity")
		w.elem("cbc:RegistrationName", t.RazonSocial)
		if t.NroMTC != "" {
			w.elem("cbc:CompanyID", t.NroMTC)
		}
		w.end("cac:PartyLegalEntity")
		w.end("cac:CarrierParty")
	}
	if d.ModalidadTraslado == sunat.ModalidadTransportePrivado && d.Conductor != nil {
		c := d.Conductor
		w.start("cac:DriverPerson")
		w.elem("cbc:ID", c.NumeroDocumento, "schemeID", c.TipoDocumento)
		w.elem("cbc:FirstName", c.Nombres)
		w.elem("cbc:FamilyName", c.Apellidos)
		w.elem("cbc:JobTitle", "Principal")
		w.start("cac:IdentityDocumentReference")
		w.elem("cbc:ID", c.Licencia)
		w.end("cac:IdentityDocumentReference")
		w.end("cac:DriverPerson")
	}
	w.end("cac:ShipmentStage")

	w.start("cac:Delivery")
	w.start("cac:DeliveryAddress")
	w.elem("cbc:ID", d.Llegada.Ubigeo)
	w.start("cac:AddressLine")
	w.elem("cbc:Line", d.Llegada.Direccion)
	w.end("cac:AddressLine")
	w.end("cac:DeliveryAddress")
	w.start("cac:Despatch")
	w.start("cac:DespatchAddress")
	w.elem("cbc:ID", d.Partida.Ubigeo)
	w.start("cac:AddressLine")
	w.elem("cbc:Line", d.Partida.Direccion)
	w.end("cac:AddressLine")
	w.end("cac:DespatchAddress")
	w.end("cac:Despatch")
	w.end("cac:Delivery")

	if d.ModalidadTraslado == sunat.ModalidadTransportePrivado && d.Conductor != nil && d.Conductor.Placa != "" {
		w.start("cac:TransportHandlingUnit")
		w.start("cac:TransportEquipment")
		w.elem("cbc:ID", d.Conductor.Placa)
		w.end("cac:TransportEquipment")
		w.end("cac:TransportHandlingUnit")
	}
	w.end("cac:Shipment")

	for i, line := range doc.Lines {
		n := strconv.Itoa(i + 1)
		w.start("cac:DespatchLine")
		w.elem("cbc:ID", n)
		w.elem("cbc:DeliveredQuantity", formatQuantity(line.Cantidad), "unitCode", line.Unidad)
		w.start("cac:OrderLineReference")
		w.elem("cbc:LineID", n)
		w.end("cac:OrderLineReference")
		w.start("cac:Item")
		w.elem("cbc:Description", line.Descripcion)
		if line.Codigo != "" {
			w.start("cac:SellersItemIdentification")
			w.elem("cbc:ID", line.Codigo)
			w.end("cac:SellersItemIdentification")
		}
		w.end("cac:Item")
		w.end("cac:DespatchLine")
	}
	w.end("DespatchAdvice")
	return nil
}
