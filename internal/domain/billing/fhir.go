package billing

import (
	"time"

	"github.com/ehr/claims/internal/platform/fhir"
	"github.com/ehr/claims/pkg/money"
)

const billingStatusExtensionURL = "http://ehr.local/fhir/StructureDefinition/billing-status"

func fhirInvoiceStatus(s Status) string {
	switch s {
	case StatusDraft, StatusPending:
		return "draft"
	case StatusCancelled:
		return "cancelled"
	case StatusPaid, StatusRefunded:
		return "balanced"
	default:
		return "issued"
	}
}

// ToFHIR renders the bill as a FHIR Invoice with one line item per charge.
func (b *Bill) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Invoice",
		"id":           b.ID.String(),
		"status":       fhirInvoiceStatus(b.Status),
		"subject":      fhir.Reference{Reference: fhir.FormatReference("Patient", b.PatientID.String())},
		"date":         b.CreatedAt.Format(time.RFC3339),
		"totalGross":   fhir.NewMoney(b.GrandTotal),
		"totalNet":     fhir.NewMoney(b.Outstanding),
		"extension": []map[string]interface{}{{
			"url":       billingStatusExtensionURL,
			"valueCode": string(b.Status),
		}},
		"meta": fhir.Meta{
			LastUpdated: b.UpdatedAt,
			Profile:     []string{"http://hl7.org/fhir/StructureDefinition/Invoice"},
		},
	}
	if len(b.Lines) > 0 {
		lines := make([]map[string]interface{}, 0, len(b.Lines))
		for i, l := range b.Lines {
			code := l.Item.Code
			if code == "" {
				code = string(l.Item.Kind)
			}
			lines = append(lines, map[string]interface{}{
				"sequence": i + 1,
				"chargeItemCodeableConcept": fhir.CodeableConcept{
					Coding: []fhir.Coding{{System: "http://ehr.local/charge-code", Code: code, Display: l.Item.Description}},
					Text:   l.Category,
				},
				"priceComponent": []map[string]interface{}{{
					"type":   "base",
					"factor": l.Quantity,
					"amount": fhir.NewMoney(l.Total),
				}},
			})
		}
		result["lineItem"] = lines
	}
	if b.DueDate != nil {
		result["paymentTerms"] = "Due " + b.DueDate.Format("2006-01-02")
	}
	var notes []fhir.Annotation
	if b.DenialReason != "" {
		notes = append(notes, fhir.Annotation{Text: "Insurance: " + b.DenialReason})
	}
	if b.DisputeReason != "" {
		notes = append(notes, fhir.Annotation{Text: "Dispute: " + b.DisputeReason})
	}
	if b.Settled.IsPositive() {
		notes = append(notes, fhir.Annotation{Text: "Settled " + money.Format(b.Settled)})
	}
	if len(notes) > 0 {
		result["note"] = notes
	}
	return result
}
