package claim

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/claims/internal/platform/fhir"
)

const lifecycleExtensionURL = "http://ehr.local/fhir/StructureDefinition/claim-lifecycle-status"

func fhirClaimStatus(s Status) string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusCancelled, StatusExpired:
		return "cancelled"
	default:
		return "active"
	}
}

// ToFHIR renders the claim as a FHIR Claim. The lifecycle status, which FHIR
// collapses into four codes, is kept in an extension.
func (c *InsuranceClaim) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Claim",
		"id":           c.ID,
		"status":       fhirClaimStatus(c.Status),
		"use":          "claim",
		"created":      c.CreatedAt.Format(time.RFC3339),
		"patient":      fhir.Reference{Reference: fhir.FormatReference("Patient", c.PatientID.String())},
		"provider":     fhir.Reference{Reference: fhir.FormatReference("Organization", c.ProviderID)},
		"insurance": []map[string]interface{}{{
			"sequence": 1,
			"focal":    true,
			"coverage": fhir.Reference{
				Type:    "Coverage",
				Display: c.PolicyNumber,
			},
		}},
		"total": fhir.NewMoney(c.ClaimedAmount),
		"identifier": []fhir.Identifier{{
			System: "http://ehr.local/claim-id",
			Value:  c.ID,
		}},
		"extension": []map[string]interface{}{{
			"url":       lifecycleExtensionURL,
			"valueCode": string(c.Status),
		}},
		"meta": fhir.Meta{
			LastUpdated: c.UpdatedAt,
			Profile:     []string{"http://hl7.org/fhir/StructureDefinition/Claim"},
		},
	}
	if c.BillID != uuid.Nil {
		result["related"] = []map[string]interface{}{{
			"reference": fhir.Identifier{System: "http://ehr.local/bill-id", Value: c.BillID.String()},
		}}
	}
	if len(c.Documents) > 0 {
		var info []map[string]interface{}
		for i, at := range c.DocumentTimes() {
			info = append(info, map[string]interface{}{
				"sequence":    i + 1,
				"category":    fhir.CodeableConcept{Coding: []fhir.Coding{{System: "http://terminology.hl7.org/CodeSystem/claiminformationcategory", Code: "attachment"}}},
				"timingDate":  at.Format("2006-01-02"),
				"valueString": c.Documents[at],
			})
		}
		result["supportingInfo"] = info
	}
	var notes []fhir.Annotation
	if c.ReviewerComments != "" {
		notes = append(notes, fhir.Annotation{Text: c.ReviewerComments})
	}
	if c.Comments != "" {
		notes = append(notes, fhir.Annotation{Text: c.Comments})
	}
	if len(notes) > 0 {
		result["note"] = notes
	}
	return result
}
