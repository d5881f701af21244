// Package catalog holds the static operating tables for loan processing:
// required documents per loan type, the compliance check battery, SLA
// thresholds, and the exception issue vocabulary. Defaults are compiled in;
// deployments may override documents and SLAs from a YAML file.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DateSensitiveDocuments are subject to the 90-day freshness rule during
// verification.
var DateSensitiveDocuments = map[string]bool{
	"proof_of_income": true,
	"bank_statements": true,
}

// FreshnessWindowDays is the maximum age of a date-sensitive document.
const FreshnessWindowDays = 90

// Catalog is the resolved set of operating tables used by the pipeline.
type Catalog struct {
	RequiredDocuments map[string][]string `yaml:"required_documents"`
	ComplianceChecks  []string            `yaml:"compliance_checks"`
	SLAHours          map[string]int      `yaml:"sla_hours"`
}

// Default returns the compiled-in catalog.
func Default() *Catalog {
	return &Catalog{
		RequiredDocuments: map[string][]string{
			"mortgage": {
				"signed_application",
				"proof_of_income",
				"bank_statements",
				"tax_returns",
				"property_appraisal",
				"title_insurance",
				"homeowners_insurance",
				"flood_certification",
			},
			"personal": {
				"signed_application",
				"proof_of_income",
				"bank_statements",
				"proof_of_identity",
			},
			"auto": {
				"signed_application",
				"proof_of_income",
				"proof_of_insurance",
				"vehicle_title",
				"purchase_agreement",
			},
			"business": {
				"signed_application",
				"business_tax_returns",
				"financial_statements",
				"business_license",
				"personal_guarantee",
				"collateral_documentation",
			},
		},
		ComplianceChecks: []string{
			"anti_money_laundering",
			"know_your_customer",
			"truth_in_lending",
			"equal_credit_opportunity",
			"fair_lending",
			"flood_insurance",
			"privacy_disclosure",
		},
		SLAHours: map[string]int{
			"document_follow_up":      24,
			"verification_completion": 48,
			"compliance_review":       24,
			"funding_preparation":     24,
			"total_to_funding":        120,
		},
	}
}

// Load returns the default catalog merged with overrides from path. An empty
// path returns the defaults untouched. Override sections replace the default
// section wholesale; omitted sections keep their defaults.
func Load(path string) (*Catalog, error) {
	cat := Default()
	if path == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if len(override.RequiredDocuments) > 0 {
		cat.RequiredDocuments = override.RequiredDocuments
	}
	if len(override.ComplianceChecks) > 0 {
		cat.ComplianceChecks = override.ComplianceChecks
	}
	if len(override.SLAHours) > 0 {
		for stage, hours := range override.SLAHours {
			cat.SLAHours[stage] = hours
		}
	}
	return cat, nil
}

// DocumentsFor returns the required document list for a loan type. Unknown
// types fall back to the personal set.
func (c *Catalog) DocumentsFor(loanType string) []string {
	if docs, ok := c.RequiredDocuments[loanType]; ok {
		return docs
	}
	return c.RequiredDocuments["personal"]
}
