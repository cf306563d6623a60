// input.go -- request body shapes and validation for the deal endpoints.
//
// The authenticated create endpoint accepts a tagged union discriminated
// by the presence of subject/body: an email-derived input runs through the
// extraction engine, a manual input carries the structured fields itself.
package deals

import (
	"time"
	"unicode/utf8"

	"github.com/sponsoai/dealdesk/internal/auth"
)

// Bounds shared with the add-on channel. Part of the ingestion contract.
const (
	maxSubjectLen     = 500
	maxBodyLen        = 10000
	maxSenderLen      = 500
	maxBrandNameLen   = 255
	maxDescriptionLen = 1000
)

// addonInput is the add-on submission body. All four fields required.
type addonInput struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Sender    string `json:"sender"`
	UserEmail string `json:"userEmail"`
}

// validate returns the first failure message, or "" when the input is clean.
func (in *addonInput) validate() string {
	if in.Subject == "" {
		return "Subject cannot be empty"
	}
	if utf8.RuneCountInString(in.Subject) > maxSubjectLen {
		return "Subject cannot exceed 500 characters"
	}
	if in.Body == "" {
		return "Body cannot be empty"
	}
	if utf8.RuneCountInString(in.Body) > maxBodyLen {
		return "Body cannot exceed 10000 characters"
	}
	if in.Sender == "" {
		return "Sender cannot be empty"
	}
	if utf8.RuneCountInString(in.Sender) > maxSenderLen {
		return "Sender cannot exceed 500 characters"
	}
	if auth.ValidateEmail(in.UserEmail) != "" {
		return "User email must be valid"
	}
	return ""
}

// createInput is the authenticated create body: either manual deal fields
// or an email to extract from. isEmailDerived picks the branch.
type createInput struct {
	// email-derived branch
	Subject string `json:"subject"`
	Body    string `json:"body"`

	// manual branch
	BrandName   string   `json:"brand_name"`
	Amount      *float64 `json:"amount"`
	Deadline    *string  `json:"deadline"`
	Description string   `json:"description"`
}

// isEmailDerived reports whether the input carries email content.
func (in *createInput) isEmailDerived() bool {
	return in.Subject != "" || in.Body != ""
}

// validateEmailDerived checks the extraction branch.
func (in *createInput) validateEmailDerived() string {
	if in.Subject == "" {
		return "Subject cannot be empty"
	}
	if utf8.RuneCountInString(in.Subject) > maxSubjectLen {
		return "Subject cannot exceed 500 characters"
	}
	if in.Body == "" {
		return "Body cannot be empty"
	}
	if utf8.RuneCountInString(in.Body) > maxBodyLen {
		return "Body cannot exceed 10000 characters"
	}
	return ""
}

// validateManual checks the structured branch.
func (in *createInput) validateManual() string {
	if in.BrandName == "" {
		return "Brand name cannot be empty"
	}
	if utf8.RuneCountInString(in.BrandName) > maxBrandNameLen {
		return "Brand name cannot exceed 255 characters"
	}
	if in.Amount != nil && *in.Amount < 0 {
		return "Amount cannot be negative"
	}
	if in.Deadline != nil && *in.Deadline != "" {
		if _, err := time.Parse("2006-01-02", *in.Deadline); err != nil {
			return "Deadline must be a valid date string"
		}
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLen {
		return "Description cannot exceed 1000 characters"
	}
	return ""
}

// updateInput is the PATCH body. Nil fields are left untouched.
type updateInput struct {
	BrandName   *string  `json:"brand_name"`
	Amount      *float64 `json:"amount"`
	Deadline    *string  `json:"deadline"`
	Description *string  `json:"description"`
	Status      *string  `json:"status"`
}

// validate returns the first failure message, or "" when the patch is clean.
func (in *updateInput) validate() string {
	if in.BrandName != nil {
		if *in.BrandName == "" {
			return "Brand name cannot be empty"
		}
		if utf8.RuneCountInString(*in.BrandName) > maxBrandNameLen {
			return "Brand name cannot exceed 255 characters"
		}
	}
	if in.Amount != nil && *in.Amount < 0 {
		return "Amount cannot be negative"
	}
	if in.Deadline != nil && *in.Deadline != "" {
		if _, err := time.Parse("2006-01-02", *in.Deadline); err != nil {
			return "Deadline must be a valid date string"
		}
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > maxDescriptionLen {
		return "Description cannot exceed 1000 characters"
	}
	if in.Status != nil && *in.Status == "" {
		return "Status cannot be empty"
	}
	return ""
}
