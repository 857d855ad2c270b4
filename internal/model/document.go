package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Status is the review state of a document. Callers set it directly; there are no
// system-driven transitions.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUploaded    Status = "uploaded"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusExpired     Status = "expired"
)

var statuses = map[Status]struct{}{
	StatusPending:     {},
	StatusUploaded:    {},
	StatusUnderReview: {},
	StatusApproved:    {},
	StatusRejected:    {},
	StatusExpired:     {},
}

// Valid reports whether s belongs to the closed set of statuses.
func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

// Document is a loan document: classification metadata plus a potentially large
// content payload that both tiers store apart from the metadata.
type Document struct {
	ID             string     `json:"id"`
	LoanID         string     `json:"loan_id"`
	Filename       string     `json:"filename"`
	DocType        string     `json:"doc_type"`
	Category       string     `json:"category"`
	Section        string     `json:"section"`
	Subsection     string     `json:"subsection"`
	Status         Status     `json:"status"`
	DateUploaded   time.Time  `json:"date_uploaded"`
	FileType       string     `json:"file_type,omitempty"`
	FileSize       int64      `json:"file_size,omitempty"`
	IsRequired     bool       `json:"is_required"`
	Version        int        `json:"version,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	AssignedTo     string     `json:"assigned_to,omitempty"`
	Content        string     `json:"content,omitempty"`
}

// DocumentPatch is a sparse update. A nil field is left untouched; a non-nil
// pointer to a zero value sets the field to that zero value. ExpirationDate has
// no zero value, so clearing it goes through ClearExpirationDate, which a JSON
// "expiration_date": null sets.
type DocumentPatch struct {
	ID             string     `json:"id,omitempty"`
	LoanID         *string    `json:"loan_id,omitempty"`
	Filename       *string    `json:"filename,omitempty"`
	DocType        *string    `json:"doc_type,omitempty"`
	Category       *string    `json:"category,omitempty"`
	Section        *string    `json:"section,omitempty"`
	Subsection     *string    `json:"subsection,omitempty"`
	Status         *Status    `json:"status,omitempty"`
	FileType       *string    `json:"file_type,omitempty"`
	FileSize       *int64     `json:"file_size,omitempty"`
	IsRequired     *bool      `json:"is_required,omitempty"`
	Version        *int       `json:"version,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	AssignedTo     *string    `json:"assigned_to,omitempty"`
	Content        *string    `json:"content,omitempty"`

	ClearExpirationDate bool `json:"-"`
}

// UnmarshalJSON decodes the patch and records an explicit null expiration_date.
func (p *DocumentPatch) UnmarshalJSON(data []byte) error {
	type plain DocumentPatch
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*p = DocumentPatch(v)
	if raw, ok := fields["expiration_date"]; ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		p.ClearExpirationDate = true
	}
	return nil
}

// HasMetadata reports whether any non-content field is present.
func (p DocumentPatch) HasMetadata() bool {
	return p.LoanID != nil || p.Filename != nil || p.DocType != nil || p.Category != nil ||
		p.Section != nil || p.Subsection != nil || p.Status != nil || p.FileType != nil ||
		p.FileSize != nil || p.IsRequired != nil || p.Version != nil || p.Notes != nil ||
		p.ExpirationDate != nil || p.ClearExpirationDate || p.AssignedTo != nil
}

// IsEmpty reports whether the patch carries nothing to apply.
func (p DocumentPatch) IsEmpty() bool {
	return !p.HasMetadata() && p.Content == nil
}

// Apply copies every present field onto d. ID and DateUploaded never change.
func (p DocumentPatch) Apply(d *Document) {
	if p.LoanID != nil {
		d.LoanID = *p.LoanID
	}
	if p.Filename != nil {
		d.Filename = *p.Filename
	}
	if p.DocType != nil {
		d.DocType = *p.DocType
	}
	if p.Category != nil {
		d.Category = *p.Category
	}
	if p.Section != nil {
		d.Section = *p.Section
	}
	if p.Subsection != nil {
		d.Subsection = *p.Subsection
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.FileType != nil {
		d.FileType = *p.FileType
	}
	if p.FileSize != nil {
		d.FileSize = *p.FileSize
	}
	if p.IsRequired != nil {
		d.IsRequired = *p.IsRequired
	}
	if p.Version != nil {
		d.Version = *p.Version
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	if p.ExpirationDate != nil {
		t := *p.ExpirationDate
		d.ExpirationDate = &t
	} else if p.ClearExpirationDate {
		d.ExpirationDate = nil
	}
	if p.AssignedTo != nil {
		d.AssignedTo = *p.AssignedTo
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
}
