package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusUnderReview.Valid())
	assert.False(t, Status("archived").Valid())
	assert.False(t, Status("").Valid())
}

func TestDocumentPatch_Presence(t *testing.T) {
	tests := []struct {
		name         string
		patch        DocumentPatch
		wantMetadata bool
		wantEmpty    bool
	}{
		{name: "empty", patch: DocumentPatch{ID: "d1"}, wantMetadata: false, wantEmpty: true},
		{name: "content only", patch: DocumentPatch{Content: ptr("")}, wantMetadata: false, wantEmpty: false},
		{name: "set to empty string", patch: DocumentPatch{Notes: ptr("")}, wantMetadata: true, wantEmpty: false},
		{name: "set to false", patch: DocumentPatch{IsRequired: ptr(false)}, wantMetadata: true, wantEmpty: false},
		{name: "clear expiration", patch: DocumentPatch{ClearExpirationDate: true}, wantMetadata: true, wantEmpty: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMetadata, tt.patch.HasMetadata())
			assert.Equal(t, tt.wantEmpty, tt.patch.IsEmpty())
		})
	}
}

func TestDocumentPatch_Apply(t *testing.T) {
	uploaded := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	exp := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := Document{
		ID:           "d1",
		LoanID:       "L1",
		Filename:     "note.html",
		DocType:      "promissory_note",
		Status:       StatusPending,
		DateUploaded: uploaded,
		IsRequired:   true,
		Notes:        "draft",
	}

	DocumentPatch{
		Status:         ptr(StatusApproved),
		Notes:          ptr(""),
		IsRequired:     ptr(false),
		ExpirationDate: &exp,
	}.Apply(&doc)

	want := Document{
		ID:             "d1",
		LoanID:         "L1",
		Filename:       "note.html",
		DocType:        "promissory_note",
		Status:         StatusApproved,
		DateUploaded:   uploaded,
		ExpirationDate: &exp,
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentPatch_UnmarshalExpiration(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantClear bool
		wantSet   bool
	}{
		{name: "absent", body: `{"notes":"x"}`},
		{name: "null", body: `{"expiration_date": null}`, wantClear: true},
		{name: "value", body: `{"expiration_date":"2030-01-01T00:00:00Z"}`, wantSet: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p DocumentPatch
			assert.NoError(t, json.Unmarshal([]byte(tt.body), &p))
			assert.Equal(t, tt.wantClear, p.ClearExpirationDate)
			assert.Equal(t, tt.wantSet, p.ExpirationDate != nil)
			assert.False(t, p.IsEmpty())
		})
	}
}

func TestDocumentPatch_ApplyClearsExpiration(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := Document{ID: "d1", ExpirationDate: &exp}

	DocumentPatch{ClearExpirationDate: true}.Apply(&doc)
	assert.Nil(t, doc.ExpirationDate)
}

func TestComputeStats(t *testing.T) {
	docs := []Document{
		{LoanID: "L1", DocType: "note", Category: "closing", Status: StatusApproved, IsRequired: true},
		{LoanID: "L1", DocType: "deed", Category: "closing", Status: StatusPending, IsRequired: true},
		{LoanID: "L1", DocType: "w2", Category: "income", Status: StatusApproved},
		{LoanID: "L2", DocType: "note", Category: "closing", Status: StatusApproved},
	}

	got := ComputeStats("L1", docs)

	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.ByStatus[StatusApproved])
	assert.Equal(t, 1, got.ByStatus[StatusPending])
	assert.Equal(t, 2, got.ByCategory["closing"])
	assert.Equal(t, 1, got.ByType["w2"])
	assert.Equal(t, 2, got.Required)
	assert.Equal(t, 1, got.RequiredApproved)

	empty := ComputeStats("missing", docs)
	assert.Zero(t, empty.Total)
	assert.NotNil(t, empty.ByStatus)
}
