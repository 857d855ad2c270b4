package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loandocs/internal/config"
	"loandocs/internal/database"
	"loandocs/internal/model"
	"loandocs/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T) (*DocumentSQLite, *database.Manager) {
	t.Helper()
	m := database.NewManager(config.DatabaseConfig{
		Path:          filepath.Join(t.TempDir(), "loans.db"),
		MaxOpenConns:  1,
		WAL:           true,
		BusyTimeoutMs: 1000,
	}, nil)
	require.NoError(t, m.Initialize(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return NewDocumentSQLite(m), m
}

func sampleDoc(id, loanID, docType string, uploaded time.Time) model.Document {
	return model.Document{
		ID:           id,
		LoanID:       loanID,
		Filename:     docType + ".html",
		DocType:      docType,
		Category:     "closing",
		Section:      "disclosures",
		Subsection:   "federal",
		Status:       model.StatusPending,
		DateUploaded: uploaded,
		Version:      1,
		Content:      "<html>" + id + "</html>",
	}
}

func TestDocumentSQLite_InsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestStore(t)

	exp := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	doc := model.Document{
		ID:             "doc-1",
		LoanID:         "L1",
		Filename:       "note.html",
		DocType:        "promissory_note",
		Category:       "closing",
		Section:        "notes",
		Subsection:     "primary",
		Status:         model.StatusUnderReview,
		DateUploaded:   time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC),
		FileType:       "text/html",
		FileSize:       2048,
		IsRequired:     true,
		Version:        3,
		Notes:          "signed copy pending",
		ExpirationDate: &exp,
		AssignedTo:     "processor-7",
		Content:        "<html><body>Promissory Note</body></html>",
	}

	in := doc
	id, err := repo.Insert(ctx, &in)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)

	got, err := repo.GetByID(ctx, id, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	if diff := cmp.Diff(doc, *got); diff != "" {
		t.Errorf("GetByID() mismatch (-want +got):\n%s", diff)
	}

	withoutContent, err := repo.GetByID(ctx, id, false)
	require.NoError(t, err)
	assert.Empty(t, withoutContent.Content)
	assert.True(t, withoutContent.IsRequired)
}

func TestDocumentSQLite_InsertDefaults(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestStore(t)
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	repo.newID = func() string { return "generated-id" }

	doc := &model.Document{LoanID: "L1", Filename: "w2.pdf", DocType: "w2"}
	id, err := repo.Insert(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "generated-id", id)

	got, err := repo.GetByID(ctx, id, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 1, got.Version)
	assert.True(t, now.Equal(got.DateUploaded))
	assert.False(t, got.IsRequired)
	assert.Empty(t, got.Content)
	assert.Nil(t, got.ExpirationDate)
}

func TestDocumentSQLite_GetByID_NotFound(t *testing.T) {
	repo, _ := newTestStore(t)

	got, err := repo.GetByID(context.Background(), "missing", true)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestDocumentSQLite_Insert_ConstraintViolation(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestStore(t)

	d := sampleDoc("dup", "L1", "note", time.Now())
	_, err := repo.Insert(ctx, &d)
	require.NoError(t, err)

	again := sampleDoc("dup", "L1", "deed", time.Now())
	_, err = repo.Insert(ctx, &again)
	assert.ErrorIs(t, err, repository.ErrConstraintViolation)

	empty := sampleDoc("no-loan", "", "note", time.Now())
	_, err = repo.Insert(ctx, &empty)
	assert.ErrorIs(t, err, repository.ErrConstraintViolation)
}

func TestDocumentSQLite_Delete_Cascades(t *testing.T) {
	ctx := context.Background()
	repo, m := newTestStore(t)

	d := sampleDoc("doc-del", "L1", "note", time.Now())
	_, err := repo.Insert(ctx, &d)
	require.NoError(t, err)

	removed, err := repo.Delete(ctx, "doc-del")
	require.NoError(t, err)
	assert.True(t, removed)

	got, err := repo.GetByID(ctx, "doc-del", true)
	require.NoError(t, err)
	assert.Nil(t, got)

	db, err := m.DB()
	require.NoError(t, err)
	var orphans int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_contents WHERE document_id = ?`, "doc-del").Scan(&orphans))
	assert.Zero(t, orphans)

	removed, err = repo.Delete(ctx, "doc-del")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDocumentSQLite_Update(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("only touches present fields", func(t *testing.T) {
		repo, _ := newTestStore(t)
		d := sampleDoc("doc-1", "L1", "note", base)
		d.Notes = "first pass"
		_, err := repo.Insert(ctx, &d)
		require.NoError(t, err)

		applied, err := repo.Update(ctx, model.DocumentPatch{ID: "doc-1", Status: ptr(model.StatusApproved)})
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := repo.GetByID(ctx, "doc-1", true)
		require.NoError(t, err)
		want := d
		want.Status = model.StatusApproved
		if diff := cmp.Diff(want, *got); diff != "" {
			t.Errorf("after Update() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("set to empty differs from absent", func(t *testing.T) {
		repo, _ := newTestStore(t)
		d := sampleDoc("doc-1", "L1", "note", base)
		d.Notes = "to be cleared"
		d.IsRequired = true
		_, err := repo.Insert(ctx, &d)
		require.NoError(t, err)

		applied, err := repo.UpdateByID(ctx, "doc-1", model.DocumentPatch{Notes: ptr(""), IsRequired: ptr(false)})
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := repo.GetByID(ctx, "doc-1", false)
		require.NoError(t, err)
		assert.Empty(t, got.Notes)
		assert.False(t, got.IsRequired)
		assert.Equal(t, "note.html", got.Filename)
	})

	t.Run("null expiration clears the column", func(t *testing.T) {
		repo, _ := newTestStore(t)
		exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		d := sampleDoc("doc-1", "L1", "note", base)
		d.ExpirationDate = &exp
		_, err := repo.Insert(ctx, &d)
		require.NoError(t, err)

		var patch model.DocumentPatch
		require.NoError(t, json.Unmarshal([]byte(`{"expiration_date": null}`), &patch))

		applied, err := repo.UpdateByID(ctx, "doc-1", patch)
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := repo.GetByID(ctx, "doc-1", false)
		require.NoError(t, err)
		assert.Nil(t, got.ExpirationDate)
		assert.Equal(t, "note.html", got.Filename)
	})

	t.Run("content only upserts", func(t *testing.T) {
		repo, _ := newTestStore(t)
		d := sampleDoc("doc-1", "L1", "note", base)
		d.Content = ""
		_, err := repo.Insert(ctx, &d)
		require.NoError(t, err)

		applied, err := repo.Update(ctx, model.DocumentPatch{ID: "doc-1", Content: ptr("v1")})
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = repo.Update(ctx, model.DocumentPatch{ID: "doc-1", Content: ptr("v2"), Version: ptr(2)})
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := repo.GetByID(ctx, "doc-1", true)
		require.NoError(t, err)
		assert.Equal(t, "v2", got.Content)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("unknown id and empty patch", func(t *testing.T) {
		repo, _ := newTestStore(t)

		applied, err := repo.Update(ctx, model.DocumentPatch{ID: "missing", Status: ptr(model.StatusRejected)})
		require.NoError(t, err)
		assert.False(t, applied)

		applied, err = repo.Update(ctx, model.DocumentPatch{ID: "missing", Content: ptr("x")})
		require.NoError(t, err)
		assert.False(t, applied)

		applied, err = repo.Update(ctx, model.DocumentPatch{ID: "missing"})
		require.NoError(t, err)
		assert.False(t, applied)

		_, err = repo.Update(ctx, model.DocumentPatch{Status: ptr(model.StatusRejected)})
		assert.Error(t, err)
	})
}

func TestDocumentSQLite_GetForLoanAndCount(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestStore(t)
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	for i, docType := range []string{"note", "deed", "w2"} {
		d := sampleDoc(fmt.Sprintf("l1-%d", i), "L1", docType, base.Add(time.Duration(i)*time.Hour))
		_, err := repo.Insert(ctx, &d)
		require.NoError(t, err)
	}
	other := sampleDoc("l2-0", "L2", "note", base)
	_, err := repo.Insert(ctx, &other)
	require.NoError(t, err)

	docs, err := repo.GetForLoan(ctx, "L1", false)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"l1-2", "l1-1", "l1-0"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
	for _, d := range docs {
		assert.Empty(t, d.Content)
	}

	withContent, err := repo.GetForLoan(ctx, "L1", true)
	require.NoError(t, err)
	assert.Equal(t, "<html>l1-2</html>", withContent[0].Content)

	for _, loanID := range []string{"L1", "L2", "none"} {
		list, err := repo.GetForLoan(ctx, loanID, false)
		require.NoError(t, err)
		n, err := repo.CountForLoan(ctx, loanID)
		require.NoError(t, err)
		assert.Equal(t, len(list), n, loanID)
	}

	empty, err := repo.GetForLoan(ctx, "none", false)
	require.NoError(t, err)
	assert.NotNil(t, empty)
}

func TestDocumentSQLite_BulkInsert(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("writes all", func(t *testing.T) {
		repo, _ := newTestStore(t)
		n, err := repo.BulkInsert(ctx, []model.Document{
			sampleDoc("x", "L1", "note", now),
			sampleDoc("y", "L1", "deed", now),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := repo.GetByID(ctx, "y", true)
		require.NoError(t, err)
		assert.Equal(t, "<html>y</html>", got.Content)
	})

	t.Run("rolls back the whole batch", func(t *testing.T) {
		repo, _ := newTestStore(t)
		bad := sampleDoc("y", "L1", "deed", now)
		bad.Filename = ""

		n, err := repo.BulkInsert(ctx, []model.Document{sampleDoc("x", "L1", "note", now), bad})
		assert.ErrorIs(t, err, repository.ErrConstraintViolation)
		assert.Zero(t, n)

		for _, id := range []string{"x", "y"} {
			got, err := repo.GetByID(ctx, id, true)
			require.NoError(t, err)
			assert.Nil(t, got, id)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		repo, _ := newTestStore(t)
		n, err := repo.BulkInsert(ctx, nil)
		assert.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestDocumentSQLite_TransferToLoan(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestStore(t)
	now := time.Now()

	for _, d := range []model.Document{
		sampleDoc("a", "TEMP-1", "note", now),
		sampleDoc("b", "TEMP-1", "deed", now),
		sampleDoc("c", "L9", "note", now),
	} {
		d := d
		_, err := repo.Insert(ctx, &d)
		require.NoError(t, err)
	}

	moved, err := repo.TransferToLoan(ctx, "TEMP-1", "L9")
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	n, err := repo.CountForLoan(ctx, "L9")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repo.CountForLoan(ctx, "TEMP-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDocumentSQLite_NotInitialized(t *testing.T) {
	ctx := context.Background()
	m := database.NewManager(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "x.db")}, nil)
	repo := NewDocumentSQLite(m)

	_, err := repo.Insert(ctx, &model.Document{LoanID: "L1", Filename: "f", DocType: "t"})
	assert.ErrorIs(t, err, database.ErrNotInitialized)
	_, err = repo.BulkInsert(ctx, []model.Document{{LoanID: "L1"}})
	assert.ErrorIs(t, err, database.ErrNotInitialized)
	_, err = repo.GetByID(ctx, "x", false)
	assert.ErrorIs(t, err, database.ErrNotInitialized)
	_, err = repo.GetForLoan(ctx, "L1", false)
	assert.ErrorIs(t, err, database.ErrNotInitialized)
	_, err = repo.CountForLoan(ctx, "L1")
	assert.ErrorIs(t, err, database.ErrNotInitialized)
	_, err = repo.Update(ctx, model.DocumentPatch{ID: "x", Notes: ptr("n")})
	assert.ErrorIs(t, err, database.ErrNotInitialized)
	_, err = repo.Delete(ctx, "x")
	assert.ErrorIs(t, err, database.ErrNotInitialized)
	_, err = repo.TransferToLoan(ctx, "a", "b")
	assert.ErrorIs(t, err, database.ErrNotInitialized)
}

func TestDocumentSQLite_Insert_RollsBackOnContentFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentSQLite(FromDB(db))
	doc := sampleDoc("doc-1", "L1", "note", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO document_contents").
		WithArgs("doc-1", doc.Content).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	id, err := repo.Insert(context.Background(), &doc)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insert content: disk I/O error")
	assert.NotErrorIs(t, err, repository.ErrConstraintViolation)
	assert.Empty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentSQLite_Update_SparseStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentSQLite(FromDB(db))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE documents SET status = \?, notes = \? WHERE id = \?`).
		WithArgs("approved", sqlmock.AnyArg(), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.Update(context.Background(), model.DocumentPatch{
		ID:     "doc-1",
		Status: ptr(model.StatusApproved),
		Notes:  ptr("ok"),
	})
	assert.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormatTime_SortsChronologically(t *testing.T) {
	early := time.Date(2024, 1, 1, 9, 0, 0, 5, time.FixedZone("EST", -5*3600))
	late := time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC)

	a, b := FormatTime(early), FormatTime(late)
	assert.Len(t, a, len(b))
	assert.Less(t, a, b)

	parsed, err := ParseTime(a)
	require.NoError(t, err)
	assert.True(t, early.Equal(parsed))
}
