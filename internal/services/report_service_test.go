package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
)

func reportJob() *models.BatchJob {
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)

	return &models.BatchJob{
		ID:          "job-42",
		FileName:    "cardio.csv",
		ContentType: models.ContentQuestions,
		Status:      models.JobCompleted,
		Progress:    models.JobProgress{Total: 4},
		Results: []models.ItemResult{
			{ItemIndex: 0, Status: models.ItemSuccess},
			{ItemIndex: 2, Status: models.ItemError, Message: "Catégorie introuvable: Urologie"},
			{ItemIndex: 1, Status: models.ItemSkipped, Message: "Doublon ignoré"},
			{ItemIndex: 3, Status: models.ItemSuccess},
		},
		Errors: []apperrors.ImportError{
			apperrors.NewImportError(apperrors.TypeMapping, apperrors.SeverityMajor, "Catégorie introuvable: Urologie").
				AtItem(2).OnField("category"),
			apperrors.NewImportError(apperrors.TypeSystem, apperrors.SeverityCritical, "Échec du traitement du lot 9"),
		},
		StartedAt:   &started,
		CompletedAt: &completed,
	}
}

func TestReportService_Generate(t *testing.T) {
	report := NewReportService(testLogger()).Generate(reportJob())

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 3, report.Successful)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	assert.InDelta(t, 75.0, report.SuccessRate, 1e-9)
	assert.Equal(t, int64(1500), report.DurationMs)

	assert.Equal(t, 1, report.ErrorsByType[apperrors.TypeMapping])
	assert.Equal(t, 1, report.ErrorsBySeverity[apperrors.SeverityCritical])

	require.Len(t, report.FailedItems, 1)
	assert.Equal(t, 2, report.FailedItems[0].ItemIndex)
	require.Len(t, report.FailedItems[0].Errors, 1)
	assert.Equal(t, "category", report.FailedItems[0].Errors[0].Field)

	require.Len(t, report.JobErrors, 1)
	assert.Contains(t, report.Recommendations, "Vérifiez les catégories non résolues ou activez la création automatique")
	assert.Contains(t, report.Recommendations, "1 doublon(s) ignoré(s), aucune action requise")
}

func TestReportService_CleanImport(t *testing.T) {
	job := &models.BatchJob{
		ID:       "job-1",
		Status:   models.JobCompleted,
		Progress: models.JobProgress{Total: 1},
		Results:  []models.ItemResult{{ItemIndex: 0, Status: models.ItemSuccess}},
	}

	report := NewReportService(testLogger()).Generate(job)

	assert.Equal(t, []string{"Import réalisé sans anomalie"}, report.Recommendations)
	assert.Empty(t, report.FailedItems)
	assert.Equal(t, int64(0), report.DurationMs)
}

func TestReportService_PartialFailure(t *testing.T) {
	job := reportJob()
	job.Status = models.JobFailed

	report := NewReportService(testLogger()).Generate(job)

	assert.Contains(t, report.Recommendations, "L'import a échoué après des créations partielles, envisagez un rollback")
}

func TestReportService_Export(t *testing.T) {
	svc := NewReportService(testLogger())
	report := svc.Generate(reportJob())

	t.Run("json", func(t *testing.T) {
		data, err := svc.Export(report, ReportJSON)
		require.NoError(t, err)

		var decoded ImportReport
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "job-42", decoded.JobID)
		assert.Equal(t, 1, decoded.Failed)
	})

	t.Run("csv", func(t *testing.T) {
		data, err := svc.Export(report, ReportCSV)
		require.NoError(t, err)

		reader := csv.NewReader(bytes.NewReader(data))
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		require.NoError(t, err)

		assert.Equal(t, []string{"Job", "job-42"}, records[0])
		header := len(summaryRows(report))
		assert.Equal(t, reportHeaders, records[header])
		rows := records[header+1:]
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"3", "error", "Catégorie introuvable: Urologie", "mapping", "major", "category", ""}, rows[0])
		assert.Equal(t, "job", rows[1][1])
	})

	t.Run("xlsx", func(t *testing.T) {
		data, err := svc.Export(report, ReportXLSX)
		require.NoError(t, err)

		f, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, []string{"Summary", "Errors"}, f.GetSheetList())
		status, err := f.GetCellValue("Summary", "B3")
		require.NoError(t, err)
		assert.Equal(t, "completed", status)

		rows, err := f.GetRows("Errors")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "Item", rows[0][0])
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := svc.Export(report, "pdf")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestReportFormat_ContentType(t *testing.T) {
	assert.Equal(t, "application/json", ReportJSON.ContentType())
	assert.Equal(t, "text/csv; charset=utf-8", ReportCSV.ContentType())
	assert.Contains(t, ReportXLSX.ContentType(), "spreadsheetml")
}
