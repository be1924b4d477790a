package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/xuri/excelize/v2"
)

type ReportFormat string

const (
	ReportJSON ReportFormat = "json"
	ReportCSV  ReportFormat = "csv"
	ReportXLSX ReportFormat = "xlsx"
)

// ContentType returns the MIME type of an exported report
func (f ReportFormat) ContentType() string {
	switch f {
	case ReportCSV:
		return "text/csv; charset=utf-8"
	case ReportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

type FailedItem struct {
	ItemIndex int                     `json:"itemIndex"`
	Message   string                  `json:"message"`
	Errors    []apperrors.ImportError `json:"errors,omitempty"`
}

// ImportReport is derived from a job's results, errors and timestamps only
type ImportReport struct {
	JobID            string                      `json:"jobId"`
	FileName         string                      `json:"fileName"`
	ContentType      models.ContentType          `json:"contentType"`
	Status           models.JobStatus            `json:"status"`
	Total            int                         `json:"total"`
	Processed        int                         `json:"processed"`
	Successful       int                         `json:"successful"`
	Failed           int                         `json:"failed"`
	Skipped          int                         `json:"skipped"`
	SuccessRate      float64                     `json:"successRate"`
	DurationMs       int64                       `json:"durationMs"`
	RolledBack       bool                        `json:"rolledBack"`
	ErrorsByType     map[apperrors.ErrorType]int `json:"errorsByType"`
	ErrorsBySeverity map[apperrors.Severity]int  `json:"errorsBySeverity"`
	FailedItems      []FailedItem                `json:"failedItems"`
	JobErrors        []apperrors.ImportError     `json:"jobErrors"`
	Recommendations  []string                    `json:"recommendations"`
	StartedAt        *time.Time                  `json:"startedAt,omitempty"`
	CompletedAt      *time.Time                  `json:"completedAt,omitempty"`
	GeneratedAt      time.Time                   `json:"generatedAt"`
}

type ReportService interface {
	Generate(job *models.BatchJob) *ImportReport
	Export(report *ImportReport, format ReportFormat) ([]byte, error)
}

type reportService struct {
	logger *slog.Logger
}

func NewReportService(logger *slog.Logger) ReportService {
	return &reportService{logger: logger}
}

func (s *reportService) Generate(job *models.BatchJob) *ImportReport {
	errs := apperrors.ImportErrors(job.Errors)

	report := &ImportReport{
		JobID:            job.ID,
		FileName:         job.FileName,
		ContentType:      job.ContentType,
		Status:           job.Status,
		Total:            job.Progress.Total,
		ErrorsByType:     errs.CountByType(),
		ErrorsBySeverity: errs.CountBySeverity(),
		FailedItems:      []FailedItem{},
		JobErrors:        []apperrors.ImportError{},
		RolledBack:       job.RolledBack,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		GeneratedAt:      time.Now().UTC(),
	}

	for _, r := range job.Results {
		switch r.Status {
		case models.ItemError:
			report.Failed++
		case models.ItemSkipped:
			report.Skipped++
			report.Successful++
		default:
			report.Successful++
		}
	}
	report.Processed = report.Successful + report.Failed
	if report.Processed > 0 {
		report.SuccessRate = float64(report.Successful) / float64(report.Processed) * 100
	}

	if job.StartedAt != nil {
		end := job.UpdatedAt
		if job.CompletedAt != nil {
			end = *job.CompletedAt
		}
		report.DurationMs = end.Sub(*job.StartedAt).Milliseconds()
	}

	byItem := make(map[int][]apperrors.ImportError)
	for _, e := range job.Errors {
		if e.ItemIndex == nil {
			report.JobErrors = append(report.JobErrors, e)
			continue
		}
		byItem[*e.ItemIndex] = append(byItem[*e.ItemIndex], e)
	}
	for _, r := range job.Results {
		if r.Status != models.ItemError {
			continue
		}
		report.FailedItems = append(report.FailedItems, FailedItem{
			ItemIndex: r.ItemIndex,
			Message:   r.Message,
			Errors:    byItem[r.ItemIndex],
		})
	}
	sort.SliceStable(report.FailedItems, func(i, j int) bool {
		return report.FailedItems[i].ItemIndex < report.FailedItems[j].ItemIndex
	})

	report.Recommendations = recommendations(report)
	return report
}

func recommendations(report *ImportReport) []string {
	var out []string

	if report.ErrorsByType[apperrors.TypeMapping] > 0 {
		out = append(out, "Vérifiez les catégories non résolues ou activez la création automatique")
	}
	if report.ErrorsByType[apperrors.TypeDatabase] > 0 {
		out = append(out, "Des enregistrements ont échoué côté stockage, relancez l'import des éléments concernés")
	}
	if report.ErrorsByType[apperrors.TypeSystem] > 0 {
		out = append(out, "Des erreurs système sont survenues, consultez les journaux avant de relancer")
	}
	if report.Skipped > 0 {
		out = append(out, fmt.Sprintf("%d doublon(s) ignoré(s), aucune action requise", report.Skipped))
	}
	if report.Processed > 0 && report.SuccessRate < 50 {
		out = append(out, "Moins de la moitié des éléments ont été importés, vérifiez le format du fichier")
	}
	if report.Status == models.JobFailed && !report.RolledBack && report.Successful > 0 {
		out = append(out, "L'import a échoué après des créations partielles, envisagez un rollback")
	}
	if len(out) == 0 {
		out = append(out, "Import réalisé sans anomalie")
	}
	return out
}

func (s *reportService) Export(report *ImportReport, format ReportFormat) ([]byte, error) {
	switch format {
	case ReportJSON, "":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		return data, nil
	case ReportCSV:
		return s.exportCSV(report)
	case ReportXLSX:
		return s.exportExcel(report)
	}
	return nil, fmt.Errorf("%w: report format %q", ErrUnsupportedFormat, format)
}

var reportHeaders = []string{"Item", "Status", "Message", "Error Type", "Severity", "Field", "Suggestion"}

// reportRows lists one row per failed item error, plus job-level errors
func reportRows(report *ImportReport) [][]string {
	var rows [][]string
	for _, item := range report.FailedItems {
		index := strconv.Itoa(item.ItemIndex + 1)
		if len(item.Errors) == 0 {
			rows = append(rows, []string{index, string(models.ItemError), item.Message, "", "", "", ""})
			continue
		}
		for _, e := range item.Errors {
			rows = append(rows, []string{index, string(models.ItemError), e.Message,
				string(e.Type), string(e.Severity), e.Field, e.Suggestion})
		}
	}
	for _, e := range report.JobErrors {
		rows = append(rows, []string{"", "job", e.Message, string(e.Type), string(e.Severity), e.Field, e.Suggestion})
	}
	return rows
}

func summaryRows(report *ImportReport) [][]string {
	return [][]string{
		{"Job", report.JobID},
		{"File", report.FileName},
		{"Status", string(report.Status)},
		{"Total", strconv.Itoa(report.Total)},
		{"Successful", strconv.Itoa(report.Successful)},
		{"Failed", strconv.Itoa(report.Failed)},
		{"Skipped", strconv.Itoa(report.Skipped)},
		{"Success Rate", strconv.FormatFloat(report.SuccessRate, 'f', 1, 64)},
		{"Duration (ms)", strconv.FormatInt(report.DurationMs, 10)},
	}
}

func (s *reportService) exportCSV(report *ImportReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	for _, row := range summaryRows(report) {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV summary: %w", err)
		}
	}
	if err := writer.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to write CSV row: %w", err)
	}

	if err := writer.Write(reportHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range reportRows(report) {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *reportService) exportExcel(report *ImportReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close report workbook", "job_id", report.JobID, "error", err)
		}
	}()

	summarySheet := "Summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename Excel sheet: %w", err)
	}
	for rowIndex, row := range summaryRows(report) {
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+1)
			f.SetCellValue(summarySheet, cell, value)
		}
	}

	errorSheet := "Errors"
	if _, err := f.NewSheet(errorSheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	for i, header := range reportHeaders {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(errorSheet, cell, header)
	}
	for rowIndex, row := range reportRows(report) {
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(errorSheet, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}
