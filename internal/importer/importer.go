// Package importer parses uploaded contact spreadsheets (CSV and XLSX)
// and loads them into the contact table. Rows are keyed by NIK; a row
// whose NIK already exists resets that contact to a fresh pending state.
package importer

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gdewata/wablast/internal/metrics"
	"github.com/gdewata/wablast/internal/models"
	"github.com/gdewata/wablast/internal/phone"
	"github.com/gdewata/wablast/internal/repository"
)

// Importer loads contact rows from uploaded spreadsheets.
type Importer struct {
	contacts *repository.ContactRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a new importer
func New(db *sql.DB, m *metrics.Metrics, logger *slog.Logger) *Importer {
	return &Importer{
		contacts: repository.NewContactRepository(db),
		metrics:  m,
		logger:   logger.With("component", "importer"),
	}
}

// Import parses the uploaded file by extension and upserts its rows.
// Supported extensions: .csv, .xlsx.
func (im *Importer) Import(filename string, r io.Reader) (*models.ImportResult, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSV(r)
	case ".xlsx":
		rows, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported file type %q, want .csv or .xlsx", filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}

	return im.load(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows := [][]string{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func (im *Importer) load(rows [][]string) (*models.ImportResult, error) {
	result := &models.ImportResult{}

	if len(rows) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	// Find column indices from the header row.
	nikIdx, nameIdx, phoneIdx := -1, -1, -1
	for i, col := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "nik", "no_ktp", "ktp":
			nikIdx = i
		case "name", "nama", "full_name":
			nameIdx = i
		case "phone", "no_hp", "hp", "telepon", "whatsapp":
			phoneIdx = i
		}
	}
	if nikIdx == -1 || nameIdx == -1 || phoneIdx == -1 {
		return nil, fmt.Errorf("header must contain nik, name and phone columns")
	}

	for n, record := range rows[1:] {
		result.Total++
		rowNum := n + 2 // 1-based, after the header

		var nik, name, rawPhone string
		if nikIdx < len(record) {
			nik = strings.TrimSpace(record[nikIdx])
		}
		if nameIdx < len(record) {
			name = strings.TrimSpace(record[nameIdx])
		}
		if phoneIdx < len(record) {
			rawPhone = strings.TrimSpace(record[phoneIdx])
		}

		if nik == "" || name == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: missing nik or name", rowNum))
			result.Skipped++
			continue
		}

		canonical, ok := phone.Normalize(rawPhone)
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): unusable phone %q", rowNum, nik, rawPhone))
			result.Skipped++
			continue
		}

		if err := im.contacts.Upsert(models.ImportRow{NIK: nik, Name: name, Phone: canonical}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): %v", rowNum, nik, err))
			result.Skipped++
			continue
		}

		result.Imported++
	}

	im.metrics.ContactsImportedTotal.Add(float64(result.Imported))
	im.metrics.ContactsSkippedTotal.Add(float64(result.Skipped))
	im.logger.Info("import finished", "total", result.Total, "imported", result.Imported, "skipped", result.Skipped)

	return result, nil
}
