package lead

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/fault"
	"bizflow/internal/paginate"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const exportLimit = 10000

var exportHeaders = []string{"name", "email", "company", "phone", "source", "services", "status", "score", "message", "created_at"}

type ImportRowError struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

type ImportReport struct {
	TotalRows   int              `json:"totalRows"`
	SuccessRows int              `json:"successRows"`
	FailedRows  int              `json:"failedRows"`
	Errors      []ImportRowError `json:"errors"`
}

func (s *Service) ExportExcel(ctx context.Context, f Filter) ([]byte, error) {
	f.Params = paginate.Params{Page: 1, PerPage: exportLimit}
	items, err := s.listAll(ctx, f)
	if err != nil {
		return nil, err
	}
	return writeSheet(items)
}

func (s *Service) listAll(ctx context.Context, f Filter) ([]Lead, error) {
	items := []Lead{}
	err := s.db.SelectContext(ctx, &items, `SELECT `+leadColumns+` FROM leads
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%' OR company ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, strings.TrimSpace(f.Status), strings.TrimSpace(f.Search), f.PerPage)
	if err != nil {
		s.logger.Error("error list leads for export", zap.Error(err))
		return nil, fmt.Errorf("list leads for export: %w", err)
	}
	return items, nil
}

func writeSheet(items []Lead) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		values := []any{
			it.Name,
			it.Email,
			it.Company,
			it.Phone,
			it.Source,
			strings.Join(it.ServicesInterested, ", "),
			it.Status,
			it.Score,
			it.Message,
			it.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "J", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportExcel creates one lead per data row of the first sheet. Bad rows are
// reported and skipped; good rows are kept. A storage failure stops the
// import and is returned as is.
func (s *Service) ImportExcel(ctx context.Context, actorID string, r io.Reader) (*ImportReport, error) {
	inputs, report, err := readSheet(r)
	if err != nil {
		return nil, err
	}
	for _, row := range inputs {
		if _, err := s.Create(ctx, row.input); err != nil {
			if !apiresp.IsValidation(err) && !fault.IsClientError(err) {
				return nil, fmt.Errorf("import row %d: %w", row.number, err)
			}
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: row.number, Email: row.input.Email, Error: err.Error()})
			continue
		}
		report.SuccessRows++
	}
	s.audit.Record(ctx, actorID, "import", entityLead, "", map[string]any{
		"total": report.TotalRows, "success": report.SuccessRows, "failed": report.FailedRows,
	})
	return report, nil
}

type sheetRow struct {
	number int
	input  CreateInput
}

// readSheet parses rows and validates each one. Rows that fail validation
// are counted in the report and not returned.
func readSheet(r io.Reader) ([]sheetRow, *ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, apiresp.Field("/file", "is not a readable .xlsx workbook")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, apiresp.Field("/file", "excel sheet is empty")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, apiresp.Field("/file", "rows could not be read")
	}
	if len(rows) < 2 {
		return nil, nil, apiresp.Field("/file", "no data rows found")
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"name", "email"} {
		if _, ok := header[col]; !ok {
			return nil, nil, apiresp.Field("/file", "missing required column: "+col)
		}
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	var out []sheetRow
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if get("name") == "" && get("email") == "" {
			continue
		}
		report.TotalRows++

		in := normalize(CreateInput{
			Name:               get("name"),
			Email:              get("email"),
			Company:            get("company"),
			Phone:              get("phone"),
			Message:            get("message"),
			Source:             get("source"),
			ServicesInterested: strings.Split(get("services"), ","),
		})
		if in.Source == defaultSource && get("source") == "" {
			in.Source = "import"
		}
		if err := validate(in); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: i + 1, Email: in.Email, Error: err.Error()})
			continue
		}
		out = append(out, sheetRow{number: i + 1, input: in})
	}
	return out, report, nil
}
