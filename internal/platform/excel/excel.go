// Package excel renders the dashboard collections as xlsx workbooks and
// parses uploaded workbooks back into typed inputs. Import reads the first
// sheet only, accepts case-variant headers, and silently drops rows missing
// required fields, reporting how many were dropped. A workbook that cannot
// be read at all aborts the whole import with one descriptive error.
package excel

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/opsboard/opsboard/internal/domain/ops"
)

func dateString(t time.Time) string {
	return t.Format("2006-01-02")
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	cells := make([]any, len(headers))
	for i, h := range headers {
		cells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &cells); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return autoSizeColumns(f, sheet, headers, rows)
}

// autoSizeColumns widths each column to its longest cell.
func autoSizeColumns(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		width := len(h)
		for _, row := range rows {
			if i < len(row) {
				if l := len(fmt.Sprint(row[i])); l > width {
					width = l
				}
			}
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, float64(width+2)); err != nil {
			return fmt.Errorf("size column %s: %w", col, err)
		}
	}
	return nil
}

func patientRows(patients []ops.Patient) ([]string, [][]any) {
	headers := []string{"Patient ID", "Name", "Age", "Diagnosis", "Admission Date", "Status"}
	rows := make([][]any, 0, len(patients))
	for _, p := range patients {
		rows = append(rows, []any{p.ID, p.Name, p.Age, p.Diagnosis, p.Date, string(p.Status)})
	}
	return headers, rows
}

func recordRows(records []ops.MedicalRecord) ([]string, [][]any) {
	headers := []string{"Record ID", "Patient ID", "Patient Name", "Type", "Date", "Doctor", "Description"}
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{r.ID, r.PatientID, r.Patient, r.Type, r.Date, r.Doctor, r.Description})
	}
	return headers, rows
}

func staffRows(staff []ops.Staff) ([]string, [][]any) {
	headers := []string{"Staff ID", "Name", "Role", "Department", "Shift", "Phone", "Email"}
	rows := make([][]any, 0, len(staff))
	for _, s := range staff {
		rows = append(rows, []any{s.ID, s.Name, string(s.Role), s.Department, string(s.Shift), s.Phone, s.Email})
	}
	return headers, rows
}

func resourceRows(resources []ops.Resource) ([]string, [][]any) {
	headers := []string{"Resource", "Used", "Total", "Available", "Utilization %", "Unit"}
	rows := make([][]any, 0, len(resources))
	for _, r := range resources {
		rows = append(rows, []any{
			r.Name, r.Used, r.Total, r.Total - r.Used,
			fmt.Sprintf("%.0f%%", r.Utilization()), r.Unit,
		})
	}
	return headers, rows
}

func exportSingle(sheet string, headers []string, rows [][]any) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := writeSheet(f, sheet, headers, rows); err != nil {
		return nil, err
	}
	return f, nil
}

func ExportPatients(patients []ops.Patient) (*excelize.File, error) {
	headers, rows := patientRows(patients)
	return exportSingle("Patients", headers, rows)
}

func ExportRecords(records []ops.MedicalRecord) (*excelize.File, error) {
	headers, rows := recordRows(records)
	return exportSingle("Medical Records", headers, rows)
}

func ExportStaff(staff []ops.Staff) (*excelize.File, error) {
	headers, rows := staffRows(staff)
	return exportSingle("Staff", headers, rows)
}

func ExportResources(resources []ops.Resource) (*excelize.File, error) {
	headers, rows := resourceRows(resources)
	return exportSingle("Resources", headers, rows)
}

// ExportAll writes every non-empty collection to its own sheet of one
// workbook.
func ExportAll(patients []ops.Patient, records []ops.MedicalRecord, staff []ops.Staff, resources []ops.Resource) (*excelize.File, error) {
	f := excelize.NewFile()
	first := true

	addSheet := func(name string, headers []string, rows [][]any) error {
		if len(rows) == 0 {
			return nil
		}
		if first {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return err
			}
			first = false
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return err
			}
		}
		return writeSheet(f, name, headers, rows)
	}

	ph, pr := patientRows(patients)
	if err := addSheet("Patients", ph, pr); err != nil {
		return nil, err
	}
	rh, rr := recordRows(records)
	if err := addSheet("Medical Records", rh, rr); err != nil {
		return nil, err
	}
	sh, sr := staffRows(staff)
	if err := addSheet("Staff", sh, sr); err != nil {
		return nil, err
	}
	oh, or := resourceRows(resources)
	if err := addSheet("Resources", oh, or); err != nil {
		return nil, err
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

// sheetRows reads the first sheet of the workbook and returns a header index
// keyed by lowercased header text plus the data rows.
func sheetRows(r io.Reader) (map[string]int, [][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse workbook, check the file format: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return map[string]int{}, nil, nil
	}

	headers := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := headers[key]; !dup && key != "" {
			headers[key] = i
		}
	}
	return headers, rows[1:], nil
}

// cell returns the first non-empty value among the given header names,
// matched case-insensitively.
func cell(headers map[string]int, row []string, names ...string) string {
	for _, name := range names {
		if idx, ok := headers[name]; ok && idx < len(row) {
			if v := strings.TrimSpace(row[idx]); v != "" {
				return v
			}
		}
	}
	return ""
}

// ImportPatients parses patient rows, returning the parsed inputs and how
// many rows were dropped for missing name or age.
func ImportPatients(r io.Reader) ([]ops.PatientInput, int, error) {
	headers, rows, err := sheetRows(r)
	if err != nil {
		return nil, 0, err
	}

	var out []ops.PatientInput
	dropped := 0
	for _, row := range rows {
		name := cell(headers, row, "name")
		age, _ := strconv.Atoi(cell(headers, row, "age"))
		if name == "" || age == 0 {
			dropped++
			continue
		}

		status := cell(headers, row, "status")
		if status == "" {
			status = string(ops.StatusAdmitted)
		}
		date := cell(headers, row, "admission date", "date")
		if date == "" {
			date = dateString(time.Now())
		}
		out = append(out, ops.PatientInput{
			Name:      name,
			Age:       age,
			Diagnosis: cell(headers, row, "diagnosis"),
			Date:      date,
			Status:    ops.PatientStatus(status),
		})
	}
	return out, dropped, nil
}

// ImportRecords parses medical-record rows, dropping rows missing the
// patient name or record type.
func ImportRecords(r io.Reader) ([]ops.RecordInput, int, error) {
	headers, rows, err := sheetRows(r)
	if err != nil {
		return nil, 0, err
	}

	var out []ops.RecordInput
	dropped := 0
	for _, row := range rows {
		patient := cell(headers, row, "patient name", "patient")
		typ := cell(headers, row, "type")
		if patient == "" || typ == "" {
			dropped++
			continue
		}

		date := cell(headers, row, "date")
		if date == "" {
			date = dateString(time.Now())
		}
		out = append(out, ops.RecordInput{
			PatientID:   cell(headers, row, "patient id", "patientid"),
			Patient:     patient,
			Type:        typ,
			Date:        date,
			Doctor:      cell(headers, row, "doctor"),
			Description: cell(headers, row, "description"),
		})
	}
	return out, dropped, nil
}

// ImportStaff parses staff rows, dropping rows missing name or department.
func ImportStaff(r io.Reader) ([]ops.StaffInput, int, error) {
	headers, rows, err := sheetRows(r)
	if err != nil {
		return nil, 0, err
	}

	var out []ops.StaffInput
	dropped := 0
	for _, row := range rows {
		name := cell(headers, row, "name")
		department := cell(headers, row, "department")
		if name == "" || department == "" {
			dropped++
			continue
		}

		role := cell(headers, row, "role")
		if role == "" {
			role = string(ops.RoleNurse)
		}
		shift := cell(headers, row, "shift")
		if shift == "" {
			shift = string(ops.ShiftMorning)
		}
		out = append(out, ops.StaffInput{
			Name:       name,
			Role:       ops.StaffRole(role),
			Department: department,
			Shift:      ops.StaffShift(shift),
			Phone:      cell(headers, row, "phone"),
			Email:      cell(headers, row, "email"),
		})
	}
	return out, dropped, nil
}
