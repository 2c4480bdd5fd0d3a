package excel

import (
	"time"

	"github.com/xuri/excelize/v2"
)

var instructionHeaders = []string{"Field", "Description", "Required", "Example"}

func templateWorkbook(sheet string, headers []string, example []any, instructions [][]any) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := writeSheet(f, sheet, headers, [][]any{example}); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet("Instructions"); err != nil {
		return nil, err
	}
	if err := writeSheet(f, "Instructions", instructionHeaders, instructions); err != nil {
		return nil, err
	}
	return f, nil
}

// PatientTemplate builds an import template with one example row and an
// Instructions sheet describing every column.
func PatientTemplate() (*excelize.File, error) {
	return templateWorkbook("Patients",
		[]string{"Name", "Age", "Diagnosis", "Admission Date", "Status"},
		[]any{"John Doe", 45, "Example Diagnosis", dateString(time.Now()), "Admitted"},
		[][]any{
			{"Name", "Patient's full name", "Yes", "John Doe"},
			{"Age", "Patient's age in years", "Yes", "45"},
			{"Diagnosis", "Medical diagnosis", "Yes", "Pneumonia"},
			{"Admission Date", "Date in YYYY-MM-DD format", "Yes", "2026-02-21"},
			{"Status", "One of: Admitted, Under Treatment, ICU, Pre-Surgery, Discharged, Outpatient", "Yes", "Admitted"},
		})
}

// StaffTemplate builds the staff import template.
func StaffTemplate() (*excelize.File, error) {
	return templateWorkbook("Staff",
		[]string{"Name", "Role", "Department", "Shift", "Phone", "Email"},
		[]any{"Dr. Jane Smith", "Doctor", "ER", "Morning", "+91-9876543210", "jane.smith@hospital.com"},
		[][]any{
			{"Name", "Staff member's full name", "Yes", "Dr. Jane Smith"},
			{"Role", "One of: Doctor, Nurse, Technician, Admin", "Yes", "Doctor"},
			{"Department", "Department code (ER, ICU, General, Surgery, etc.)", "Yes", "ER"},
			{"Shift", "One of: Morning, Afternoon, Night", "Yes", "Morning"},
			{"Phone", "Contact phone number", "No", "+91-9876543210"},
			{"Email", "Email address", "No", "jane@hospital.com"},
		})
}

// RecordTemplate builds the medical-record import template.
func RecordTemplate() (*excelize.File, error) {
	return templateWorkbook("Records",
		[]string{"Patient ID", "Patient Name", "Type", "Date", "Doctor", "Description"},
		[]any{"P-1001", "John Doe", "Lab Report", dateString(time.Now()), "Dr. Smith", "Blood test results"},
		[][]any{
			{"Patient ID", "Unique patient identifier", "Yes", "P-1001"},
			{"Patient Name", "Patient's full name", "Yes", "John Doe"},
			{"Type", "Type of record (Lab Report, X-Ray, ECG, etc.)", "Yes", "Lab Report"},
			{"Date", "Date in YYYY-MM-DD format", "Yes", "2026-02-21"},
			{"Doctor", "Attending doctor's name", "Yes", "Dr. Smith"},
			{"Description", "Additional notes or description", "No", "Blood test results"},
		})
}
