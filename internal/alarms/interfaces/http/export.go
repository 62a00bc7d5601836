package http

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alarmapp "refundtrack/internal/alarms/application"
)

// BuildDashboardPDF renders a minimal PDF for a dashboard page.
func BuildDashboardPDF(page alarmapp.Page) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Refund Alarm Dashboard")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Cases: %d", len(page.Items)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Critical: %d", page.TotalCritical))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Warning: %d", page.TotalWarning))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Case", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Federal Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "State Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Days", "1", 0, "C", false, 0, "")
	pdf.CellFormat(120, 6, "Alarms", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, entry := range page.Items {
		pdf.CellFormat(35, 6, entry.CaseID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, string(entry.FederalStatus), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, string(entry.StateStatus), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, string(entry.MaxSeverity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", entry.MaxDays), "1", 0, "R", false, 0, "")
		pdf.CellFormat(120, 6, summarizeAlarms(entry), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDashboardXLSX renders a minimal XLSX for a dashboard page.
func BuildDashboardXLSX(page alarmapp.Page) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	casesSheet := "cases"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(casesSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Refund Alarm Dashboard")
	_ = f.SetCellValue(summarySheet, "A3", "Cases")
	_ = f.SetCellValue(summarySheet, "B3", len(page.Items))
	_ = f.SetCellValue(summarySheet, "A4", "Critical")
	_ = f.SetCellValue(summarySheet, "B4", page.TotalCritical)
	_ = f.SetCellValue(summarySheet, "A5", "Warning")
	_ = f.SetCellValue(summarySheet, "B5", page.TotalWarning)

	_ = f.SetCellValue(casesSheet, "A1", "Case")
	_ = f.SetCellValue(casesSheet, "B1", "User")
	_ = f.SetCellValue(casesSheet, "C1", "Federal Status")
	_ = f.SetCellValue(casesSheet, "D1", "State Status")
	_ = f.SetCellValue(casesSheet, "E1", "Max Severity")
	_ = f.SetCellValue(casesSheet, "F1", "Max Days")
	_ = f.SetCellValue(casesSheet, "G1", "Alarms")
	for i, entry := range page.Items {
		row := i + 2
		_ = f.SetCellValue(casesSheet, fmt.Sprintf("A%d", row), entry.CaseID)
		_ = f.SetCellValue(casesSheet, fmt.Sprintf("B%d", row), entry.UserID)
		_ = f.SetCellValue(casesSheet, fmt.Sprintf("C%d", row), string(entry.FederalStatus))
		_ = f.SetCellValue(casesSheet, fmt.Sprintf("D%d", row), string(entry.StateStatus))
		_ = f.SetCellValue(casesSheet, fmt.Sprintf("E%d", row), string(entry.MaxSeverity))
		_ = f.SetCellValue(casesSheet, fmt.Sprintf("F%d", row), entry.MaxDays)
		_ = f.SetCellValue(casesSheet, fmt.Sprintf("G%d", row), summarizeAlarms(entry))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func summarizeAlarms(entry alarmapp.Entry) string {
	var buf bytes.Buffer
	for i, alarm := range entry.Alarms {
		if i > 0 {
			buf.WriteString("; ")
		}
		fmt.Fprintf(&buf, "%s/%s %s %dd>%dd", alarm.Type, alarm.Track, alarm.Severity, alarm.ActualDays, alarm.ThresholdDays)
	}
	return buf.String()
}
