package curve

import (
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	pverrors "github.com/copyleftdev/pvfit/internal/errors"
)

// Sheet is a named table of numeric columns written by WriteXLSX. When
// Labels is set, row k starts with Labels[k] and Columns names the label
// column first. NaN values are left as blank cells.
type Sheet struct {
	Name    string
	Columns []string
	Labels  []string
	Rows    [][]float64
}

// ReadXLSX reads the voltage and current columns of a workbook sheet.
// Headers are matched case-insensitively; an empty sheet name selects the
// first sheet.
func ReadXLSX(path, sheet string) (Curve, error) {
	header, rows, err := readSheet(path, sheet)
	if err != nil {
		return nil, err
	}
	return fromRows(header, rows, true)
}

// ReadVoltagesXLSX reads only the voltage column of a workbook sheet.
func ReadVoltagesXLSX(path, sheet string) ([]float64, error) {
	header, rows, err := readSheet(path, sheet)
	if err != nil {
		return nil, err
	}
	c, err := fromRows(header, rows, false)
	if err != nil {
		return nil, err
	}
	return c.Voltages(), nil
}

func readSheet(path, sheet string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, pverrors.Wrapf(err, pverrors.KindIO, "open workbook %s", path).
			WithComponent("curve").WithOperation("ReadXLSX")
	}
	defer f.Close()

	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, nil, pverrors.Errorf(pverrors.KindInvalidInput, "workbook %s has no sheets", path).
				WithComponent("curve")
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, pverrors.Wrapf(err, pverrors.KindInvalidInput, "read sheet %q", sheet).
			WithComponent("curve").WithOperation("ReadXLSX")
	}
	if len(rows) == 0 {
		return nil, nil, pverrors.Errorf(pverrors.KindInvalidInput, "sheet %q is empty", sheet).
			WithComponent("curve")
	}
	return rows[0], rows[1:], nil
}

// fromRows converts string records into a Curve. When withCurrent is false
// the current column is optional and left zero.
func fromRows(header []string, rows [][]string, withCurrent bool) (Curve, error) {
	vIdx := findColumn(header, voltageNames)
	if vIdx < 0 {
		return nil, pverrors.Errorf(pverrors.KindInvalidInput, "no voltage column in header %v", header).
			WithComponent("curve").WithParam("voltage")
	}
	iIdx := findColumn(header, currentNames)
	if withCurrent && iIdx < 0 {
		return nil, pverrors.Errorf(pverrors.KindInvalidInput, "no current column in header %v", header).
			WithComponent("curve").WithParam("current")
	}

	out := make(Curve, 0, len(rows))
	for r, row := range rows {
		if blank(row) {
			continue
		}
		// header is row 1
		line := r + 2
		v, err := cell(row, vIdx, line)
		if err != nil {
			return nil, err
		}
		var i float64
		if iIdx >= 0 && (withCurrent || iIdx < len(row)) {
			if i, err = cell(row, iIdx, line); err != nil {
				return nil, err
			}
		}
		out = append(out, Point{V: v, I: i})
	}
	if len(out) == 0 {
		return nil, pverrors.New(pverrors.KindInvalidInput, "no data rows").WithComponent("curve")
	}
	return out, nil
}

func cell(row []string, idx, line int) (float64, error) {
	if idx >= len(row) || strings.TrimSpace(row[idx]) == "" {
		return 0, pverrors.Errorf(pverrors.KindInvalidInput, "row %d: missing value in column %d", line, idx+1).
			WithComponent("curve")
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return 0, pverrors.Wrapf(err, pverrors.KindInvalidInput, "row %d: column %d", line, idx+1).
			WithComponent("curve")
	}
	return x, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteXLSX writes sheets to a new workbook at path, replacing any existing
// file. The first sheet takes the place of the default one.
func WriteXLSX(path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return pverrors.New(pverrors.KindInvalidInput, "no sheets to write").WithComponent("curve")
	}

	f := excelize.NewFile()
	defer f.Close()

	for k, s := range sheets {
		if k == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return pverrors.Wrap(err, pverrors.KindIO, "rename sheet").WithComponent("curve")
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return pverrors.Wrapf(err, pverrors.KindIO, "create sheet %q", s.Name).WithComponent("curve")
		}
		if err := writeSheet(f, s); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return pverrors.Wrapf(err, pverrors.KindIO, "save workbook %s", path).
			WithComponent("curve").WithOperation("WriteXLSX")
	}
	return nil
}

func writeSheet(f *excelize.File, s Sheet) error {
	for col, name := range s.Columns {
		if err := setCell(f, s.Name, col+1, 1, name); err != nil {
			return err
		}
	}
	offset := 0
	if len(s.Labels) > 0 {
		offset = 1
	}
	for r, row := range s.Rows {
		if offset == 1 && r < len(s.Labels) {
			if err := setCell(f, s.Name, 1, r+2, s.Labels[r]); err != nil {
				return err
			}
		}
		for col, v := range row {
			if math.IsNaN(v) {
				continue
			}
			if err := setCell(f, s.Name, col+1+offset, r+2, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, value interface{}) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err == nil {
		err = f.SetCellValue(sheet, name, value)
	}
	if err != nil {
		return pverrors.Wrapf(err, pverrors.KindIO, "write %s row %d col %d", sheet, row, col).
			WithComponent("curve")
	}
	return nil
}

// CurveSheet builds a two-column voltage/current sheet.
func CurveSheet(name string, c Curve) Sheet {
	rows := make([][]float64, len(c))
	for k, p := range c {
		rows[k] = []float64{p.V, p.I}
	}
	return Sheet{Name: name, Columns: []string{"voltage", "current"}, Rows: rows}
}
