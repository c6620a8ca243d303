package curve

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	pverrors "github.com/copyleftdev/pvfit/internal/errors"
)

// ReadCSV reads a delimited table with a header row naming the voltage and
// current columns.
func ReadCSV(r io.Reader, comma rune) (Curve, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	records, err := cr.ReadAll()
	if err != nil {
		return nil, pverrors.Wrap(err, pverrors.KindInvalidInput, "parse csv").
			WithComponent("curve").WithOperation("ReadCSV")
	}
	if len(records) == 0 {
		return nil, pverrors.New(pverrors.KindInvalidInput, "empty csv").WithComponent("curve")
	}
	return fromRows(records[0], records[1:], true)
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, comma rune) (Curve, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pverrors.Wrapf(err, pverrors.KindIO, "open %s", path).WithComponent("curve")
	}
	defer f.Close()
	return ReadCSV(f, comma)
}

// WriteCSV writes c as a voltage,current table.
func WriteCSV(w io.Writer, c Curve) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"voltage", "current"}); err != nil {
		return pverrors.Wrap(err, pverrors.KindIO, "write header").WithComponent("curve")
	}
	for _, p := range c {
		rec := []string{
			strconv.FormatFloat(p.V, 'g', -1, 64),
			strconv.FormatFloat(p.I, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return pverrors.Wrap(err, pverrors.KindIO, "write row").WithComponent("curve")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return pverrors.Wrap(err, pverrors.KindIO, "flush csv").WithComponent("curve")
	}
	return nil
}

// WriteCSVFile writes c to path with WriteCSV, replacing any existing file.
func WriteCSVFile(path string, c Curve) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return pverrors.Wrapf(err, pverrors.KindIO, "create %s", path).WithComponent("curve")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = pverrors.Wrapf(cerr, pverrors.KindIO, "close %s", path).WithComponent("curve")
		}
	}()
	return WriteCSV(f, c)
}
