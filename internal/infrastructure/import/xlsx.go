package csvimport

import (
	"bytes"
	"errors"

	"github.com/xuri/excelize/v2"
)

// parseXLSX returns the rows of the workbook's active sheet, falling back to
// the first sheet.
func parseXLSX(data []byte, unzipLimit int64) ([][]string, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	opts := excelize.Options{}
	if unzipLimit > 0 {
		opts.UnzipSizeLimit = unzipLimit
		opts.UnzipXMLSizeLimit = unzipLimit
	}
	f, err := excelize.OpenReader(bytes.NewReader(data), opts)
	if err != nil {
		return nil, errors.Join(ErrMalformedFile, err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyFile
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Join(ErrMalformedFile, err)
	}
	return rows, nil
}
