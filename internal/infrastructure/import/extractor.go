// Package csvimport turns operator uploads (csv, xlsx, or a zip of those)
// into ordered voucher code lists.
package csvimport

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
)

// Limits bound what a single upload may contain.
type Limits struct {
	MaxFileSize   int64
	MaxZipEntries int
	MaxEntrySize  int64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:   10 << 20,
		MaxZipEntries: 100,
		MaxEntrySize:  10 << 20,
	}
}

// Extractor reads voucher codes out of uploaded files.
type Extractor struct {
	limits Limits
}

// NewExtractor creates an Extractor. Zero fields in limits take their defaults.
func NewExtractor(limits Limits) *Extractor {
	def := DefaultLimits()
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = def.MaxFileSize
	}
	if limits.MaxZipEntries <= 0 {
		limits.MaxZipEntries = def.MaxZipEntries
	}
	if limits.MaxEntrySize <= 0 {
		limits.MaxEntrySize = def.MaxEntrySize
	}
	return &Extractor{limits: limits}
}

// codeHeaders are the header names recognised as the voucher code column,
// after lower-casing and folding '-' and '_' to spaces.
var codeHeaders = map[string]bool{
	"code":            true,
	"codes":           true,
	"voucher":         true,
	"voucher code":    true,
	"vouchercode":     true,
	"card code":       true,
	"redeem code":     true,
	"redemption code": true,
	"key":             true,
}

// Extract returns the voucher codes in file order. Rows that are entirely
// blank are dropped; a blank code cell next to other data is kept as "" so
// the caller can report its position.
func (e *Extractor) Extract(filename string, data []byte) ([]string, error) {
	if int64(len(data)) > e.limits.MaxFileSize {
		return nil, invalid(ErrFileTooLarge, "%s is %d bytes, limit is %d", filename, len(data), e.limits.MaxFileSize)
	}

	var codes []string
	var err error
	switch kindOf(filename) {
	case kindZip:
		codes, err = e.extractZip(filename, data)
	case kindXLSX, kindCSV:
		codes, err = e.extractFile(filename, data)
	default:
		return nil, invalid(ErrUnsupportedFormat, "%s: expected .csv, .txt, .xlsx or .zip", filename)
	}
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, invalid(ErrNoCodes, "%s", filename)
	}
	return codes, nil
}

func (e *Extractor) extractFile(name string, data []byte) ([]string, error) {
	var rows [][]string
	var err error
	if kindOf(name) == kindXLSX {
		rows, err = parseXLSX(data, e.limits.MaxEntrySize)
	} else {
		rows, err = parseCSV(data)
	}
	if err != nil {
		return nil, invalid(err, "%s", name)
	}
	return codeColumn(rows), nil
}

func (e *Extractor) extractZip(name string, data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, invalid(errors.Join(ErrMalformedFile, err), "%s", name)
	}

	var entries []*zip.File
	for _, f := range zr.File {
		if !usableEntry(f) {
			continue
		}
		entries = append(entries, f)
	}
	if len(entries) == 0 {
		return nil, invalid(ErrNoUsableEntries, "%s", name)
	}
	if len(entries) > e.limits.MaxZipEntries {
		return nil, invalid(ErrTooManyEntries, "%s has %d spreadsheet entries, limit is %d", name, len(entries), e.limits.MaxZipEntries)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	var codes []string
	for _, f := range entries {
		if f.UncompressedSize64 > uint64(e.limits.MaxEntrySize) {
			return nil, invalid(ErrFileTooLarge, "%s: entry %s", name, f.Name)
		}
		body, err := readEntry(f, e.limits.MaxEntrySize)
		if err != nil {
			return nil, invalid(err, "%s: entry %s", name, f.Name)
		}
		got, err := e.extractFile(f.Name, body)
		if err != nil {
			return nil, err
		}
		codes = append(codes, got...)
	}
	return codes, nil
}

// readEntry reads at most limit bytes; the header's declared size is not trusted.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Join(ErrMalformedFile, err)
	}
	defer func() { _ = rc.Close() }()

	body, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, errors.Join(ErrMalformedFile, err)
	}
	if int64(len(body)) > limit {
		return nil, ErrFileTooLarge
	}
	return body, nil
}

func usableEntry(f *zip.File) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	if strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(path.Base(f.Name), ".") {
		return false
	}
	k := kindOf(f.Name)
	return k == kindCSV || k == kindXLSX
}

// codeColumn picks the code column from a header row when one is present,
// otherwise the first column of every row.
func codeColumn(rows [][]string) []string {
	rows = dropBlankRows(rows)
	if len(rows) == 0 {
		return nil
	}

	col := 0
	if idx, ok := headerIndex(rows[0]); ok {
		col = idx
		rows = rows[1:]
	}

	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		if col < len(row) {
			codes = append(codes, strings.TrimSpace(row[col]))
		} else {
			codes = append(codes, "")
		}
	}
	return codes
}

func headerIndex(row []string) (int, bool) {
	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(cell))
		name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
		if codeHeaders[name] {
			return i, true
		}
	}
	return 0, false
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

type fileKind int

const (
	kindUnknown fileKind = iota
	kindCSV
	kindXLSX
	kindZip
)

func kindOf(name string) fileKind {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".txt":
		return kindCSV
	case ".xlsx":
		return kindXLSX
	case ".zip":
		return kindZip
	default:
		return kindUnknown
	}
}
