package core

// archive.go extracts the data file from the compressed archive published by
// the statistical agency.
//
// The archive usually holds the data file plus a metadata sheet; the first
// entry whose name ends in .csv or .txt is taken. The suffix check is
// case-sensitive, matching the names as supplied.

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding/charmap"
)

// DataFileSuffixes are the entry name suffixes recognized as data files.
var DataFileSuffixes = []string{".csv", ".txt"}

// ReadArchive returns the decoded text of the first data file in the zip
// archive held by data, along with the entry name.
//
// Entries that are not valid UTF-8 are decoded as Windows-1252.
func ReadArchive(data []byte) (name, text string, err error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", "", fmt.Errorf("open archive: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isDataFile(f.Name) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return "", "", fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", "", fmt.Errorf("read entry %s: %w", f.Name, err)
		}

		decoded, err := decodeText(raw)
		if err != nil {
			return "", "", fmt.Errorf("decode entry %s: %w", f.Name, err)
		}
		return f.Name, decoded, nil
	}

	return "", "", fmt.Errorf("%w: no entry matching %s among %d entries",
		ErrArchiveEntryNotFound, strings.Join(DataFileSuffixes, ", "), len(zr.File))
}

func isDataFile(name string) bool {
	for _, suffix := range DataFileSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// decodeText returns raw as a string, transcoding from Windows-1252 when raw
// is not valid UTF-8.
func decodeText(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
