package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/table"
)

// DefaultInferRows is how many data rows CSV type inference samples.
const DefaultInferRows = 1000

// DefaultMaxInflatedBytes caps the decompressed size of gzip and xz sources.
const DefaultMaxInflatedBytes int64 = 512 << 20

// Options controls how sources are parsed.
type Options struct {
	// InferRows caps the rows sampled for CSV/XLSX type inference.
	// Zero or negative means DefaultInferRows.
	InferRows int
	// MaxInflatedBytes caps decompressed sources. Zero or negative means
	// DefaultMaxInflatedBytes.
	MaxInflatedBytes int64
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{InferRows: DefaultInferRows, MaxInflatedBytes: DefaultMaxInflatedBytes}
}

func (o Options) inferRows() int {
	if o.InferRows <= 0 {
		return DefaultInferRows
	}
	return o.InferRows
}

func (o Options) maxInflated() int64 {
	if o.MaxInflatedBytes <= 0 {
		return DefaultMaxInflatedBytes
	}
	return o.MaxInflatedBytes
}

// Format is a supported source format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatAvro    Format = "avro"
	FormatParquet Format = "parquet"
	FormatXLSX    Format = "xlsx"
)

// DetectFormat maps a file name to its format by extension. A trailing
// .gz or .xz is ignored.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	lower = strings.TrimSuffix(lower, ".gz")
	lower = strings.TrimSuffix(lower, ".xz")
	ext := filepath.Ext(lower)
	switch ext {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".avro":
		return FormatAvro, nil
	case ".parquet":
		return FormatParquet, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported file format %q (supported: .csv, .json, .jsonl, .avro, .parquet, .xlsx)", ext)
	}
}

// Load parses the full contents of a source named name. The name only
// selects the format; compressed payloads are detected by content.
func Load(name string, data []byte, opts Options) (*table.Table, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindParse, err)
	}
	return LoadFormat(format, data, opts)
}

// LoadFormat parses data in an explicit format.
func LoadFormat(format Format, data []byte, opts Options) (*table.Table, error) {
	data, err := Decompress(data, opts.maxInflated())
	if err != nil {
		return nil, qerr.Wrap(qerr.KindParse, err)
	}

	switch format {
	case FormatCSV:
		return ParseCSV(data, opts)
	case FormatJSON:
		return parseJSON(data)
	case FormatJSONL:
		return parseJSONL(data)
	case FormatAvro:
		return parseAvro(data)
	case FormatParquet:
		return parseParquet(data)
	case FormatXLSX:
		return parseXLSX(data, opts)
	default:
		return nil, qerr.New(qerr.KindParse, "unsupported format %q", format)
	}
}

// LoadFile reads and parses a file from disk.
func LoadFile(filename string, opts Options) (*table.Table, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filename, err)
	}
	return Load(filename, data, opts)
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// Decompress inflates gzip or xz payloads, detected by magic bytes. Other
// data is returned unchanged. Output larger than limit bytes is an error.
func Decompress(data []byte, limit int64) ([]byte, error) {
	var r io.Reader
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case bytes.HasPrefix(data, xzMagic):
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xr
	default:
		return data, nil
	}

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("decompressed data exceeds the %d byte limit", limit)
	}
	return out, nil
}
