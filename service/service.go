// Package service implements the stateless query API on top of the engine:
// every request resolves the caller's upload, fetches its bytes, loads a
// fresh table and runs the pipeline against it.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/highwayhash"

	"github.com/razeghi71/dqserve/ast"
	"github.com/razeghi71/dqserve/engine"
	"github.com/razeghi71/dqserve/loader"
	"github.com/razeghi71/dqserve/output"
	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/source"
	"github.com/razeghi71/dqserve/store"
	"github.com/razeghi71/dqserve/table"
)

// checksumKey is the fixed HighwayHash key, so equal files always hash equal.
var checksumKey = []byte("dqserve-upload-checksum-key-0001")

// Records is the bookkeeping the service needs.
type Records interface {
	CreateUpload(ctx context.Context, u *store.Upload) error
	GetUpload(ctx context.Context, userID, id string) (*store.Upload, error)
	GetUploadByTable(ctx context.Context, userID, tableName string) (*store.Upload, error)
	ListUploads(ctx context.Context, userID string, page, pageSize int) (*store.UploadPage, error)
	DeleteUpload(ctx context.Context, userID, id string) (*store.Upload, error)
	IncrementQueries(ctx context.Context, userID string) error
	IncrementFiles(ctx context.Context, userID string) error
	Usage(ctx context.Context, userID string) (*store.Usage, error)
}

// Presigner is implemented by sources that can hand out direct links.
type Presigner interface {
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Service wires the byte-source and the bookkeeping store to the engine.
type Service struct {
	Source      source.ByteSource
	Records     Records
	Logger      *slog.Logger
	LoadOptions loader.Options

	// PresignTTL is the lifetime of file links. Zero disables them.
	PresignTTL time.Duration
	// FetchTimeout bounds each byte-source fetch. Zero means no bound.
	FetchTimeout time.Duration
}

// QueryRequest names the caller's table and the pipeline to run on it.
type QueryRequest struct {
	TableName  string       `json:"table_name"`
	Operations ast.Pipeline `json:"operations"`
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	TableName string  `json:"table_name"`
	FileName  string  `json:"file_name"`
	FileSize  int64   `json:"file_size"`
	FileLink  *string `json:"file_link"`
	Success   bool    `json:"success"`
}

// UploadInfo is an upload record with its file link.
type UploadInfo struct {
	store.Upload
	FileLink *string `json:"file_link"`
}

// UploadList is one page of uploads.
type UploadList struct {
	Data       []UploadInfo `json:"data"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int64        `json:"total_pages"`
}

// Download is an encoded query result ready to send as a file.
type Download struct {
	Data        []byte
	ContentType string
	FileName    string
}

// Download formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var contentTypes = map[loader.Format]string{
	loader.FormatCSV:     "text/csv",
	loader.FormatJSON:    "application/json",
	loader.FormatJSONL:   "application/x-ndjson",
	loader.FormatAvro:    "application/avro",
	loader.FormatParquet: "application/vnd.apache.parquet",
	loader.FormatXLSX:    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// Upload validates a file by parsing it, stores its bytes and records it
// for userID. The table name is the generated storage key without its
// extension.
func (s *Service) Upload(ctx context.Context, userID, fileName string, data []byte) (*UploadResult, error) {
	if fileName == "" {
		return nil, qerr.New(qerr.KindBadRequest, "file name is required")
	}
	if len(data) == 0 {
		return nil, qerr.New(qerr.KindBadRequest, "file %q is empty", fileName)
	}
	format, err := loader.DetectFormat(fileName)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindBadRequest, err)
	}
	t, err := loader.LoadFormat(format, data, s.LoadOptions)
	if err != nil {
		return nil, err
	}

	checksum, err := checksum(data)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindInternal, err)
	}

	tableName := uuid.New().String()
	key := tableName + storageExt(fileName)
	log := s.logger().With("user_id", userID, "table", tableName)

	if err := s.Source.Store(ctx, key, data, contentTypes[format]); err != nil {
		log.Error("Failed to store upload", "key", key, "error", err)
		return nil, qerr.Wrap(qerr.KindStorage, err)
	}

	upload := &store.Upload{
		ID:         uuid.New().String(),
		UserID:     userID,
		FileName:   fileName,
		StorageKey: key,
		FileSize:   int64(len(data)),
		FileType:   string(format),
		TableName:  tableName,
		Checksum:   checksum,
	}
	if err := s.Records.CreateUpload(ctx, upload); err != nil {
		log.Error("Failed to record upload", "error", err)
		if derr := s.Source.Delete(ctx, key); derr != nil {
			log.Warn("Failed to remove orphaned object", "key", key, "error", derr)
		}
		return nil, recordsError(err)
	}
	if err := s.Records.IncrementFiles(ctx, userID); err != nil {
		return nil, recordsError(err)
	}

	log.Info("Upload stored", "file_name", fileName, "bytes", len(data),
		"rows", t.NumRows(), "columns", t.NumCols())
	return &UploadResult{
		TableName: tableName,
		FileName:  fileName,
		FileSize:  int64(len(data)),
		FileLink:  s.fileLink(ctx, key),
		Success:   true,
	}, nil
}

// Query runs req against a fresh copy of the caller's table.
func (s *Service) Query(ctx context.Context, userID string, req QueryRequest) (*output.QueryResponse, error) {
	result, err := s.run(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	resp, err := output.FromTable(result)
	if err != nil {
		return nil, err
	}
	if err := s.Records.IncrementQueries(ctx, userID); err != nil {
		return nil, recordsError(err)
	}
	return resp, nil
}

// Download runs req and encodes the result as CSV (the default) or XLSX.
func (s *Service) Download(ctx context.Context, userID string, req QueryRequest, format string) (*Download, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		return nil, qerr.New(qerr.KindBadRequest, "unsupported download format %q (supported: csv, xlsx)", format)
	}

	resp, err := s.Query(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	d := &Download{FileName: "query_results." + format}
	switch format {
	case FormatXLSX:
		d.ContentType = contentTypes[loader.FormatXLSX]
		d.Data, err = output.EncodeXLSX(resp)
	default:
		d.ContentType = "text/csv; charset=utf-8"
		d.Data, err = output.EncodeCSV(resp)
	}
	if err != nil {
		return nil, qerr.Wrap(qerr.KindSerialization, err)
	}
	return d, nil
}

// Describe returns summary statistics of the caller's table.
func (s *Service) Describe(ctx context.Context, userID, tableName string) (*output.QueryResponse, error) {
	t, err := s.loadTable(ctx, userID, tableName)
	if err != nil {
		return nil, err
	}
	summary, err := engine.Describe(t)
	if err != nil {
		return nil, err
	}
	return output.FromTable(summary)
}

// ListUploads returns one page of the caller's uploads with file links.
func (s *Service) ListUploads(ctx context.Context, userID string, page, pageSize int) (*UploadList, error) {
	p, err := s.Records.ListUploads(ctx, userID, page, pageSize)
	if err != nil {
		return nil, recordsError(err)
	}
	list := &UploadList{
		Data:       make([]UploadInfo, 0, len(p.Uploads)),
		Total:      p.Total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
	for _, u := range p.Uploads {
		list.Data = append(list.Data, UploadInfo{Upload: u, FileLink: s.fileLink(ctx, u.StorageKey)})
	}
	return list, nil
}

// DeleteUpload removes the stored object and then the record. An object
// already missing from storage does not block removing the record.
func (s *Service) DeleteUpload(ctx context.Context, userID, id string) error {
	u, err := s.Records.GetUpload(ctx, userID, id)
	if err != nil {
		return recordsError(err)
	}
	if err := s.Source.Delete(ctx, u.StorageKey); err != nil && !errors.Is(err, source.ErrNotFound) {
		return qerr.Wrap(qerr.KindStorage, err)
	}
	if _, err := s.Records.DeleteUpload(ctx, userID, id); err != nil {
		return recordsError(err)
	}
	s.logger().Info("Upload deleted", "user_id", userID, "upload_id", id, "table", u.TableName)
	return nil
}

// Usage returns the caller's counters.
func (s *Service) Usage(ctx context.Context, userID string) (*store.Usage, error) {
	u, err := s.Records.Usage(ctx, userID)
	if err != nil {
		return nil, recordsError(err)
	}
	return u, nil
}

func (s *Service) run(ctx context.Context, userID string, req QueryRequest) (*table.Table, error) {
	t, err := s.loadTable(ctx, userID, req.TableName)
	if err != nil {
		return nil, err
	}
	log := s.logger().With("user_id", userID)
	start := time.Now()
	result, err := engine.NewSession(req.TableName, t, log).Run(req.Operations)
	if err != nil {
		log.Info("Query failed", "table", req.TableName, "error", err)
		return nil, err
	}
	log.Info("Query executed", "table", req.TableName, "operations", len(req.Operations),
		"rows", result.NumRows(), "duration", time.Since(start))
	return result, nil
}

// loadTable resolves tableName for userID and parses its stored bytes.
func (s *Service) loadTable(ctx context.Context, userID, tableName string) (*table.Table, error) {
	if tableName == "" {
		return nil, qerr.New(qerr.KindBadRequest, "table_name is required")
	}
	u, err := s.Records.GetUploadByTable(ctx, userID, tableName)
	if err != nil {
		return nil, recordsError(err)
	}

	fetchCtx := ctx
	if s.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.FetchTimeout)
		defer cancel()
	}
	data, err := s.Source.Fetch(fetchCtx, u.StorageKey)
	if errors.Is(err, source.ErrNotFound) {
		return nil, qerr.New(qerr.KindNotFound, "file for table %q is missing from storage", tableName)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, qerr.New(qerr.KindQueryExecution, "fetching table %q timed out", tableName)
	}
	if err != nil {
		return nil, qerr.Wrap(qerr.KindStorage, err)
	}
	return loader.Load(u.StorageKey, data, s.LoadOptions)
}

func (s *Service) fileLink(ctx context.Context, key string) *string {
	p, ok := s.Source.(Presigner)
	if !ok || s.PresignTTL <= 0 {
		return nil
	}
	url, err := p.PresignURL(ctx, key, s.PresignTTL)
	if err != nil {
		s.logger().Warn("Failed to presign file link", "key", key, "error", err)
		return nil
	}
	return &url
}

func recordsError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &qerr.Error{Kind: qerr.KindNotFound, Op: qerr.NoOp, Msg: err.Error(), Err: err}
	}
	return qerr.Wrap(qerr.KindStorage, err)
}

// storageExt keeps the format extension of name along with any
// compression suffix, lower-cased.
func storageExt(name string) string {
	lower := strings.ToLower(path.Base(name))
	comp := ""
	for _, suffix := range []string{".gz", ".xz"} {
		if strings.HasSuffix(lower, suffix) {
			comp = suffix
			lower = strings.TrimSuffix(lower, suffix)
			break
		}
	}
	return path.Ext(lower) + comp
}

func checksum(data []byte) (string, error) {
	h, err := highwayhash.New(checksumKey)
	if err != nil {
		return "", fmt.Errorf("failed to create hash: %w", err)
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
