package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/razeghi71/dqserve/auth"
	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/server"
	"github.com/razeghi71/dqserve/service"
)

// handler serves API Gateway proxy events with the same routes and error
// bodies as the HTTP server.
type handler struct {
	svc      *service.Service
	verifier *auth.Verifier
	logger   *slog.Logger
	origins  []string
}

func (h *handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := strings.TrimSuffix(req.Path, "/")
	if path == "" {
		path = "/"
	}
	h.logger.Info("Request received", "method", req.HTTPMethod, "path", path,
		"request_id", req.RequestContext.RequestID)

	resp, err := h.route(ctx, req, path)
	if err != nil {
		status := server.StatusCode(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Request failed", "path", path, "error", err)
		} else {
			h.logger.Info("Request rejected", "path", path, "status", status, "error", err)
		}
		resp = jsonResponse(status, server.NewErrorResponse(err))
	}
	h.addCORS(req, &resp)
	return resp, nil
}

func (h *handler) route(ctx context.Context, req events.APIGatewayProxyRequest, path string) (events.APIGatewayProxyResponse, error) {
	if req.HTTPMethod == http.MethodGet && path == "/" {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: "Hello from dqserve."}, nil
	}
	if req.HTTPMethod == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, nil
	}

	id, err := h.verifier.Verify(header(req, "Authorization"))
	if err != nil {
		return events.APIGatewayProxyResponse{}, &qerr.Error{Kind: qerr.KindUnauthorized, Op: qerr.NoOp, Msg: "missing or invalid bearer token", Err: err}
	}
	user := id.UserID

	switch {
	case req.HTTPMethod == http.MethodPost && path == "/upload":
		name, data, err := formFile(req, "file")
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		res, err := h.svc.Upload(ctx, user, name, data)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return jsonResponse(http.StatusOK, res), nil

	case req.HTTPMethod == http.MethodPost && path == "/query":
		var q service.QueryRequest
		if err := decodeBody(req, &q); err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		res, err := h.svc.Query(ctx, user, q)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return jsonResponse(http.StatusOK, res), nil

	case req.HTTPMethod == http.MethodPost && path == "/query/download":
		var q service.QueryRequest
		if err := decodeBody(req, &q); err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		d, err := h.svc.Download(ctx, user, q, req.QueryStringParameters["format"])
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers: map[string]string{
				"Content-Type":        d.ContentType,
				"Content-Disposition": fmt.Sprintf("attachment; filename=%q", d.FileName),
			},
			Body:            base64.StdEncoding.EncodeToString(d.Data),
			IsBase64Encoded: true,
		}, nil

	case req.HTTPMethod == http.MethodPost && path == "/describe":
		var body struct {
			TableName string `json:"table_name"`
		}
		if err := decodeBody(req, &body); err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		res, err := h.svc.Describe(ctx, user, body.TableName)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return jsonResponse(http.StatusOK, res), nil

	case req.HTTPMethod == http.MethodGet && path == "/uploads":
		page, err := intParam(req, "page")
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		size, err := intParam(req, "page_size")
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		res, err := h.svc.ListUploads(ctx, user, page, size)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return jsonResponse(http.StatusOK, res), nil

	case req.HTTPMethod == http.MethodDelete && strings.HasPrefix(path, "/uploads/"):
		uploadID := req.PathParameters["id"]
		if uploadID == "" {
			uploadID = strings.TrimPrefix(path, "/uploads/")
		}
		if err := h.svc.DeleteUpload(ctx, user, uploadID); err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return jsonResponse(http.StatusOK, map[string]string{"message": "Upload deleted successfully"}), nil

	case req.HTTPMethod == http.MethodGet && path == "/profile":
		res, err := h.svc.Usage(ctx, user)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return jsonResponse(http.StatusOK, res), nil
	}

	return events.APIGatewayProxyResponse{}, qerr.New(qerr.KindNotFound, "no route for %s %s", req.HTTPMethod, path)
}

func (h *handler) addCORS(req events.APIGatewayProxyRequest, resp *events.APIGatewayProxyResponse) {
	origin := header(req, "Origin")
	if origin == "" || !slices.Contains(h.origins, origin) {
		return
	}
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers["Access-Control-Allow-Origin"] = origin
	resp.Headers["Access-Control-Allow-Headers"] = "Authorization, Content-Type"
	resp.Headers["Access-Control-Allow-Methods"] = "GET, POST, DELETE, OPTIONS"
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(server.ErrorResponse{Error: "failed to encode response", Status: status})
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// header looks up a header case-insensitively.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	data, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, qerr.New(qerr.KindBadRequest, "request body is not valid base64")
	}
	return data, nil
}

func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	data, err := requestBody(req)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return qerr.New(qerr.KindBadRequest, "request body is empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return qerr.Wrap(qerr.KindBadRequest, fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// formFile extracts one file part from a multipart body.
func formFile(req events.APIGatewayProxyRequest, field string) (string, []byte, error) {
	mediaType, params, err := mime.ParseMediaType(header(req, "Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return "", nil, qerr.New(qerr.KindBadRequest, "expected a multipart/form-data body")
	}
	data, err := requestBody(req)
	if err != nil {
		return "", nil, err
	}

	mr := multipart.NewReader(bytes.NewReader(data), params["boundary"])
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, qerr.Wrap(qerr.KindBadRequest, fmt.Errorf("malformed multipart body: %w", err))
		}
		if part.FormName() != field {
			continue
		}
		content, err := io.ReadAll(part)
		if err != nil {
			return "", nil, qerr.Wrap(qerr.KindBadRequest, err)
		}
		return part.FileName(), content, nil
	}
	return "", nil, qerr.New(qerr.KindBadRequest, "multipart field %q is required", field)
}

func intParam(req events.APIGatewayProxyRequest, name string) (int, error) {
	v := req.QueryStringParameters[name]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, qerr.New(qerr.KindBadRequest, "query parameter %s must be an integer, got %q", name, v)
	}
	return n, nil
}
