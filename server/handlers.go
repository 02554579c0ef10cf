package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/razeghi71/dqserve/auth"
	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/service"
)

type describeRequest struct {
	TableName string `json:"table_name"`
}

type deleteResponse struct {
	Message string `json:"message"`
}

func caller(c echo.Context) string {
	id, _ := auth.FromContext(c.Request().Context())
	return id.UserID
}

func decodeJSON(c echo.Context, v any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil {
		if err == io.EOF {
			return qerr.New(qerr.KindBadRequest, "request body is empty")
		}
		return qerr.Wrap(qerr.KindBadRequest, fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.String(http.StatusOK, "Hello from dqserve.")
}

func (s *Server) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return qerr.New(qerr.KindBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return qerr.Wrap(qerr.KindBadRequest, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return qerr.Wrap(qerr.KindBadRequest, err)
	}

	res, err := s.svc.Upload(c.Request().Context(), caller(c), fh.Filename, data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) query(c echo.Context) error {
	var req service.QueryRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	resp, err := s.svc.Query(c.Request().Context(), caller(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) download(c echo.Context) error {
	var req service.QueryRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	d, err := s.svc.Download(c.Request().Context(), caller(c), req, c.QueryParam("format"))
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", d.FileName))
	return c.Blob(http.StatusOK, d.ContentType, d.Data)
}

func (s *Server) describe(c echo.Context) error {
	var req describeRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	resp, err := s.svc.Describe(c.Request().Context(), caller(c), req.TableName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listUploads(c echo.Context) error {
	page, err := intParam(c, "page")
	if err != nil {
		return err
	}
	pageSize, err := intParam(c, "page_size")
	if err != nil {
		return err
	}
	list, err := s.svc.ListUploads(c.Request().Context(), caller(c), page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) deleteUpload(c echo.Context) error {
	id := c.Param("id")
	if err := s.svc.DeleteUpload(c.Request().Context(), caller(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deleteResponse{Message: "Upload deleted successfully"})
}

func (s *Server) profile(c echo.Context) error {
	usage, err := s.svc.Usage(c.Request().Context(), caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, usage)
}

// intParam reads an optional integer query parameter; absent means 0.
func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, qerr.New(qerr.KindBadRequest, "query parameter %s must be an integer, got %q", name, v)
	}
	return n, nil
}
