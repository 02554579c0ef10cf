package server

import (
	"errors"
	"net/http"

	"github.com/razeghi71/dqserve/qerr"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	switch qerr.KindOf(err) {
	case qerr.KindParse, qerr.KindInvalidQuery, qerr.KindType, qerr.KindBadRequest:
		return http.StatusBadRequest
	case qerr.KindColumnNotFound, qerr.KindNotFound:
		return http.StatusNotFound
	case qerr.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the body for err. Unclassified errors are
// reported without their details.
func NewErrorResponse(err error) ErrorResponse {
	status := StatusCode(err)
	var qe *qerr.Error
	if !errors.As(err, &qe) {
		return ErrorResponse{Error: "internal server error", Status: status}
	}
	return ErrorResponse{Error: qe.Error(), Status: status}
}
