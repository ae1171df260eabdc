package serializer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/ai"
)

var log = zap.NewNop()

// SetLogger lets the package report server side failures.
func SetLogger(l *zap.Logger) {
	if l != nil {
		log = l
	}
}

// Response
type Response struct {
	Code  int         `json:"code"`
	Data  interface{} `json:"data,omitempty"`
	Msg   string      `json:"msg"`
	Error string      `json:"error,omitempty"`
	// Reason is a stable machine readable cause, set for routing and provider failures.
	Reason string `json:"reason,omitempty"`
}

// ListData is the page envelope of list endpoints.
type ListData struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// Err
func Err(errCode int, msg string, err error) Response {
	res := Response{
		Code: errCode,
		Msg:  msg,
	}
	// development mode, show error detail
	if err != nil && gin.Mode() != gin.ReleaseMode {
		res.Error = fmt.Sprintf("%+v", err)
	}
	return res
}

// DBErr
func DBErr(msg string, err error) Response {
	if msg == "" {
		msg = "database error"
	}
	log.Sugar().Errorw("database error", "msg", msg, "err", err)
	return Err(http.StatusInternalServerError, msg, err)
}

// ParamErr
func ParamErr(msg string, err error) Response {
	if msg == "" {
		msg = "parameter error"
	}
	return Err(http.StatusBadRequest, msg, err)
}

// AuthErr
func AuthErr(msg string) Response {
	if msg == "" {
		msg = "authentication error"
	}
	return Err(http.StatusUnauthorized, msg, nil)
}

// NotFoundErr
func NotFoundErr(msg string) Response {
	if msg == "" {
		msg = "not found"
	}
	return Err(http.StatusNotFound, msg, nil)
}

// ConflictErr
func ConflictErr(msg string, err error) Response {
	if msg == "" {
		msg = "conflict"
	}
	return Err(http.StatusConflict, msg, err)
}

// AIErr maps routing and provider failures to their HTTP status and reason
// code. Other errors are reported as 500.
func AIErr(err error) (int, Response) {
	var aerr *ai.Error
	if !errors.As(err, &aerr) {
		log.Sugar().Errorw("unexpected ai failure", "err", err)
		return http.StatusInternalServerError, Err(http.StatusInternalServerError, "internal error", err)
	}
	status := aerr.HTTPStatus()
	res := Response{Code: status, Msg: aerr.Message, Reason: aerr.Code()}
	if res.Msg == "" {
		res.Msg = aerr.Error()
	}
	return status, res
}
