package web

import (
	"errors"
	"net/http"

	"datapulse/pkg/apis/response"
	"datapulse/pkg/engine"
	"datapulse/pkg/runtime/constant"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

// abort writes err as a coded error body with the matching status.
func abort(c *gin.Context, err error) {
	status, body := responseFor(err)
	if status >= http.StatusInternalServerError {
		klog.ErrorS(err, "Request failed", "URI", c.Request.URL.Path)
	} else {
		klog.V(3).InfoS("Request rejected", "URI", c.Request.URL.Path, "status", status, "err", err)
	}
	c.JSON(status, response.NewMultiError(body))
}

func responseFor(err error) (int, error) {
	switch {
	case errors.Is(err, constant.ErrNotConnected):
		return http.StatusConflict, response.ErrNotConnected
	case errors.Is(err, constant.ErrConnect):
		return http.StatusBadGateway, response.ErrConnect(err)
	case errors.Is(err, constant.ErrScanInProgress):
		return http.StatusConflict, response.ErrScanInProgress
	case errors.Is(err, constant.ErrAlreadyRunning):
		return http.StatusConflict, response.ErrAlreadyRunning("logger")
	case errors.Is(err, constant.ErrInvalidRange):
		return http.StatusBadRequest, response.ErrInvalidRange(err)
	case errors.Is(err, constant.ErrCountLimit):
		return http.StatusBadRequest, response.ErrCountLimit(err)
	case errors.Is(err, constant.ErrReadOnly), errors.Is(err, constant.ErrValueType), errors.Is(err, constant.ErrUnknownKind):
		return http.StatusBadRequest, response.ErrInvalidValue(err)
	case errors.Is(err, engine.ErrInvalidSettings):
		return http.StatusUnprocessableEntity, response.ErrInvalidSettings(err)
	case errors.Is(err, constant.ErrReadTimeout):
		return http.StatusGatewayTimeout, response.ErrDevice(err)
	case errors.Is(err, constant.ErrProtocol), errors.Is(err, constant.ErrTransport), errors.Is(err, constant.ErrShortResponse):
		return http.StatusBadGateway, response.ErrDevice(err)
	default:
		return http.StatusInternalServerError, response.ErrDevice(err)
	}
}
