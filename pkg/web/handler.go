package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"datapulse/pkg/apis"
	"datapulse/pkg/apis/response"
	"datapulse/pkg/datalogger"
	"datapulse/pkg/engine"
	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"github.com/gin-gonic/gin"
	"github.com/mitchellh/mapstructure"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"
)

func InstallHandler(group *gin.RouterGroup, mgr *engine.Manager) {
	group.GET("/connection", getConnection(mgr))
	group.POST("/connection", connect(mgr))
	group.DELETE("/connection", disconnect(mgr))

	group.GET("/points/:kind/:address", readPoint(mgr))
	group.PUT("/points/:kind/:address", writePoint(mgr))

	group.GET("/view", getView(mgr))
	group.POST("/view", refreshView(mgr))

	group.GET("/scans", getScan(mgr))
	group.POST("/scans", startScan(mgr))
	group.DELETE("/scans", cancelScan(mgr))

	group.GET("/logging", getLogging(mgr))
	group.POST("/logging", startLogging(mgr))
	group.DELETE("/logging", stopLogging(mgr))

	group.GET("/alarms", getAlarms(mgr))
	group.GET("/status", getStatus(mgr))
	group.GET("/tasks", getTasks(mgr))
	group.POST("/tags/reload", reloadTags(mgr))

	group.GET("/settings", getSettings(mgr))
	group.PATCH("/settings", patchSettings(mgr))
}

type connectRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type pointResponse struct {
	Kind    constant.PointKind `json:"kind"`
	Address uint16             `json:"address"`
	Value   runtime.Value      `json:"value"`
}

type viewRequest struct {
	Kind  constant.PointKind `json:"kind"`
	Start uint16             `json:"start"`
}

type scanRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type loggingRequest struct {
	Kind     constant.PointKind `json:"kind"`
	Address  uint16             `json:"address"`
	Count    uint16             `json:"count"`
	Interval metav1.Duration    `json:"interval"`
}

type loggingResponse struct {
	Running bool            `json:"running"`
	Window  *loggingRequest `json:"window,omitempty"`
}

type alarmsResponse struct {
	Highest string                `json:"highest,omitempty"`
	Alarms  []runtime.ActiveAlarm `json:"alarms"`
}

func getConnection(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := mgr.Connection()
		state.Connected = mgr.IsConnected()
		c.JSON(http.StatusOK, state)
	}
}

func connect(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req connectRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				klog.V(2).InfoS("Failed to parse connect request", "err", err)
				c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
				return
			}
		}
		if err := mgr.Connect(c.Request.Context(), req.Host, req.Port); err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, mgr.Connection())
	}
}

func disconnect(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := mgr.Disconnect(); err != nil && errors.Is(err, constant.ErrNotConnected) {
			abort(c, err)
			return
		} else if err != nil {
			klog.V(2).InfoS("Disconnected with errors", "err", err)
		}
		c.Status(http.StatusNoContent)
	}
}

func readPoint(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, address, err := pointParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrInvalidValue(err)))
			return
		}
		value, err := mgr.ReadPoint(kind, address)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, pointResponse{Kind: kind, Address: address, Value: value})
	}
}

func writePoint(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, address, err := pointParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrInvalidValue(err)))
			return
		}
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			klog.V(2).InfoS("Failed to parse point write", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		value, err := decodeValue(kind, body)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrInvalidValue(err)))
			return
		}
		if err := mgr.WritePoint(kind, address, value); err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, pointResponse{Kind: kind, Address: address, Value: value})
	}
}

func getView(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		view := mgr.View()
		if view == nil {
			c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrResourceNotFound("Live view")))
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func refreshView(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := viewRequest{Kind: constant.HoldingRegister}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
				return
			}
		}
		view, err := mgr.RefreshView(req.Kind, req.Start)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func getScan(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := &runtime.ScanFilter{
			Kind:  c.Query(apis.Kind),
			Query: c.Query(apis.Search),
		}
		if tag := c.Query(apis.Tag); len(tag) > 0 {
			filter.Tag = tag
		}
		if len(filter.Kind) > 0 || len(filter.Query) > 0 || filter.Tag != nil {
			c.JSON(http.StatusOK, mgr.SearchScan(filter))
			return
		}
		report := mgr.ScanReport()
		if report == nil {
			c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrResourceNotFound("Scan")))
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func startScan(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req scanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		id, err := mgr.StartScan(req.Start, req.End)
		if err != nil {
			abort(c, err)
			return
		}
		c.Header(apis.Location, fmt.Sprintf("%s?id=%s", c.Request.URL.Path, id))
		c.JSON(http.StatusAccepted, gin.H{"id": id})
	}
}

func cancelScan(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		mgr.CancelScan()
		c.Status(http.StatusNoContent)
	}
}

func getLogging(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		w := mgr.LoggingWindow()
		if w == nil {
			c.JSON(http.StatusOK, loggingResponse{})
			return
		}
		c.JSON(http.StatusOK, loggingResponse{
			Running: true,
			Window: &loggingRequest{
				Kind:     w.Kind,
				Address:  w.Address,
				Count:    w.Count,
				Interval: metav1.Duration{Duration: w.Interval},
			},
		})
	}
}

func startLogging(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := loggingRequest{Interval: metav1.Duration{Duration: time.Second}}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		w := datalogger.Window{Kind: req.Kind, Address: req.Address, Count: req.Count, Interval: req.Interval.Duration}
		if err := mgr.StartLogging(w); err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, loggingResponse{Running: true, Window: &req})
	}
}

func stopLogging(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		mgr.StopLogging()
		c.Status(http.StatusNoContent)
	}
}

func getAlarms(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		set := mgr.ActiveAlarms()
		alarms := make([]runtime.ActiveAlarm, 0, len(set))
		for _, a := range set {
			alarms = append(alarms, a)
		}
		sort.Slice(alarms, func(i, j int) bool {
			if alarms[i].Priority != alarms[j].Priority {
				return alarms[i].Priority > alarms[j].Priority
			}
			return alarms[i].RuleID < alarms[j].RuleID
		})
		resp := alarmsResponse{Alarms: alarms}
		if len(set) > 0 {
			resp.Highest = set.HighestPriority().String()
		}
		c.JSON(http.StatusOK, resp)
	}
}

func getStatus(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, mgr.Status())
	}
}

func getTasks(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"running": mgr.Tasks()})
	}
}

func reloadTags(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := mgr.ReloadTags(c.Request.Context()); err != nil {
			klog.ErrorS(err, "Failed to reload tags")
			c.JSON(http.StatusInternalServerError, response.NewMultiError(response.ErrStorage(err)))
			return
		}
		c.JSON(http.StatusOK, mgr.Status())
	}
}

func getSettings(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, mgr.Settings())
	}
}

func patchSettings(mgr *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		contentType := c.ContentType()
		if contentType != apis.MergePatchContentType && contentType != gin.MIMEJSON {
			c.JSON(http.StatusUnsupportedMediaType, response.NewMultiError(response.ErrUnsupportedMedia(apis.MergePatchContentType)))
			return
		}
		patch, err := io.ReadAll(c.Request.Body)
		if err != nil {
			klog.V(2).InfoS("Failed to get request body", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrRequestBody(err)))
			return
		}
		settings, err := mgr.PatchSettings(patch)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, settings)
	}
}

func pointParams(c *gin.Context) (constant.PointKind, uint16, error) {
	kind, err := constant.ParsePointKind(c.Param("kind"))
	if err != nil {
		return kind, 0, err
	}
	address, err := strconv.ParseUint(c.Param("address"), 10, 16)
	if err != nil {
		return kind, 0, fmt.Errorf("address %q: %w", c.Param("address"), constant.ErrInvalidRange)
	}
	return kind, uint16(address), nil
}

// decodeValue reads body["value"] as the type the point kind holds. Strings
// such as "true" or "42" are accepted.
func decodeValue(kind constant.PointKind, body map[string]interface{}) (runtime.Value, error) {
	raw, ok := body["value"]
	if !ok {
		return runtime.Value{}, errors.New("value is required")
	}
	if kind == constant.Coil {
		var b bool
		if err := weakDecode(raw, &b); err != nil {
			return runtime.Value{}, err
		}
		return runtime.BoolValue(b), nil
	}
	var n int64
	if err := weakDecode(raw, &n); err != nil {
		return runtime.Value{}, err
	}
	if n < 0 || n > 0xFFFF {
		return runtime.Value{}, fmt.Errorf("%d does not fit a 16-bit register", n)
	}
	return runtime.WordValue(uint16(n)), nil
}

func weakDecode(input, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	if s, ok := input.(string); ok {
		input = strings.TrimSpace(s)
	}
	return decoder.Decode(input)
}
