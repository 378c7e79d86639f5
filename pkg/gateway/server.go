package gateway

import (
	"datapulse/pkg/apis/response"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"net/http"
)

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.GET("/gateway/meta", getGatewayMeta(mgr))
	group.GET("/gateway/cpu", getGatewayCpu(mgr))
	group.GET("/gateway/mem", getGatewayMem(mgr))
	group.GET("/gateway/disk", getGatewayDisk(mgr))
}

func getGatewayMeta(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, mgr.GetGatewayMeta())
	}
}

func getGatewayCpu(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		cpu, err := mgr.getGatewayCpu()
		if err != nil {
			klog.V(2).InfoS("Failed to get gateway cpu", "err", err)
			c.JSON(http.StatusInternalServerError, response.NewMultiError(response.ErrHostStats(err)))
			return
		}
		c.JSON(http.StatusOK, ResponseModel{Cpus: cpu})
	}
}

func getGatewayMem(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		mem, err := mgr.getGatewayMem()
		if err != nil {
			klog.V(2).InfoS("Failed to get gateway memory", "err", err)
			c.JSON(http.StatusInternalServerError, response.NewMultiError(response.ErrHostStats(err)))
			return
		}
		c.JSON(http.StatusOK, ResponseModel{Mem: mem})
	}
}

func getGatewayDisk(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		disks, err := mgr.getGatewayDisk()
		if err != nil {
			klog.V(2).InfoS("Failed to get gateway disk", "err", err)
			c.JSON(http.StatusInternalServerError, response.NewMultiError(response.ErrHostStats(err)))
			return
		}
		c.JSON(http.StatusOK, ResponseModel{Disks: disks})
	}
}
