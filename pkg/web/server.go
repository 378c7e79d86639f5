package web

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"datapulse/cmd/datapulse/config"
	"datapulse/cmd/datapulse/options"
	"datapulse/pkg/gateway"
	"datapulse/pkg/generic"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

type Server struct {
	*generic.Server
	*config.Config
}

func NewServer(router *gin.Engine, o *options.Options, config *config.Config) (*Server, error) {
	allowMethods := []string{http.MethodPost, http.MethodGet, http.MethodDelete, http.MethodPut, http.MethodPatch}

	s := &generic.Server{
		Router:   router,
		Port:     o.Port,
		Methods:  allowMethods,
		CertFile: o.CertFile,
		KeyFile:  o.KeyFile,
	}

	server := &Server{
		Server: s,
		Config: config,
	}

	server.InstallHandlers()

	return server, nil
}

func (s *Server) InstallHandlers() {
	if s.Config.Metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.Config.Metrics.Handler()))
	}
	v1 := s.Router.Group("/api/v1")
	InstallHandler(v1, s.Config.Engine)
	if s.Config.Gateway != nil {
		gateway.InstallHandler(v1, s.Config.Gateway)
	}
}

// Serve starts listening in the background and returns the function that
// shuts the server and the engine down.
func (s *Server) Serve() (func(ctx context.Context), error) {
	var srv *http.Server
	if len(s.Server.CertFile) != 0 && len(s.Server.KeyFile) != 0 {
		x509KeyPair, err := tls.LoadX509KeyPair(s.Server.CertFile, s.Server.KeyFile)
		if err != nil {
			return nil, err
		}
		c := &tls.Config{
			Certificates: []tls.Certificate{x509KeyPair},
		}

		srv = &http.Server{
			Addr:      fmt.Sprintf(":%s", s.Port),
			Handler:   s.Router,
			TLSConfig: c,
		}
		go func() {
			if err := srv.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				klog.ErrorS(err, "HTTPS server stopped")
			}
		}()
	} else {
		srv = &http.Server{
			Addr:    fmt.Sprintf(":%s", s.Port),
			Handler: s.Router,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				klog.ErrorS(err, "HTTP server stopped")
			}
		}()
	}

	return func(ctx context.Context) {
		srv.SetKeepAlivesEnabled(false)
		if err := s.Config.Engine.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "Engine did not shut down cleanly")
		}
		if err := srv.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "HTTP server did not shut down cleanly")
		}
		s.Config.Close()
	}, nil
}
