package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"careplane/pkg/config"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine, NewHttpServer),
	fx.Invoke(Run),
)

// NewEngine builds the gin engine shared by all route groups.
func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

type Server struct {
	server *http.Server
	certs  *certStore
}

type Params struct {
	fx.In
	Config  *config.Config
	Handler *gin.Engine
}

func NewHttpServer(p Params) *Server {
	cfg := p.Config
	srv := &Server{
		server: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      p.Handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}

	if cfg.TLS.Enable {
		srv.certs = newCertStore(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		srv.server.TLSConfig = &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: srv.certs.current,
		}
		go srv.certs.watch()
	}

	return srv
}

func Run(lc fx.Lifecycle, srv *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zap.L().Info("http server starting",
				zap.String("addr", srv.server.Addr),
				zap.Bool("tls", srv.server.TLSConfig != nil))

			go func() {
				var err error
				if srv.server.TLSConfig != nil {
					// Certs come from the store via GetCertificate.
					err = srv.server.ListenAndServeTLS("", "")
				} else {
					err = srv.server.ListenAndServe()
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("http server exited", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("http server shutting down")
			return srv.server.Shutdown(ctx)
		},
	})
}

// certStore holds the active TLS key pair and swaps it in place when the
// files on disk change, so cert rotation does not need a restart.
type certStore struct {
	mu       sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
}

func newCertStore(certPath, keyPath string) *certStore {
	cs := &certStore{certPath: certPath, keyPath: keyPath}
	cs.reload()
	return cs
}

func (cs *certStore) current(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.cert == nil {
		return nil, fmt.Errorf("no TLS certificate loaded")
	}
	return cs.cert, nil
}

func (cs *certStore) reload() {
	cert, err := tls.LoadX509KeyPair(cs.certPath, cs.keyPath)
	if err != nil {
		zap.L().Error("failed to load TLS key pair", zap.Error(err))
		return
	}

	cs.mu.Lock()
	cs.cert = &cert
	cs.mu.Unlock()
	zap.L().Info("TLS certificate loaded", zap.String("cert", cs.certPath))
}

func (cs *certStore) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zap.L().Error("failed to watch TLS files", zap.Error(err))
		return
	}
	defer watcher.Close()

	_ = watcher.Add(cs.certPath)
	_ = watcher.Add(cs.keyPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				cs.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("TLS watcher error", zap.Error(err))
		}
	}
}
