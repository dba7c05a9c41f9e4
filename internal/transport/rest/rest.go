// Package rest implements CALIBER's thin REST facade: health, pack
// inspection, and context assembly. The DTO layer itself — request/
// response body shapes for every entity-service operation — is explicitly
// out of scope (spec §1 Non-goals: "HTTP/gRPC/WebSocket DTO layer
// detail"); this package wires the operations spec §6.1 names by path
// (`/health`, `/pack/inspect`, the pack validate/parse/compose/deploy
// operations, `/search`, context assembly) onto the already-typed Go
// services, using gin the way cmd/tarsy/main.go's minimal router does.
package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Heyoub/caliber-sub001/internal/assembler"
	"github.com/Heyoub/caliber-sub001/internal/coordination"
	"github.com/Heyoub/caliber-sub001/internal/entities"
	"github.com/Heyoub/caliber-sub001/internal/locks"
	"github.com/Heyoub/caliber-sub001/internal/messages"
	"github.com/Heyoub/caliber-sub001/internal/pack"
	"github.com/Heyoub/caliber-sub001/internal/providers"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// Dependencies bundles every component a REST handler might reach into,
// mirroring tarsy's Server struct's "one service pointer per concern"
// shape (pkg/api/server.go), built once in cmd/caliberd/main.go.
type Dependencies struct {
	Store      *store.Store
	Entities   *entities.Service
	Locks      *locks.Arbiter
	Messages   *messages.Bus
	Coordinate *coordination.Coordinator
	Providers  *providers.Registry
	Assembler  *assembler.Assembler
	Pack       *pack.CompiledConfig
	PackOps    *pack.Service
}

// Server is the HTTP API server.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	deps   Dependencies
	log    *slog.Logger
}

// New builds a Server and registers its routes.
func New(deps Dependencies, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, deps: deps, log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)
	s.engine.GET("/pack/inspect", s.packInspectHandler)
	s.engine.POST("/pack/validate", s.packValidateHandler)
	s.engine.POST("/pack/parse", s.packParseHandler)
	s.engine.POST("/pack/compose", s.packComposeHandler)
	s.engine.POST("/pack/deploy", s.packDeployHandler)
	s.engine.POST("/search", s.searchHandler)
	s.engine.POST("/context/assemble", s.assembleHandler)
}

// ListenAndServe starts the HTTP server on addr and blocks until it
// stops or errors; Shutdown (called from main's signal handler) causes it
// to return http.ErrServerClosed, which callers should not treat as a
// failure.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
