// Package app boots the admin API server with database-backed components.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/seedframe/adminapi/internal/aggregate"
	"github.com/seedframe/adminapi/internal/config"
	"github.com/seedframe/adminapi/internal/db"
	adminapi "github.com/seedframe/adminapi/internal/http/api/admin"
	"github.com/seedframe/adminapi/internal/identity"
	"github.com/seedframe/adminapi/internal/logging"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations, including the remote
// rollup procedure on PostgreSQL.
func Migrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(config.ResolveConfigPath(configPath))
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	return db.EnsureAggregateProcedure(conn, internalDomains(cfg))
}

// RunServer boots the admin API server.
func RunServer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(config.ResolveConfigPath(configPath))
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log)

	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errProc := db.EnsureAggregateProcedure(conn, internalDomains(cfg)); errProc != nil {
		// The local path serves every request when the remote side is
		// unavailable; installation failure is not fatal.
		log.WithError(errProc).Warn("app: could not install aggregate procedure, remote path disabled")
	}

	resolver := identity.NewResolver(
		identity.NewGormProfileStore(conn),
		identity.NewGormDirectory(conn),
		cfg.InternalDomains,
	)
	engine := aggregate.NewFallbackEngine(
		aggregate.NewRemoteEngine(conn),
		aggregate.NewLocalEngine(conn, resolver),
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	adminapi.RegisterAdminRoutes(router, conn, engine, cfg.AdminPassword, requestTimeout)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// internalDomains returns the configured internal domains or the default set.
func internalDomains(cfg *config.Config) []string {
	if len(cfg.InternalDomains) > 0 {
		return cfg.InternalDomains
	}
	return identity.DefaultInternalDomains
}
