// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the background workers, then disconnects MongoDB.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if s := current(); s != nil {
		if s.repair != nil {
			s.repair.Stop()
		}
		s.limiter.Stop()
	}

	if deps.TrackerMongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.TrackerMongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
