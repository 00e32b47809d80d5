package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/supplytrace-backend/api/responses"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
)

const (
	healthCheckTimeout = 2 * time.Second
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
	statusDisabled     = "disabled"
)

// Pinger is a dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthDeps are the dependencies probed by the health endpoints. A nil
// Redis means the API runs without a cache.
type HealthDeps struct {
	Env      string
	Database Pinger
	Redis    Pinger
}

type healthReport struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
	Redis     string `json:"redis"`
}

// Health reports storage connectivity. It always answers 200 so that the
// frontend can show which store is down.
func Health(deps HealthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		responses.WriteJSON(w, http.StatusOK, healthReport{
			Status:    "OK",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Database:  probe(ctx, deps.Database),
			Redis:     probe(ctx, deps.Redis),
		})
	}
}

func HealthLive(deps HealthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Supplytrace-Env", deps.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady fails with 503 while any configured dependency is unreachable.
func HealthReady(deps HealthDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Supplytrace-Env", deps.Env)
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		var err error
		if deps.Database != nil {
			if pingErr := deps.Database.Ping(ctx); pingErr != nil {
				err = multierr.Append(err, fmt.Errorf("database: %w", pingErr))
			}
		}
		if deps.Redis != nil {
			if pingErr := deps.Redis.Ping(ctx); pingErr != nil {
				err = multierr.Append(err, fmt.Errorf("redis: %w", pingErr))
			}
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "not ready"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}

func probe(ctx context.Context, dep Pinger) string {
	if dep == nil {
		return statusDisabled
	}
	if err := dep.Ping(ctx); err != nil {
		return statusDisconnected
	}
	return statusConnected
}
