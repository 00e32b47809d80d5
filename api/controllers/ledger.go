package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/supplytrace-backend/api/responses"
	"github.com/angelmondragon/supplytrace-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
)

// ChainVerifier walks the hash-chained ledger.
type ChainVerifier interface {
	Verify(ctx context.Context) (ledger.VerifyReport, error)
}

// VerifyLedger reports whether the chain is intact. It is only served when
// the API runs with the chain ledger.
func VerifyLedger(verifier ChainVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "ledger verification requires the chain ledger"))
			return
		}
		report, err := verifier.Verify(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify ledger"))
			return
		}
		if !report.Valid && logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"broken_at": report.BrokenAt,
				"reason":    report.Reason,
			})
			logg.Warn(ctx, "ledger.chain.broken")
		}
		responses.WriteSuccess(w, report)
	}
}
