package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/api/responses"
	"github.com/campustix/campustix-backend/pkg/db/models"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
	"github.com/campustix/campustix-backend/pkg/security"
)

const (
	operatorIDHeader  = "X-Operator-Id"
	operatorKeyHeader = "X-Operator-Key"
)

// OperatorFinder resolves gate operator credentials.
type OperatorFinder interface {
	FindOperator(ctx context.Context, id uuid.UUID) (*models.GateOperator, error)
}

// OperatorAuth authenticates gate scanners by operator id plus API key.
func OperatorAuth(finder OperatorFinder, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawID := strings.TrimSpace(r.Header.Get(operatorIDHeader))
			key := strings.TrimSpace(r.Header.Get(operatorKeyHeader))
			if rawID == "" || key == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing operator credentials"))
				return
			}

			operatorID, err := uuid.Parse(rawID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid operator credentials"))
				return
			}

			operator, err := finder.FindOperator(r.Context(), operatorID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid operator credentials"))
					return
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup operator"))
				return
			}
			if !operator.Active || operator.RevokedAt != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator revoked"))
				return
			}

			match, err := security.VerifyAPIKey(key, operator.APIKeyHash)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify operator key"))
				return
			}
			if !match {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid operator credentials"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxOperatorID, operator.ID.String())
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"operator_id":    operator.ID.String(),
					"operator_label": operator.Label,
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
