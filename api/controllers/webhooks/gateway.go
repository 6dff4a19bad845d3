package webhooks

import (
	"io"
	"net/http"

	"github.com/campustix/campustix-backend/api/responses"
	gatewayhook "github.com/campustix/campustix-backend/internal/webhooks/gateway"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/gateway"
	"github.com/campustix/campustix-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// GatewayWebhook verifies and applies rail charge notifications.
func GatewayWebhook(svc *gatewayhook.Service, signingSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body"))
			return
		}

		event, err := gateway.ParseWebhook(signingSecret, body, r.Header.Get(gateway.SignatureHeader))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Process(r.Context(), event); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}
