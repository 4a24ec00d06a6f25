package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/leca/enhance-studio/internal/api"
	"github.com/leca/enhance-studio/internal/enhancer"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// serviceProbeTimeout bounds the status calls; enhancement itself is unbounded.
const serviceProbeTimeout = 5 * time.Second

// ServiceReport is the body of GET /api/service.
type ServiceReport struct {
	URL    string           `json:"url"`
	Health *enhancer.Health `json:"health,omitempty"`
	Info   *enhancer.Info   `json:"info,omitempty"`
}

// ServiceStatus handles GET /api/service -- health and capabilities of the
// enhancement service, fetched concurrently.
func (h *Handler) ServiceStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), serviceProbeTimeout)
	defer cancel()

	status := ServiceReport{URL: h.Config.ServiceURL}
	var g errgroup.Group
	g.Go(func() error {
		health, err := h.Service.Health(ctx)
		status.Health = health
		return err
	})
	g.Go(func() error {
		info, err := h.Service.Info(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("service info unavailable")
			return nil
		}
		status.Info = info
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Str("service_url", h.Config.ServiceURL).Msg("enhancement service unreachable")
		api.WriteJSON(w, http.StatusServiceUnavailable,
			api.FailedResponse(status, api.CodeServiceUnavailable, enhancer.MsgConnectFailed))
		return
	}
	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(status))
}
