package http

import (
	"net/http"
	"time"

	"github.com/pulsemetric/insight/pkg/authsdk"
	"github.com/pulsemetric/insight/pkg/httpx"
)

// LivezHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Reports that the process is up, with its uptime and build version. Always 200 while the
//	@Description	service can accept requests; dependency health is the concern of /readyz.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
