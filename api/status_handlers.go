package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func (a *API) healthCheckHandler(rw http.ResponseWriter, r *http.Request) {
	states, failed, err := a.deps.Health.State()
	if err != nil {
		a.log.Error("Failed to fetch health state", zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to fetch health state")
		return
	}

	status := http.StatusOK
	if failed {
		status = http.StatusServiceUnavailable
	}

	rw.Header().Set("Content-Type", "application/json; charset=UTF-8")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(states); err != nil {
		a.log.Error("Failed to encode health response", zap.Error(err))
	}
}

func (a *API) versionHandler(rw http.ResponseWriter, r *http.Request) {
	WriteJSON(rw, &ResponseJSON{
		Status:  http.StatusOK,
		Message: a.version,
	}, http.StatusOK)
}

func (a *API) progressHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "progressHandler"))
	logger.Debug("handling /api/progress request", zap.String("remoteAddr", r.RemoteAddr))

	progress := a.deps.HarvesterService.Progress()

	rw.Header().Set("Content-Type", "application/json; charset=UTF-8")
	rw.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(rw).Encode(progress); err != nil {
		logger.Error("Failed to encode progress response", zap.Error(err))
	}
}
