package handler

import (
	"net/http"
)

// HealthCheckHandler answers liveness checks with HTTP 200 OK. It only
// proves the process is serving; run state lives under /status.
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
