package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/marmos91/driftfs/internal/logger"
)

func statsHandler(statsFn StatsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(statsFn()); err != nil {
			logger.Warn("Failed to encode stats", "error", err)
		}
	}
}
