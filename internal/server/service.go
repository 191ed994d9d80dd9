package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/coverage"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/database"
)

// CoverageService answers coverage questions from the stored diagnostics of
// finished releases.
type CoverageService struct {
	DBManager database.DBManager
	fields    map[string]string
	threshold float64
}

func NewCoverageService(dbManager database.DBManager, fields []string, threshold float64) *CoverageService {
	known := make(map[string]string, len(fields))
	for _, f := range fields {
		known[strings.ToUpper(f)] = f
	}
	return &CoverageService{DBManager: dbManager, fields: known, threshold: threshold}
}

func (h *CoverageService) ListReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := h.DBManager.ListReleases()
	if err != nil {
		log.Errorf("Failed to list releases: %v", err)
		http.Error(w, "Failed to retrieve releases", http.StatusInternalServerError)
		return
	}

	writeJSON(w, releases)
}

// GetFieldCoverage summarizes one canonical field over every finished
// release. The low coverage threshold can be overridden with ?threshold=.
func (h *CoverageService) GetFieldCoverage(w http.ResponseWriter, r *http.Request) {
	name, ok := h.fields[strings.ToUpper(mux.Vars(r)["name"])]
	if !ok {
		http.Error(w, "Unknown field. Use a canonical field name in /fields/{name}/coverage", http.StatusNotFound)
		return
	}

	threshold := h.threshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 || value > 100 {
			http.Error(w, "Invalid 'threshold'. Use a percentage between 0 and 100.", http.StatusBadRequest)
			return
		}
		threshold = value
	}

	observations, err := h.DBManager.GetFieldObservations(name)
	if err != nil {
		log.Errorf("Failed to retrieve observations of %s: %v", name, err)
		http.Error(w, "Failed to retrieve field coverage", http.StatusInternalServerError)
		return
	}

	writeJSON(w, coverage.BuildFieldReport(name, observations, threshold))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
