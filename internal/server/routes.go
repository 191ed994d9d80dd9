package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

func SetupRoutes(coverageService *CoverageService) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/releases", coverageService.ListReleases).Methods(http.MethodGet)
	router.HandleFunc("/fields/{name}/coverage", coverageService.GetFieldCoverage).Methods(http.MethodGet)

	return router
}
