package main

import (
	"embed"
	"net/http"
)

//go:embed assets/matching.v1.yaml
var openAPISpec embed.FS

func registerOpenAPI(mux *http.ServeMux) {
	mux.HandleFunc("/openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/matching.v1.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}
