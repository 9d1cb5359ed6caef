package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"modelmgr/pkg/types"
)

func TestListCommandHitsDaemon(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(types.ModelsResponse{
			Models: []types.DownloadedModel{{ID: "acme/repo/m.gguf", SizeBytes: 10}},
		})
	}))
	defer srv.Close()

	root := buildRootCmd()
	root.SetArgs([]string{"list", "--addr", srv.URL})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotPath != "/models" {
		t.Fatalf("expected /models, got %s", gotPath)
	}
}

func TestLoadCommandMapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: "Loading would exceed memory", Code: 422})
	}))
	defer srv.Close()

	root := buildRootCmd()
	root.SetArgs([]string{"load", "a/r/m.gguf", "--addr", srv.URL})
	err := root.Execute()
	if err == nil || err.Error() != "Loading would exceed memory" {
		t.Fatalf("expected API error surfaced, got %v", err)
	}
}
