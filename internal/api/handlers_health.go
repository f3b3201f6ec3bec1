package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// version is the control-plane's reported API version (spec.md §4.H's
// GET /health {status, version}).
const version = "1.0.0"

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status  string `json:"status"`
			Version string `json:"version"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Version = version
			return out, nil
		})
}
