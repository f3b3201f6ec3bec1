package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerCaptureHandlers(api huma.API, f Facade) {
	type captureInput struct {
		Body captureConfigWire
	}
	type captureOutput struct {
		Body struct {
			SessionID         string `json:"session_id"`
			Count             int    `json:"count"`
			BytesWritten      int64  `json:"bytes_written"`
			DroppedByFilter   int    `json:"dropped_by_filter"`
			PostDataMisses    int    `json:"post_data_misses"`
			QueueDrops        int    `json:"queue_drops"`
			ElapsedMS         int64  `json:"elapsed_ms"`
			OutputPath        string `json:"output_path"`
			FailedLoads       int    `json:"failed_loads"`
			ResponsesObserved int    `json:"responses_observed"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "capture", Method: http.MethodPost, Path: "/capture", Summary: "Capture auth-bearing request headers from a running browser tab", Tags: []string{"Capture"}},
		func(ctx context.Context, input *captureInput) (*captureOutput, error) {
			cfg, err := input.Body.toConfig()
			if err != nil {
				return nil, mapErr(err)
			}
			summary, err := f.Capture(ctx, cfg)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &captureOutput{}
			out.Body.SessionID = summary.SessionID
			out.Body.Count = summary.Count
			out.Body.BytesWritten = summary.BytesWritten
			out.Body.DroppedByFilter = summary.DroppedByFilter
			out.Body.PostDataMisses = summary.PostDataMisses
			out.Body.QueueDrops = summary.QueueDrops
			out.Body.ElapsedMS = summary.ElapsedMS
			out.Body.OutputPath = summary.OutputPath
			out.Body.FailedLoads = summary.FailedLoads
			out.Body.ResponsesObserved = summary.ResponsesObserved
			return out, nil
		})
}
