package api

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerReplayHandlers(api huma.API, f Facade) {
	type replayInput struct {
		Body replayConfigWire
	}
	type replayOutput struct {
		Body struct {
			StatusCode             int               `json:"status_code"`
			ResponseHeaders        map[string]string `json:"response_headers"`
			BodyB64                string            `json:"body_b64"`
			ElapsedMS              int64             `json:"elapsed_ms"`
			Attempts               int               `json:"attempts"`
			FinalURLAfterRedirects string            `json:"final_url_after_redirects"`
			SelectedCaptureReqID   string            `json:"selected_capture_request_id"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "replay", Method: http.MethodPost, Path: "/replay", Summary: "Replay a stored capture as a live authenticated HTTP request", Tags: []string{"Replay"}},
		func(ctx context.Context, input *replayInput) (*replayOutput, error) {
			cfg, err := input.Body.toConfig()
			if err != nil {
				return nil, mapErr(err)
			}
			result, err := f.Replay(ctx, cfg)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &replayOutput{}
			out.Body.StatusCode = result.StatusCode
			out.Body.ResponseHeaders = result.ResponseHeaders
			out.Body.BodyB64 = base64.StdEncoding.EncodeToString(result.ResponseBodyBytes)
			out.Body.ElapsedMS = result.ElapsedMS
			out.Body.Attempts = result.Attempts
			out.Body.FinalURLAfterRedirects = result.FinalURLAfterRedirects
			out.Body.SelectedCaptureReqID = result.SelectedCaptureReqID
			return out, nil
		})
}
