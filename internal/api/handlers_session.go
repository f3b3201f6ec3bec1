package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/brianfong96/CookieMonster/internal/capturestore"
	"github.com/brianfong96/CookieMonster/internal/headerpolicy"
)

func registerSessionHandlers(api huma.API, f Facade, health SessionHealthCollaborator, diff DiffCollaborator) {
	type loadedFileInput struct {
		CaptureFile         string                  `json:"capture_file"`
		EncryptionKeySource encryptionKeySourceWire `json:"encryption_key_source,omitempty"`
	}

	type sessionHealthInput struct {
		Body loadedFileInput
	}
	type sessionHealthOutput struct {
		Body SessionHealthResult
	}
	huma.Register(api, huma.Operation{OperationID: "session-health", Method: http.MethodPost, Path: "/session-health", Summary: "Report cookie/bearer-token presence and JWT expiry for a capture file", Tags: []string{"Session"}},
		func(ctx context.Context, input *sessionHealthInput) (*sessionHealthOutput, error) {
			key, err := input.Body.EncryptionKeySource.resolve()
			if err != nil {
				return nil, mapErr(err)
			}
			loaded, err := capturestore.LoadAll(input.Body.CaptureFile, key)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &sessionHealthOutput{}
			out.Body = health.AnalyzeSessionHealth(loaded.Records)
			return out, nil
		})

	type diffInput struct {
		Body struct {
			FileA                string                  `json:"file_a"`
			FileB                string                  `json:"file_b"`
			EncryptionKeySourceA encryptionKeySourceWire `json:"encryption_key_source_a,omitempty"`
			EncryptionKeySourceB encryptionKeySourceWire `json:"encryption_key_source_b,omitempty"`
		}
	}
	type diffOutput struct {
		Body CaptureDiff
	}
	huma.Register(api, huma.Operation{OperationID: "diff", Method: http.MethodPost, Path: "/diff", Summary: "Diff the header shape and method of the latest record in two capture files", Tags: []string{"Session"}},
		func(ctx context.Context, input *diffInput) (*diffOutput, error) {
			keyA, err := input.Body.EncryptionKeySourceA.resolve()
			if err != nil {
				return nil, mapErr(err)
			}
			keyB, err := input.Body.EncryptionKeySourceB.resolve()
			if err != nil {
				return nil, mapErr(err)
			}
			result, err := diff.CompareCaptureFiles(input.Body.FileA, input.Body.FileB, keyA, keyB)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &diffOutput{}
			out.Body = result
			return out, nil
		})

	type cacheAuthInput struct {
		Body captureConfigWire
	}
	type cacheAuthOutput struct {
		Body struct {
			SessionID  string `json:"session_id"`
			Count      int    `json:"count"`
			OutputPath string `json:"output_path"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "ui-cache-auth", Method: http.MethodPost, Path: "/ui/cache-auth", Summary: "Run a capture pass to cache auth headers for UI consumers", Tags: []string{"UI"}},
		func(ctx context.Context, input *cacheAuthInput) (*cacheAuthOutput, error) {
			cfg, err := input.Body.toConfig()
			if err != nil {
				return nil, mapErr(err)
			}
			summary, err := f.Capture(ctx, cfg)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &cacheAuthOutput{}
			out.Body.SessionID = summary.SessionID
			out.Body.Count = summary.Count
			out.Body.OutputPath = summary.OutputPath
			return out, nil
		})

	type checkAuthInput struct {
		Body loadedFileInput
	}
	type checkAuthRecord struct {
		URL           string            `json:"url"`
		Method        string            `json:"method"`
		HasAuthHeader bool              `json:"has_auth_header"`
		Headers       map[string]string `json:"headers"`
	}
	type checkAuthOutput struct {
		Body struct {
			Results []checkAuthRecord `json:"results"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "ui-check-auth", Method: http.MethodPost, Path: "/ui/check-auth", Summary: "Load a capture store and report per-URL auth-header presence", Tags: []string{"UI"}},
		func(ctx context.Context, input *checkAuthInput) (*checkAuthOutput, error) {
			key, err := input.Body.EncryptionKeySource.resolve()
			if err != nil {
				return nil, mapErr(err)
			}
			loaded, err := capturestore.LoadAll(input.Body.CaptureFile, key)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &checkAuthOutput{}
			out.Body.Results = make([]checkAuthRecord, 0, len(loaded.Records))
			for _, rec := range loaded.Records {
				hasAuth := false
				for name := range rec.Headers {
					if headerpolicy.Classify(name) == headerpolicy.Auth {
						hasAuth = true
						break
					}
				}
				out.Body.Results = append(out.Body.Results, checkAuthRecord{
					URL:           rec.URL,
					Method:        rec.Method,
					HasAuthHeader: hasAuth,
					Headers:       headerpolicy.RedactHeaders(rec.Headers),
				})
			}
			return out, nil
		})
}
