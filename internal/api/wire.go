package api

import (
	"net/url"

	"github.com/brianfong96/CookieMonster/internal/adapters"
	"github.com/brianfong96/CookieMonster/internal/capturepipeline"
	"github.com/brianfong96/CookieMonster/internal/capturestore"
	"github.com/brianfong96/CookieMonster/internal/cmerrors"
	"github.com/brianfong96/CookieMonster/internal/crypto"
	"github.com/brianfong96/CookieMonster/internal/replay"
)

var defaultAdapterRegistry = adapters.NewDefaultRegistry()

// encryptionKeySourceWire mirrors spec.md §3's
// {none, inline, env-var-name, key-file path} union for JSON bodies.
type encryptionKeySourceWire struct {
	Inline  string `json:"inline,omitempty"`
	EnvVar  string `json:"env_var,omitempty"`
	KeyFile string `json:"key_file,omitempty"`
}

func (w encryptionKeySourceWire) resolve() (*crypto.Key, error) {
	if w.Inline == "" && w.EnvVar == "" && w.KeyFile == "" {
		return nil, nil
	}
	key, ok, err := crypto.Resolve(crypto.KeySource{Inline: w.Inline, EnvVar: w.EnvVar, KeyFile: w.KeyFile})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &key, nil
}

// captureConfigWire is the JSON body of POST /capture.
type captureConfigWire struct {
	TargetHint         string   `json:"target_hint,omitempty"`
	DurationSeconds    float64  `json:"duration_seconds,omitempty"`
	MaxRecords         int      `json:"max_records,omitempty"`
	IncludeAllHeaders  bool     `json:"include_all_headers,omitempty"`
	CapturePostData    bool     `json:"capture_post_data,omitempty"`
	CaptureResponses   bool     `json:"capture_responses,omitempty"`
	MethodFilter       []string `json:"method_filter,omitempty"`
	HostFilter         []string `json:"host_filter,omitempty"`
	ResourceTypeFilter []string `json:"resource_type_filter,omitempty"`
	OutputFile         string   `json:"output_file"`
	AdapterName        string   `json:"adapter_name,omitempty"`

	EncryptionKeySource encryptionKeySourceWire `json:"encryption_key_source,omitempty"`
}

func (w captureConfigWire) toConfig() (capturepipeline.Config, error) {
	if w.OutputFile == "" {
		return capturepipeline.Config{}, cmerrors.New(cmerrors.CodeConfigInvalid, "output_file is required")
	}
	key, err := w.EncryptionKeySource.resolve()
	if err != nil {
		return capturepipeline.Config{}, err
	}
	var adapter adapters.HeaderAdapter
	if w.AdapterName != "" {
		adapter, err = defaultAdapterRegistry.Get(w.AdapterName)
		if err != nil {
			return capturepipeline.Config{}, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "resolve adapter", err)
		}
	}
	return capturepipeline.Config{
		TargetHint:         w.TargetHint,
		DurationSeconds:    w.DurationSeconds,
		MaxRecords:         w.MaxRecords,
		IncludeAllHeaders:  w.IncludeAllHeaders,
		CapturePostData:    w.CapturePostData,
		CaptureResponses:   w.CaptureResponses,
		MethodFilter:       w.MethodFilter,
		HostFilter:         w.HostFilter,
		ResourceTypeFilter: w.ResourceTypeFilter,
		OutputFile:         w.OutputFile,
		EncryptionKey:      key,
		Adapter:            adapter,
	}, nil
}

// selectorWire mirrors ReplayConfig.selector.
type selectorWire struct {
	URLContains  string `json:"url_contains,omitempty"`
	Method       string `json:"method,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	Index        *int   `json:"index,omitempty"`
}

// bodyWire mirrors ReplayConfig.body's {none, use-captured, inline, file, json} union.
type bodyWire struct {
	Kind   string `json:"kind,omitempty"` // "", "captured", "inline", "file", "json"
	Inline string `json:"inline,omitempty"`
	Path   string `json:"path,omitempty"`
	JSON   any    `json:"json,omitempty"`
}

func (w bodyWire) toBody() replay.Body {
	switch w.Kind {
	case "captured":
		return replay.Body{Kind: replay.BodyUseCaptured}
	case "inline":
		return replay.Body{Kind: replay.BodyInline, Inline: []byte(w.Inline)}
	case "file":
		return replay.Body{Kind: replay.BodyFile, Path: w.Path}
	case "json":
		return replay.Body{Kind: replay.BodyJSON, JSON: w.JSON}
	default:
		return replay.Body{Kind: replay.BodyNone}
	}
}

// retryWire mirrors ReplayConfig.retry.
type retryWire struct {
	Attempts       int     `json:"attempts,omitempty"`
	BackoffSeconds float64 `json:"backoff_seconds,omitempty"`
	Jitter         bool    `json:"jitter,omitempty"`
}

// replayConfigWire is the JSON body of POST /replay.
type replayConfigWire struct {
	CaptureFile        string            `json:"capture_file"`
	Selector           selectorWire      `json:"selector,omitempty"`
	RequestURL         string            `json:"request_url"`
	Method             string            `json:"method,omitempty"`
	Body               bodyWire          `json:"body,omitempty"`
	ExtraHeaders       map[string]string `json:"extra_headers,omitempty"`
	Retry              retryWire         `json:"retry,omitempty"`
	TimeoutSeconds     float64           `json:"timeout_seconds,omitempty"`
	EnforceCaptureHost bool              `json:"enforce_capture_host,omitempty"`

	EncryptionKeySource encryptionKeySourceWire `json:"encryption_key_source,omitempty"`
}

func (w replayConfigWire) toConfig() (replay.Config, error) {
	if w.CaptureFile == "" {
		return replay.Config{}, cmerrors.New(cmerrors.CodeConfigInvalid, "capture_file is required")
	}
	u, err := url.Parse(w.RequestURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return replay.Config{}, cmerrors.New(cmerrors.CodeConfigInvalid, "request_url must be an absolute http(s) URL")
	}
	key, err := w.EncryptionKeySource.resolve()
	if err != nil {
		return replay.Config{}, err
	}

	retry := replay.RetryPolicy{Attempts: w.Retry.Attempts, BackoffSeconds: w.Retry.BackoffSeconds, Jitter: w.Retry.Jitter}
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}

	return replay.Config{
		CaptureFile: w.CaptureFile,
		Selector: capturestore.Selector{
			URLContains:  w.Selector.URLContains,
			Method:       w.Selector.Method,
			ResourceType: w.Selector.ResourceType,
			Index:        w.Selector.Index,
		},
		RequestURL:         w.RequestURL,
		Method:             w.Method,
		Body:               w.Body.toBody(),
		ExtraHeaders:       w.ExtraHeaders,
		Retry:              retry,
		TimeoutSeconds:     w.TimeoutSeconds,
		EnforceCaptureHost: w.EnforceCaptureHost,
		EncryptionKey:      key,
	}, nil
}
