/*
PURPOSE:
  Remote-server backend: talks to an Ollama daemon over its HTTP API.
  Handles model discovery, pulls, and streaming / non-streaming generation.

REQUIREMENTS:
  User-specified:
  - Pull a model only when it is missing from the local listing.
  - Optional streaming mode; chunks are concatenated and the last chunk
    carries the final statistics.

  Implementation-discovered:
  - Needs http.Client with timeouts. Loading weights happens before the
    first header byte, so the header timeout is the load timeout.
  - Resilience against "garbage" JSON lines in streams.
  - Final chunks carry a large "context" token array; it is dropped from
    stats along with the response text.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine, internal/cli (list-models)
  - Uses: internal/config, internal/model, internal/output

ERROR HANDLING:
  - No retries. Failures are classified and wrapped:
    ErrModelUnavailable for listing/pull, ErrGeneration for generate.

IMPLEMENTATION RULES:
  - Use net/http.
  - Enforce timeouts.
  - Parse streaming JSON line-by-line.

USAGE:
  o := backend.NewOllama(cfg.Ollama)
  err := o.EnsureModel(ctx, "llama3")
  res, err := o.RunPrompt(ctx, model.Request{Model: "llama3", Prompt: "hi"})

SELF-HEALING INSTRUCTIONS:
  - If Ollama API changes, update endpoints (/api/tags, /api/pull,
    /api/generate, /api/ps).

RELATED FILES:
  - internal/backend/backend.go
  - internal/config/config.go

MAINTENANCE:
  - Update for new Ollama API features.
*/

package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/model"
	"github.com/daryltucker/llm-pipeline/internal/output"
)

const maxStreamLine = 16 << 20

// Ollama handles Ollama interactions.
type Ollama struct {
	BaseURL   string
	KeepAlive string
	Client    *http.Client
}

// NewOllama creates a new Ollama backend.
func NewOllama(cfg config.OllamaConfig) *Ollama {
	// Differentiate between connection timeout and the server hanging during
	// headers while it loads the model.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.LoadTimeout.Std()

	return &Ollama{
		BaseURL:   config.NormalizeHost(cfg.Host),
		KeepAlive: cfg.KeepAlive,
		Client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout.Std(),
		},
	}
}

// Name implements Backend.
func (o *Ollama) Name() string {
	return KindServer.String()
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// ListModels returns the models already pulled on the server.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var payload tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("Ollama returned invalid JSON: %w", err)
	}

	var names []string
	for _, m := range payload.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		names = append(names, name)
	}
	return names, nil
}

// EnsureModel pulls name unless the server already lists it.
func (o *Ollama) EnsureModel(ctx context.Context, name string) error {
	available, err := o.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to list models: %v", model.ErrModelUnavailable, err)
	}
	for _, m := range available {
		if sameModel(m, name) {
			output.Logger.Debug("Model already present", "model", name)
			return nil
		}
	}

	output.Logger.Info("Pulling model", "model", name, "url", o.BaseURL)
	if err := o.pull(ctx, name); err != nil {
		return fmt.Errorf("%w: pull %s: %v", model.ErrModelUnavailable, name, err)
	}
	output.Logger.Info("Pull complete", "model", name)
	return nil
}

// sameModel treats an untagged name as ":latest".
func sameModel(listed, want string) bool {
	if listed == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return listed == want+":latest"
	}
	return false
}

func (o *Ollama) pull(ctx context.Context, name string) error {
	body, _ := json.Marshal(map[string]any{"model": name, "stream": true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	lastStatus := ""
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var progress struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(line, &progress); err != nil {
			output.Logger.Warn("Skipping invalid JSON chunk", "chunk", string(line))
			continue
		}
		if progress.Error != "" {
			return errors.New(progress.Error)
		}
		if progress.Status != lastStatus {
			output.Logger.Debug("Pull progress", "model", name, "status", progress.Status)
			lastStatus = progress.Status
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("pull stream interrupted: %w", err)
	}
	if lastStatus != "success" {
		return fmt.Errorf("pull ended without success (last status %q)", lastStatus)
	}
	return nil
}

type generateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

// RunPrompt implements Backend.
func (o *Ollama) RunPrompt(ctx context.Context, r model.Request) (model.Result, error) {
	opts := make(map[string]any, len(r.Options)+1)
	maps.Copy(opts, r.Options)
	if r.Temperature != nil {
		opts["temperature"] = *r.Temperature
	}

	reqBody, err := json.Marshal(generateRequest{
		Model:     r.Model,
		Prompt:    r.Prompt,
		System:    r.SystemText(),
		Options:   opts,
		Stream:    r.Stream,
		KeepAlive: o.KeepAlive,
	})
	if err != nil {
		return model.Result{}, fmt.Errorf("%w: encode request: %v", model.ErrGeneration, err)
	}

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			output.Logger.Debug("Network: Connected", "remote", info.Conn.RemoteAddr(), "reused", info.Reused)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			output.Logger.Debug("Network: Request Sent. Waiting for model to load...", "model", r.Model)
		},
		GotFirstResponseByte: func() {
			output.Logger.Debug("Network: First Byte Received", "model", r.Model)
		},
	}
	traced := httptrace.WithClientTrace(ctx, trace)

	req, err := http.NewRequestWithContext(traced, http.MethodPost, o.BaseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return model.Result{}, fmt.Errorf("%w: %v", model.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.Client.Do(req)
	if err != nil {
		return model.Result{}, fmt.Errorf("%w: %v", model.ErrGeneration, classifyNetErr(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Result{}, fmt.Errorf("%w: %v", model.ErrGeneration, statusError(resp))
	}

	var text string
	var stats model.Stats
	if r.Stream {
		text, stats, err = readStream(resp.Body)
	} else {
		text, stats, err = readSingle(resp.Body)
	}
	wall := time.Since(start)
	if err != nil {
		return model.Result{}, fmt.Errorf("%w: %v", model.ErrGeneration, err)
	}

	o.addResourceUsage(ctx, r.Model, stats)

	return model.Result{Text: text, Stats: stats, WallTime: wall}, nil
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// splitChunk separates the response text from the statistics of one
// generate object and surfaces API-side errors.
func splitChunk(obj map[string]any) (string, model.Stats, error) {
	if msg, ok := obj["error"].(string); ok && msg != "" {
		return "", nil, fmt.Errorf("Ollama API Error: %s", msg)
	}
	text, _ := obj["response"].(string)
	stats := make(model.Stats, len(obj))
	for k, v := range obj {
		if k == "response" || k == "context" {
			continue
		}
		stats[k] = v
	}
	return text, stats, nil
}

func readSingle(body io.Reader) (string, model.Stats, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response body: %w", err)
	}
	obj, err := decodeObject(data)
	if err != nil {
		return "", nil, fmt.Errorf("Ollama returned invalid JSON: %w (Body: %s)", err, string(data))
	}
	return splitChunk(obj)
}

// readStream concatenates chunk texts. Only the last chunk's stats are kept.
func readStream(body io.Reader) (string, model.Stats, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	var sb strings.Builder
	var stats model.Stats
	gotDone := false

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// Garbage resilience: Ignore JSON errors
		obj, err := decodeObject(line)
		if err != nil {
			output.Logger.Warn("Skipping invalid JSON chunk", "chunk", string(line))
			continue
		}

		text, chunkStats, err := splitChunk(obj)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(text)
		stats = chunkStats

		if done, _ := obj["done"].(bool); done {
			gotDone = true
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("stream interrupted: %w", err)
	}
	if !gotDone {
		return "", nil, errors.New("stream incomplete: no final chunk")
	}
	return sb.String(), stats, nil
}

// RunningModelInfo retrieves memory stats for a running model from /api/ps.
func (o *Ollama) RunningModelInfo(ctx context.Context, modelName string) (int64, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/ps", nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("bad status: %s", resp.Status)
	}

	var payload struct {
		Models []struct {
			Name     string `json:"name"`
			Size     int64  `json:"size"`
			SizeVRAM int64  `json:"size_vram"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, err
	}

	for _, m := range payload.Models {
		if sameModel(m.Name, modelName) {
			return m.Size, m.SizeVRAM, nil
		}
	}
	return 0, 0, nil
}

// addResourceUsage is best effort; the model is likely still loaded.
func (o *Ollama) addResourceUsage(ctx context.Context, modelName string, stats model.Stats) {
	size, vram, err := o.RunningModelInfo(ctx, modelName)
	if err != nil {
		output.Logger.Debug("Resource usage unavailable", "model", modelName, "error", err)
		return
	}
	if size > 0 {
		stats["memory_usage_bytes"] = size
		stats["vram_usage_bytes"] = vram
	}
}

func classifyNetErr(err error) error {
	if strings.Contains(err.Error(), "awaiting headers") {
		return fmt.Errorf("Ollama Header Timeout (model loading?): %w", err)
	}
	return fmt.Errorf("Network/Connection Error: %w", err)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("Ollama Server Error (%s): %s", resp.Status, apiErr.Error)
	}
	return fmt.Errorf("Ollama Server Error (%s): %s", resp.Status, strings.TrimSpace(string(body)))
}
