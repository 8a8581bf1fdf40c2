package backend_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/daryltucker/llm-pipeline/internal/backend"
	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	loads   []string
	closed  []string
	weights string
	prompt  string
	gen     backend.GenerationConfig
	reply   string
	err     error
	loadErr error
}

func (f *fakeRuntime) Load(_ context.Context, weights string) (backend.Session, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	f.loads = append(f.loads, weights)
	return &fakeSession{rt: f, weights: weights}, nil
}

type fakeSession struct {
	rt      *fakeRuntime
	weights string
}

func (s *fakeSession) Generate(_ context.Context, prompt string, gen backend.GenerationConfig) (string, error) {
	s.rt.weights, s.rt.prompt, s.rt.gen = s.weights, prompt, gen
	return s.rt.reply, s.rt.err
}

func (s *fakeSession) Close() error {
	s.rt.closed = append(s.rt.closed, s.weights)
	return nil
}

type fakeHub struct {
	srv       *httptest.Server
	downloads atomic.Int32
	auth      atomic.Value
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()

	h := &fakeHub{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.auth.Store(r.Header.Get("Authorization"))
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/models/"):
			writeJSON(t, w, map[string]any{"siblings": []map[string]any{
				{"rfilename": "README.md"},
				{"rfilename": "tiny-Q8_0.gguf"},
				{"rfilename": "tiny-Q4_K_M.gguf"},
			}})
		case strings.HasSuffix(r.URL.Path, "/resolve/main/generation_config.json"):
			if strings.Contains(r.URL.Path, "/bare/") {
				http.NotFound(w, r)
				return
			}
			writeJSON(t, w, map[string]any{"do_sample": true, "temperature": 0.6, "eos_token_id": 2})
		case strings.Contains(r.URL.Path, "/resolve/main/"):
			h.downloads.Add(1)
			w.Write([]byte("GGUF-weights"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func newLocal(t *testing.T, hub *fakeHub, rt backend.Runtime, cacheSize int) (*backend.Local, string) {
	t.Helper()

	cacheDir := t.TempDir()
	l, err := backend.NewLocal(config.HFConfig{
		Endpoint:  hub.srv.URL,
		Token:     "hf_test",
		CacheDir:  cacheDir,
		CacheSize: cacheSize,
	}, rt)
	require.NoError(t, err)
	return l, cacheDir
}

func TestParseModelRef(t *testing.T) {
	ref, err := backend.ParseModelRef("org/repo:file.gguf")
	require.NoError(t, err)
	assert.Equal(t, backend.ModelRef{Repo: "org/repo", File: "file.gguf"}, ref)

	ref, err = backend.ParseModelRef("org/repo")
	require.NoError(t, err)
	assert.Equal(t, "", ref.File)

	_, err = backend.ParseModelRef("llama3")
	assert.Error(t, err)
}

func TestLocal_EnsureModelDownloadsOnce(t *testing.T) {
	hub := newFakeHub(t)
	l, cacheDir := newLocal(t, hub, &fakeRuntime{}, 2)

	require.NoError(t, l.EnsureModel(testContext(t), "org/tiny"))
	require.NoError(t, l.EnsureModel(testContext(t), "org/tiny"))

	assert.EqualValues(t, 1, hub.downloads.Load(), "weights fetched once")
	assert.Equal(t, "Bearer hf_test", hub.auth.Load())

	weights := filepath.Join(cacheDir, "org--tiny", "tiny-Q4_K_M.gguf")
	data, err := os.ReadFile(weights)
	require.NoError(t, err)
	assert.Equal(t, "GGUF-weights", string(data))

	repos, err := l.ListModels(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"org/tiny"}, repos)
}

func TestLocal_EnsureModelInvalidName(t *testing.T) {
	hub := newFakeHub(t)
	l, _ := newLocal(t, hub, &fakeRuntime{}, 1)

	err := l.EnsureModel(testContext(t), "not-a-repo")
	assert.ErrorIs(t, err, model.ErrModelUnavailable)
}

func TestLocal_RunPrompt(t *testing.T) {
	hub := newFakeHub(t)
	rt := &fakeRuntime{reply: "Paris"}
	l, cacheDir := newLocal(t, hub, rt, 2)

	system := "Answer in one word."
	res, err := l.RunPrompt(testContext(t), model.Request{
		Model:   "org/tiny:tiny-Q8_0.gguf",
		Prompt:  "Capital of France?",
		System:  &system,
		Options: map[string]any{"top_k": 10, "num_ctx": 4096},
	})
	require.NoError(t, err)

	assert.Equal(t, "Paris", res.Text)
	assert.Equal(t, "Answer in one word.\n\nCapital of France?", rt.prompt)
	assert.Equal(t, filepath.Join(cacheDir, "org--tiny", "tiny-Q8_0.gguf"), rt.weights)

	// model defaults from generation_config.json, user option on top
	assert.True(t, rt.gen.DoSample)
	assert.InDelta(t, 0.6, rt.gen.Temperature, 1e-9)
	assert.Equal(t, 10, rt.gen.TopK)

	assert.Equal(t, "huggingface", res.Stats["backend"])
	assert.Equal(t, []string{"top_k"}, res.Stats["overridden"])
	assert.NotContains(t, res.Stats, "seed")
}

func TestLocal_RunPromptWithoutModelDefaults(t *testing.T) {
	hub := newFakeHub(t)
	rt := &fakeRuntime{reply: "ok"}
	l, _ := newLocal(t, hub, rt, 1)

	_, err := l.RunPrompt(testContext(t), model.Request{Model: "org/bare", Prompt: "p"})
	require.NoError(t, err)
	assert.False(t, rt.gen.DoSample)
	assert.Equal(t, 512, rt.gen.MaxNewTokens)
}

func TestLocal_SeedIsProcessWide(t *testing.T) {
	hub := newFakeHub(t)
	rt := &fakeRuntime{reply: "ok"}
	l, _ := newLocal(t, hub, rt, 2)

	_, err := l.RunPrompt(testContext(t), model.Request{Model: "org/tiny", Prompt: "p", Options: map[string]any{"seed": 1234}})
	require.NoError(t, err)
	require.NotNil(t, rt.gen.Seed)
	assert.EqualValues(t, 1234, *rt.gen.Seed)

	res, err := l.RunPrompt(testContext(t), model.Request{Model: "org/tiny", Prompt: "again"})
	require.NoError(t, err)
	require.NotNil(t, rt.gen.Seed, "seed persists for later runs")
	assert.EqualValues(t, 1234, *rt.gen.Seed)
	assert.EqualValues(t, int64(1234), res.Stats["seed"])
}

func TestLocal_RuntimeFailure(t *testing.T) {
	hub := newFakeHub(t)
	rt := &fakeRuntime{err: assert.AnError}
	l, _ := newLocal(t, hub, rt, 1)

	_, err := l.RunPrompt(testContext(t), model.Request{Model: "org/tiny", Prompt: "p"})
	assert.ErrorIs(t, err, model.ErrGeneration)
}

func TestLocal_BoundedCache(t *testing.T) {
	hub := newFakeHub(t)
	rt := &fakeRuntime{reply: "ok"}
	l, cacheDir := newLocal(t, hub, rt, 1)
	tiny := filepath.Join(cacheDir, "org--tiny", "tiny-Q4_K_M.gguf")
	other := filepath.Join(cacheDir, "org--other", "tiny-Q4_K_M.gguf")

	require.NoError(t, l.EnsureModel(testContext(t), "org/tiny"))
	_, err := l.RunPrompt(testContext(t), model.Request{Model: "org/tiny", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, []string{tiny}, rt.loads, "a cached model is not loaded again")
	assert.Empty(t, rt.closed)

	require.NoError(t, l.EnsureModel(testContext(t), "org/other"))
	assert.Equal(t, []string{tiny}, rt.closed, "eviction unloads the old model")
	before := hub.downloads.Load()

	// org/tiny was evicted; reloading it finds its files on disk.
	require.NoError(t, l.EnsureModel(testContext(t), "org/tiny"))
	assert.Equal(t, before, hub.downloads.Load())
	assert.Equal(t, []string{tiny, other, tiny}, rt.loads)
	assert.Equal(t, []string{tiny, other}, rt.closed)
}

func TestLocal_CloseUnloadsEverything(t *testing.T) {
	hub := newFakeHub(t)
	rt := &fakeRuntime{}
	l, _ := newLocal(t, hub, rt, 2)

	require.NoError(t, l.EnsureModel(testContext(t), "org/tiny"))
	require.NoError(t, l.EnsureModel(testContext(t), "org/other"))
	require.NoError(t, l.Close())

	assert.Len(t, rt.closed, 2)
}

func TestLocal_RuntimeLoadFailure(t *testing.T) {
	hub := newFakeHub(t)
	l, _ := newLocal(t, hub, &fakeRuntime{loadErr: assert.AnError}, 1)

	err := l.EnsureModel(testContext(t), "org/tiny")
	assert.ErrorIs(t, err, model.ErrModelUnavailable)
}
