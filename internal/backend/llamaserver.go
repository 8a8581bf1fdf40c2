package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/output"
)

// DefaultStartTimeout bounds how long a llama-server may take to load weights.
const DefaultStartTimeout = 5 * time.Minute

const healthPollInterval = 250 * time.Millisecond

// LlamaServer keeps one llama.cpp server process per loaded model. The
// weights stay in that process's memory until the session is closed.
type LlamaServer struct {
	Path         string
	GPULayers    int
	StartTimeout time.Duration
	Client       *http.Client
}

// NewLlamaServer builds the runtime from the hf config section.
func NewLlamaServer(cfg config.HFConfig) *LlamaServer {
	return &LlamaServer{
		Path:         cfg.Runtime,
		GPULayers:    gpuLayers(cfg),
		StartTimeout: DefaultStartTimeout,
		Client:       &http.Client{},
	}
}

// Load starts a server on a free loopback port and waits until /health
// reports ready.
func (s *LlamaServer) Load(ctx context.Context, weights string) (Session, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("no free port for %s: %w", s.Path, err)
	}

	cmd := exec.Command(s.Path,
		"-m", weights,
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"-ngl", strconv.Itoa(s.GPULayers),
	)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	output.Logger.Info("Starting model server", "path", s.Path, "weights", weights, "port", port)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", s.Path, err)
	}

	done := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(done)
	}()

	sess := &serverSession{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		client:  s.Client,
		done:    done,
		stop: func() error {
			select {
			case <-done:
				return nil
			default:
			}
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return err
			}
			<-done
			return nil
		},
		exitErr: func() error {
			return fmt.Errorf("%s exited: %v: %s", s.Path, waitErr, tail(stderr.String(), 512))
		},
	}

	timeout := s.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	if err := sess.waitReady(ctx, timeout); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

type serverSession struct {
	baseURL string
	client  *http.Client

	// done is closed when the process exits; exitErr describes why.
	done    <-chan struct{}
	exitErr func() error
	stop    func() error

	closeOnce sync.Once
	closeErr  error
}

func (s *serverSession) waitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(healthPollInterval)
	defer tick.Stop()

	for {
		if s.healthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("model server not ready after %s", timeout)
		case <-s.done:
			return s.exitErr()
		case <-tick.C:
		}
	}
}

func (s *serverSession) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type completionRequest struct {
	Prompt        string  `json:"prompt"`
	NPredict      int     `json:"n_predict"`
	Temperature   float64 `json:"temperature"`
	TopK          int     `json:"top_k"`
	TopP          float64 `json:"top_p"`
	MinP          float64 `json:"min_p"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	Seed          *int64  `json:"seed,omitempty"`
	Stream        bool    `json:"stream"`
}

// Generate posts one /completion request.
func (s *serverSession) Generate(ctx context.Context, prompt string, gen GenerationConfig) (string, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:        prompt,
		NPredict:      gen.MaxNewTokens,
		Temperature:   samplingTemp(gen),
		TopK:          gen.TopK,
		TopP:          gen.TopP,
		MinP:          gen.MinP,
		RepeatPenalty: gen.RepetitionPenalty,
		Seed:          gen.Seed,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		select {
		case <-s.done:
			return "", s.exitErr()
		default:
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model server returned %s", resp.Status)
	}

	var out struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("model server returned invalid JSON: %w", err)
	}
	return strings.TrimSpace(out.Content), nil
}

// Close stops the server process. Safe to call more than once.
func (s *serverSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stop()
	})
	return s.closeErr
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, errors.New("unexpected listener address")
	}
	return addr.Port, nil
}

// lockedBuffer collects stderr written by the exec copy goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
