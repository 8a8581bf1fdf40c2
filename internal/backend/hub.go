package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/daryltucker/llm-pipeline/internal/output"
)

// errNotFound marks a hub file that does not exist (HTTP 404).
var errNotFound = errors.New("not found on hub")

// Hub downloads model files from a Hugging Face compatible endpoint into a
// local cache directory.
type Hub struct {
	Endpoint string
	Token    string
	CacheDir string
	Client   *http.Client
}

// ModelRef is a repo id with an optional explicit weights file
// ("owner/repo" or "owner/repo:file.gguf").
type ModelRef struct {
	Repo string
	File string
}

// ParseModelRef splits a local model name.
func ParseModelRef(name string) (ModelRef, error) {
	repo, file, _ := strings.Cut(strings.TrimSpace(name), ":")
	if repo == "" || !strings.Contains(repo, "/") {
		return ModelRef{}, fmt.Errorf("invalid model name %q (want owner/repo or owner/repo:file.gguf)", name)
	}
	return ModelRef{Repo: repo, File: file}, nil
}

func (h *Hub) repoDir(repo string) string {
	return filepath.Join(h.CacheDir, strings.ReplaceAll(repo, "/", "--"))
}

// ResolveWeights picks the GGUF file to load for ref. An explicit file wins;
// otherwise a file already in the cache, then the repo listing, preferring
// a Q4_K_M quantisation.
func (h *Hub) ResolveWeights(ctx context.Context, ref ModelRef) (string, error) {
	if ref.File != "" {
		return ref.File, nil
	}
	if cached := ggufFiles(h.repoDir(ref.Repo)); len(cached) > 0 {
		return pickGGUF(cached), nil
	}

	var info struct {
		Siblings []struct {
			RFilename string `json:"rfilename"`
		} `json:"siblings"`
	}
	if err := h.getJSON(ctx, h.Endpoint+"/api/models/"+ref.Repo, &info); err != nil {
		return "", fmt.Errorf("failed to list files of %s: %w", ref.Repo, err)
	}

	var candidates []string
	for _, s := range info.Siblings {
		if strings.HasSuffix(strings.ToLower(s.RFilename), ".gguf") {
			candidates = append(candidates, s.RFilename)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no .gguf weights in %s", ref.Repo)
	}
	return pickGGUF(candidates), nil
}

func pickGGUF(files []string) string {
	sort.Strings(files)
	for _, f := range files {
		if strings.Contains(strings.ToUpper(f), "Q4_K_M") {
			return f
		}
	}
	return files[0]
}

func ggufFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".gguf") {
			out = append(out, e.Name())
		}
	}
	return out
}

// Download fetches repo/file into the cache unless it is already there and
// returns the local path.
func (h *Hub) Download(ctx context.Context, repo, file string) (string, error) {
	dest := filepath.Join(h.repoDir(repo), filepath.FromSlash(file))
	if st, err := os.Stat(dest); err == nil && st.Size() > 0 {
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", err
	}

	output.Logger.Info("Downloading model file", "repo", repo, "file", file)
	resp, err := h.get(ctx, h.fileURL(repo, file))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("download %s/%s: %w", repo, file, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	output.Logger.Info("Downloaded model file", "repo", repo, "file", file, "bytes", n)
	return dest, nil
}

// ReadOptionalJSON downloads repo/file and decodes it into v. A missing file
// is not an error; it reports false.
func (h *Hub) ReadOptionalJSON(ctx context.Context, repo, file string, v any) (bool, error) {
	path, err := h.Download(ctx, repo, file)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("invalid %s in %s: %w", file, repo, err)
	}
	return true, nil
}

// CachedRepos lists repo ids that have at least one file in the cache.
func (h *Hub) CachedRepos() ([]string, error) {
	entries, err := os.ReadDir(h.CacheDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var repos []string
	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), "--") {
			repos = append(repos, strings.Replace(e.Name(), "--", "/", 1))
		}
	}
	return repos, nil
}

func (h *Hub) fileURL(repo, file string) string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", h.Endpoint, repo, (&url.URL{Path: file}).EscapedPath())
}

func (h *Hub) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", u, errNotFound)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("bad status from %s: %s", u, resp.Status)
	}
	return resp, nil
}

func (h *Hub) getJSON(ctx context.Context, u string, v any) error {
	resp, err := h.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}
