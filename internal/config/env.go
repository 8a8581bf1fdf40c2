package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from path. Missing files are ignored.
// Variables already set in the process environment win.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LLM_PIPELINE_BACKEND"); v != "" {
		c.LLM.Backend = v
	}
	if v := os.Getenv("LLM_PIPELINE_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Ollama.Host = NormalizeHost(v)
	}
	if v := os.Getenv("HF_TOKEN"); v != "" && c.HF.Token == "" {
		c.HF.Token = v
	}
	if v := os.Getenv("HF_ENDPOINT"); v != "" {
		c.HF.Endpoint = strings.TrimRight(v, "/")
	}
}

// NormalizeHost adds a scheme to bare host:port values such as the ones
// OLLAMA_HOST commonly holds.
func NormalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return host
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host
}
