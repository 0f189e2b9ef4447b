package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/refinery/config"
	"github.com/poiesic/refinery/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingServer answers /v1/embeddings with 8-dimensional vectors.
func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, text := range req.Input {
			vec := make([]float32, 8)
			vec[len(text)%8] = 1
			data[i] = item{Object: "embedding", Embedding: vec, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, host string) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(dir, "staging")
	cfg.Paths.OutputDir = filepath.Join(dir, "output")
	cfg.Embedding.Host = host
	cfg.Embedding.Model = "test-model"
	cfg.Retry.MaxAttempts = 1
	path := filepath.Join(dir, "refinery.yaml")
	require.NoError(t, config.Save(path, cfg))
	return path, cfg
}

func stage(t *testing.T, cfg *config.Config, source, name, content string) {
	t.Helper()
	path := filepath.Join(cfg.Paths.StagingDir, source, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"refinery", "--env-file", ""}, args...))
	return out.String(), err
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	_, err := run(t, "--log-level", "loud", "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestRemove_RequiresFlags(t *testing.T) {
	_, err := run(t, "remove", "--source", "ons")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")
}

func TestRemove_InvalidID(t *testing.T) {
	_, err := run(t, "remove", "--source", "ons", "--id", "zz")
	assert.ErrorIs(t, err, core.ErrInvalidRecord)
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "refinery.yaml")
	out, err := run(t, "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Chunk, cfg.Chunk)

	_, err = run(t, "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRunVerifyRemove(t *testing.T) {
	srv := embeddingServer(t)
	path, cfg := writeConfig(t, srv.URL)
	stage(t, cfg, "ons", "a.txt", "Hospital waiting lists grew again.")
	stage(t, cfg, "ons", "b.txt", "Farm incomes fell after the drought.")
	metricsFile := filepath.Join(t.TempDir(), "refinery.prom")

	out, err := run(t, "--config", path, "run", "--metrics-file", metricsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "STAGE")
	assert.Contains(t, out, "index chunks: 2")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "refinery_index_chunks 2")

	out, err = run(t, "--config", path, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "stored chunks: 2, indexed chunks: 2")
	assert.Contains(t, out, "index matches store")

	id := core.RecordID("ons", "a.txt", "", 0).String()
	out, err = run(t, "--config", path, "remove", "--source", "ons", "--id", id)
	require.NoError(t, err)
	assert.Contains(t, out, "1 indexed chunks")

	out, err = run(t, "--config", path, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "stored chunks: 1, indexed chunks: 1")
}

func TestReindex_NewModel(t *testing.T) {
	srv := embeddingServer(t)
	path, cfg := writeConfig(t, srv.URL)
	stage(t, cfg, "ons", "a.txt", "School budgets were cut.")

	_, err := run(t, "--config", path, "run")
	require.NoError(t, err)

	out, err := run(t, "--config", path, "reindex", "--embedding-model", "other-model")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed: 1")

	entries, err := os.ReadDir(cfg.Paths.IndexDir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Len(t, names, 2)
	assert.True(t, strings.Contains(strings.Join(names, " "), "other-model"))
}
