// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads the pipeline configuration file.
//
// Every key is optional; absent keys keep their defaults. Load returns the
// defaults when the file does not exist.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a configuration value out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// PathsConfig locates the staging input and the output tree.
type PathsConfig struct {
	StagingDir string `yaml:"staging_dir"`
	OutputDir  string `yaml:"output_dir"`
}

// StateDir is the badger store under the output tree.
func (p PathsConfig) StateDir() string { return filepath.Join(p.OutputDir, "state") }

// IndexDir holds one index file per embedding model.
func (p PathsConfig) IndexDir() string { return filepath.Join(p.OutputDir, "index") }

// ChunkConfig sizes chunks in characters.
type ChunkConfig struct {
	Size      int `yaml:"size"`
	Overlap   int `yaml:"overlap"`
	Tolerance int `yaml:"tolerance"`
}

// CleanConfig configures the Cleaner.
type CleanConfig struct {
	PIIPatterns   map[string][]string `yaml:"pii_patterns,omitempty"`
	MissingValues map[string]string   `yaml:"missing_values,omitempty"`
	DefaultPolicy string              `yaml:"default_policy"`
	Locale        string              `yaml:"locale"`
}

// EnrichConfig configures the Enricher.
type EnrichConfig struct {
	LanguageConfidenceThreshold float64 `yaml:"language_confidence_threshold"`
	Tagger                      string  `yaml:"tagger"`
	SimilarityThreshold         float64 `yaml:"similarity_threshold"`
	TokenModel                  string  `yaml:"token_model,omitempty"`
}

// Tagger names.
const (
	TaggerKeyword   = "keyword"
	TaggerEmbedding = "embedding"
)

// ExtractConfig configures the TextExtractor.
type ExtractConfig struct {
	OCRConfidenceThreshold float64       `yaml:"ocr_confidence_threshold"`
	OCRMinTextChars        int           `yaml:"ocr_min_text_chars"`
	OCRTimeout             time.Duration `yaml:"ocr_timeout"`
	OCRLanguages           []string      `yaml:"ocr_languages"`
	OCRDPI                 int           `yaml:"ocr_dpi"`
}

// EmbeddingConfig configures the embedding client and batcher.
type EmbeddingConfig struct {
	Host       string        `yaml:"host"`
	Model      string        `yaml:"model"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
	Normalize  bool          `yaml:"normalize"`
}

// IndexConfig configures the vector index.
type IndexConfig struct {
	CompactionThreshold int `yaml:"compaction_threshold"`
}

// RetryConfig is shared by OCR and embedding calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// WorkersConfig sizes the stage pools.
type WorkersConfig struct {
	Ingest int `yaml:"ingest"`
	OCR    int `yaml:"ocr"`
	Embed  int `yaml:"embed"`
}

// PipelineConfig tunes batching.
type PipelineConfig struct {
	BatchFiles int  `yaml:"batch_files"`
	Export     bool `yaml:"export"`
}

// Config is the root configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Clean     CleanConfig     `yaml:"clean"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Extract   ExtractConfig   `yaml:"extract"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retry     RetryConfig     `yaml:"retry"`
	Workers   WorkersConfig   `yaml:"workers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// Default returns the default configuration.
func Default() *Config {
	workers := max(runtime.NumCPU()/2, 1)
	return &Config{
		Paths: PathsConfig{StagingDir: "staging", OutputDir: "output"},
		Chunk: ChunkConfig{Size: 800, Overlap: 100},
		Clean: CleanConfig{DefaultPolicy: "flag"},
		Enrich: EnrichConfig{
			LanguageConfidenceThreshold: 0.5,
			Tagger:                      TaggerKeyword,
			SimilarityThreshold:         0.3,
		},
		Extract: ExtractConfig{
			OCRConfidenceThreshold: 60,
			OCRMinTextChars:        200,
			OCRTimeout:             2 * time.Minute,
			OCRLanguages:           []string{"eng"},
			OCRDPI:                 200,
		},
		Embedding: EmbeddingConfig{
			Host:      "http://localhost:11434/v1",
			Model:     "all-minilm",
			APIKeyEnv: "EMBEDDING_API_KEY",
			BatchSize: 32,
			Timeout:   30 * time.Second,
			Normalize: true,
		},
		Index:    IndexConfig{CompactionThreshold: 1024},
		Retry:    RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond},
		Workers:  WorkersConfig{Ingest: workers, OCR: workers, Embed: workers},
		Pipeline: PipelineConfig{BatchFiles: 16, Export: true},
	}
}

// TokenModel returns the model whose tokenizer counts tokens. It is the
// embedding model unless enrich.token_model overrides it.
func (c *Config) TokenModel() string {
	if c.Enrich.TokenModel != "" {
		return c.Enrich.TokenModel
	}
	return c.Embedding.Model
}

// Load reads path over the defaults and validates the result. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Paths.StagingDir == "":
		return invalid("paths.staging_dir is required")
	case c.Paths.OutputDir == "":
		return invalid("paths.output_dir is required")
	case c.Chunk.Size <= 0:
		return invalid("chunk.size must be positive, got %d", c.Chunk.Size)
	case c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size:
		return invalid("chunk.overlap must be in [0, %d), got %d", c.Chunk.Size, c.Chunk.Overlap)
	case c.Chunk.Tolerance < 0:
		return invalid("chunk.tolerance must not be negative")
	case c.Enrich.LanguageConfidenceThreshold < 0 || c.Enrich.LanguageConfidenceThreshold > 1:
		return invalid("enrich.language_confidence_threshold must be in [0, 1]")
	case c.Enrich.SimilarityThreshold < 0 || c.Enrich.SimilarityThreshold > 1:
		return invalid("enrich.similarity_threshold must be in [0, 1]")
	case c.Enrich.Tagger != TaggerKeyword && c.Enrich.Tagger != TaggerEmbedding:
		return invalid("enrich.tagger must be %q or %q, got %q", TaggerKeyword, TaggerEmbedding, c.Enrich.Tagger)
	case c.Extract.OCRConfidenceThreshold < 0 || c.Extract.OCRConfidenceThreshold > 100:
		return invalid("extract.ocr_confidence_threshold must be in [0, 100]")
	case c.Extract.OCRTimeout <= 0:
		return invalid("extract.ocr_timeout must be positive")
	case c.Embedding.Model == "":
		return invalid("embedding.model is required")
	case c.Embedding.BatchSize <= 0:
		return invalid("embedding.batch_size must be positive")
	case c.Embedding.Timeout <= 0:
		return invalid("embedding.timeout must be positive")
	case c.Embedding.Dimensions < 0:
		return invalid("embedding.dimensions must not be negative")
	case c.Index.CompactionThreshold <= 0:
		return invalid("index.compaction_threshold must be positive")
	case c.Retry.MaxAttempts <= 0:
		return invalid("retry.max_attempts must be positive")
	case c.Workers.Ingest <= 0 || c.Workers.OCR <= 0 || c.Workers.Embed <= 0:
		return invalid("workers must be positive")
	case c.Pipeline.BatchFiles <= 0:
		return invalid("pipeline.batch_files must be positive")
	}
	return nil
}
