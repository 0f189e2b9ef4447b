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


package openai

import (
	"log/slog"

	"github.com/poiesic/refinery/ai"
)

// Provider implements ai.AIProvider with an OpenAI-compatible embedding
// endpoint.
type Provider struct {
	embedder *Embedder
	logger   *slog.Logger
}

// NewProvider validates and normalizes config, then builds the embedder.
// It does not contact the server; callers probe the model before a run.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider", "host", config.EmbeddingHost)
	logger.Debug("embedding provider ready", "model", config.EmbeddingModel, "dimensions", config.Dimensions)
	return &Provider{embedder: embedder, logger: logger}, nil
}

// Embedder returns the embedding client.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Close is a no-op; the HTTP client holds no connections that need closing.
func (p *Provider) Close() error {
	p.logger.Debug("closing embedding provider", "model", p.embedder.ModelID())
	return nil
}
