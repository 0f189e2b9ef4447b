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


// Package ai defines the embedding model contract used by the pipeline.
//
// Embedder is the only service the pipeline needs: chunk texts go in, vectors
// of a fixed dimension come out, tagged with the model that produced them so
// indexes built with different models never mix. AIProvider owns the client
// resources behind an Embedder.
//
// Implementations:
//
//   - ai/openai talks to any OpenAI-compatible embeddings endpoint
//   - ai/mock returns deterministic unit vectors for tests
//
// Config carries the endpoint, model, API key and expected dimension. A
// dimension of 0 means it is learned from the first response.
//
//	cfg := ai.NewConfig(
//	    ai.WithEmbeddingHost("http://localhost:11434"),
//	    ai.WithEmbeddingModel("all-minilm"),
//	)
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
package ai
