// Package enrich derives metadata from cleaned records.
//
// An Enricher attaches a detected language, up to three topic tags from the
// EU data-theme vocabulary, a word count and a model token count. Counts are
// always computed from the final body the Cleaner produced.
//
// Basic usage:
//
//	e, err := enrich.New(enrich.WithTokenModel("gpt-4"))
//	if err != nil {
//		return err
//	}
//	enriched, err := e.Enrich(ctx, rec)
//
// Topic tagging is keyword based by default. NewEmbeddingTagger scores
// records against theme descriptions with an ai.Embedder instead.
package enrich
