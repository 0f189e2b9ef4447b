package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/refinery/ai/mock"
	"github.com/poiesic/refinery/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const englishText = "The council published its annual report on local housing and planning. " +
	"It describes how many new homes were built across the borough during the year, " +
	"and sets out the priorities for the next five years of development."

const frenchText = "Le conseil a publié son rapport annuel sur le logement et l'urbanisme. " +
	"Il décrit combien de nouveaux logements ont été construits dans la commune pendant l'année."

func record(title, body string) *core.NormalizedRecord {
	raw := &core.RawRecord{Source: "gov", Name: "report.html", RetrievedAt: time.Now().Add(-time.Hour)}
	rec := core.NewNormalizedRecord(raw, core.SourceKindMarkup, "", 0)
	rec.Title = title
	rec.SetBody(body)
	return rec
}

func TestDetectLanguage(t *testing.T) {
	code, conf := DetectLanguage(englishText, DefaultLanguageThreshold)
	assert.Equal(t, "en", code)
	assert.Greater(t, conf, DefaultLanguageThreshold)

	code, _ = DetectLanguage(frenchText, DefaultLanguageThreshold)
	assert.Equal(t, "fr", code)

	code, conf = DetectLanguage("   ", DefaultLanguageThreshold)
	assert.Equal(t, core.LanguageUnknown, code)
	assert.Zero(t, conf)

	code, _ = DetectLanguage(englishText, 1.01)
	assert.Equal(t, core.LanguageUnknown, code)
}

func TestKeywordTagger(t *testing.T) {
	tagger := NewKeywordTagger()

	tags, err := tagger.Tag(context.Background(), record("Hospital waiting times",
		"NHS hospital patients waited longer. Hospital budgets rose."))
	require.NoError(t, err)
	require.NotEmpty(t, tags)
	assert.Equal(t, "HEAL", tags[0])
	assert.Contains(t, tags, "ECON")

	tags, err = tagger.Tag(context.Background(), record("", "zzz qqq"))
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestKeywordTagger_AtMostThree(t *testing.T) {
	body := "farming budget schools energy climate parliament hospital crime housing census research railway"
	tags, err := NewKeywordTagger().Tag(context.Background(), record("", body))
	require.NoError(t, err)
	assert.Len(t, tags, MaxTags)
	// Equal hit counts keep vocabulary order
	assert.Equal(t, []string{"AGRI", "ECON", "EDUC"}, tags)
}

func TestKeywordTagger_Phrases(t *testing.T) {
	tags, err := NewKeywordTagger().Tag(context.Background(), record("", "A report to the United Nations"))
	require.NoError(t, err)
	assert.Equal(t, []string{"INTR"}, tags)
}

func TestTagText_TruncatesBody(t *testing.T) {
	rec := record("Title", strings.Repeat("é", 1500))
	rec.Description = "Desc"
	rec.Keywords = []string{"a", "b"}
	text := TagText(rec)
	assert.True(t, strings.HasPrefix(text, "Title Desc a b "))
	assert.Equal(t, len("Title Desc a b ")+1000*len("é"), len(text))
}

func axis(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func TestEmbeddingTagger(t *testing.T) {
	themes := Themes()
	byDescription := make(map[string]int, len(themes))
	for i, th := range themes {
		byDescription[th.Description] = i
	}
	dim := len(themes)

	m := mock.NewMockEmbedder().WithDimensions(dim)
	m.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = axis(dim, byDescription[text])
		}
		return out, nil
	}
	m.EmbedTextFunc = func(_ context.Context, _ string) ([]float32, error) {
		v := make([]float32, dim)
		v[0] = 0.9  // AGRI
		v[4] = 0.5  // ENVI
		v[8] = 0.05 // JUST, below threshold
		return v, nil
	}

	tagger, err := NewEmbeddingTagger(m, 0)
	require.NoError(t, err)

	tags, err := tagger.Tag(context.Background(), record("Corn prices", "Market rates for wheat and corn"))
	require.NoError(t, err)
	assert.Equal(t, []string{"AGRI", "ENVI"}, tags)

	// Theme vectors are embedded once
	_, err = tagger.Tag(context.Background(), record("Again", "text"))
	require.NoError(t, err)
	assert.Equal(t, dim+2, m.TextCount())
}

func TestNewEmbeddingTagger_Validation(t *testing.T) {
	_, err := NewEmbeddingTagger(nil, 0)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewEmbeddingTagger(mock.NewMockEmbedder(), 1.5)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestTokenCounter(t *testing.T) {
	c, err := NewTokenCounter("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenModel, c.Model())
	assert.Zero(t, c.Count(""))
	assert.Equal(t, 2, c.Count("hello world"))

	// Unknown models fall back to cl100k_base
	fallback, err := NewTokenCounter("not-a-real-model")
	require.NoError(t, err)
	assert.Equal(t, c.Count(englishText), fallback.Count(englishText))
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 3, WordCount("  one\ttwo\n\nthree "))
}

func TestEnrich(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	rec := record("Housing report", englishText)
	out, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, out.ID)
	assert.Equal(t, "en", out.Language)
	assert.Contains(t, out.Topics, "REGI")
	assert.Equal(t, len(strings.Fields(englishText)), out.WordCount)
	assert.Positive(t, out.TokenCount)
}

func TestEnrich_CountsRedactedBody(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	out, err := e.Enrich(context.Background(), record("", "call xx-xxxx-xxxx or email xxx@xxx.xx"))
	require.NoError(t, err)
	assert.Equal(t, 5, out.WordCount)
}

type failingTagger struct{}

func (failingTagger) Tag(context.Context, *core.NormalizedRecord) ([]string, error) {
	return nil, errors.New("tagger down")
}

func TestEnrich_TaggerFailureIsWarning(t *testing.T) {
	e, err := New(WithTagger(failingTagger{}))
	require.NoError(t, err)

	rec := record("", englishText)
	out, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Empty(t, out.Topics)
	require.Len(t, out.Warnings, 1)
	assert.Empty(t, rec.Warnings)
}

func TestEnrich_Canceled(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Enrich(ctx, record("", englishText))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidThreshold(t *testing.T) {
	_, err := New(WithLanguageThreshold(-0.1))
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}
