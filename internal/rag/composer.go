// Package rag implements the query-time pipeline: retrieve guideline
// chunks, format them into a citation-annotated context block, and
// either return that block or drive a generation backend with it.
package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/evidenced/internal/vectorstore"
)

// SystemPrompt is the fixed instruction sent to the generation backend.
const SystemPrompt = `You are an assistant that summarizes and explains clinical practice guidelines.
You are not allowed to give specific medical advice, dosing instructions, or treatment decisions.
You are not a doctor.
Base your answers strictly on the provided guideline excerpts and mention which guideline and year a conclusion comes from.`

// NoInformationAnswer is returned when retrieval yields zero chunks.
const NoInformationAnswer = "No relevant information was found in the indexed guidelines for this question."

// contextSeparator joins rendered chunks in the context block.
const contextSeparator = "\n\n---\n\n"

// Source is the provenance projection of one retrieved chunk. All
// fields are optional because upstream metadata may be incomplete.
type Source struct {
	StudyID    string `json:"study_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Year       int    `json:"year,omitempty"`
	Condition  string `json:"condition,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	SourceFile string `json:"source_file,omitempty"`
	Page       int    `json:"page,omitempty"`
}

// QueryResult is the outcome of one query. Constructed fresh per
// request, never persisted.
type QueryResult struct {
	// Answer is nil when no generation backend is configured.
	Answer *string `json:"answer"`

	// Sources lists provenance for every retrieved chunk, in
	// similarity order. Never nil on a valid result.
	Sources []Source `json:"sources"`

	// RawContext is the formatted context block when available. The
	// HTTP layer echoes it only when the caller asked for it.
	RawContext string `json:"raw_context,omitempty"`
}

// Answerer produces the answer for a question given the formatted
// context block. Implementations: Passthrough (no backend) and
// Generative (LLM-backed). Selected once at startup and injected.
type Answerer interface {
	// Answer returns nil when the mode has no generated answer.
	Answer(ctx context.Context, question, contextBlock string) (*string, error)
}

// Passthrough is the no-backend Answerer: the caller gets the raw
// retrieved context and no generated answer.
type Passthrough struct{}

// Answer always reports an absent answer.
func (Passthrough) Answer(context.Context, string, string) (*string, error) {
	return nil, nil
}

// Generative drives an LLM with the fixed system instruction and the
// question plus context at low sampling temperature.
type Generative struct {
	model       llms.Model
	temperature float64
	logger      *zap.Logger
}

// NewGenerative creates a Generative answerer around any langchaingo
// model (ollama in production, a stub in tests).
func NewGenerative(model llms.Model, temperature float64, logger *zap.Logger) *Generative {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generative{model: model, temperature: temperature, logger: logger}
}

// Answer generates a grounded answer from the question and context block.
func (g *Generative) Answer(ctx context.Context, question, contextBlock string) (*string, error) {
	human := fmt.Sprintf("Question: %s\n\nGuideline excerpts:\n%s", question, contextBlock)

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, SystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, human),
	}

	resp, err := g.model.GenerateContent(ctx, content, llms.WithTemperature(g.temperature))
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("generating answer: empty response")
	}

	answer := resp.Choices[0].Content
	g.logger.Debug("generated answer", zap.Int("answer_len", len(answer)))
	return &answer, nil
}

// Composer turns retrieval results into a QueryResult using the
// injected Answerer.
type Composer struct {
	answerer Answerer
	logger   *zap.Logger
}

// NewComposer creates a Composer.
func NewComposer(answerer Answerer, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{answerer: answerer, logger: logger}
}

// Compose builds the citation-annotated context block and produces the
// final result. Zero retrieved chunks short-circuit to the fixed
// no-information answer without touching the generation backend.
func (c *Composer) Compose(ctx context.Context, question string, results []vectorstore.SearchResult) (*QueryResult, error) {
	if len(results) == 0 {
		answer := NoInformationAnswer
		return &QueryResult{Answer: &answer, Sources: []Source{}}, nil
	}

	block := FormatContext(results)
	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = sourceFromMetadata(r.Metadata)
	}

	answer, err := c.answerer.Answer(ctx, question, block)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Answer:     answer,
		Sources:    sources,
		RawContext: block,
	}, nil
}

// FormatContext renders retrieved chunks into the numbered context
// block. Formatting is deterministic: identical inputs yield
// byte-identical output.
func FormatContext(results []vectorstore.SearchResult) string {
	rendered := make([]string, len(results))
	for i, r := range results {
		rendered[i] = fmt.Sprintf("%s\n%s", citationHeader(i+1, r.Metadata), r.Content)
	}
	return strings.Join(rendered, contextSeparator)
}

// citationHeader renders one chunk's provenance line, e.g.
// "[1] S1 | Guideline A (2020) | p.3|CKD". Missing fields render as N/A.
func citationHeader(index int, meta map[string]interface{}) string {
	page := "N/A"
	if p, ok := metaInt(meta, "page"); ok && p > 0 {
		page = strconv.Itoa(p)
	}
	year := "N/A"
	if y, ok := metaInt(meta, "year"); ok && y != 0 {
		year = strconv.Itoa(y)
	}
	return fmt.Sprintf("[%d] %s | %s (%s) | p.%s|%s",
		index,
		metaString(meta, "study_id"),
		metaString(meta, "title"),
		year,
		page,
		metaString(meta, "condition"),
	)
}

// sourceFromMetadata projects stored chunk metadata onto the response
// Source shape, omitting anything absent or unparsable.
func sourceFromMetadata(meta map[string]interface{}) Source {
	src := Source{
		StudyID:    rawMetaString(meta, "study_id"),
		Title:      rawMetaString(meta, "title"),
		Condition:  rawMetaString(meta, "condition"),
		SourceType: rawMetaString(meta, "source_type"),
		SourceFile: rawMetaString(meta, "source_file"),
	}
	if y, ok := metaInt(meta, "year"); ok {
		src.Year = y
	}
	if p, ok := metaInt(meta, "page"); ok {
		src.Page = p
	}
	return src
}

// rawMetaString returns the metadata value as a string, or "".
func rawMetaString(meta map[string]interface{}, key string) string {
	if v, ok := meta[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// metaString is rawMetaString with an N/A fallback for citation headers.
func metaString(meta map[string]interface{}, key string) string {
	if s := rawMetaString(meta, key); s != "" {
		return s
	}
	return "N/A"
}

// metaInt parses an integer metadata value. The store round-trips all
// metadata as strings, so numbers come back as their decimal form.
func metaInt(meta map[string]interface{}, key string) (int, bool) {
	v, ok := meta[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
