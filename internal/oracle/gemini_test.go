package oracle

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type fakeGeminiModels struct {
	gotModel  string
	gotPrompt string
	gotTemp   float32
	resp      *genai.GenerateContentResponse
	err       error
}

func (f *fakeGeminiModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.gotPrompt = contents[0].Parts[0].Text
	}
	if config != nil && config.Temperature != nil {
		f.gotTemp = *config.Temperature
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGeminiGenerate(t *testing.T) {
	fake := &fakeGeminiModels{resp: textResponse(" [\"a\", \"b\"] ")}
	g := newGeminiWithModels(fake, GeminiConfig{Temperature: 0.25})

	got, err := g.Generate(context.Background(), "split this")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != `["a", "b"]` {
		t.Fatalf("Generate() = %q", got)
	}
	if fake.gotModel != "gemini-2.5-flash" || g.Model() != "gemini-2.5-flash" {
		t.Fatalf("model = %q", fake.gotModel)
	}
	if fake.gotPrompt != "split this" {
		t.Fatalf("prompt = %q", fake.gotPrompt)
	}
	if fake.gotTemp != 0.25 {
		t.Fatalf("temperature = %v", fake.gotTemp)
	}
}

func TestGeminiGenerateErrors(t *testing.T) {
	g := newGeminiWithModels(&fakeGeminiModels{err: errors.New("quota")}, GeminiConfig{})
	if _, err := g.Generate(context.Background(), "x"); err == nil {
		t.Fatal("expected upstream error")
	}
	g = newGeminiWithModels(&fakeGeminiModels{resp: &genai.GenerateContentResponse{}}, GeminiConfig{})
	if _, err := g.Generate(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestNewGeminiRequiresAPIKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), GeminiConfig{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
