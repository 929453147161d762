package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"consult_gateway_go_backend/internal/models"

	"github.com/google/generative-ai-go/genai"
)

// Summarizer turns a conversation transcript into a short natural-language summary.
type Summarizer interface {
	Summarize(ctx context.Context, transcript []models.Message) (string, error)
}

// ContentGenerator is the part of *genai.GenerativeModel used for summaries.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

var ErrEmptyTranscript = errors.New("transcript has no text messages")

const summaryInstruction = `You summarize consultation chats between a user and a partner.
Write three to five sentences covering the user's questions, the guidance given and any follow-up agreed.
Do not include personal contact details.`

type GeminiSummarizer struct {
	generator ContentGenerator
}

// NewGeminiSummarizer configures a model from the client for summarization.
func NewGeminiSummarizer(client *genai.Client, modelName string) *GeminiSummarizer {
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(summaryInstruction)},
	}
	model.SetTemperature(0.2)
	return &GeminiSummarizer{generator: model}
}

func NewGeminiSummarizerWithGenerator(generator ContentGenerator) *GeminiSummarizer {
	return &GeminiSummarizer{generator: generator}
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, transcript []models.Message) (string, error) {
	prompt := renderTranscript(transcript)
	if prompt == "" {
		return "", ErrEmptyTranscript
	}

	resp, err := s.generator.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	summary := strings.TrimSpace(sb.String())
	if summary == "" {
		return "", errors.New("model returned an empty summary")
	}
	return summary, nil
}

func renderTranscript(transcript []models.Message) string {
	var sb strings.Builder
	for _, msg := range transcript {
		if msg.Type != models.MessageText || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", msg.SenderRole, msg.Content)
	}
	return sb.String()
}
