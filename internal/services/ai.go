package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"revizo/internal/models"
)

var (
	// ErrAIUnavailable is returned when the OpenAI integration is not configured.
	ErrAIUnavailable = errors.New("openai integration is not configured")
)

const (
	// Content samples are clamped before prompting so a long lecture PDF
	// does not blow the context window.
	themeSampleLimit    = 4000
	questionSampleLimit = 6000
)

// ThemeSummary is the LLM's reading of a document: an inferred subject name,
// the keywords that represent it, and a short description.
type ThemeSummary struct {
	Name        string   `json:"theme_name"`
	Keywords    []string `json:"keywords"`
	Description string   `json:"description"`
}

type GeneratedAnswer struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// GeneratedQuestion is one item of generator output. Quiz items carry
// Answers; flashcard items carry the single Answer string.
type GeneratedQuestion struct {
	Question    string            `json:"question"`
	Answers     []GeneratedAnswer `json:"answers,omitempty"`
	Answer      string            `json:"answer,omitempty"`
	Explanation string            `json:"explanation,omitempty"`
	Difficulty  string            `json:"difficulty,omitempty"`
}

type questionExtraction struct {
	Questions []GeneratedQuestion `json:"questions"`
}

// AIService talks to an OpenAI-compatible chat completion endpoint for theme
// analysis and question generation.
type AIService struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

func NewAIService(apiKey, model, apiEndpoint string, log *zap.Logger) *AIService {
	if apiKey == "" {
		return &AIService{log: log}
	}

	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}
	return &AIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    log,
	}
}

func (s *AIService) disabled() bool {
	return s.client == nil || s.model == ""
}

// extractJSON removes markdown code block formatting if present and extracts the JSON
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		start := 3
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}

	content = strings.TrimSpace(content)

	// Additional safety: find the first { and last } to extract just the JSON object
	if startIdx := strings.Index(content, "{"); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "}"); endIdx != -1 && endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}

	return strings.TrimSpace(content)
}

func clampSample(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// AnalyzeTheme asks the model for the document's main theme as strict JSON.
func (s *AIService) AnalyzeTheme(ctx context.Context, text string) (*ThemeSummary, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	sample := clampSample(text, themeSampleLimit)
	prompt := fmt.Sprintf(`Analyze the following educational content and extract the main theme.

CONTENT:
%s

Your task:
1. Identify the MAIN THEME (subject/topic) of this content
2. Extract 5-10 KEYWORDS that best represent this theme
3. Write a SHORT DESCRIPTION (max 200 characters)

Respond ONLY with valid JSON in this exact format:
{"theme_name": "", "keywords": [], "description": ""}`, sample)

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert at analyzing educational content and identifying its subject matter. Always respond with valid JSON only.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.2,
		MaxTokens:   500,
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &GenerationError{Op: "analyze theme", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &GenerationError{Op: "analyze theme", Err: errors.New("no choices returned")}
	}

	var summary ThemeSummary
	jsonStr := extractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(jsonStr), &summary); err != nil {
		s.log.Warn("theme analysis returned unparseable JSON", zap.Error(err))
		return nil, &GenerationError{Op: "analyze theme", Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if strings.TrimSpace(summary.Name) == "" || len(summary.Keywords) == 0 {
		return nil, &GenerationError{Op: "analyze theme", Err: errors.New("summary missing theme name or keywords")}
	}
	return &summary, nil
}

// GenerateQuestions asks the model for count new questions of the given kind,
// with a mixed difficulty spread. The returned items are raw generator output;
// structural validation happens in the assembly service.
func (s *AIService) GenerateQuestions(ctx context.Context, text string, kind models.SessionKind, count int) ([]GeneratedQuestion, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	sample := clampSample(text, questionSampleLimit)

	var prompt string
	if kind == models.KindQuiz {
		prompt = fmt.Sprintf(`Based on the following educational content, generate %d multiple-choice quiz questions.

CONTENT:
%s

Generate %d quiz questions with 4 answer options each (1 correct, 3 incorrect).

Respond ONLY with valid JSON in this exact format:
{
    "questions": [
        {
            "question": "Question text here?",
            "answers": [
                {"text": "Correct answer", "is_correct": true},
                {"text": "Wrong answer 1", "is_correct": false},
                {"text": "Wrong answer 2", "is_correct": false},
                {"text": "Wrong answer 3", "is_correct": false}
            ],
            "explanation": "Brief explanation of why the correct answer is correct",
            "difficulty": "EASY"
        }
    ]
}

Requirements:
- Mix difficulty levels: EASY, MEDIUM, HARD
- Questions should test understanding, not just memorization
- Make wrong answers plausible but clearly incorrect
- Explanations should be 1-2 sentences
- Return ONLY the JSON, no other text`, count, sample, count)
	} else {
		prompt = fmt.Sprintf(`Based on the following educational content, generate %d flashcard-style questions.

CONTENT:
%s

Generate %d flashcard questions (question on front, answer on back).

Respond ONLY with valid JSON in this exact format:
{
    "questions": [
        {
            "question": "Question or term to remember?",
            "answer": "Complete answer or definition",
            "difficulty": "EASY"
        }
    ]
}

Requirements:
- Mix difficulty levels: EASY, MEDIUM, HARD
- Questions should be clear and specific
- Answers should be concise but complete (2-4 sentences max)
- Return ONLY the JSON, no other text`, count, sample, count)
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert educator who creates high-quality study materials. Always respond with valid JSON only.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.7,
		MaxTokens:   3000,
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &GenerationError{Op: "generate questions", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &GenerationError{Op: "generate questions", Err: errors.New("no choices returned")}
	}

	var extraction questionExtraction
	jsonStr := extractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(jsonStr), &extraction); err != nil {
		s.log.Warn("question generation returned unparseable JSON", zap.Error(err))
		return nil, &GenerationError{Op: "generate questions", Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if extraction.Questions == nil {
		return nil, &GenerationError{Op: "generate questions", Err: errors.New("response missing questions list")}
	}
	return extraction.Questions, nil
}
