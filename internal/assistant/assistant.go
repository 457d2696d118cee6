// Package assistant turns chat messages into a friendly reply plus an
// optional classification of the money movement they mention.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Juls95/Trinit-AI/internal/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Classification kinds the model may return.
const (
	KindIncome    = "INCOME"
	KindExpense   = "EXPENSE"
	KindRecurring = "RECURRING"
	KindBudget    = "BUDGET"
)

const systemPrompt = `You are Trinit, a friendly personal finance assistant.
You help users track expenses, manage budgets, set financial goals, and provide market insights.
You speak in a warm, concise, and encouraging tone.

When users mention financial transactions, ALWAYS extract:
1. Classification: INCOME, EXPENSE, RECURRING, or BUDGET
2. Amount: the numeric amount mentioned
3. Category: one of Housing, Food, Transportation, Entertainment, Utilities, Health, Shopping, Savings, Salary, Other

Respond in JSON when a transaction is detected:
{"reply": "your friendly response", "classification": {"type": "EXPENSE", "amount": 45.50, "category": "Food"}}

For general conversation, respond:
{"reply": "your friendly response", "classification": null}

Handle MXN (Mexican Pesos) and USD. Default to MXN if currency is ambiguous.
Return ONLY raw JSON, without code fences.`

var ErrNotConfigured = errors.New("assistant: api key is not configured")

// Turn is one message of the conversation history.
type Turn struct {
	FromUser bool
	Text     string
}

type Classification struct {
	Type     string           `json:"type"`
	Amount   *decimal.Decimal `json:"amount"`
	Category string           `json:"category"`
}

// Recordable reports whether the classification carries a kind and a
// non-zero amount.
func (c *Classification) Recordable() bool {
	return c != nil && c.Type != "" && c.Amount != nil && !c.Amount.IsZero()
}

type Response struct {
	Reply          string          `json:"reply"`
	Classification *Classification `json:"classification"`
}

// Classifier produces the assistant reply for message given the history,
// oldest turn first.
type Classifier interface {
	Reply(ctx context.Context, message string, history []Turn) (*Response, error)
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Gemini is a Classifier backed by the Gemini API.
type Gemini struct {
	generate    generateFunc
	model       string
	temperature float32
	maxTokens   int32
	logger      *zap.Logger
}

func NewGemini(ctx context.Context, cfg config.AssistantConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGemini(client.Models.GenerateContent, cfg, logger), nil
}

func newGemini(gen generateFunc, cfg config.AssistantConfig, logger *zap.Logger) *Gemini {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{
		generate:    gen,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxOutputTokens,
		logger:      logger,
	}
}

func (g *Gemini) Reply(ctx context.Context, message string, history []Turn) (*Response, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		role := "model"
		if t.FromUser {
			role = "user"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: t.Text}}})
	}
	contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: message}}})

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   g.maxTokens,
	}

	resp, err := g.generate(ctx, g.model, contents, cfg)
	if err != nil {
		g.logger.Error("assistant generate failed", zap.String("model", g.model), zap.Error(err))
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("assistant: empty response from model")
	}
	return ParseReply(raw), nil
}

// ParseReply decodes the model output. Output that is not the expected JSON
// object becomes a plain-text reply without classification.
func ParseReply(raw string) *Response {
	var r Response
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &r); err != nil || strings.TrimSpace(r.Reply) == "" {
		return &Response{Reply: strings.TrimSpace(raw)}
	}

	if c := r.Classification; c != nil {
		c.Type = strings.ToUpper(strings.TrimSpace(c.Type))
		c.Category = strings.TrimSpace(c.Category)
		switch c.Type {
		case KindIncome, KindExpense, KindRecurring, KindBudget:
		default:
			r.Classification = nil
		}
	}
	if c := r.Classification; c != nil && c.Amount != nil {
		abs := c.Amount.Abs()
		c.Amount = &abs
	}
	return &r
}

// cleanJSON drops ``` fences and any text around the outermost object.
func cleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
