package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/botlode/brain/internal/leads"
	"github.com/botlode/brain/pkg/logging"
)

// Mood is the conversational tone tag returned with every reply.
type Mood string

const (
	MoodSales    Mood = "sales"
	MoodTech     Mood = "tech"
	MoodHappy    Mood = "happy"
	MoodAngry    Mood = "angry"
	MoodConfused Mood = "confused"
	MoodNeutral  Mood = "neutral"
)

// ParseMood maps free text onto the mood enum, defaulting to neutral.
func ParseMood(raw string) Mood {
	switch m := Mood(strings.ToLower(strings.TrimSpace(raw))); m {
	case MoodSales, MoodTech, MoodHappy, MoodAngry, MoodConfused, MoodNeutral:
		return m
	default:
		return MoodNeutral
	}
}

const (
	parseFailureReply = "Error de análisis."
	parseFailureScore = 10
)

// OracleRequest carries everything the reply instruction is built from.
type OracleRequest struct {
	BotName string
	Persona string
	Vendor  string
	Message string
	// History is oldest first.
	History []leads.ChatMessage
}

// OracleReply is the sanitized oracle output.
type OracleReply struct {
	Reply       string `json:"reply"`
	Mood        Mood   `json:"mood"`
	IntentScore int    `json:"intent_score"`
	// Fallback is set when the oracle output could not be parsed.
	Fallback bool `json:"-"`
}

// ReplyOracle drafts a reply plus mood and intent score for one turn.
type ReplyOracle struct {
	client      LLMClient
	temperature float32
	maxTokens   int32
	logger      *logging.Logger
}

// NewReplyOracle wraps client; client should already carry retry behavior.
func NewReplyOracle(client LLMClient, temperature float32, maxTokens int32, logger *logging.Logger) *ReplyOracle {
	if client == nil {
		panic("conversation: reply oracle requires an LLM client")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplyOracle{client: client, temperature: temperature, maxTokens: maxTokens, logger: logger}
}

// Generate calls the oracle. Transport failures are returned; malformed
// output never is.
func (o *ReplyOracle) Generate(ctx context.Context, req OracleRequest) (OracleReply, error) {
	ctx, span := oracleTracer.Start(ctx, "oracle.reply")
	defer span.End()

	messages := make([]ChatMessage, 0, len(req.History)+1)
	for _, h := range req.History {
		role := ChatRoleUser
		if h.Role.IsAssistant() {
			role = ChatRoleAssistant
		}
		messages = append(messages, ChatMessage{Role: role, Content: h.Content})
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: req.Message})

	resp, err := o.client.Complete(ctx, LLMRequest{
		System:      []string{buildReplyInstruction(req.BotName, req.Persona, req.Vendor)},
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		JSONMode:    true,
	})
	if err != nil {
		return OracleReply{}, fmt.Errorf("conversation: generate reply: %w", err)
	}

	reply := ParseOracleReply(resp.Text)
	if reply.Fallback {
		o.logger.Warn("oracle reply was not valid JSON", "raw_excerpt", truncateRunes(resp.Text, 200))
	}
	span.SetAttributes(
		attribute.String("oracle.mood", string(reply.Mood)),
		attribute.Int("oracle.intent_score", reply.IntentScore),
		attribute.Bool("oracle.fallback", reply.Fallback),
	)
	return reply, nil
}

// ParseOracleReply sanitizes raw oracle text into an OracleReply. Anything
// unparseable becomes {raw text, neutral, 10}.
func ParseOracleReply(raw string) OracleReply {
	cleaned := stripCodeFences(raw)

	var payload struct {
		Reply       any `json:"reply"`
		Mood        any `json:"mood"`
		IntentScore any `json:"intent_score"`
	}
	if !decodeJSONObject(cleaned, &payload) {
		return parseFailure(cleaned)
	}
	reply, ok := payload.Reply.(string)
	if !ok || strings.TrimSpace(reply) == "" {
		return parseFailure(cleaned)
	}
	mood, _ := payload.Mood.(string)
	return OracleReply{
		Reply:       strings.TrimSpace(reply),
		Mood:        ParseMood(mood),
		IntentScore: normalizeScore(payload.IntentScore),
	}
}

func parseFailure(cleaned string) OracleReply {
	reply := strings.TrimSpace(cleaned)
	if reply == "" {
		reply = parseFailureReply
	}
	return OracleReply{Reply: reply, Mood: MoodNeutral, IntentScore: parseFailureScore, Fallback: true}
}

// decodeJSONObject parses text as a JSON object, retrying on the outermost
// braces when the oracle wrapped the object in prose.
func decodeJSONObject(text string, dst any) bool {
	decode := func(s string) bool {
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		return dec.Decode(dst) == nil
	}
	if decode(text) {
		return true
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return false
	}
	return decode(text[start : end+1])
}

func normalizeScore(v any) int {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 100:
		return 100
	}
	return clampScore(int(math.Round(f)))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func stripCodeFences(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
