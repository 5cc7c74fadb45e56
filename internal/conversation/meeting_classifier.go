package conversation

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/botlode/brain/pkg/logging"
)

// MeetingJudgment is the classifier's view of a meeting in one message.
type MeetingJudgment struct {
	Confirmed bool   `json:"confirmed"`
	Date      string `json:"date,omitempty"`
	Time      string `json:"time,omitempty"`
}

// MeetingClassifier asks the oracle whether a message confirms a meeting.
// It is best-effort: every failure yields the zero judgment.
type MeetingClassifier struct {
	client      LLMClient
	temperature float32
	maxTokens   int32
	logger      *logging.Logger
}

func NewMeetingClassifier(client LLMClient, temperature float32, maxTokens int32, logger *logging.Logger) *MeetingClassifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &MeetingClassifier{client: client, temperature: temperature, maxTokens: maxTokens, logger: logger}
}

// Classify returns whether message affirmatively confirms a meeting.
func (c *MeetingClassifier) Classify(ctx context.Context, message, vendor string) MeetingJudgment {
	if c == nil || c.client == nil || strings.TrimSpace(message) == "" {
		return MeetingJudgment{}
	}
	ctx, span := oracleTracer.Start(ctx, "oracle.meeting")
	defer span.End()

	resp, err := c.client.Complete(ctx, LLMRequest{
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: buildMeetingPrompt(message, vendor)}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		JSONMode:    true,
	})
	if err != nil {
		c.logger.Warn("meeting classification failed", "error", err)
		return MeetingJudgment{}
	}

	judgment, ok := parseMeetingJudgment(resp.Text)
	if !ok {
		c.logger.Warn("meeting classification unparseable", "raw_excerpt", truncateRunes(resp.Text, 200))
	}
	span.SetAttributes(attribute.Bool("meeting.confirmed", judgment.Confirmed))
	return judgment
}

func parseMeetingJudgment(raw string) (MeetingJudgment, bool) {
	var payload struct {
		Confirmed  *bool `json:"confirmed"`
		HasMeeting *bool `json:"has_meeting_intent"`
		Date       any   `json:"date"`
		Time       any   `json:"time"`
	}
	if !decodeJSONObject(stripCodeFences(raw), &payload) {
		return MeetingJudgment{}, false
	}
	var j MeetingJudgment
	switch {
	case payload.Confirmed != nil:
		j.Confirmed = *payload.Confirmed
	case payload.HasMeeting != nil:
		j.Confirmed = *payload.HasMeeting
	}
	j.Date = nullableText(payload.Date)
	j.Time = nullableText(payload.Time)
	return j, true
}

// nullableText treats JSON null, non-strings and the literal "null" as empty.
func nullableText(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	return s
}
