package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMeetingJudgment(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   MeetingJudgment
		wantOK bool
	}{
		{
			name:   "confirmed with date",
			raw:    `{"confirmed": true, "date": "lunes", "time": null}`,
			want:   MeetingJudgment{Confirmed: true, Date: "lunes"},
			wantOK: true,
		},
		{
			name:   "legacy key",
			raw:    `{"has_meeting_intent": true, "date": "mañana", "time": "15:00"}`,
			want:   MeetingJudgment{Confirmed: true, Date: "mañana", Time: "15:00"},
			wantOK: true,
		},
		{
			name:   "string null",
			raw:    "```json\n{\"confirmed\": false, \"date\": \"null\", \"time\": \"None\"}\n```",
			want:   MeetingJudgment{},
			wantOK: true,
		},
		{
			name:   "question only",
			raw:    `{"confirmed": false, "date": "lunes", "time": null}`,
			want:   MeetingJudgment{Date: "lunes"},
			wantOK: true,
		},
		{
			name:   "prose",
			raw:    "El usuario confirma la reunión",
			want:   MeetingJudgment{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseMeetingJudgment(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeetingClassifier_Classify(t *testing.T) {
	stub := &stubLLMClient{responses: []string{`{"confirmed": true, "date": "lunes", "time": "10"}`}}
	classifier := NewMeetingClassifier(stub, 0.1, 150, nil)

	got := classifier.Classify(context.Background(), "agendemos el lunes a las 10", "Ignacio")
	assert.Equal(t, MeetingJudgment{Confirmed: true, Date: "lunes", Time: "10"}, got)

	req := stub.lastRequest()
	assert.True(t, req.JSONMode)
	assert.Equal(t, int32(150), req.MaxTokens)
	assert.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "CONFIRMA una reunión con Ignacio")
	assert.Contains(t, req.Messages[0].Content, `"agendemos el lunes a las 10"`)
}

func TestMeetingClassifier_DegradesToNoMeeting(t *testing.T) {
	tests := []struct {
		name string
		stub *stubLLMClient
	}{
		{name: "transport error", stub: &stubLLMClient{errs: []error{errors.New("timeout")}}},
		{name: "garbage", stub: &stubLLMClient{responses: []string{"sí, confirmó"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewMeetingClassifier(tt.stub, 0.1, 150, nil)
			assert.Equal(t, MeetingJudgment{}, c.Classify(context.Background(), "dale, el lunes", ""))
		})
	}
}

func TestMeetingClassifier_SkipsEmptyAndNil(t *testing.T) {
	stub := &stubLLMClient{}
	c := NewMeetingClassifier(stub, 0.1, 150, nil)
	assert.Equal(t, MeetingJudgment{}, c.Classify(context.Background(), "  ", ""))
	assert.Equal(t, 0, stub.callCount())

	var nilClassifier *MeetingClassifier
	assert.Equal(t, MeetingJudgment{}, nilClassifier.Classify(context.Background(), "hola", ""))
}
