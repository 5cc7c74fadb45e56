package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/botlode/brain/internal/contacts"
	"github.com/botlode/brain/internal/leads"
)

// Reconciler actions, reported for metrics and logs.
const (
	ActionRecordMeeting        = "record_meeting"
	ActionRecoverMeeting       = "recover_meeting"
	ActionRequestContact       = "append_contact_request"
	ActionConfirmContact       = "append_confirmation"
	ActionConfirmMeetingDate   = "append_meeting_date"
	ActionStripContactRequest  = "strip_extra_contact_request"
	ActionRecordProjectSummary = "record_project_summary"
)

const (
	defaultPendingMeetingWindow = 5
	meetingExcerptLimit         = 200
)

var projectSummaryPattern = regexp.MustCompile(`(?i)entiendo,?\s+(?:que\s+)?quer[eé]s\s+([^.!?\n]{5,200})`)

var weekdayPrefix = regexp.MustCompile(`(?i)^(lunes|martes|mi[eé]rcoles|jueves|viernes|s[aá]bado|domingo)\b`)

// TurnInput is everything known about one turn once the oracle calls returned.
type TurnInput struct {
	SessionID string
	BotID     string
	Vendor    string
	Message   string
	Contacts  []contacts.Contact
	Meeting   MeetingJudgment
	Draft     string
	// History holds persisted facts; nil when the lookup failed.
	History []leads.Fact
	// RecentUserMessages excludes the current message, newest first. Each
	// carries the meeting judgment stored with it, if any.
	RecentUserMessages []leads.ChatMessage
}

// ConversationState is derived per turn and never stored.
type ConversationState struct {
	HasContact     bool
	HasMeeting     bool
	PendingMeeting *MeetingJudgment
}

// TurnOutcome is the finalized reply and the facts to persist.
type TurnOutcome struct {
	Reply   string
	State   ConversationState
	Facts   []leads.Fact
	Actions []string
}

// Reconciler merges this turn's signals with persisted history and edits the
// draft reply so the bot never asks for contact twice and always confirms.
type Reconciler struct {
	lookback int
}

// NewReconciler builds a reconciler scanning lookback earlier user messages
// for a pending meeting.
func NewReconciler(lookback int) *Reconciler {
	if lookback < 0 {
		lookback = defaultPendingMeetingWindow
	}
	return &Reconciler{lookback: lookback}
}

// Reconcile runs the turn rules in order: contact status, meeting status,
// contact-request obligation, confirmation obligation, then fact assembly.
func (r *Reconciler) Reconcile(in TurnInput) TurnOutcome {
	out := TurnOutcome{Reply: strings.TrimSpace(in.Draft)}

	hasContactNow := contacts.HasContact(in.Contacts)
	hasContactEver := hasContactNow || leads.HasContact(in.History)
	storedMeeting, meetingInHistory := leads.FirstOfType(in.History, leads.FactMeeting)

	out.Facts = contacts.ToFacts(in.Contacts, in.SessionID, in.BotID)

	// A meeting is only written while a contact is known.
	var (
		recorded  *MeetingJudgment
		recovered bool
		source    = in.Message
	)
	switch {
	case in.Meeting.Confirmed && hasContactEver && !meetingInHistory:
		m := in.Meeting
		recorded = &m
		out.Actions = append(out.Actions, ActionRecordMeeting)
	case hasContactNow && !meetingInHistory && !in.Meeting.Confirmed:
		if m, msg, ok := recoverPendingMeeting(in.RecentUserMessages, r.lookback); ok {
			recorded = &m
			recovered = true
			source = msg
			out.Actions = append(out.Actions, ActionRecoverMeeting)
		}
	}
	if recorded != nil {
		out.Facts = append(out.Facts, meetingFact(in.SessionID, in.BotID, *recorded, source, recovered))
	}

	out.State = ConversationState{
		HasContact: hasContactEver,
		HasMeeting: recorded != nil || meetingInHistory,
	}

	// Meeting confirmed without any contact: ask once.
	if in.Meeting.Confirmed && !hasContactEver {
		pending := in.Meeting
		out.State.PendingMeeting = &pending
		if !replyAlreadyRequestsContact(out.Reply) {
			out.Reply = appendSentence(out.Reply, contactRequestSentence(in.Vendor))
			out.Actions = append(out.Actions, ActionRequestContact)
		}
	}

	// One contact is enough: drop any request for more.
	if hasContactEver {
		if stripped, ok := stripContactRequests(out.Reply); ok {
			out.Reply = stripped
			out.Actions = append(out.Actions, ActionStripContactRequest)
		}
	}

	// A draft that was only contact requests still gets the confirmation.
	if hasContactNow || recorded != nil || (hasContactEver && out.Reply == "") {
		switch {
		case !replyAlreadyConfirmsContact(out.Reply):
			out.Reply = appendSentence(out.Reply, confirmationSentence(recorded, in.Vendor))
			out.Actions = append(out.Actions, ActionConfirmContact)
		case recorded != nil:
			out.confirmMeetingDate(*recorded)
		}
	}

	// Only the first meeting is stored; a later day or time is still confirmed.
	if recorded == nil && meetingInHistory && in.Meeting.Confirmed && !mentionsMeeting(storedMeeting.Value, in.Meeting) {
		out.confirmMeetingDate(in.Meeting)
	}

	if summary, ok := extractProjectSummary(in.Draft); ok {
		out.Facts = append(out.Facts, leads.Fact{
			SessionID: in.SessionID,
			BotID:     in.BotID,
			Type:      leads.FactProjectSummary,
			Value:     summary,
		})
		out.Actions = append(out.Actions, ActionRecordProjectSummary)
	}

	return out
}

// confirmMeetingDate appends the meeting's day and time unless the reply
// already names them.
func (o *TurnOutcome) confirmMeetingDate(m MeetingJudgment) {
	if mentionsMeeting(o.Reply, m) {
		return
	}
	when := describeMeeting(m)
	if when == "" {
		return
	}
	o.Reply = appendSentence(o.Reply, fmt.Sprintf("La reunión quedó agendada %s.", when))
	o.Actions = append(o.Actions, ActionConfirmMeetingDate)
}

func meetingFact(sessionID, botID string, m MeetingJudgment, source string, recovered bool) leads.Fact {
	value := "Reunión agendada"
	if m.Date != "" {
		value += " - " + m.Date
	}
	if m.Time != "" {
		value += " a las " + m.Time
	}
	meta := map[string]string{
		"intent":       "meeting_scheduled",
		"full_message": truncateRunes(strings.TrimSpace(source), meetingExcerptLimit),
	}
	if m.Date != "" {
		meta["date"] = m.Date
	}
	if m.Time != "" {
		meta["time"] = m.Time
	}
	if recovered {
		meta["recovered"] = "true"
	}
	return leads.Fact{SessionID: sessionID, BotID: botID, Type: leads.FactMeeting, Value: value, Metadata: meta}
}

func contactRequestSentence(vendor string) string {
	if vendor != "" {
		return fmt.Sprintf("Para coordinar la reunión con %s, ¿me dejás tu número de WhatsApp o tu email?", vendor)
	}
	return "Para coordinar la reunión, ¿me dejás tu número de WhatsApp o tu email?"
}

func confirmationSentence(meeting *MeetingJudgment, vendor string) string {
	var b strings.Builder
	b.WriteString("¡Listo! Ya tengo tu contacto")
	if meeting != nil {
		if when := describeMeeting(*meeting); when != "" {
			b.WriteString(" y la reunión quedó agendada ")
			b.WriteString(when)
		} else {
			b.WriteString(" y la reunión quedó agendada")
		}
	}
	b.WriteString(".")
	if vendor != "" {
		fmt.Fprintf(&b, " %s se va a comunicar con vos a la brevedad.", vendor)
	} else {
		b.WriteString(" Te vamos a contactar a la brevedad.")
	}
	return b.String()
}

// describeMeeting renders "para el lunes a las 10" style text.
func describeMeeting(m MeetingJudgment) string {
	var parts []string
	if m.Date != "" {
		date := m.Date
		if weekdayPrefix.MatchString(date) {
			date = "el " + date
		}
		parts = append(parts, "para "+date)
	}
	if m.Time != "" {
		parts = append(parts, "a las "+m.Time)
	}
	return strings.Join(parts, " ")
}

func mentionsMeeting(reply string, m MeetingJudgment) bool {
	lower := strings.ToLower(reply)
	if m.Date != "" && !strings.Contains(lower, strings.ToLower(m.Date)) {
		return false
	}
	if m.Time != "" && !strings.Contains(lower, strings.ToLower(m.Time)) {
		return false
	}
	return true
}

// extractProjectSummary picks up the oracle's "Entiendo, querés ..." recap.
func extractProjectSummary(draft string) (string, bool) {
	m := projectSummaryPattern.FindStringSubmatch(draft)
	if m == nil {
		return "", false
	}
	summary := strings.TrimSpace(strings.TrimRight(m[1], ",;: "))
	if summary == "" {
		return "", false
	}
	return summary, true
}
