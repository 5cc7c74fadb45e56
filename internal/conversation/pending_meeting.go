package conversation

import "github.com/botlode/brain/internal/leads"

// meetingNote is the form a confirmed judgment is stored in on the user's
// chat log row. Unconfirmed judgments are not stored.
func meetingNote(j MeetingJudgment) *leads.MeetingNote {
	if !j.Confirmed {
		return nil
	}
	return &leads.MeetingNote{Date: j.Date, Time: j.Time}
}

// recoverPendingMeeting returns the newest meeting the classifier confirmed
// within the last lookback user messages, with the message it was read from.
// recent is newest first and holds user messages only.
func recoverPendingMeeting(recent []leads.ChatMessage, lookback int) (MeetingJudgment, string, bool) {
	for i, msg := range recent {
		if i >= lookback {
			break
		}
		if msg.Meeting == nil {
			continue
		}
		return MeetingJudgment{Confirmed: true, Date: msg.Meeting.Date, Time: msg.Meeting.Time}, msg.Content, true
	}
	return MeetingJudgment{}, "", false
}
