package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// StartRequest asks the gateway to send a bot into a meeting.
type StartRequest struct {
	Platform        string
	NativeMeetingID string
	BotName         string
	// Language is a language code or "auto".
	Language string
}

type startBody struct {
	Platform        string  `json:"platform"`
	NativeMeetingID string  `json:"native_meeting_id"`
	BotName         string  `json:"bot_name"`
	Language        *string `json:"language"`
}

type languageBody struct {
	Language *string `json:"language"`
}

// StartBot sends a bot into the meeting and returns the session id used by
// every later call. A 409 means a bot is already there; the error wraps
// pferrors.ErrExistingBot.
func (c *Client) StartBot(ctx context.Context, req StartRequest) (transcript.MeetingID, error) {
	id := transcript.MeetingID{Platform: req.Platform, NativeMeetingID: req.NativeMeetingID}
	if err := requireID(OpStartBot, id); err != nil {
		return transcript.MeetingID{}, err
	}
	body := startBody{
		Platform:        req.Platform,
		NativeMeetingID: req.NativeMeetingID,
		BotName:         req.BotName,
		Language:        transcript.RequestLanguage(req.Language),
	}
	if _, err := c.do(ctx, OpStartBot, http.MethodPost, "/bots", body, nil); err != nil {
		return transcript.MeetingID{}, err
	}
	return id, nil
}

// StopBot removes the bot from the meeting.
func (c *Client) StopBot(ctx context.Context, id transcript.MeetingID) error {
	if err := requireID(OpStopBot, id); err != nil {
		return err
	}
	_, err := c.do(ctx, OpStopBot, http.MethodDelete, "/bots/"+id.Path(), nil, nil)
	return err
}

// UpdateLanguage reconfigures a running bot. "auto" is sent as null.
func (c *Client) UpdateLanguage(ctx context.Context, id transcript.MeetingID, language string) error {
	if err := requireID(OpUpdateLanguage, id); err != nil {
		return err
	}
	body := languageBody{Language: transcript.RequestLanguage(language)}
	_, err := c.do(ctx, OpUpdateLanguage, http.MethodPut, "/bots/"+id.Path()+"/config", body, nil)
	return err
}

type wireMeeting struct {
	ID              rawString `json:"id"`
	Platform        string    `json:"platform"`
	NativeMeetingID string    `json:"native_meeting_id"`
	Status          string    `json:"status"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
}

type wireMeetings struct {
	Meetings []wireMeeting `json:"meetings"`
}

func (m wireMeeting) toMeeting(now time.Time) transcript.Meeting {
	status := transcript.StatusStopped
	if m.Status != "" {
		status = transcript.ParseStatus(m.Status)
	}
	start := now.UTC()
	if t, err := transcript.ParseTimestamp(m.StartTime); err == nil {
		start = t
	}
	meeting := transcript.Meeting{
		ID:              transcript.MeetingID{Platform: m.Platform, NativeMeetingID: m.NativeMeetingID, RecordID: string(m.ID)},
		Platform:        m.Platform,
		NativeMeetingID: m.NativeMeetingID,
		Status:          status,
		StartTime:       start,
		Title:           transcript.DefaultTitle(m.NativeMeetingID),
	}
	if t, err := transcript.ParseTimestamp(m.EndTime); err == nil {
		meeting.EndTime = &t
	}
	return meeting
}

// ListMeetings returns the meeting history, most recent first.
func (c *Client) ListMeetings(ctx context.Context) ([]transcript.Meeting, error) {
	var w wireMeetings
	if _, err := c.do(ctx, OpListMeetings, http.MethodGet, "/meetings", nil, &w); err != nil {
		return nil, err
	}
	now := c.now()
	meetings := make([]transcript.Meeting, 0, len(w.Meetings))
	for _, m := range w.Meetings {
		meetings = append(meetings, m.toMeeting(now))
	}
	transcript.SortMeetings(meetings)
	return meetings, nil
}

// BotStatus is the response of GET /bots/status.
type BotStatus struct {
	RunningBots []json.RawMessage `json:"running_bots"`
}

// Running returns the number of bots the key currently has in meetings.
func (s *BotStatus) Running() int {
	if s == nil {
		return 0
	}
	return len(s.RunningBots)
}

// BotStatus lists the caller's running bots. It doubles as an API key check:
// an invalid key yields an error wrapping pferrors.ErrUnauthorized.
func (c *Client) BotStatus(ctx context.Context) (*BotStatus, error) {
	var status BotStatus
	if _, err := c.do(ctx, OpBotStatus, http.MethodGet, "/bots/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
