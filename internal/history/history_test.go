package history

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/oz-solar/jerry/internal/gateway"
)

type mockMessenger struct {
	msgs []*discordgo.Message
	err  error

	gotChannel string
	gotLimit   int
	gotBefore  string
}

func (m *mockMessenger) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	m.gotChannel = channelID
	m.gotLimit = limit
	m.gotBefore = beforeID
	return m.msgs, m.err
}

func msg(authorID, content string) *discordgo.Message {
	return &discordgo.Message{
		Author:  &discordgo.User{ID: authorID},
		Content: content,
	}
}

func TestNewReader_RequiresSession(t *testing.T) {
	_, err := NewReader(ReaderOpts{})
	if err == nil {
		t.Fatal("expected error for nil session")
	}
}

func TestTranscript_OrderAndRoles(t *testing.T) {
	// Discord returns newest first.
	mock := &mockMessenger{msgs: []*discordgo.Message{
		msg("bot-1", "second answer"),
		msg("user-1", "second question"),
		msg("bot-1", "first answer"),
		msg("user-1", "first question"),
	}}
	r, err := NewReader(ReaderOpts{Session: mock, BotID: "bot-1"})
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}

	entries := r.Transcript("chan-1", "trigger-id", "user-1")
	want := []gateway.Entry{
		{Role: gateway.RoleUser, Text: "first question"},
		{Role: gateway.RoleAssistant, Text: "first answer"},
		{Role: gateway.RoleUser, Text: "second question"},
		{Role: gateway.RoleAssistant, Text: "second answer"},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}

	if mock.gotBefore != "trigger-id" {
		t.Errorf("beforeID = %q, want trigger-id", mock.gotBefore)
	}
	if mock.gotLimit != DefaultWindow {
		t.Errorf("limit = %d, want %d", mock.gotLimit, DefaultWindow)
	}
}

func TestTranscript_DropsOtherAuthorsAndEmpty(t *testing.T) {
	mock := &mockMessenger{msgs: []*discordgo.Message{
		msg("other-bot", "spam"),
		msg("user-1", ""),
		msg("user-1", "real question"),
		{Content: "no author"},
	}}
	r, _ := NewReader(ReaderOpts{Session: mock, BotID: "bot-1"})

	entries := r.Transcript("chan-1", "t", "user-1")
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Text != "real question" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestTranscript_FetchErrorDegradesToEmpty(t *testing.T) {
	mock := &mockMessenger{err: errors.New("rate limited")}
	r, _ := NewReader(ReaderOpts{Session: mock, BotID: "bot-1"})

	if entries := r.Transcript("chan-1", "t", "user-1"); entries != nil {
		t.Errorf("got %d entries, want none on fetch error", len(entries))
	}
}

func TestTranscript_CustomWindow(t *testing.T) {
	mock := &mockMessenger{}
	r, _ := NewReader(ReaderOpts{Session: mock, BotID: "b", Window: 5})
	r.Transcript("c", "t", "u")
	if mock.gotLimit != 5 {
		t.Errorf("limit = %d, want 5", mock.gotLimit)
	}
}
