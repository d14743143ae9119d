package relay

import (
	"fmt"
	"io"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/oz-solar/jerry/internal/segment"
)

// mockSender records dispatcher calls and can fail specific sends.
type mockSender struct {
	sends       []sentMessage
	edits       []string
	followups   []*discordgo.WebhookParams
	failSendIdx int // 1-based index of the ChannelMessageSendComplex call to fail; 0 = never
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

func (m *mockSender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.sends = append(m.sends, sentMessage{channelID: channelID, data: data})
	if m.failSendIdx > 0 && len(m.sends) == m.failSendIdx {
		return nil, fmt.Errorf("boom")
	}
	return &discordgo.Message{ID: "sent"}, nil
}

func (m *mockSender) InteractionResponseEdit(_ *discordgo.Interaction, newresp *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if newresp.Content != nil {
		m.edits = append(m.edits, *newresp.Content)
	}
	return &discordgo.Message{}, nil
}

func (m *mockSender) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.followups = append(m.followups, data)
	return &discordgo.Message{}, nil
}

// --- buildSends ---

func TestBuildSends_EmptyUnitsYieldApology(t *testing.T) {
	sends := buildSends(nil)
	if len(sends) != 1 {
		t.Fatalf("got %d sends, want 1", len(sends))
	}
	if sends[0].Content != ApologyNotice {
		t.Errorf("content = %q, want apology", sends[0].Content)
	}
}

func TestBuildSends_PlainAndRich(t *testing.T) {
	units := []segment.Unit{
		{Kind: segment.KindRich, Content: "prose answer"},
		{Kind: segment.KindPlain, Content: "```go\ncode\n```"},
	}
	sends := buildSends(units)
	if len(sends) != 2 {
		t.Fatalf("got %d sends, want 2", len(sends))
	}
	if len(sends[0].Embeds) != 1 || sends[0].Embeds[0].Description != "prose answer" {
		t.Errorf("first send should be an embed with the prose")
	}
	if sends[1].Content != "```go\ncode\n```" {
		t.Errorf("second send content = %q", sends[1].Content)
	}
}

func TestBuildSends_NoticeAndFileCombined(t *testing.T) {
	units := []segment.Unit{
		{Kind: segment.KindPlain, Content: "attached as snippet.py"},
		{Kind: segment.KindFile, Filename: "snippet.py", Data: []byte("print('hi')")},
	}
	sends := buildSends(units)
	if len(sends) != 1 {
		t.Fatalf("got %d sends, want 1 combined", len(sends))
	}
	s := sends[0]
	if s.Content != "attached as snippet.py" {
		t.Errorf("content = %q", s.Content)
	}
	if len(s.Files) != 1 || s.Files[0].Name != "snippet.py" {
		t.Fatalf("expected one attached file named snippet.py")
	}
	data, err := io.ReadAll(s.Files[0].Reader)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "print('hi')" {
		t.Errorf("file data = %q", data)
	}
}

func TestBuildSends_BareFile(t *testing.T) {
	units := []segment.Unit{
		{Kind: segment.KindFile, Filename: "snippet.txt", Data: []byte("x")},
	}
	sends := buildSends(units)
	if len(sends) != 1 || len(sends[0].Files) != 1 {
		t.Fatalf("expected one send with one file")
	}
}

// --- DispatchChannel ---

func TestDispatchChannel_FirstMessageReferencesReply(t *testing.T) {
	sess := &mockSender{}
	d, err := NewDispatcher(sess)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	units := []segment.Unit{
		{Kind: segment.KindRich, Content: "part one"},
		{Kind: segment.KindRich, Content: "part two"},
	}
	d.DispatchChannel("chan-1", "msg-9", units)

	if len(sess.sends) != 2 {
		t.Fatalf("got %d sends, want 2", len(sess.sends))
	}
	ref := sess.sends[0].data.Reference
	if ref == nil || ref.MessageID != "msg-9" || ref.ChannelID != "chan-1" {
		t.Errorf("first send should reference msg-9, got %+v", ref)
	}
	if sess.sends[1].data.Reference != nil {
		t.Error("second send should not carry a reply reference")
	}
}

func TestDispatchChannel_FailedUnitDoesNotStopRest(t *testing.T) {
	sess := &mockSender{failSendIdx: 1}
	d, _ := NewDispatcher(sess)

	units := []segment.Unit{
		{Kind: segment.KindRich, Content: "one"},
		{Kind: segment.KindRich, Content: "two"},
		{Kind: segment.KindRich, Content: "three"},
	}
	d.DispatchChannel("chan-1", "", units)

	if len(sess.sends) != 3 {
		t.Fatalf("got %d send attempts, want 3", len(sess.sends))
	}
	if sess.sends[2].data.Embeds[0].Description != "three" {
		t.Errorf("final unit not delivered in order")
	}
}

func TestDispatchChannel_EmptySendsApology(t *testing.T) {
	sess := &mockSender{}
	d, _ := NewDispatcher(sess)

	d.DispatchChannel("chan-1", "msg-1", nil)

	if len(sess.sends) != 1 {
		t.Fatalf("got %d sends, want 1", len(sess.sends))
	}
	if sess.sends[0].data.Content != ApologyNotice {
		t.Errorf("content = %q, want apology", sess.sends[0].data.Content)
	}
}

// --- DispatchInteraction ---

func TestDispatchInteraction_AckThenFollowups(t *testing.T) {
	sess := &mockSender{}
	d, _ := NewDispatcher(sess)

	units := []segment.Unit{
		{Kind: segment.KindRich, Content: "answer"},
		{Kind: segment.KindPlain, Content: "```sh\nls\n```"},
	}
	d.DispatchInteraction(&discordgo.Interaction{ID: "i-1"}, "On it, mate.", units)

	if len(sess.edits) != 1 || sess.edits[0] != "On it, mate." {
		t.Fatalf("ack edit = %v, want one edit with the ack phrase", sess.edits)
	}
	if len(sess.followups) != 2 {
		t.Fatalf("got %d followups, want 2", len(sess.followups))
	}
	if sess.followups[0].Embeds[0].Description != "answer" {
		t.Errorf("first followup should carry the embed")
	}
	if sess.followups[1].Content != "```sh\nls\n```" {
		t.Errorf("second followup content = %q", sess.followups[1].Content)
	}
}

func TestDispatchInteraction_EmptySendsApology(t *testing.T) {
	sess := &mockSender{}
	d, _ := NewDispatcher(sess)

	d.DispatchInteraction(&discordgo.Interaction{ID: "i-1"}, "ack", nil)

	if len(sess.followups) != 1 || sess.followups[0].Content != ApologyNotice {
		t.Fatalf("followups = %+v, want single apology", sess.followups)
	}
}

func TestNewDispatcher_NilSession(t *testing.T) {
	if _, err := NewDispatcher(nil); err == nil {
		t.Fatal("expected error for nil session")
	}
}
