// Package history reconstructs a bounded, role-tagged transcript from a
// Discord channel's recent messages.
package history

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/oz-solar/jerry/internal/gateway"
)

// DefaultWindow is the default number of prior messages fetched per turn.
const DefaultWindow = 20

// messenger abstracts the discordgo.Session method we use, enabling test mocks.
type messenger interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Reader fetches prior messages for a conversation and reduces them to
// chronological transcript entries.
type Reader struct {
	sess   messenger
	botID  string
	window int
}

// ReaderOpts holds parameters for creating a Reader.
type ReaderOpts struct {
	Session messenger
	BotID   string // the bot's own user ID, for assistant tagging
	Window  int    // defaults to DefaultWindow
}

// NewReader creates a Reader.
func NewReader(opts ReaderOpts) (*Reader, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("history: session is required")
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Reader{sess: opts.Session, botID: opts.BotID, window: window}, nil
}

// Transcript returns up to the window's worth of prior messages in the
// channel, oldest first, excluding the triggering message. Messages authored
// by userID are tagged user, messages authored by the bot are tagged
// assistant, and everything else (system notices, other bots) is dropped.
//
// Fetch errors degrade to an empty transcript so the conversation falls back
// to single-turn rather than failing.
func (r *Reader) Transcript(channelID, beforeID, userID string) []gateway.Entry {
	msgs, err := r.sess.ChannelMessages(channelID, r.window, beforeID, "", "")
	if err != nil {
		log.Printf("history: fetch channel %s: %v (continuing without history)", channelID, err)
		return nil
	}

	// ChannelMessages returns newest first; build the transcript reversed.
	var entries []gateway.Entry
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Author == nil || m.Content == "" {
			continue
		}
		switch m.Author.ID {
		case r.botID:
			entries = append(entries, gateway.Entry{Role: gateway.RoleAssistant, Text: m.Content})
		case userID:
			entries = append(entries, gateway.Entry{Role: gateway.RoleUser, Text: m.Content})
		}
	}
	return entries
}
