package relay

import (
	"bytes"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/oz-solar/jerry/internal/segment"
)

// ApologyNotice is sent when the model produced nothing deliverable.
const ApologyNotice = "Sorry mate, I came up empty on that one. Mind rephrasing your question?"

// sender abstracts the discordgo.Session methods the dispatcher uses,
// enabling test mocks.
type sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Dispatcher delivers segmented response units to Discord. Units are sent
// strictly in order; a failed unit is logged and skipped so the rest of the
// response still arrives.
type Dispatcher struct {
	sess sender
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(sess sender) (*Dispatcher, error) {
	if sess == nil {
		return nil, fmt.Errorf("relay: session is required")
	}
	return &Dispatcher{sess: sess}, nil
}

// DispatchChannel delivers units to a channel. The first message references
// replyToID (when set) so the user sees which question is being answered.
// An empty unit list sends the apology notice instead.
func (d *Dispatcher) DispatchChannel(channelID, replyToID string, units []segment.Unit) {
	sends := buildSends(units)

	for i, data := range sends {
		if i == 0 && replyToID != "" {
			data.Reference = &discordgo.MessageReference{
				MessageID: replyToID,
				ChannelID: channelID,
			}
		}
		if _, err := d.sess.ChannelMessageSendComplex(channelID, data); err != nil {
			log.Printf("relay: send unit %d/%d to channel %s: %v", i+1, len(sends), channelID, err)
		}
	}
}

// DispatchInteraction delivers units as responses to a deferred interaction.
// The deferred placeholder is edited into the ack phrase, then each unit goes
// out as a followup message. An empty unit list sends the apology instead.
func (d *Dispatcher) DispatchInteraction(inter *discordgo.Interaction, ack string, units []segment.Unit) {
	if _, err := d.sess.InteractionResponseEdit(inter, &discordgo.WebhookEdit{
		Content: &ack,
	}); err != nil {
		log.Printf("relay: edit interaction ack: %v", err)
	}

	sends := buildSends(units)
	for i, data := range sends {
		params := &discordgo.WebhookParams{
			Content: data.Content,
			Embeds:  data.Embeds,
			Files:   data.Files,
		}
		if _, err := d.sess.FollowupMessageCreate(inter, true, params); err != nil {
			log.Printf("relay: send followup %d/%d: %v", i+1, len(sends), err)
		}
	}
}

// buildSends translates units into Discord message payloads. A plain unit
// immediately followed by a file unit is that file's notice, so the two are
// combined into a single message.
func buildSends(units []segment.Unit) []*discordgo.MessageSend {
	if len(units) == 0 {
		return []*discordgo.MessageSend{{Content: ApologyNotice}}
	}

	var sends []*discordgo.MessageSend
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch u.Kind {
		case segment.KindPlain:
			data := &discordgo.MessageSend{Content: u.Content}
			if i+1 < len(units) && units[i+1].Kind == segment.KindFile {
				data.Files = []*discordgo.File{unitFile(units[i+1])}
				i++
			}
			sends = append(sends, data)
		case segment.KindRich:
			sends = append(sends, &discordgo.MessageSend{
				Embeds: []*discordgo.MessageEmbed{{Description: u.Content}},
			})
		case segment.KindFile:
			// A file without a preceding notice still goes out on its own.
			sends = append(sends, &discordgo.MessageSend{
				Files: []*discordgo.File{unitFile(u)},
			})
		}
	}
	return sends
}

func unitFile(u segment.Unit) *discordgo.File {
	return &discordgo.File{
		Name:        u.Filename,
		ContentType: "text/plain",
		Reader:      bytes.NewReader(u.Data),
	}
}
