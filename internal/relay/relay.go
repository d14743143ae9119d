// Package relay connects Discord to the model gateway: it reconstructs
// conversation context for incoming messages, runs the generation pipeline,
// and delivers the segmented response back to the user.
package relay

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/oz-solar/jerry/internal/gateway"
	"github.com/oz-solar/jerry/internal/history"
	"github.com/oz-solar/jerry/internal/knowledge"
	"github.com/oz-solar/jerry/internal/segment"
	"github.com/oz-solar/jerry/internal/store"
)

// commandName is the slash command users invoke in guild channels.
const commandName = "jerry"

// greeting is the reply to a bare @mention with no question attached.
const greeting = "G'day! Ask me anything about solar, batteries, or energy efficiency — " +
	"either mention me with a question or use /" + commandName + "."

// generator abstracts the model gateway, enabling test mocks.
type generator interface {
	Generate(ctx context.Context, req gateway.Request) string
	ModelName(mode gateway.Mode) string
}

// botSession abstracts the discordgo.Session methods the bot uses, enabling
// test mocks.
type botSession interface {
	sender
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// realSession wraps *discordgo.Session to implement botSession.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.InteractionResponseEdit(interaction, newresp, options...)
}
func (r *realSession) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.FollowupMessageCreate(interaction, wait, data, options...)
}
func (r *realSession) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	return r.s.ChannelMessages(channelID, limit, beforeID, afterID, aroundID, options...)
}
func (r *realSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	return r.s.InteractionRespond(interaction, resp, options...)
}
func (r *realSession) ChannelTyping(channelID string, options ...discordgo.RequestOption) error {
	return r.s.ChannelTyping(channelID, options...)
}

// Bot is the Discord-facing half of the relay. DMs run as multi-turn
// conversations with history; guild mentions and the slash command run as
// single-shot questions.
type Bot struct {
	sess       botSession
	gen        generator
	know       *knowledge.Cache
	st         *store.Store // optional; turns are recorded best-effort
	window     int
	dispatcher *Dispatcher

	ctx context.Context // base context for handler pipelines

	mu     sync.Mutex
	botID  string
	reader *history.Reader

	ackMu   sync.Mutex
	ackDeck []string
}

// Opts holds parameters for creating a Bot.
type Opts struct {
	Gateway       generator
	Knowledge     *knowledge.Cache
	Store         *store.Store // optional
	HistoryWindow int          // defaults to history.DefaultWindow
	// For testing: inject a mock session instead of the real Discord API.
	Session botSession
}

// New creates a Bot.
func New(opts Opts) (*Bot, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("relay: gateway is required")
	}
	b := &Bot{
		sess:   opts.Session,
		gen:    opts.Gateway,
		know:   opts.Knowledge,
		st:     opts.Store,
		window: opts.HistoryWindow,
		ctx:    context.Background(),
	}
	if b.sess != nil {
		d, err := NewDispatcher(b.sess)
		if err != nil {
			return nil, err
		}
		b.dispatcher = d
	}
	return b, nil
}

// Run connects to Discord and serves events until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("relay: bot token is required")
	}

	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("relay: create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b.sess = &realSession{s: dg}
	d, err := NewDispatcher(b.sess)
	if err != nil {
		return err
	}
	b.dispatcher = d
	b.ctx = ctx

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.SetBotID(r.User.ID)
		log.Printf("relay: connected as %s (ID: %s)", r.User.Username, r.User.ID)

		cmd := &discordgo.ApplicationCommand{
			Name:        commandName,
			Description: "Ask Jerry a renewable energy question",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "question",
					Description: "What do you want to know?",
					Required:    true,
				},
			},
		}
		if _, err := s.ApplicationCommandCreate(r.User.ID, "", cmd); err != nil {
			log.Printf("relay: register /%s command: %v", commandName, err)
		}
	})
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.HandleMessage(m)
	})
	dg.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.HandleInteraction(i)
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("relay: open gateway: %w", err)
	}

	<-ctx.Done()
	return dg.Close()
}

// SetBotID records the bot's own user ID and wires the history reader. Called
// from the Ready handler in production, directly in tests.
func (b *Bot) SetBotID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.botID = id
	reader, err := history.NewReader(history.ReaderOpts{
		Session: b.sess,
		BotID:   id,
		Window:  b.window,
	})
	if err != nil {
		log.Printf("relay: history reader: %v", err)
		return
	}
	b.reader = reader
}

// HandleMessage processes one MessageCreate event. DMs get the full
// conversational pipeline; guild messages only react to @mentions.
func (b *Bot) HandleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	b.mu.Lock()
	botID := b.botID
	b.mu.Unlock()
	if m.Author.ID == botID {
		return
	}

	if m.GuildID == "" {
		b.handleDirect(m)
		return
	}
	b.handleMention(m, botID)
}

// handleDirect runs the DM pipeline: history window, direct-mode generation,
// segmented reply.
func (b *Bot) handleDirect(m *discordgo.MessageCreate) {
	if strings.TrimSpace(m.Content) == "" {
		return
	}

	// Best-effort typing indicator while the model works.
	if err := b.sess.ChannelTyping(m.ChannelID); err != nil {
		log.Printf("relay: typing indicator: %v", err)
	}

	var transcript []gateway.Entry
	b.mu.Lock()
	reader := b.reader
	b.mu.Unlock()
	if reader != nil {
		transcript = reader.Transcript(m.ChannelID, m.ID, m.Author.ID)
	}
	transcript = append(transcript, gateway.Entry{Role: gateway.RoleUser, Text: m.Content})

	text := b.gen.Generate(b.ctx, gateway.Request{
		Transcript:     transcript,
		ContextSnippet: b.snippet(),
		Mode:           gateway.ModeDirect,
	})

	units := segment.Split(text)
	b.dispatcher.DispatchChannel(m.ChannelID, m.ID, units)
	b.recordTurn(m.Author, m.ChannelID, m.Content, text, gateway.ModeDirect)
}

// discordMentionRe matches Discord mention formats: <@ID> or <@!ID>.
var discordMentionRe = regexp.MustCompile(`<@!?\d+>`)

// handleMention answers a guild message that @mentions the bot. The question
// runs in broadcast mode: single-shot, no channel history.
func (b *Bot) handleMention(m *discordgo.MessageCreate, botID string) {
	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == botID {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return
	}

	question := strings.TrimSpace(discordMentionRe.ReplaceAllString(m.Content, ""))
	if question == "" {
		b.dispatcher.DispatchChannel(m.ChannelID, m.ID, segment.Split(greeting))
		return
	}

	if err := b.sess.ChannelTyping(m.ChannelID); err != nil {
		log.Printf("relay: typing indicator: %v", err)
	}

	text := b.gen.Generate(b.ctx, gateway.Request{
		Transcript:     []gateway.Entry{{Role: gateway.RoleUser, Text: question}},
		ContextSnippet: b.snippet(),
		Mode:           gateway.ModeBroadcast,
	})

	units := segment.Split(text)
	b.dispatcher.DispatchChannel(m.ChannelID, m.ID, units)
	b.recordTurn(m.Author, m.ChannelID, question, text, gateway.ModeBroadcast)
}

// HandleInteraction processes one InteractionCreate event. Only the bot's own
// slash command is handled; everything else is ignored.
func (b *Bot) HandleInteraction(i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != commandName || len(data.Options) == 0 {
		return
	}
	question := strings.TrimSpace(data.Options[0].StringValue())
	if question == "" {
		return
	}

	// Defer immediately: generation can exceed Discord's 3-second response
	// window, and the deferred placeholder is edited into the ack phrase.
	err := b.sess.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Printf("relay: defer interaction: %v", err)
		return
	}

	b.runInteraction(i, question)
}

// runInteraction generates and delivers the slash command answer.
func (b *Bot) runInteraction(i *discordgo.InteractionCreate, question string) {
	text := b.gen.Generate(b.ctx, gateway.Request{
		Transcript:     []gateway.Entry{{Role: gateway.RoleUser, Text: question}},
		ContextSnippet: b.snippet(),
		Mode:           gateway.ModeBroadcast,
	})

	units := segment.Split(text)
	b.dispatcher.DispatchInteraction(i.Interaction, b.nextAck(), units)

	if user := interactionUser(i); user != nil {
		b.recordTurn(user, i.ChannelID, question, text, gateway.ModeBroadcast)
	}
}

// snippet returns the current knowledge snippet, or "" when none configured.
func (b *Bot) snippet() string {
	if b.know == nil {
		return ""
	}
	return b.know.Snippet()
}

// recordTurn persists a completed exchange. Failures are logged, never
// surfaced to the user.
func (b *Bot) recordTurn(author *discordgo.User, channelID, question, answer string, mode gateway.Mode) {
	if b.st == nil || author == nil {
		return
	}
	err := b.st.RecordTurn(store.Turn{
		DiscordUserID: author.ID,
		Username:      author.Username,
		DisplayName:   author.GlobalName,
		ChannelID:     channelID,
		Question:      question,
		Answer:        answer,
		ModelUsed:     b.gen.ModelName(mode),
	})
	if err != nil {
		log.Printf("relay: record turn: %v", err)
	}
}

// interactionUser resolves the invoking user: guild interactions carry a
// Member, DM interactions a User.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}
