package relay

import "math/rand"

// ackPhrases are the acknowledgment messages the bot posts while it works on
// a slash-command question.
var ackPhrases = []string{
	"On it, mate. Give us a tick.",
	"Good question — having a think...",
	"Righto, looking into it now.",
	"Checking my notes on that one...",
	"Hang about, crunching the numbers...",
	"Too easy. Back in a sec.",
	"Let me dig up the good oil on that.",
	"Working on it — won't be long.",
}

// nextAck returns the next phrase from the shuffled deck. When the deck is
// exhausted it reshuffles, guaranteeing every phrase is used before repeats.
func (b *Bot) nextAck() string {
	b.ackMu.Lock()
	defer b.ackMu.Unlock()

	if len(b.ackDeck) == 0 {
		b.ackDeck = make([]string, len(ackPhrases))
		copy(b.ackDeck, ackPhrases)
		rand.Shuffle(len(b.ackDeck), func(i, j int) {
			b.ackDeck[i], b.ackDeck[j] = b.ackDeck[j], b.ackDeck[i]
		})
	}

	phrase := b.ackDeck[len(b.ackDeck)-1]
	b.ackDeck = b.ackDeck[:len(b.ackDeck)-1]
	return phrase
}
