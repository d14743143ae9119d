// Package segment decomposes generated model output into ordered,
// size-bounded delivery units that Discord will accept: plain messages
// (2000 chars), embed descriptions (4096 chars), and file attachments for
// code blocks too large to post inline.
package segment

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// PlainLimit is Discord's maximum plain message length.
	PlainLimit = 2000
	// RichLimit is Discord's maximum embed description length.
	RichLimit = 4096
	// MaxAttachmentBytes caps attachment payloads at Discord's default
	// upload limit for bots without boosted guilds.
	MaxAttachmentBytes = 8 * 1024 * 1024
)

// Kind discriminates the delivery unit variants.
type Kind int

const (
	// KindPlain is a plain text message, at most PlainLimit characters.
	// Used for inline code blocks (native formatting) and attachment notices.
	KindPlain Kind = iota
	// KindRich is an embed-description block, at most RichLimit characters.
	// Used for prose.
	KindRich
	// KindFile is a file attachment carrying an oversized code block.
	KindFile
)

// Unit is one self-contained piece of outbound content. The ordered unit
// sequence reproduces the paragraph and code-block order of the source text.
type Unit struct {
	Kind     Kind
	Content  string // message text for KindPlain/KindRich
	Filename string // KindFile only
	Data     []byte // KindFile only
}

// piece is one scanned run of input: either a balanced fenced code block
// (fences included) or the prose between blocks.
type piece struct {
	code bool
	text string
}

// Split converts generated text into an ordered list of delivery units.
// Empty and whitespace-only input yields no units; the delivery layer is
// responsible for substituting an apology message in that case.
func Split(text string) []Unit {
	var units []Unit

	// Running prose paragraph buffer, flushed as a single RichBlock.
	var buf []string
	bufLen := 0 // rune length including "\n\n" separators
	flushBuf := func() {
		if len(buf) > 0 {
			units = append(units, Unit{Kind: KindRich, Content: strings.Join(buf, "\n\n")})
			buf, bufLen = nil, 0
		}
	}

	for _, p := range scan(text) {
		if p.code {
			// Code blocks always start on a fresh unit boundary.
			flushBuf()
			units = append(units, codeUnits(p.text)...)
			continue
		}
		for _, para := range paragraphs(p.text) {
			plen := utf8.RuneCountInString(para)
			if plen > RichLimit {
				flushBuf()
				for _, chunk := range hardSplit(para, RichLimit) {
					units = append(units, Unit{Kind: KindRich, Content: chunk})
				}
				continue
			}
			sep := 0
			if len(buf) > 0 {
				sep = 2 // "\n\n"
			}
			if bufLen+sep+plen > RichLimit {
				flushBuf()
				sep = 0
			}
			buf = append(buf, para)
			bufLen += sep + plen
		}
	}
	flushBuf()
	return units
}

// scan walks the input line by line with two states (prose, in-fence) and
// returns the alternating prose/code pieces in order. An unterminated
// trailing fence is demoted to prose so a stray "```" can never swallow the
// rest of the response; the dangling marker line itself is dropped so no
// emitted unit carries an unbalanced fence.
func scan(text string) []piece {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var pieces []piece
	var prose, code []string
	inFence := false

	flushProse := func() {
		if len(prose) > 0 {
			pieces = append(pieces, piece{code: false, text: strings.Join(prose, "\n")})
			prose = nil
		}
	}

	for _, line := range lines {
		if inFence {
			code = append(code, line)
			if isFenceLine(line) {
				pieces = append(pieces, piece{code: true, text: strings.Join(code, "\n")})
				code = nil
				inFence = false
			}
			continue
		}
		if isFenceLine(line) {
			flushProse()
			code = []string{line}
			inFence = true
			continue
		}
		prose = append(prose, line)
	}

	if inFence {
		prose = append(prose, code[1:]...)
	}
	flushProse()
	return pieces
}

// isFenceLine reports whether a line opens or closes a fenced code block.
func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

// codeUnits emits the delivery units for one balanced code block: the block
// verbatim when it fits a plain message, otherwise a notice plus a file
// attachment with a language-derived filename.
func codeUnits(block string) []Unit {
	if utf8.RuneCountInString(block) <= PlainLimit {
		return []Unit{{Kind: KindPlain, Content: block}}
	}

	lang, inner := stripFence(block)
	name := "snippet." + extensionFor(lang)
	data := []byte(inner)

	truncated := false
	if len(data) > MaxAttachmentBytes {
		const marker = "\n… truncated …\n"
		data = append(data[:MaxAttachmentBytes-len(marker)], marker...)
		truncated = true
	}

	notice := fmt.Sprintf("That code block was too long for a chat message, so I've attached it as `%s`.", name)
	if truncated {
		notice += " It was also truncated to fit the upload limit."
	}

	return []Unit{
		{Kind: KindPlain, Content: notice},
		{Kind: KindFile, Filename: name, Data: data},
	}
}

// stripFence removes the fence marker lines from a balanced code block and
// returns the declared language (lowercased, may be empty) and the inner
// content.
func stripFence(block string) (lang, inner string) {
	lines := strings.Split(block, "\n")
	first := strings.TrimSpace(lines[0])
	lang = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(first, "```")))

	body := lines[1:]
	if n := len(body); n > 0 && isFenceLine(body[n-1]) {
		body = body[:n-1]
	}
	return lang, strings.Join(body, "\n")
}

// fileExtensions maps declared fence languages to attachment extensions.
var fileExtensions = map[string]string{
	"python":     "py",
	"py":         "py",
	"go":         "go",
	"golang":     "go",
	"javascript": "js",
	"js":         "js",
	"typescript": "ts",
	"ts":         "ts",
	"bash":       "sh",
	"sh":         "sh",
	"shell":      "sh",
	"zsh":        "sh",
	"rust":       "rs",
	"java":       "java",
	"kotlin":     "kt",
	"c":          "c",
	"cpp":        "cpp",
	"c++":        "cpp",
	"csharp":     "cs",
	"ruby":       "rb",
	"php":        "php",
	"swift":      "swift",
	"html":       "html",
	"css":        "css",
	"json":       "json",
	"yaml":       "yaml",
	"yml":        "yaml",
	"toml":       "toml",
	"sql":        "sql",
	"xml":        "xml",
	"markdown":   "md",
	"md":         "md",
}

// extensionFor returns the attachment extension for a fence language tag,
// defaulting to "txt" when the language is unknown or unspecified.
func extensionFor(lang string) string {
	if ext, ok := fileExtensions[lang]; ok {
		return ext
	}
	return "txt"
}

// paragraphs splits a prose piece into trimmed, non-empty paragraphs.
// Single newlines inside a paragraph are preserved (list formatting etc.).
func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// hardSplit chops a single oversized paragraph into limit-sized rune chunks.
func hardSplit(text string, limit int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
