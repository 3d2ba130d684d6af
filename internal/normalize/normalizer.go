// Package normalize converts raw emails into clean plaintext suitable for
// the extraction oracle. Normalization is a pure function with no shared
// state; the run coordinator fans it out across a batch freely.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// maxContentLength bounds the normalized body so oracle prompts stay
// within token limits.
const maxContentLength = 2000

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// replyMarkerRe matches the start of a quoted-reply chain.
	replyMarkerRe = regexp.MustCompile(`(?mi)^On .{5,80} wrote:\s*$`)

	// Footer boilerplate that carries no financial signal.
	noisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)This email was sent to.*`),
		regexp.MustCompile(`(?i)If you no longer wish to receive.*`),
		regexp.MustCompile(`(?i)Unsubscribe.*`),
		regexp.MustCompile(`(?i)Privacy Policy.*`),
		regexp.MustCompile(`(?i)Terms of Service.*`),
		regexp.MustCompile(`(?i)Download our app.*`),
		regexp.MustCompile(`(?i)Follow us on.*`),
	}
)

// Email converts a raw email into its normalized plaintext form.
// Undecodable content is a non-fatal failure: the caller records it
// against the run and drops the item.
func Email(raw model.RawEmail) (model.NormalizedEmail, error) {
	if !utf8.ValidString(raw.Body) || !utf8.ValidString(raw.Subject) {
		return model.NormalizedEmail{}, fmt.Errorf("email %s: content is not valid UTF-8", raw.ID)
	}

	body := raw.Body
	if strings.Contains(body, "<") && strings.Contains(body, ">") {
		body = stripMarkup(body)
	}

	body = stripQuotedReplies(body)
	body = stripSignature(body)

	for _, re := range noisePatterns {
		body = re.ReplaceAllString(body, "")
	}

	body = whitespaceRe.ReplaceAllString(body, " ")
	body = strings.TrimSpace(body)

	if len(body) > maxContentLength {
		// Back up to a rune boundary so the cut never splits a
		// multibyte character.
		cut := maxContentLength
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}

	text := fmt.Sprintf("EMAIL SUBJECT: %s\nFROM: %s\nCONTENT: %s",
		strings.TrimSpace(raw.Subject),
		strings.TrimSpace(raw.From),
		body)

	return model.NormalizedEmail{
		SourceID: raw.ID,
		Text:     text,
	}, nil
}

// stripMarkup extracts the text content from an HTML body, skipping
// script and style elements entirely.
func stripMarkup(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))

	var sb strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "head":
				skipDepth++
			case "br", "p", "div", "tr", "li":
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tokenizer.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

// stripQuotedReplies drops everything from the first quoted-reply marker
// onward, plus any ">"-prefixed lines.
func stripQuotedReplies(body string) string {
	if loc := replyMarkerRe.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}

	lines := strings.Split(body, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// stripSignature removes a trailing signature block delimited by the
// conventional "-- " line.
func stripSignature(body string) string {
	if idx := strings.Index(body, "\n-- \n"); idx >= 0 {
		return body[:idx]
	}
	return body
}
