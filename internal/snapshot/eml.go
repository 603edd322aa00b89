package snapshot

import (
	"fmt"
	"html"
	"io"
	"net/mail"
	"os"
	"strings"

	"github.com/jhillyerd/enmime"
)

// Message is the parsed form of one .eml file.
type Message struct {
	Subject string

	// Sender is the lower-cased address of the From header, or of the Sender
	// header when From is missing or unparsable. Empty when neither parses.
	Sender string

	// HTML is the HTML body; for plain-text mail it is the escaped text
	// wrapped in a div. Empty when the message has no body at all.
	HTML string
}

// ParseEML reads a MIME message.
func ParseEML(r io.Reader) (*Message, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	msg := &Message{Subject: env.GetHeader("Subject")}
	for _, h := range []string{"From", "Sender"} {
		if addr := parseAddress(env.GetHeader(h)); addr != "" {
			msg.Sender = addr
			break
		}
	}

	switch {
	case strings.TrimSpace(env.HTML) != "":
		msg.HTML = env.HTML
	case strings.TrimSpace(env.Text) != "":
		msg.HTML = "<div>" + strings.ReplaceAll(html.EscapeString(env.Text), "\n", "<br>") + "</div>"
	}
	return msg, nil
}

// ReadFile parses the .eml file at path.
func ReadFile(path string) (*Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open message: %w", err)
	}
	defer f.Close()
	return ParseEML(f)
}

func parseAddress(v string) string {
	if strings.TrimSpace(v) == "" {
		return ""
	}
	addr, err := mail.ParseAddress(v)
	if err != nil {
		return ""
	}
	a := strings.ToLower(addr.Address)
	if !strings.Contains(a, "@") {
		return ""
	}
	return a
}
