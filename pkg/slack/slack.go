package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Block is one element of a Slack Block Kit message.
type Block struct {
	Type     string  `json:"type"`
	Text     *Text   `json:"text,omitempty"`
	Fields   []Text  `json:"fields,omitempty"`
	Elements []Text  `json:"elements,omitempty"`
}

// Text is a Block Kit text object.
type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Header builds a plain-text header block.
func Header(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text, Emoji: true}}
}

// Section builds a section block with markdown field pairs.
func Section(fields ...Text) Block {
	return Block{Type: "section", Fields: fields}
}

// Context builds a context block with markdown elements.
func Context(elements ...Text) Block {
	return Block{Type: "context", Elements: elements}
}

// Field builds a markdown "*Label:*\nvalue" text object.
func Field(label, value string) Text {
	if value == "" {
		value = "Unknown"
	}
	return Text{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", label, value)}
}

// Markdown builds a plain markdown text object.
func Markdown(text string) Text {
	return Text{Type: "mrkdwn", Text: text}
}

// Notifier posts Block Kit messages to a Slack incoming webhook. It is a
// fire-and-forget dispatcher: delivery failures are logged, never returned,
// and a Notifier without a webhook URL is a no-op.
type Notifier struct {
	webhookURL string
	http       *http.Client
	logger     *log.Logger
}

// NewNotifier creates a Notifier. A zero timeout defaults to 10 seconds.
func NewNotifier(webhookURL string, timeout time.Duration, logger *log.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{
		webhookURL: strings.TrimSpace(webhookURL),
		http:       &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.webhookURL != ""
}

// Send posts the blocks with a fallback text. It never fails the caller.
func (n *Notifier) Send(ctx context.Context, blocks []Block, fallback string) {
	if !n.Enabled() {
		return
	}

	payload := map[string]any{
		"text":   fallback,
		"blocks": blocks,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Printf("ERROR slack: marshal payload: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Printf("ERROR slack: create request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		n.logger.Printf("ERROR slack: post webhook: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		n.logger.Printf("ERROR slack: webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
}
