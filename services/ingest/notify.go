package ingest

import (
	"context"
	"fmt"

	"usbdrop/pkg/slack"
)

const userAgentPreviewLen = 100

// notify posts a Block Kit alert for one recorded activation. Failures are
// logged by the notifier and never affect the pipeline.
func (p *Pipeline) notify(ctx context.Context, token tokenRef, drive driveInfo, act activation) {
	if !p.notifier.Enabled() {
		return
	}

	sourceIP := act.SourceIP
	if sourceIP == "" {
		sourceIP = "Unknown"
	}
	file := token.FilePath
	if file == "" {
		file = token.Filename
	}

	blocks := []slack.Block{
		slack.Header(":rotating_light: USB Drive Triggered"),
		slack.Section(
			slack.Field("Drive", drive.Code),
			slack.Field("Token Type", token.TokenType),
			slack.Field("File", file),
			slack.Field("Source IP", sourceIP),
			slack.Field("Location", act.Location.Summary()),
			slack.Field("Time", act.TriggeredAt.Format("2006-01-02 15:04:05 UTC")),
		),
	}
	if drive.Label != "" {
		blocks = append(blocks, slack.Context(slack.Markdown("Drive label: "+drive.Label)))
	}
	if act.UserAgent != "" {
		ua := act.UserAgent
		if len(ua) > userAgentPreviewLen {
			ua = ua[:userAgentPreviewLen] + "..."
		}
		blocks = append(blocks, slack.Context(slack.Markdown("User agent: `"+ua+"`")))
	}

	fallback := fmt.Sprintf("USB drive %s triggered from %s", drive.Code, sourceIP)
	p.notifier.Send(ctx, blocks, fallback)
}
