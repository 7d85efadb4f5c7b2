package bus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"
)

// Subjects for campaign lifecycle events. Consumers outside this repo
// (dashboards, SIEM forwarders) subscribe to these.
const (
	SubjectDrivePrepared   = "usbdrop.drives.prepared"
	SubjectDriveDeployed   = "usbdrop.drives.deployed"
	SubjectDriveRecovered  = "usbdrop.drives.recovered"
	SubjectTriggerRecorded = "usbdrop.triggers.recorded"
)

// Bus publishes campaign events to NATS JetStream. A nil Bus is valid and
// drops every publish, so event emission stays optional.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect creates a Bus against the provided NATS endpoint. An empty URL
// returns a nil Bus without error.
func Connect(url string, opts ...nats.Option) (*Bus, error) {
	if url == "" {
		return nil, nil
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js}, nil
}

// Close drains and shuts down the underlying connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Publish encodes v as JSON and publishes it to the given subject.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil {
		return nil
	}
	if subj == "" {
		return errors.New("subject is required")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(subj, data, nats.Context(ctx))
	return err
}
