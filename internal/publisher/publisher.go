// Package publisher defines the notification message and the transports
// that deliver it.
package publisher

import "context"

// Attachment is a file sent alongside the message body.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is one rendered notification.
type Message struct {
	Subject     string
	Body        string
	Attachments []Attachment
}

// Publisher delivers a Message over one channel.
type Publisher interface {
	// Name identifies the channel in logs and metrics.
	Name() string
	Publish(ctx context.Context, msg Message) error
}
