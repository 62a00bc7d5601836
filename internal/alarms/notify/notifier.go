package notify

import (
	"context"
	"errors"
)

// Channel delivers rendered notification content.
type Channel interface {
	Send(ctx context.Context, content string) error
}

// ChannelNotifier renders a template per notification and pushes the
// result through a delivery channel.
type ChannelNotifier struct {
	channel Channel
	tpl     *Template
}

// NewChannelNotifier constructs a channel notifier.
func NewChannelNotifier(channel Channel, tpl *Template) (*ChannelNotifier, error) {
	if channel == nil {
		return nil, errors.New("notifier: nil channel")
	}
	if tpl == nil {
		return nil, errors.New("notifier: nil template")
	}
	return &ChannelNotifier{channel: channel, tpl: tpl}, nil
}

// Notify renders and delivers one notification.
func (n *ChannelNotifier) Notify(ctx context.Context, userID, templateKey string, variables map[string]string) error {
	if n == nil || n.channel == nil {
		return errors.New("notifier: nil")
	}
	content, err := n.tpl.Render(userID, templateKey, variables)
	if err != nil {
		return err
	}
	return n.channel.Send(ctx, content)
}
