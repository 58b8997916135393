// Package slack mirrors oversight notifications into a shared Slack channel
// so the review team sees new occurrences and department responses without
// checking their inboxes.
package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

// Notifier posts notification summaries to a single configured channel
type Notifier struct {
	client  *slack.Client
	channel string

	mu    sync.RWMutex
	cache map[string]string // name -> id
}

// New creates a notifier posting to the given channel (name, #name or ID)
func New(botToken, channel string) *Notifier {
	return &Notifier{
		client:  slack.New(botToken),
		channel: channel,
		cache:   make(map[string]string),
	}
}

// Post sends one message to the configured channel
func (n *Notifier) Post(ctx context.Context, title, body string) error {
	channelID, err := n.resolveChannel(ctx, n.channel)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("*%s*\n%s", title, body)
	_, _, err = n.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("failed to post to channel %s: %w", n.channel, err)
	}
	return nil
}

// resolveChannel resolves a channel name or ID to a channel ID. Accepts a
// channel ID (C01234567890) or a name with or without the # prefix.
func (n *Notifier) resolveChannel(ctx context.Context, nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", fmt.Errorf("channel name/ID is empty")
	}
	if isChannelID(nameOrID) {
		return nameOrID, nil
	}

	name := strings.TrimPrefix(nameOrID, "#")

	n.mu.RLock()
	if id, ok := n.cache[name]; ok {
		n.mu.RUnlock()
		return id, nil
	}
	n.mu.RUnlock()

	id, err := n.lookupChannel(ctx, name)
	if err != nil {
		return "", err
	}

	n.mu.Lock()
	n.cache[name] = id
	n.mu.Unlock()
	return id, nil
}

// lookupChannel pages through the workspace's channels to find one by name
func (n *Notifier) lookupChannel(ctx context.Context, name string) (string, error) {
	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel"},
		ExcludeArchived: true,
		Limit:           200,
	}

	for {
		channels, cursor, err := n.client.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("failed to list channels: %w", err)
		}
		for _, channel := range channels {
			if channel.Name == name {
				return channel.ID, nil
			}
		}
		if cursor == "" {
			return "", fmt.Errorf("channel %q not found", name)
		}
		params.Cursor = cursor
	}
}

// isChannelID reports whether s looks like a Slack channel ID
func isChannelID(s string) bool {
	if len(s) < 9 || s[0] != 'C' {
		return false
	}
	for _, r := range s[1:] {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
