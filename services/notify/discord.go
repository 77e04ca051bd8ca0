package notifysvc

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
)

// discordMaxMessageLen is the hard limit Discord puts on a message content.
const discordMaxMessageLen = 2000

type channelMessenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type discordNotifier struct {
	session   channelMessenger
	channelID string
}

var _ core.Notifier = (*discordNotifier)(nil)

// NewDiscordNotifier posts notifications to the bursar's office channel.
func NewDiscordNotifier(conf *core.Config) (core.Notifier, error) {
	session, err := discordgo.New("Bot " + conf.DiscordBotToken)
	if err != nil {
		return nil, errors.Wrap(err, "creating discord session")
	}
	return &discordNotifier{session: session, channelID: conf.DiscordChannelID}, nil
}

func (n discordNotifier) format(msg core.Notification) string {
	content := fmt.Sprintf("**%s**\n", msg.Subject)
	if msg.HasRecipients() {
		content += fmt.Sprintf("_to: %s_\n", joinAddresses(msg.To))
	}
	content += "```\n" + msg.Body + "\n```"
	return truncateMessage(content)
}

// truncateMessage cuts content to discordMaxMessageLen bytes on a rune boundary, closing the code block.
func truncateMessage(content string) string {
	const tail = "…```"
	if len(content) <= discordMaxMessageLen {
		return content
	}
	cut := discordMaxMessageLen - len(tail)
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + tail
}

func (n discordNotifier) Notify(ctx context.Context, msg core.Notification) error {
	if _, err := n.session.ChannelMessageSend(n.channelID, n.format(msg), discordgo.WithContext(ctx)); err != nil {
		return errors.Wrap(err, "posting discord message")
	}
	return nil
}
