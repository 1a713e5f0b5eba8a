package notifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slack-go/slack"
)

type Slack struct {
	channel string
	token   string
	api     *slack.Client
}

// NewSlack builds a bot-token client. apiURL overrides the Slack API base and
// is empty in production.
func NewSlack(token, channel, apiURL string) *Slack {
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &Slack{channel: channel, token: token, api: slack.New(token, opts...)}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Enabled() bool {
	return s != nil && s.token != "" && s.channel != ""
}

func (s *Slack) Send(ctx context.Context, msg string) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(msg, false))
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}

func (s *Slack) SendFile(ctx context.Context, caption, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat attachment: %w", err)
	}
	if st.Size() == 0 {
		return s.Send(ctx, caption)
	}
	_, err = s.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:        s.channel,
		File:           path,
		FileSize:       int(st.Size()),
		Filename:       filepath.Base(path),
		Title:          filepath.Base(path),
		InitialComment: caption,
	})
	if err != nil {
		return fmt.Errorf("slack upload: %w", err)
	}
	return nil
}
