// Package discord announces autorank transitions on a Discord webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/okian/lets/internal/domain/autorank"
	"github.com/okian/lets/pkg/logger"
	"github.com/okian/lets/pkg/metrics"
)

const embedColor = 242424

// UsernameResolver maps a local user id to a display name.
type UsernameResolver interface {
	Username(ctx context.Context, userID int64) (string, bool, error)
}

// Notifier delivers announcements. Delivery failures are logged and never
// returned to the sweep.
type Notifier struct {
	webhookURL string
	profileURL string
	avatarURL  string
	users      UsernameResolver
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
	logger     logger.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(n *Notifier) {
		if hc != nil {
			n.httpClient = hc
		}
	}
}

// WithRetry sets the delivery attempts and the initial backoff delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(n *Notifier) {
		if attempts > 0 {
			n.attempts = attempts
		}
		if delay > 0 {
			n.delay = delay
		}
	}
}

// WithProfileURLs sets the author link and avatar prefixes. The user id is
// appended to both.
func WithProfileURLs(profile, avatar string) Option {
	return func(n *Notifier) {
		n.profileURL = profile
		n.avatarURL = avatar
	}
}

// WithLogger sets the notifier logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// New builds a notifier. An empty webhookURL only logs announcements.
func New(webhookURL string, users UsernameResolver, opts ...Option) *Notifier {
	n := &Notifier{
		webhookURL: webhookURL,
		profileURL: "https://osu.troke.id/u/",
		avatarURL:  "https://a.troke.id/",
		users:      users,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		attempts:   3,
		delay:      500 * time.Millisecond,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Description string     `json:"description"`
	Color       int        `json:"color"`
	Thumbnail   *embedURL  `json:"thumbnail,omitempty"`
	Author      *author    `json:"author,omitempty"`
	Footer      *embedText `json:"footer,omitempty"`
}

type embedURL struct {
	URL string `json:"url"`
}

type embedText struct {
	Text string `json:"text"`
}

type author struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// Message is the announcement line for n.
func Message(n autorank.Notification) string {
	return fmt.Sprintf("%s - %s [%s] has been auto-%s", n.Artist, n.Title, n.DifficultyName, n.Label())
}

func (n *Notifier) render(ctx context.Context, note autorank.Notification) payload {
	setID := strconv.FormatInt(note.BeatmapSetID, 10)
	e := embed{
		Description: Message(note) + "\nDownload : https://osu.ppy.sh/s/" + setID,
		Color:       embedColor,
		Thumbnail:   &embedURL{URL: "https://b.ppy.sh/thumb/" + setID + ".jpg"},
		Footer:      &embedText{Text: "This map was auto-" + note.Label() + " from in-game"},
	}
	if note.MapperUserID > 0 && n.users != nil {
		name, ok, err := n.users.Username(ctx, note.MapperUserID)
		switch {
		case err != nil:
			n.logger.Warn(ctx, "mapper username lookup failed",
				logger.Int64("user_id", note.MapperUserID), logger.Error(err))
		case ok:
			uid := strconv.FormatInt(note.MapperUserID, 10)
			e.Author = &author{Name: name, URL: n.profileURL + uid, IconURL: n.avatarURL + uid}
		}
	}
	return payload{Embeds: []embed{e}}
}

// Notify announces one transition.
func (n *Notifier) Notify(ctx context.Context, note autorank.Notification) {
	fields := []logger.Field{
		logger.String("notification_id", note.ID.String()),
		logger.Int64("beatmap_id", note.BeatmapID),
		logger.String("status", note.Label()),
	}
	if n.webhookURL == "" {
		n.logger.Info(ctx, Message(note), fields...)
		return
	}

	body, err := json.Marshal(n.render(ctx, note))
	if err != nil {
		metrics.RecordNotificationError()
		n.logger.Error(ctx, "encode webhook payload", append(fields, logger.Error(err))...)
		return
	}

	err = retry.Do(
		func() error { return n.post(ctx, body) },
		retry.Context(ctx),
		retry.Attempts(n.attempts),
		retry.Delay(n.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		metrics.RecordNotificationError()
		n.logger.Warn(ctx, "webhook delivery failed", append(fields, logger.Error(err))...)
		return
	}
	n.logger.Debug(ctx, "webhook delivered", fields...)
}

var errClient = errors.New("webhook rejected payload")

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	default:
		return retry.Unrecoverable(fmt.Errorf("%w: status %d", errClient, resp.StatusCode))
	}
}
