// Package notify posts run summaries and forwarded log lines to an operator
// chat through a Telegram bot. It is send-only: the bot never polls.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	tele "gopkg.in/telebot.v4"

	"tgadder/internal/ledger"
	"tgadder/internal/onboard"
	logx "tgadder/pkg/logx"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint. Empty means the public one.
	APIURL  string
	Timeout time.Duration
}

type Notifier struct {
	cfg Config
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, eris.New("notify: bot token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, eris.New("notify: chat id is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Offline: true,
		Client:  newHTTPClient(cfg.Timeout),
		OnError: func(err error, _ tele.Context) {
			log.Debug("bot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "notify: create bot")
	}
	return &Notifier{cfg: cfg, bot: b, log: log}, nil
}

// SendText posts text to the operator chat, split into as many messages as
// the Bot API length limit requires.
func (n *Notifier) SendText(ctx context.Context, text string) error {
	chat := &tele.Chat{ID: n.cfg.ChatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		opts := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: n.cfg.ThreadID}
		if _, err := n.bot.Send(chat, chunk, opts); err != nil {
			return eris.Wrap(err, "notify: send")
		}
	}
	return nil
}

// Report posts the outcome of a run. runErr is the error the run ended
// with, if any.
func (n *Notifier) Report(ctx context.Context, rep onboard.Report, runErr error) error {
	return n.SendText(ctx, FormatReport(rep, runErr))
}

// FormatReport renders a run report as plain text.
func FormatReport(rep onboard.Report, runErr error) string {
	var b strings.Builder
	if runErr != nil {
		b.WriteString("Run aborted: ")
		b.WriteString(runErr.Error())
		b.WriteString("\n")
	}
	if label := rep.Target.Label(); label != "" {
		fmt.Fprintf(&b, "Group: %s\n", label)
	}
	fmt.Fprintf(&b, "Added %d member(s). Logged %d rows.\n", rep.Summary.Added, rep.Summary.Total)

	statuses := make([]string, 0, len(rep.Summary.ByStatus))
	for st := range rep.Summary.ByStatus {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Fprintf(&b, "- %s: %d\n", st, rep.Summary.ByStatus[ledger.Status(st)])
	}

	l := rep.Limits
	if l.BatchPauses > 0 || l.FloodFreezes > 0 {
		fmt.Fprintf(&b, "Pauses: %d batch, %d flood (%s frozen, %d escalated)\n",
			l.BatchPauses, l.FloodFreezes, l.Frozen, l.Escalations)
	}
	if !rep.Started.IsZero() && !rep.Finished.IsZero() {
		fmt.Fprintf(&b, "Took %s", rep.Finished.Sub(rep.Started).Round(time.Second))
	}
	return strings.TrimRight(b.String(), "\n")
}
