// Package mtproto implements platform.Client on a Telegram user account
// through gotd/td. It is the only place that knows Telegram error codes; every
// response is mapped to a platform.Result here.
package mtproto

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/rotisserie/eris"

	logx "tgadder/pkg/logx"
)

// ErrUnauthenticated means the session file holds no authorized login.
// Logging in is done out of band; this program never prompts for codes.
var ErrUnauthenticated = eris.New("telegram session is not authorized")

type Config struct {
	AppID   int
	AppHash string
	// Session is the session file path. A bare name gets a ".session.json"
	// suffix.
	Session     string
	DialTimeout time.Duration
}

// SessionPath returns the file the session is stored in.
func (c Config) SessionPath() string {
	s := strings.TrimSpace(c.Session)
	if s == "" {
		s = "telegram_adder_session"
	}
	if filepath.Ext(s) == "" {
		s += ".session.json"
	}
	return s
}

// Run connects, checks the session is authorized and calls fn with a ready
// client. The connection is closed when fn returns.
func Run(ctx context.Context, cfg Config, log logx.Logger, fn func(ctx context.Context, c *Client) error) error {
	if cfg.AppID == 0 || strings.TrimSpace(cfg.AppHash) == "" {
		return eris.New("telegram api id and hash are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	client := telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath()},
		NoUpdates:      true,
		DialTimeout:    cfg.DialTimeout,
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return eris.Wrap(err, "auth status")
		}
		if !status.Authorized {
			return eris.Wrapf(ErrUnauthenticated, "session %s", cfg.SessionPath())
		}
		if status.User != nil {
			log.Info("telegram session ready",
				logx.Int64("self_id", status.User.ID),
				logx.String("self_username", status.User.Username),
			)
		}
		return fn(ctx, New(client, log))
	})
}
