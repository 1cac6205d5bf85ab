package mtproto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"strconv"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rotisserie/eris"

	"tgadder/internal/platform"
	logx "tgadder/pkg/logx"
)

// Client is a platform.Client backed by the raw Telegram API.
type Client struct {
	inv tg.Invoker
	api *tg.Client
	log logx.Logger
}

// New wraps an invoker, normally a connected *telegram.Client.
func New(inv tg.Invoker, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{inv: inv, api: tg.NewClient(inv), log: log}
}

var _ platform.Client = (*Client)(nil)

// ---- group resolution ----

func (c *Client) JoinByInviteHash(ctx context.Context, hash string) (platform.Group, error) {
	upd, err := c.api.MessagesImportChatInvite(ctx, hash)
	switch {
	case err == nil:
		if g, ok := firstGroup(updatesChats(upd)); ok {
			return g, nil
		}
		return platform.Group{}, eris.New("joined, but the response carried no chat")
	case tgerr.Is(err, "USER_ALREADY_PARTICIPANT"):
		// Already in: look the chat up through the invite itself.
		inv, cerr := c.api.MessagesCheckChatInvite(ctx, hash)
		if cerr != nil {
			return platform.Group{}, eris.Wrap(cerr, "check chat invite")
		}
		if already, ok := inv.(*tg.ChatInviteAlready); ok {
			if g, ok := groupFromChat(already.Chat); ok {
				return g, nil
			}
		}
		return platform.Group{}, eris.New("already a participant, but the invite did not name the chat")
	default:
		return platform.Group{}, eris.Wrap(err, "import chat invite")
	}
}

func (c *Client) ResolveUsername(ctx context.Context, username string) (platform.Group, error) {
	var res tg.ContactsResolvedPeer
	if err := c.inv.Invoke(ctx, &tg.ContactsResolveUsernameRequest{Username: username}, &res); err != nil {
		return platform.Group{}, eris.Wrap(err, "resolve username")
	}
	var want int64
	switch p := res.Peer.(type) {
	case *tg.PeerChannel:
		want = p.ChannelID
	case *tg.PeerChat:
		want = p.ChatID
	default:
		return platform.Group{}, eris.Errorf("@%s is not a group", username)
	}
	for _, ch := range res.Chats {
		if ch.GetID() != want {
			continue
		}
		if g, ok := groupFromChat(ch); ok {
			return c.checkAccess(ctx, g)
		}
	}
	return platform.Group{}, eris.Errorf("@%s resolved without chat data", username)
}

// ResolveID finds a group by its dialog id among the chats the account
// already belongs to. -100<id> addresses a supergroup/channel, -<id> a basic
// group. Basic groups need no access hash and are fetched directly; channels
// are looked up in the dialog list, which carries their access hash.
func (c *Client) ResolveID(ctx context.Context, id int64) (platform.Group, error) {
	kind, raw := splitDialogID(id)
	if kind == platform.GroupBasic {
		res, err := c.api.MessagesGetChats(ctx, []int64{raw})
		if err != nil {
			return platform.Group{}, eris.Wrapf(err, "get chat %d", raw)
		}
		if g, ok := matchChat(chatsOf(res), platform.GroupBasic, raw); ok {
			return g, nil
		}
		return platform.Group{}, eris.Errorf("no known chat with id %d", id)
	}

	req := &tg.MessagesGetDialogsRequest{OffsetPeer: &tg.InputPeerEmpty{}, Limit: dialogPage}
	for page := 0; page < maxDialogPages; page++ {
		res, err := c.api.MessagesGetDialogs(ctx, req)
		if err != nil {
			return platform.Group{}, eris.Wrap(err, "get dialogs")
		}
		d, ok := dialogsOf(res)
		if !ok {
			break
		}
		if g, ok := matchChat(d.chats, kind, raw); ok {
			return c.checkAccess(ctx, g)
		}
		if d.last || len(d.dialogs) < dialogPage || !d.advance(req) {
			break
		}
	}
	return platform.Group{}, eris.Errorf("no known chat with id %d", id)
}

// splitDialogID converts a Bot-API style dialog id to the raw MTProto id.
func splitDialogID(id int64) (platform.GroupKind, int64) {
	s := strconv.FormatInt(id, 10)
	switch {
	case len(s) > 4 && s[:4] == "-100":
		raw, _ := strconv.ParseInt(s[4:], 10, 64)
		return platform.GroupChannel, raw
	case id < 0:
		return platform.GroupBasic, -id
	default:
		return platform.GroupUnknown, id
	}
}

// checkAccess fails for a channel the account cannot read.
func (c *Client) checkAccess(ctx context.Context, g platform.Group) (platform.Group, error) {
	if g.Kind != platform.GroupChannel {
		return g, nil
	}
	if _, err := c.api.ChannelsGetFullChannel(ctx, inputChannel(g)); err != nil {
		return platform.Group{}, eris.Wrap(err, "cannot access the group")
	}
	return g, nil
}

func (c *Client) ExportInviteLink(ctx context.Context, g platform.Group) (string, error) {
	res, err := c.api.MessagesExportChatInvite(ctx, &tg.MessagesExportChatInviteRequest{Peer: inputPeer(g)})
	if err != nil {
		return "", eris.Wrap(err, "export chat invite")
	}
	inv, ok := res.(*tg.ChatInviteExported)
	if !ok || inv.Link == "" {
		return "", eris.New("export chat invite returned no link")
	}
	return inv.Link, nil
}

// ---- per-identity calls ----

func (c *Client) ImportContact(ctx context.Context, phone string) (platform.User, platform.Result) {
	res, err := c.api.ContactsImportContacts(ctx, []tg.InputPhoneContact{{Phone: phone}})
	if err != nil {
		return platform.User{}, classify(err)
	}
	for _, u := range res.Users {
		if user, ok := u.(*tg.User); ok {
			return platform.User{
				ID:         user.ID,
				AccessHash: user.AccessHash,
				FirstName:  user.FirstName,
				Username:   user.Username,
			}, platform.OK()
		}
	}
	return platform.User{}, platform.NotFound()
}

func (c *Client) IsParticipant(ctx context.Context, g platform.Group, u platform.User) (bool, platform.Result) {
	switch g.Kind {
	case platform.GroupChannel:
		_, err := c.api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
			Channel:     inputChannel(g),
			Participant: &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash},
		})
		if tgerr.Is(err, "USER_NOT_PARTICIPANT") {
			return false, platform.OK()
		}
		if err != nil {
			return false, classify(err)
		}
		return true, platform.OK()
	case platform.GroupBasic:
		full, err := c.api.MessagesGetFullChat(ctx, g.ID)
		if err != nil {
			return false, classify(err)
		}
		chat, ok := full.FullChat.(*tg.ChatFull)
		if !ok {
			return false, platform.OK()
		}
		parts, ok := chat.Participants.(*tg.ChatParticipants)
		if !ok {
			// Participant list hidden: the add call decides.
			return false, platform.OK()
		}
		for _, p := range parts.Participants {
			if p.GetUserID() == u.ID {
				return true, platform.OK()
			}
		}
		return false, platform.OK()
	default:
		return false, platform.Fail(platform.KindOther, "unsupported group kind")
	}
}

func (c *Client) AddParticipant(ctx context.Context, g platform.Group, u platform.User) platform.Result {
	user := &tg.InputUser{UserID: u.ID, AccessHash: u.AccessHash}
	var (
		res *tg.MessagesInvitedUsers
		err error
	)
	switch g.Kind {
	case platform.GroupChannel:
		res, err = c.api.ChannelsInviteToChannel(ctx, &tg.ChannelsInviteToChannelRequest{
			Channel: inputChannel(g),
			Users:   []tg.InputUserClass{user},
		})
	case platform.GroupBasic:
		res, err = c.api.MessagesAddChatUser(ctx, &tg.MessagesAddChatUserRequest{
			ChatID: g.ID,
			UserID: user,
		})
	default:
		return platform.Fail(platform.KindOther, "unsupported group kind")
	}
	if err != nil {
		return classify(err)
	}
	// Privacy refusals come back as missing invitees rather than an error.
	for _, m := range res.MissingInvitees {
		if m.UserID == u.ID {
			return platform.Fail(platform.KindPrivacyBlocked, "USER_PRIVACY_RESTRICTED")
		}
	}
	return platform.OK()
}

func (c *Client) SendDirectMessage(ctx context.Context, u platform.User, text string) platform.Result {
	_, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:      &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash},
		Message:   text,
		RandomID:  randomID(),
		NoWebpage: true,
	})
	return classify(err)
}

func randomID() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}
