package mtproto

import (
	"github.com/gotd/td/tg"

	"tgadder/internal/platform"
)

// groupFromChat maps an accessible chat to a platform.Group. Forbidden and
// empty chats do not map.
func groupFromChat(ch tg.ChatClass) (platform.Group, bool) {
	switch c := ch.(type) {
	case *tg.Channel:
		rights, _ := c.GetAdminRights()
		return platform.Group{
			ID:         c.ID,
			AccessHash: c.AccessHash,
			Kind:       platform.GroupChannel,
			Title:      c.Title,
			Username:   c.Username,
			CanInvite:  c.Creator || rights.InviteUsers,
		}, true
	case *tg.Chat:
		rights, _ := c.GetAdminRights()
		return platform.Group{
			ID:        c.ID,
			Kind:      platform.GroupBasic,
			Title:     c.Title,
			CanInvite: c.Creator || rights.InviteUsers,
		}, true
	default:
		return platform.Group{}, false
	}
}

func firstGroup(chats []tg.ChatClass) (platform.Group, bool) {
	for _, ch := range chats {
		if g, ok := groupFromChat(ch); ok {
			return g, true
		}
	}
	return platform.Group{}, false
}

func updatesChats(u tg.UpdatesClass) []tg.ChatClass {
	switch v := u.(type) {
	case *tg.Updates:
		return v.Chats
	case *tg.UpdatesCombined:
		return v.Chats
	default:
		return nil
	}
}

func inputChannel(g platform.Group) *tg.InputChannel {
	return &tg.InputChannel{ChannelID: g.ID, AccessHash: g.AccessHash}
}

func inputPeer(g platform.Group) tg.InputPeerClass {
	if g.Kind == platform.GroupChannel {
		return &tg.InputPeerChannel{ChannelID: g.ID, AccessHash: g.AccessHash}
	}
	return &tg.InputPeerChat{ChatID: g.ID}
}

const (
	dialogPage     = 100
	maxDialogPages = 50
)

// matchChat picks the chat with the raw id. GroupUnknown matches either kind.
func matchChat(chats []tg.ChatClass, kind platform.GroupKind, raw int64) (platform.Group, bool) {
	for _, ch := range chats {
		g, ok := groupFromChat(ch)
		if !ok || g.ID != raw {
			continue
		}
		if kind != platform.GroupUnknown && g.Kind != kind {
			continue
		}
		return g, true
	}
	return platform.Group{}, false
}

func chatsOf(res tg.MessagesChatsClass) []tg.ChatClass {
	switch r := res.(type) {
	case *tg.MessagesChats:
		return r.Chats
	case *tg.MessagesChatsSlice:
		return r.Chats
	default:
		return nil
	}
}

// dialogPageResult is one page of messages.getDialogs.
type dialogPageResult struct {
	dialogs  []tg.DialogClass
	messages []tg.MessageClass
	chats    []tg.ChatClass
	users    []tg.UserClass
	last     bool
}

func dialogsOf(res tg.MessagesDialogsClass) (dialogPageResult, bool) {
	switch r := res.(type) {
	case *tg.MessagesDialogs:
		return dialogPageResult{dialogs: r.Dialogs, messages: r.Messages, chats: r.Chats, users: r.Users, last: true}, true
	case *tg.MessagesDialogsSlice:
		return dialogPageResult{dialogs: r.Dialogs, messages: r.Messages, chats: r.Chats, users: r.Users}, true
	default:
		return dialogPageResult{}, false
	}
}

// advance moves req past the last dialog of the page. It reports false when
// the offset cannot be built, which ends paging.
func (p dialogPageResult) advance(req *tg.MessagesGetDialogsRequest) bool {
	if len(p.dialogs) == 0 {
		return false
	}
	last, ok := p.dialogs[len(p.dialogs)-1].(*tg.Dialog)
	if !ok {
		return false
	}
	peer, ok := p.inputPeer(last.Peer)
	if !ok {
		return false
	}
	date := 0
	for _, m := range p.messages {
		switch msg := m.(type) {
		case *tg.Message:
			if msg.ID == last.TopMessage && samePeer(msg.PeerID, last.Peer) {
				date = msg.Date
			}
		case *tg.MessageService:
			if msg.ID == last.TopMessage && samePeer(msg.PeerID, last.Peer) {
				date = msg.Date
			}
		}
	}
	req.OffsetDate = date
	req.OffsetID = last.TopMessage
	req.OffsetPeer = peer
	return true
}

func (p dialogPageResult) inputPeer(peer tg.PeerClass) (tg.InputPeerClass, bool) {
	switch v := peer.(type) {
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: v.ChatID}, true
	case *tg.PeerChannel:
		for _, ch := range p.chats {
			if c, ok := ch.(*tg.Channel); ok && c.ID == v.ChannelID {
				return &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}, true
			}
		}
	case *tg.PeerUser:
		for _, u := range p.users {
			if usr, ok := u.(*tg.User); ok && usr.ID == v.UserID {
				return &tg.InputPeerUser{UserID: usr.ID, AccessHash: usr.AccessHash}, true
			}
		}
	}
	return nil, false
}

func samePeer(a, b tg.PeerClass) bool {
	switch x := a.(type) {
	case *tg.PeerUser:
		y, ok := b.(*tg.PeerUser)
		return ok && x.UserID == y.UserID
	case *tg.PeerChat:
		y, ok := b.(*tg.PeerChat)
		return ok && x.ChatID == y.ChatID
	case *tg.PeerChannel:
		y, ok := b.(*tg.PeerChannel)
		return ok && x.ChannelID == y.ChannelID
	default:
		return false
	}
}
