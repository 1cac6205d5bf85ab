package mtproto

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgadder/internal/platform"
	logx "tgadder/pkg/logx"
)

// fakeInvoker answers RPCs by request type id.
type fakeInvoker struct {
	mu        sync.Mutex
	responses map[uint32]bin.Encoder
	errs      map[uint32]error
	calls     []uint32
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{responses: map[uint32]bin.Encoder{}, errs: map[uint32]error{}}
}

func (f *fakeInvoker) Invoke(_ context.Context, input bin.Encoder, output bin.Decoder) error {
	typed, ok := input.(interface{ TypeID() uint32 })
	if !ok {
		return errors.New("untyped request")
	}
	id := typed.TypeID()

	f.mu.Lock()
	f.calls = append(f.calls, id)
	resp, hasResp := f.responses[id]
	err := f.errs[id]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !hasResp {
		return errors.New("no scripted response")
	}
	var b bin.Buffer
	if err := resp.Encode(&b); err != nil {
		return err
	}
	return output.Decode(&b)
}

func (f *fakeInvoker) called(id uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == id {
			return true
		}
	}
	return false
}

var (
	channel = platform.Group{ID: 555, AccessHash: 9, Kind: platform.GroupChannel}
	basic   = platform.Group{ID: 77, Kind: platform.GroupBasic}
	user    = platform.User{ID: 1, AccessHash: 2}
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind platform.Kind
	}{
		{nil, platform.KindOK},
		{tgerr.New(400, "USER_PRIVACY_RESTRICTED"), platform.KindPrivacyBlocked},
		{tgerr.New(403, "PRIVACY_PREMIUM_REQUIRED"), platform.KindPrivacyBlocked},
		{tgerr.New(400, "CHAT_ADMIN_REQUIRED"), platform.KindPermissionDenied},
		{tgerr.New(403, "CHAT_WRITE_FORBIDDEN"), platform.KindForbidden},
		{tgerr.New(400, "USER_IS_BLOCKED"), platform.KindForbidden},
		{tgerr.New(400, "USER_ALREADY_PARTICIPANT"), platform.KindAlreadyParticipant},
		{tgerr.New(400, "USER_ID_INVALID"), platform.KindNotFound},
		{tgerr.New(400, "USER_CHANNELS_TOO_MUCH"), platform.KindOther},
		{errors.New("connection reset"), platform.KindOther},
	}
	for _, tt := range tests {
		got := classify(tt.err)
		assert.Equal(t, tt.kind, got.Kind, "err=%v", tt.err)
	}
}

func TestClassifyFlood(t *testing.T) {
	got := classify(tgerr.New(420, "FLOOD_WAIT_30"))
	assert.Equal(t, platform.FloodWait(30*time.Second), got)

	got = classify(tgerr.New(400, "PEER_FLOOD"))
	assert.True(t, got.Flood())
	assert.Zero(t, got.Wait)
}

func TestSplitDialogID(t *testing.T) {
	k, id := splitDialogID(-1001234567890)
	assert.Equal(t, platform.GroupChannel, k)
	assert.Equal(t, int64(1234567890), id)

	k, id = splitDialogID(-4567)
	assert.Equal(t, platform.GroupBasic, k)
	assert.Equal(t, int64(4567), id)
}

func TestGroupFromChat(t *testing.T) {
	ch := &tg.Channel{ID: 5, AccessHash: 6, Title: "Chan", Username: "chan", Megagroup: true}
	ch.SetAdminRights(tg.ChatAdminRights{InviteUsers: true})
	g, ok := groupFromChat(ch)
	require.True(t, ok)
	assert.Equal(t, platform.Group{ID: 5, AccessHash: 6, Kind: platform.GroupChannel, Title: "Chan", Username: "chan", CanInvite: true}, g)

	g, ok = groupFromChat(&tg.Chat{ID: 8, Title: "Basic"})
	require.True(t, ok)
	assert.False(t, g.CanInvite)
	assert.Equal(t, platform.GroupBasic, g.Kind)

	_, ok = groupFromChat(&tg.ChannelForbidden{ID: 9})
	assert.False(t, ok)
}

func TestSessionPath(t *testing.T) {
	assert.Equal(t, "telegram_adder_session.session.json", Config{}.SessionPath())
	assert.Equal(t, "/var/lib/tgadder/s.json", Config{Session: "/var/lib/tgadder/s.json"}.SessionPath())
}

func TestImportContact(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.ContactsImportContactsRequestTypeID] = &tg.ContactsImportedContacts{
		Users: []tg.UserClass{&tg.User{ID: 1, AccessHash: 2, FirstName: "Ana", Username: "ana"}},
	}
	c := New(inv, logx.Nop())

	u, res := c.ImportContact(context.Background(), "+12015550123")
	require.True(t, res.OK())
	assert.Equal(t, platform.User{ID: 1, AccessHash: 2, FirstName: "Ana", Username: "ana"}, u)

	inv.responses[tg.ContactsImportContactsRequestTypeID] = &tg.ContactsImportedContacts{}
	_, res = c.ImportContact(context.Background(), "+12015550123")
	assert.Equal(t, platform.KindNotFound, res.Kind)

	inv.errs[tg.ContactsImportContactsRequestTypeID] = tgerr.New(420, "FLOOD_WAIT_12")
	_, res = c.ImportContact(context.Background(), "+12015550123")
	assert.Equal(t, platform.FloodWait(12*time.Second), res)
}

func TestIsParticipantChannel(t *testing.T) {
	inv := newFakeInvoker()
	c := New(inv, logx.Nop())

	inv.errs[tg.ChannelsGetParticipantRequestTypeID] = tgerr.New(400, "USER_NOT_PARTICIPANT")
	member, res := c.IsParticipant(context.Background(), channel, user)
	require.True(t, res.OK())
	assert.False(t, member)

	delete(inv.errs, tg.ChannelsGetParticipantRequestTypeID)
	inv.responses[tg.ChannelsGetParticipantRequestTypeID] = &tg.ChannelsChannelParticipant{
		Participant: &tg.ChannelParticipant{UserID: 1},
	}
	member, res = c.IsParticipant(context.Background(), channel, user)
	require.True(t, res.OK())
	assert.True(t, member)
}

func TestIsParticipantBasicGroup(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesGetFullChatRequestTypeID] = &tg.MessagesChatFull{
		FullChat: &tg.ChatFull{
			ID: 77,
			Participants: &tg.ChatParticipants{ChatID: 77, Participants: []tg.ChatParticipantClass{
				&tg.ChatParticipant{UserID: 1},
			}},
			NotifySettings: tg.PeerNotifySettings{},
		},
	}
	c := New(inv, logx.Nop())

	member, res := c.IsParticipant(context.Background(), basic, user)
	require.True(t, res.OK())
	assert.True(t, member)

	member, _ = c.IsParticipant(context.Background(), basic, platform.User{ID: 99})
	assert.False(t, member)
}

func TestAddParticipant(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.ChannelsInviteToChannelRequestTypeID] = &tg.MessagesInvitedUsers{Updates: &tg.Updates{}}
	c := New(inv, logx.Nop())

	assert.True(t, c.AddParticipant(context.Background(), channel, user).OK())

	inv.responses[tg.ChannelsInviteToChannelRequestTypeID] = &tg.MessagesInvitedUsers{
		Updates:         &tg.Updates{},
		MissingInvitees: []tg.MissingInvitee{{UserID: 1}},
	}
	assert.Equal(t, platform.KindPrivacyBlocked, c.AddParticipant(context.Background(), channel, user).Kind)

	inv.errs[tg.MessagesAddChatUserRequestTypeID] = tgerr.New(400, "CHAT_ADMIN_REQUIRED")
	assert.Equal(t, platform.KindPermissionDenied, c.AddParticipant(context.Background(), basic, user).Kind)
	assert.True(t, inv.called(tg.MessagesAddChatUserRequestTypeID))
}

func TestSendDirectMessage(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesSendMessageRequestTypeID] = &tg.Updates{}
	c := New(inv, logx.Nop())
	assert.True(t, c.SendDirectMessage(context.Background(), user, "hi").OK())

	inv.errs[tg.MessagesSendMessageRequestTypeID] = tgerr.New(403, "CHAT_WRITE_FORBIDDEN")
	assert.Equal(t, platform.KindForbidden, c.SendDirectMessage(context.Background(), user, "hi").Kind)
}

func TestExportInviteLink(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesExportChatInviteRequestTypeID] = &tg.ChatInviteExported{Link: "https://t.me/+abc"}
	c := New(inv, logx.Nop())

	link, err := c.ExportInviteLink(context.Background(), channel)
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+abc", link)
}

func TestResolveIDChannelFromDialogs(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesGetDialogsRequestTypeID] = &tg.MessagesDialogs{
		Dialogs: []tg.DialogClass{
			&tg.Dialog{Peer: &tg.PeerChat{ChatID: 1234567890}},
			&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 1234567890}},
		},
		Chats: []tg.ChatClass{
			&tg.Chat{ID: 1234567890, Title: "Same id, basic", Photo: &tg.ChatPhotoEmpty{}},
			&tg.Channel{ID: 1234567890, AccessHash: 42, Title: "Chan", Megagroup: true, Photo: &tg.ChatPhotoEmpty{}},
		},
	}
	inv.responses[tg.ChannelsGetFullChannelRequestTypeID] = &tg.MessagesChatFull{
		FullChat: &tg.ChannelFull{ID: 1234567890, ChatPhoto: &tg.PhotoEmpty{}},
	}
	c := New(inv, logx.Nop())

	g, err := c.ResolveID(context.Background(), -1001234567890)
	require.NoError(t, err)
	assert.Equal(t, platform.GroupChannel, g.Kind)
	assert.Equal(t, int64(1234567890), g.ID)
	assert.Equal(t, int64(42), g.AccessHash)
	assert.Equal(t, "Chan", g.Title)
	assert.False(t, inv.called(tg.MessagesGetChatsRequestTypeID))
}

func TestResolveIDBasicGroup(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesGetChatsRequestTypeID] = &tg.MessagesChats{
		Chats: []tg.ChatClass{&tg.Chat{ID: 4567, Title: "Basic", Photo: &tg.ChatPhotoEmpty{}}},
	}
	c := New(inv, logx.Nop())

	g, err := c.ResolveID(context.Background(), -4567)
	require.NoError(t, err)
	assert.Equal(t, platform.Group{ID: 4567, Kind: platform.GroupBasic, Title: "Basic"}, g)
	assert.False(t, inv.called(tg.MessagesGetDialogsRequestTypeID))
}

func TestResolveIDUnknown(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesGetDialogsRequestTypeID] = &tg.MessagesDialogs{}
	inv.responses[tg.MessagesGetChatsRequestTypeID] = &tg.MessagesChats{}
	c := New(inv, logx.Nop())

	_, err := c.ResolveID(context.Background(), -1009999)
	require.Error(t, err)
	_, err = c.ResolveID(context.Background(), -9999)
	require.Error(t, err)

	inv.errs[tg.MessagesGetDialogsRequestTypeID] = tgerr.New(420, "FLOOD_WAIT_5")
	_, err = c.ResolveID(context.Background(), -1009999)
	require.Error(t, err)
}

func TestDialogPageAdvance(t *testing.T) {
	page := dialogPageResult{
		dialogs: []tg.DialogClass{
			&tg.Dialog{Peer: &tg.PeerUser{UserID: 3}, TopMessage: 10},
			&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 8}, TopMessage: 20},
		},
		messages: []tg.MessageClass{
			&tg.Message{ID: 20, PeerID: &tg.PeerUser{UserID: 3}, Date: 111},
			&tg.Message{ID: 20, PeerID: &tg.PeerChannel{ChannelID: 8}, Date: 222},
		},
		chats: []tg.ChatClass{&tg.Channel{ID: 8, AccessHash: 80}},
	}
	req := &tg.MessagesGetDialogsRequest{OffsetPeer: &tg.InputPeerEmpty{}}
	require.True(t, page.advance(req))
	assert.Equal(t, 222, req.OffsetDate)
	assert.Equal(t, 20, req.OffsetID)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 8, AccessHash: 80}, req.OffsetPeer)

	// A user peer without its access hash cannot be paged past.
	page.dialogs = page.dialogs[:1]
	assert.False(t, page.advance(req))
}
