package mtproto

import (
	"github.com/gotd/td/tgerr"

	"tgadder/internal/platform"
)

// Telegram RPC error types grouped by the outcome they map to.
var (
	privacyErrors = []string{
		"USER_PRIVACY_RESTRICTED",
		"USER_NOT_MUTUAL_CONTACT",
		"PRIVACY_PREMIUM_REQUIRED",
	}
	permissionErrors = []string{
		"CHAT_ADMIN_REQUIRED",
		"RIGHT_FORBIDDEN",
		"CHAT_FORBIDDEN",
		"CHANNEL_PRIVATE",
		"USER_RESTRICTED",
	}
	forbiddenErrors = []string{
		"CHAT_WRITE_FORBIDDEN",
		"USER_IS_BLOCKED",
		"YOU_BLOCKED_USER",
		"USER_BANNED_IN_CHANNEL",
		"USER_KICKED",
		"INPUT_USER_DEACTIVATED",
		"USER_DEACTIVATED",
	}
	notFoundErrors = []string{
		"USER_ID_INVALID",
		"PHONE_NOT_OCCUPIED",
		"PHONE_NUMBER_INVALID",
	}
)

// classify maps an RPC error to a per-identity result.
func classify(err error) platform.Result {
	if err == nil {
		return platform.OK()
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return platform.FloodWait(d)
	}
	detail := err.Error()
	if rpc, ok := tgerr.As(err); ok {
		detail = rpc.Type
	}
	switch {
	case tgerr.Is(err, "PEER_FLOOD"):
		// No duration: the limiter applies its fallback freeze.
		return platform.FloodWait(0)
	case tgerr.Is(err, "USER_ALREADY_PARTICIPANT"):
		return platform.Fail(platform.KindAlreadyParticipant, detail)
	case tgerr.Is(err, privacyErrors...):
		return platform.Fail(platform.KindPrivacyBlocked, detail)
	case tgerr.Is(err, permissionErrors...):
		return platform.Fail(platform.KindPermissionDenied, detail)
	case tgerr.Is(err, forbiddenErrors...):
		return platform.Fail(platform.KindForbidden, detail)
	case tgerr.Is(err, notFoundErrors...):
		return platform.Fail(platform.KindNotFound, detail)
	default:
		return platform.Fail(platform.KindOther, detail)
	}
}
