package events

// Chat namespace events
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventAuthenticate   = "authenticate"
	EventAuthenticated  = "chat:authenticated"
	EventChatError      = "chat:error"
	EventReceiveMessage = "receive_message"
	EventMessageRead    = "message_read"
	EventUserBlocked    = "user_blocked"
	EventUserUnblocked  = "user_unblocked"
)

// Friend namespace events
const (
	EventFriendRequestReceived = "friend:request-received"
	EventFriendRequestAccepted = "friend:request-accepted"
	EventFriendRequestRejected = "friend:request-rejected"
	EventFriendRequestSent     = "friend:request-sent"
	EventFriendRemoved         = "friend:removed"
	EventFriendError           = "friend:error"
)

// Redis channel prefixes used to fan state out to local listeners.
const (
	ChannelPrefixUser          = "channel:user:"
	ChannelSuffixNotifications = ":notifications"
)
