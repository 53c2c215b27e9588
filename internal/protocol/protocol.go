// Package protocol names the messages exchanged with study-room clients and
// frames them as JSON envelopes.
package protocol

const (
	ConnectionSuccess = "connection-success"
	JoinWaitingRoom   = "join-waiting-room"
	JoinRoom          = "joinRoom"

	OtherPeerJoinedRoom   = "other-peer-joined-room"
	OtherPeerExitedRoom   = "other-peer-exited-room"
	OtherPeerDisconnected = "other-peer-disconnected"
	PeerStateChanged      = "peer-state-changed"

	CreateWebRtcTransport    = "createWebRtcTransport"
	TransportProducerConnect = "transport-producer-connected"
	TransportReceiverConnect = "transport-receiver-connected"
	TransportProduce         = "transport-produce"
	Consume                  = "consume"
	ConsumerResume           = "consumer-resume"
	GetProducerIDs           = "getProducers"
	GetAudioProducerIDs      = "getAudioProducers"
	NewProducer              = "new-producer"
	ProducerClosed           = "producer-closed"
	CloseVideoProducer       = "close-video-producer"
	CloseAudioProducer       = "close-audio-producer"
	HideRemoteVideo          = "hide-remote-video"
	ShowRemoteVideo          = "show-remote-video"
	MuteHeadset              = "mute-headset"
	UnmuteHeadset            = "unmute-headset"

	SendChat = "send-chat"

	StartTimer       = "start-timer"
	StartShortBreak  = "start-short-break"
	StartLongBreak   = "start-long-break"
	EditAndStopTimer = "edit-and-stop-timer"

	KickUser    = "kick-user"
	BlockUser   = "block-user"
	UnblockUser = "unblock-user"

	Ping = "ping"
	Pong = "pong"
	Ack  = "ack"
)

// Routing server messages.
const (
	RegisterMediaServer = "registerMediaServer"
	CreatedRoom         = "createdRoom"
	RemovedRoom         = "removedRoom"
)
