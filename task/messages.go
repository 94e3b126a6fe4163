package task

// User-facing replies sent by monitors and deliveries.
const (
	MsgVideoReady     = "✨ Your magical cat video is ready! 🎬"
	MsgHereIsVideo    = "✨ Here's your video!"
	MsgGenerationFail = "❌ Sorry, something went wrong while creating your video. Please try again!"
	MsgNotDelivered   = "❌ Your video was generated but could not be delivered. Use /status %s to try again."
	MsgUnexpected     = "⚠️ Unexpected status (%s). Please try again or check later."
	MsgMonitorError   = "❌ Sorry, there was an error monitoring your video generation. Please try again."
)
