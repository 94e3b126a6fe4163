package bot

const greetingMessage = `
✨ Welcome to QL Cat Bot! 🐱✨

I create magical videos featuring our elegant white Persian cat!
Let me bring your creative ideas to life! 🎬

Use /help to see what I can do! 🌟
`

const helpMessage = "🎮 *Available Commands*\n\n" +
	"🎥 `/cat [action] [object]` - Generate a cat video\n" +
	"   Example: `/cat chase butterfly`\n\n" +
	"🔍 `/status [taskID]` - Check video status\n" +
	"   Example: `/status 224083523223649`\n\n" +
	"ℹ️ `/help` - Show this help message\n" +
	"🚀 `/start` - Start the bot\n"

const (
	processingMessage = "🎬 Your cat video is being generated!"
	statusMessage     = "🔄 Current status: *%s*"
	waitMessage       = "⏳ This usually takes 3-5 minutes. The video will be sent here when it's ready."
	taskIDMessage     = "🔑 Task ID: `%s`"

	catUsageMessage    = "Please specify an action and object. Example: /cat eat noodles"
	statusUsageMessage = "ℹ️ Please provide a task ID.\nExample: `/status 224083523223649`"
	rateLimitMessage   = "⏰ You can only request one video per hour. Please try again in %d minute(s)."
	catErrorMessage    = "Sorry, there was an error generating your video: %v"
	statusErrorMessage = "Sorry, there was an error checking your task: %v"
	taskStatusMessage  = "🎬 *Status for Task %s*\n\n🔄 Status: *%s*"
	notFoundMessage    = "❌ Task not found. Please check your task ID."
)
