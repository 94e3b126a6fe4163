// Package chat connects the bot commands to chat networks.
//
// It provides two transports:
//   - Telegram: long-polls the Bot API through telebot and answers /start,
//     /help, /cat and /status. Videos are uploaded from the staged file.
//     Chat creators and administrators are privileged.
//   - Twitch: joins TWITCH_CHANNEL over IRC and answers !start, !help, !cat
//     and !status. IRC cannot carry files, so finished videos are posted as
//     their download URL. The broadcaster and moderators are privileged.
//
// On both transports identities listed in ADMIN_USER_IDS are privileged too.
// Twitch identities are prefixed with "twitch:" so they never collide with
// numeric Telegram user ids in the shared rate limit store.
package chat
