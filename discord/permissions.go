package discord

import (
	"fmt"
	"sort"
)

// Discord permission bit values, per the Discord API documentation.
var permissionBits = map[string]uint64{
	"CREATE_INSTANT_INVITE":               1 << 0,
	"KICK_MEMBERS":                        1 << 1,
	"BAN_MEMBERS":                         1 << 2,
	"ADMINISTRATOR":                       1 << 3,
	"MANAGE_CHANNELS":                     1 << 4,
	"MANAGE_GUILD":                        1 << 5,
	"ADD_REACTIONS":                       1 << 6,
	"VIEW_AUDIT_LOG":                      1 << 7,
	"PRIORITY_SPEAKER":                    1 << 8,
	"STREAM":                              1 << 9,
	"VIEW_CHANNEL":                        1 << 10,
	"SEND_MESSAGES":                       1 << 11,
	"SEND_TTS_MESSAGES":                   1 << 12,
	"MANAGE_MESSAGES":                     1 << 13,
	"EMBED_LINKS":                         1 << 14,
	"ATTACH_FILES":                        1 << 15,
	"READ_MESSAGE_HISTORY":                1 << 16,
	"MENTION_EVERYONE":                    1 << 17,
	"USE_EXTERNAL_EMOJIS":                 1 << 18,
	"VIEW_GUILD_INSIGHTS":                 1 << 19,
	"CONNECT":                             1 << 20,
	"SPEAK":                               1 << 21,
	"MUTE_MEMBERS":                        1 << 22,
	"DEAFEN_MEMBERS":                      1 << 23,
	"MOVE_MEMBERS":                        1 << 24,
	"USE_VAD":                             1 << 25,
	"CHANGE_NICKNAME":                     1 << 26,
	"MANAGE_NICKNAMES":                    1 << 27,
	"MANAGE_ROLES":                        1 << 28,
	"MANAGE_WEBHOOKS":                     1 << 29,
	"MANAGE_EMOJIS_AND_STICKERS":          1 << 30,
	"USE_APPLICATION_COMMANDS":            1 << 31,
	"REQUEST_TO_SPEAK":                    1 << 32,
	"MANAGE_EVENTS":                       1 << 33,
	"MANAGE_THREADS":                      1 << 34,
	"CREATE_PUBLIC_THREADS":               1 << 35,
	"CREATE_PRIVATE_THREADS":              1 << 36,
	"USE_EXTERNAL_STICKERS":               1 << 37,
	"SEND_MESSAGES_IN_THREADS":            1 << 38,
	"USE_EMBEDDED_ACTIVITIES":             1 << 39,
	"MODERATE_MEMBERS":                    1 << 40,
	"VIEW_CREATOR_MONETIZATION_ANALYTICS": 1 << 41,
	"USE_SOUNDBOARD":                      1 << 42,
	"CREATE_EXPRESSIONS":                  1 << 43,
	"CREATE_EVENTS":                       1 << 44,
	"USE_EXTERNAL_SOUNDS":                 1 << 45,
	"SEND_VOICE_MESSAGES":                 1 << 46,
	"SEND_POLLS":                          1 << 47,
	"USE_EXTERNAL_APPS":                   1 << 48,
}

// RequiredPermissions are the permissions the recording bot needs in a guild.
var RequiredPermissions = []string{
	"VIEW_CHANNEL",
	"CONNECT",
	"SPEAK",
	"USE_VAD",
	"READ_MESSAGE_HISTORY",
}

// DangerousPermissions should not be granted to a recording bot.
var DangerousPermissions = []string{
	"ADMINISTRATOR",
	"MANAGE_GUILD",
	"BAN_MEMBERS",
	"KICK_MEMBERS",
	"MANAGE_ROLES",
	"MANAGE_CHANNELS",
}

// PermissionAnalysis is the breakdown of one permission integer.
type PermissionAnalysis struct {
	Value            uint64
	Granted          []string
	MissingRequired  []string
	DangerousGranted []string
	Unknown          []string // set bits with no known name, as BIT_n
	IsAdmin          bool
}

// AnalyzePermissions decodes a Discord permission integer and checks it
// against the bot's required and dangerous permission sets. Granted names are
// sorted alphabetically.
func AnalyzePermissions(value uint64) PermissionAnalysis {
	a := PermissionAnalysis{Value: value}

	granted := make(map[string]bool)
	var known uint64
	for name, bit := range permissionBits {
		known |= bit
		if value&bit != 0 {
			granted[name] = true
			a.Granted = append(a.Granted, name)
		}
	}
	sort.Strings(a.Granted)

	for i := 0; i < 64; i++ {
		bit := uint64(1) << i
		if value&bit != 0 && known&bit == 0 {
			a.Unknown = append(a.Unknown, fmt.Sprintf("BIT_%d", i))
		}
	}

	for _, name := range RequiredPermissions {
		if !granted[name] {
			a.MissingRequired = append(a.MissingRequired, name)
		}
	}
	for _, name := range DangerousPermissions {
		if granted[name] {
			a.DangerousGranted = append(a.DangerousGranted, name)
		}
	}
	a.IsAdmin = granted["ADMINISTRATOR"]
	return a
}
