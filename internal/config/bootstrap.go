package config

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/sweeney/power-monitor/internal/registry"
)

// ErrConfigMissing means no bot token is available at startup.
var ErrConfigMissing = errors.New("config: no bot token configured")

// Bootstrap environment variable names.
const (
	EnvBotToken     = "BOT_TOKEN"
	EnvBotMode      = "BOT_MODE"
	EnvAdminIDs     = "ADMIN_IDS"
	EnvPollInterval = "POLL_INTERVAL"
)

// EnvHelp lists the bootstrap variables for non-interactive setups.
const EnvHelp = `For non-interactive setups set:
  BOT_TOKEN=<token from @BotFather>
  BOT_MODE=multi (or admin)
  ADMIN_IDS=<comma-separated chat ids>
  POLL_INTERVAL=5 (optional, seconds)`

// FromEnv builds an initial state from the bootstrap environment variables.
// ok is false when BOT_TOKEN is not set.
func FromEnv(platform string) (st registry.State, ok bool) {
	v := viper.New()
	for _, key := range []string{EnvBotToken, EnvBotMode, EnvAdminIDs, EnvPollInterval} {
		v.BindEnv(key)
	}

	token := strings.TrimSpace(v.GetString(EnvBotToken))
	if token == "" {
		return registry.State{}, false
	}

	st = registry.DefaultState(platform)
	st.BotToken = &token
	st.Mode = ParseMode(v.GetString(EnvBotMode))
	st.AdminIDs = ParseIDs(v.GetString(EnvAdminIDs))
	if n, err := strconv.Atoi(strings.TrimSpace(v.GetString(EnvPollInterval))); err == nil && n > 0 {
		st.PollInterval = n
	}
	return st, true
}

// ParseMode maps "admin" or "1" (any case) to admin mode and everything else
// to multi-user mode.
func ParseMode(s string) registry.Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "1":
		return registry.ModeAdmin
	default:
		return registry.ModeMulti
	}
}

// ParseIDs parses a comma-separated id list, skipping invalid entries.
func ParseIDs(s string) []int64 {
	ids := []int64{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Warningf("skipping invalid chat id %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ValidToken reports whether s looks like a bot token ("123456:ABC...").
func ValidToken(s string) bool {
	id, secret, ok := strings.Cut(strings.TrimSpace(s), ":")
	return ok && id != "" && secret != ""
}
