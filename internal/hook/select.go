package hook

import (
	"strings"

	"flowstate/internal/config"
)

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// hookMatches reports whether a hook entry targets the destination. Entries
// with neither apps nor categories match everything.
func hookMatches(app, category string, hk *config.HookConfig) bool {
	if len(hk.Apps) == 0 && len(hk.Categories) == 0 {
		return true
	}
	return containsFold(hk.Apps, app) || containsFold(hk.Categories, category)
}

// SelectHookConfig returns the first [[hooks]] entry matching app or
// category. Without a match it falls back to the single [hook] table, and
// returns nil when that has no command either.
func SelectHookConfig(cfg *config.Config, app, category string) *config.HookConfig {
	for i := range cfg.Hooks {
		hk := &cfg.Hooks[i]
		if hookMatches(app, category, hk) {
			return hk
		}
	}
	if strings.TrimSpace(cfg.Hook.Command) == "" {
		return nil
	}
	return &config.HookConfig{
		Command:    cfg.Hook.Command,
		Args:       cfg.Hook.Args,
		Prefix:     cfg.Hook.Prefix,
		TimeoutSec: cfg.Hook.TimeoutSec,
		Env:        cfg.Hook.Env,
		RedactPII:  cfg.Hook.RedactPII,
	}
}
