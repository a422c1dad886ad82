package config

// HookConfig defines a per-destination hook invocation entry.
type HookConfig struct {
	Apps       []string          `toml:"apps"`       // destination app names to match (case-insensitive)
	Categories []string          `toml:"categories"` // optional profile categories to match
	Command    string            `toml:"command"`
	Args       []string          `toml:"args"`
	ArgString  string            `toml:"arg_string"` // shell-style alternative to args
	Prefix     string            `toml:"prefix"`
	TimeoutSec float64           `toml:"timeout_sec"`
	Env        map[string]string `toml:"env"`
	RedactPII  bool              `toml:"redact_pii"`
}

// Profile maps a destination app to a formatting category.
type Profile struct {
	App      string `toml:"app"`
	Category string `toml:"category"` // casual, formal, code, default
}
