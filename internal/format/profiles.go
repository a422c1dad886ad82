package format

import (
	"fmt"
	"strings"

	"flowstate/internal/config"
)

// Category selects a formatting style.
type Category string

const (
	Casual  Category = "casual"
	Formal  Category = "formal"
	Code    Category = "code"
	Default Category = "default"
)

// ParseCategory accepts any case; unknown names are an error.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case Casual, Formal, Code, Default:
		return c, nil
	case "":
		return Default, nil
	default:
		return "", fmt.Errorf("unknown category %q (want casual, formal, code or default)", s)
	}
}

// Profile maps an application (bundle id or display name) to a category.
type Profile struct {
	ID       string
	Name     string
	Category Category
}

// DefaultProfiles is the stock app mapping.
var DefaultProfiles = []Profile{
	{"com.apple.MobileSMS", "Messages", Casual},
	{"net.whatsapp.WhatsApp", "WhatsApp", Casual},
	{"org.telegram.desktop", "Telegram", Casual},
	{"com.hnc.Discord", "Discord", Casual},
	{"com.tinyspeck.slackmacgap", "Slack", Casual},
	{"com.facebook.Messenger", "Messenger", Casual},

	{"com.apple.mail", "Mail", Formal},
	{"com.microsoft.Outlook", "Outlook", Formal},
	{"com.apple.Notes", "Notes", Formal},
	{"com.microsoft.Word", "Word", Formal},
	{"com.google.Chrome", "Chrome", Default},

	{"com.openai.chat", "ChatGPT", Code},
	{"com.anthropic.claudefordesktop", "Claude", Code},
	{"com.todesktop.230313mzl4w4u92", "Cursor", Code},
	{"com.microsoft.VSCode", "VS Code", Code},
	{"com.apple.dt.Xcode", "Xcode", Code},
	{"com.apple.Terminal", "Terminal", Code},
}

// Profiles resolves an app to its category. User entries win over defaults.
type Profiles struct {
	list []Profile
}

// NewProfiles merges [[profiles]] from config in front of the defaults.
// Entries with an unknown category are skipped.
func NewProfiles(cfg *config.Config) *Profiles {
	p := &Profiles{}
	for _, up := range cfg.Profiles {
		cat, err := ParseCategory(up.Category)
		if err != nil || strings.TrimSpace(up.App) == "" {
			continue
		}
		p.list = append(p.list, Profile{ID: up.App, Name: up.App, Category: cat})
	}
	p.list = append(p.list, DefaultProfiles...)
	return p
}

// Lookup returns the category for app, matching bundle id or name without
// regard to case. Unknown and empty apps get Default.
func (p *Profiles) Lookup(app string) Category {
	app = strings.TrimSpace(app)
	if app == "" || p == nil {
		return Default
	}
	for _, pr := range p.list {
		if strings.EqualFold(pr.ID, app) || strings.EqualFold(pr.Name, app) {
			return pr.Category
		}
	}
	return Default
}

// List returns the effective mapping.
func (p *Profiles) List() []Profile {
	out := make([]Profile, len(p.list))
	copy(out, p.list)
	return out
}
