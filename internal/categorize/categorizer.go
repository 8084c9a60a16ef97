// Package categorize maps application identifiers to report categories.
package categorize

import (
	"path"
	"slices"
	"strings"

	"github.com/ashureev/dayreview/internal/domain"
)

// DefaultMapping is the built-in app table. Entries are normalized at
// construction, so "Code.exe" and "code" are the same key.
var DefaultMapping = map[domain.Category][]string{
	domain.CategoryWork: {
		"code", "code - insiders", "devenv", "pycharm64", "idea64", "goland64", "webstorm64",
		"sublime_text", "notepad++", "vim", "nvim", "gvim", "atom", "zed",
		"winword", "excel", "powerpnt", "wps", "outlook", "onenote",
		"cmd", "powershell", "pwsh", "windowsterminal", "wt", "alacritty", "wezterm-gui", "iterm2", "terminal",
		"postman", "insomnia", "datagrip64", "navicat", "dbeaver",
		"figma", "sketch", "photoshop", "illustrator",
		"notion", "obsidian", "typora",
		"github desktop", "sourcetree", "gitkraken",
		"slack", "teams", "ms-teams", "zoom", "wemeet", "dingtalk", "feishu", "lark",
	},
	domain.CategoryGame: {
		"steam", "steamwebhelper", "epicgameslauncher", "origin", "eadesktop", "upc", "battle.net",
		"leagueclient", "league of legends", "genshinimpact", "yuanshen", "starrail",
		"minecraft", "javaw", "cs2", "csgo", "valorant", "valorant-win64-shipping",
		"r5apex", "tslgame", "dota2", "overwatch", "eldenring",
	},
	domain.CategoryEntertainment: {
		"bilibili", "netflix", "iqiyi", "youku", "tencentvideo", "douyin", "tiktok",
		"spotify", "cloudmusic", "qqmusic", "kugou", "kwmusic", "music",
		"potplayer", "potplayermini64", "vlc", "mpv", "kmplayer", "iina", "twitch",
	},
	domain.CategorySocial: {
		"wechat", "weixin", "qq", "tim", "discord", "telegram", "signal",
		"whatsapp", "messenger", "weibo", "xiaohongshu", "zhihu",
	},
	domain.CategoryBrowse: {
		"chrome", "firefox", "msedge", "safari", "opera", "brave", "vivaldi", "arc",
	},
}

var knownExtensions = map[string]bool{
	".exe":      true,
	".app":      true,
	".lnk":      true,
	".desktop":  true,
	".appimage": true,
}

// Normalize collapses equivalent executable names: it keeps the base name of
// a path, lower-cases it and strips a known executable extension.
func Normalize(appID string) string {
	s := strings.TrimSpace(strings.ReplaceAll(appID, `\`, "/"))
	s = strings.ToLower(path.Base(s))
	if s == "." || s == "/" {
		return ""
	}
	if ext := path.Ext(s); knownExtensions[ext] {
		s = strings.TrimSuffix(s, ext)
	}
	return strings.TrimSpace(s)
}

// Categorizer is an immutable app -> category lookup table. It is safe for
// concurrent use.
type Categorizer struct {
	table map[string]domain.Category
}

// New builds a Categorizer from DefaultMapping overlaid with overrides. An
// override moves an app into the override category. Unknown category names in
// overrides are accepted as new categories.
func New(overrides map[string][]string) *Categorizer {
	table := make(map[string]domain.Category)
	add := func(cat domain.Category, apps []string, replace bool) {
		for _, app := range apps {
			key := Normalize(app)
			if key == "" {
				continue
			}
			if _, exists := table[key]; exists && !replace {
				continue
			}
			table[key] = cat
		}
	}

	// Walk categories in priority order so the first claim wins when the
	// built-in table lists an app twice.
	for _, cat := range domain.Categories {
		add(cat, DefaultMapping[cat], false)
	}

	// Overrides win over defaults; among themselves priority order applies.
	overrideTable := make(map[string]domain.Category)
	for _, name := range orderedCategories(overrides) {
		cat := domain.Category(strings.ToLower(strings.TrimSpace(name)))
		for _, app := range overrides[name] {
			key := Normalize(app)
			if key == "" {
				continue
			}
			if _, claimed := overrideTable[key]; !claimed {
				overrideTable[key] = cat
			}
		}
	}
	for key, cat := range overrideTable {
		table[key] = cat
	}

	return &Categorizer{table: table}
}

// Categorize returns the category for appID, or CategoryOther.
func (c *Categorizer) Categorize(appID string) domain.Category {
	if cat, ok := c.table[Normalize(appID)]; ok {
		return cat
	}
	return domain.CategoryOther
}

// Len returns the number of distinct normalized apps in the table.
func (c *Categorizer) Len() int {
	return len(c.table)
}

// orderedCategories returns the override keys with known categories first,
// in priority order, followed by custom ones sorted by name.
func orderedCategories(overrides map[string][]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, cat := range domain.Categories {
		if _, ok := overrides[string(cat)]; ok {
			out = append(out, string(cat))
			seen[string(cat)] = true
		}
	}
	var custom []string
	for name := range overrides {
		if !seen[name] {
			custom = append(custom, name)
		}
	}
	slices.Sort(custom)
	return append(out, custom...)
}
