package matcher

import (
	"regexp"
	"strings"
)

// Version and build tokens are bounded by any non-alphanumeric rune rather
// than \b, because "_" is a separator in release names but a word rune to \b.
var (
	separators     = regexp.MustCompile(`[._-]+`)
	whitespace     = regexp.MustCompile(`\s+`)
	bracketed      = regexp.MustCompile(`[\[(]([^\[\]()]*)[\])]`)
	numericOnly    = regexp.MustCompile(`^\s*\d+\s*$`)
	leadingGroup   = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*`)
	trailingGroup  = regexp.MustCompile(`-\s*([A-Za-z0-9_]+)\s*(?:[\[(][^\])]*[\])])?\s*$`)
	versionToken   = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])v(\d+(?:[._]\d+)*[a-z]?)(?:[^\p{L}\p{N}]|$)`)
	buildToken     = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])build[ ._]?(\d+)(?:[^\p{L}\p{N}]|$)`)
	yearToken      = regexp.MustCompile(`\b(?:19(?:7[5-9]|[89]\d)|20[0-3]\d|2040)\b`)
	groupPrefixSep = regexp.MustCompile(`[._\s]`)
)

// tagVocabulary lists release tags that never belong to a title. Patterns run
// against text whose separators were already replaced by spaces.
var tagVocabulary = regexp.MustCompile(`(?i)\b(?:` + strings.Join([]string{
	// resolution and codec
	`480p`, `720p`, `1080p`, `1440p`, `2160p`, `4k`, `x264`, `x265`, `h264`, `h265`, `hevc`,
	// language
	`multi\d*`, `english`, `eng`, `german`, `french`, `spanish`, `italian`, `russian`, `polish`,
	`japanese`, `chinese`, `korean`, `portuguese`,
	// platform
	`pc`, `windows`, `win32`, `win64`, `linux`, `macos`, `mac`, `osx`, `ps4`, `ps5`, `nsw`, `switch`,
	`xbox series`, `xbox`, `x64`, `x86`,
	// store and drm
	`gog`, `steam`, `steamrip`, `epic`, `drm free`, `drmfree`,
	// edition and packaging
	`goty`, `complete edition`, `deluxe edition`, `ultimate edition`, `definitive edition`,
	`gold edition`, `digital deluxe`, `edition`, `deluxe`, `ultimate`, `definitive`,
	`repack`, `proper`, `readnfo`, `iso`, `rip`, `update`, `incl`, `dlcs?`, `crack(?:ed|fix)?`,
}, "|") + `)\b`)

// ReleaseMetadata is what ParseReleaseMetadata extracts from a release name.
type ReleaseMetadata struct {
	BaseTitle string   `json:"base_title"`
	Group     string   `json:"group,omitempty"`
	Version   string   `json:"version,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Platform  string   `json:"platform,omitempty"`
	DRM       string   `json:"drm,omitempty"`
	IsScene   bool     `json:"is_scene"`
}

var nonSceneGroups = map[string]bool{
	"p2p":     true,
	"gls":     true,
	"initial": true,
	"rarbg":   true,
	"crack":   true,
}

type keywordRule struct {
	name    string
	pattern *regexp.Regexp
}

func keyword(name, alternatives string) keywordRule {
	return keywordRule{name: name, pattern: regexp.MustCompile(`\b(?:` + alternatives + `)\b`)}
}

// Checked in order; the first hit wins.
var platformRules = []keywordRule{
	keyword("PS5", `ps5`),
	keyword("PS4", `ps4`),
	keyword("Xbox Series", `xbox series(?: x| s| x s)?|xsx|xbsx`),
	keyword("Xbox", `xbox(?: one| 360)?|xbone|x360`),
	keyword("Switch", `switch|nsw`),
	keyword("PC", `pc|windows|win32|win64`),
	keyword("Linux", `linux`),
	keyword("Mac", `macos|mac|osx`),
}

var drmRules = []keywordRule{
	keyword("GOG", `gog`),
	keyword("Steam", `steam|steamrip`),
	keyword("Epic", `epic|egs`),
	keyword("DRM-Free", `drm free|drmfree`),
}

var languageRules = []keywordRule{
	keyword("Multi", `multi\d*`),
	keyword("English", `english|eng`),
	keyword("German", `german|ger|deu`),
	keyword("French", `french|fre|fra`),
	keyword("Spanish", `spanish|spa|esp`),
	keyword("Italian", `italian|ita`),
	keyword("Russian", `russian|rus`),
	keyword("Polish", `polish|pol`),
	keyword("Portuguese", `portuguese|ptbr`),
	keyword("Japanese", `japanese|jpn|jap`),
	keyword("Chinese", `chinese|chs|cht`),
	keyword("Korean", `korean|kor`),
}

// CleanReleaseName reduces a raw release directory name to the title it most
// likely carries. The step order matters and is pinned by golden tests.
func CleanReleaseName(name string) string {
	s := bracketed.ReplaceAllStringFunc(name, func(seg string) string {
		inner := seg[1 : len(seg)-1]
		if numericOnly.MatchString(inner) || isTagSegment(inner) {
			return " "
		}
		return " " + inner + " "
	})

	s = stripTrailingGroup(s)
	s = versionToken.ReplaceAllString(s, " ")
	s = buildToken.ReplaceAllString(s, " ")
	s = separators.ReplaceAllString(s, " ")
	s = tagVocabulary.ReplaceAllString(s, " ")
	s = yearToken.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// ParseReleaseMetadata extracts group, version, languages, platform and store
// tags from a release name.
func ParseReleaseMetadata(name string) ReleaseMetadata {
	meta := ReleaseMetadata{BaseTitle: CleanReleaseName(name)}

	meta.Group = extractGroup(name)
	meta.IsScene = meta.Group != "" && !nonSceneGroups[strings.ToLower(meta.Group)]

	if m := versionToken.FindStringSubmatch(name); m != nil {
		meta.Version = "v" + strings.ReplaceAll(m[1], "_", ".")
	} else if m := buildToken.FindStringSubmatch(name); m != nil {
		meta.Version = "build." + m[1]
	}

	light := strings.TrimSpace(whitespace.ReplaceAllString(separators.ReplaceAllString(fold(name), " "), " "))
	for _, rule := range languageRules {
		if rule.pattern.MatchString(light) {
			meta.Languages = append(meta.Languages, rule.name)
		}
	}
	meta.Platform = firstMatch(platformRules, light)
	meta.DRM = firstMatch(drmRules, light)
	return meta
}

func firstMatch(rules []keywordRule, s string) string {
	for _, rule := range rules {
		if rule.pattern.MatchString(s) {
			return rule.name
		}
	}
	return ""
}

func isTagSegment(inner string) bool {
	spaced := separators.ReplaceAllString(inner, " ")
	return tagVocabulary.MatchString(spaced) || versionToken.MatchString(inner) || buildToken.MatchString(inner)
}

func extractGroup(name string) string {
	if loc := trailingGroupIndex(name); loc != nil {
		return name[loc[2]:loc[3]]
	}
	if m := leadingGroup.FindStringSubmatch(name); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func stripTrailingGroup(s string) string {
	if loc := trailingGroupIndex(s); loc != nil {
		return s[:loc[0]]
	}
	return s
}

// trailingGroupIndex finds a "-GROUP" suffix. Hyphenated titles such as
// "Half-Life" are left alone unless the part before the dash already looks
// like a dotted or spaced release name, or the group is upper case.
func trailingGroupIndex(s string) []int {
	loc := trailingGroup.FindStringSubmatchIndex(s)
	if loc == nil {
		return nil
	}
	prefix := s[:loc[0]]
	group := s[loc[2]:loc[3]]
	if strings.TrimSpace(prefix) == "" {
		return nil
	}
	if groupPrefixSep.MatchString(strings.TrimSpace(prefix)) || group == strings.ToUpper(group) {
		return loc
	}
	return nil
}
