// Package prompt cleans prompts before dispatch and flags the ones providers
// are likely to reject. Nothing here blocks a request; the only hard limit is
// the per-model length ceiling, which callers enforce.
package prompt

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MediaType selects the cleanup rules applied to a prompt.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaChat  MediaType = "chat"
)

// Result is the outcome of Optimize.
type Result struct {
	Prompt         string   `json:"prompt"`
	Original       string   `json:"original"`
	Warnings       []string `json:"warnings,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
	LikelyRejected bool     `json:"likely_rejected"`
}

// Changed reports whether the optimized prompt differs from the trimmed input.
func (r Result) Changed() bool {
	return r.Prompt != strings.TrimSpace(r.Original)
}

var (
	ellipsisRun = regexp.MustCompile(`\.{3,}`)
	bangRun     = regexp.MustCompile(`!{2,}`)
	newlineRun  = regexp.MustCompile(`\n{3,}`)
	spaceRun    = regexp.MustCompile(`[ \t]{2,}`)

	qualityKeywords = []string{"detailed", "high quality", "4k", "8k", "hd"}
	motionKeywords  = []string{"moving", "flowing", "animated", "dynamic"}

	riskTerms = []string{"nude", "naked", "nsfw", "explicit", "sexual", "violence", "blood", "gore", "weapon"}

	folder = cases.Lower(language.Und)
)

const (
	videoPromptSoftLimit = 500
	shortImagePrompt     = 10
	shortChatPrompt      = 5
)

// Optimize returns a prompt less likely to trip provider filters together
// with advisory notes. When the prompt carries none of the patterns it
// rewrites, the result is the trimmed input.
func Optimize(raw string, media MediaType, model string) Result {
	res := Result{Original: raw}
	p := strings.TrimSpace(raw)

	if hasInvisible(p) {
		p = strings.TrimSpace(stripInvisible(p))
	}

	switch media {
	case MediaImage:
		p = bangRun.ReplaceAllString(ellipsisRun.ReplaceAllString(p, "..."), "!")
		if utf8.RuneCountInString(p) < shortImagePrompt {
			res.Warnings = append(res.Warnings, "Prompt is quite short. Consider adding more details.")
		}
		if !containsAny(fold(p), qualityKeywords) {
			res.Suggestions = append(res.Suggestions, "Consider adding quality keywords like \"detailed\", \"high quality\", or \"4K\".")
		}
	case MediaVideo:
		p = bangRun.ReplaceAllString(ellipsisRun.ReplaceAllString(p, "..."), "!")
		if !containsAny(fold(p), motionKeywords) {
			res.Suggestions = append(res.Suggestions, "Consider describing motion, e.g. \"moving\", \"flowing\", or \"dynamic\".")
		}
		if utf8.RuneCountInString(p) > videoPromptSoftLimit {
			res.Warnings = append(res.Warnings, "Long video prompts may be partially ignored. Consider focusing on the main action.")
		}
	default:
		p = newlineRun.ReplaceAllString(p, "\n\n")
		if spaceRun.MatchString(p) {
			p = spaceRun.ReplaceAllString(p, " ")
		}
		if utf8.RuneCountInString(p) < shortChatPrompt {
			res.Warnings = append(res.Warnings, "Prompt is very short.")
		}
	}

	if terms := RiskTerms(p); len(terms) > 0 {
		res.LikelyRejected = true
		res.Warnings = append(res.Warnings, "Prompt contains terms that providers often reject: "+strings.Join(terms, ", ")+".")
		res.Suggestions = append(res.Suggestions, SafeAlternatives(p)...)
		if strings.Contains(strings.ToLower(model), "sora-2") {
			res.Warnings = append(res.Warnings, "Sora 2 moderates strictly and has no fallback model; rephrase before submitting.")
		}
	}

	res.Prompt = p
	return res
}

// IsLikelyRejected is a keyword heuristic. It is advisory only.
func IsLikelyRejected(prompt string) bool {
	return len(RiskTerms(prompt)) > 0
}

// RiskTerms lists the risky keywords found in prompt, in table order.
// Matching runs on the NFKC, case-folded form so full-width or styled
// letters do not slip past.
func RiskTerms(prompt string) []string {
	folded := fold(prompt)
	var found []string
	for _, term := range riskTerms {
		if containsWord(folded, term) {
			found = append(found, term)
		}
	}
	return found
}

var saferWords = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\b(violent|violence|gore|gory|blood|bloody)\b`), "dramatic"},
	{regexp.MustCompile(`(?i)\b(nude|naked|sexual|explicit|nsfw)\b`), "person"},
	{regexp.MustCompile(`(?i)\b(weapon|weapons|gun|guns)\b`), "prop"},
}

// SafeAlternatives suggests softer phrasings for a prompt that is likely to
// be rejected. The rewritten prompt, when different, comes first.
func SafeAlternatives(prompt string) []string {
	rewritten := prompt
	for _, w := range saferWords {
		rewritten = w.pattern.ReplaceAllString(rewritten, w.replacement)
	}
	var out []string
	if rewritten != prompt {
		out = append(out, "Try: "+rewritten)
	}
	return append(out,
		"Describe the scene, mood and lighting instead of graphic details.",
		"Use fictional or stylized framing (illustration, animation) for intense subjects.",
		"Avoid real people's names and identifiable likenesses.",
	)
}

var lengthCeilings = []struct {
	match string
	limit int
}{
	{"nano-banana/edit", 2000},
	{"seedream/v4/edit", 2000},
	{"flux-pro", 3000},
	{"imagen4", 3000},
	{"elevenlabs", 5000},
}

// DefaultMaxLength applies to models without their own ceiling.
const DefaultMaxLength = 2500

// MaxLength returns the character ceiling for model.
func MaxLength(model string) int {
	m := strings.ToLower(model)
	for _, c := range lengthCeilings {
		if strings.Contains(m, c.match) {
			return c.limit
		}
	}
	return DefaultMaxLength
}

// Length counts characters the way ceilings are expressed.
func Length(prompt string) int {
	return utf8.RuneCountInString(prompt)
}

func fold(s string) string {
	return folder.String(norm.NFKC.String(s))
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		if boundary(s, start-1, true) && boundary(s, end, false) {
			return true
		}
		i = start + 1
	}
}

func boundary(s string, at int, before bool) bool {
	if at < 0 || at >= len(s) {
		return true
	}
	var r rune
	if before {
		r, _ = utf8.DecodeLastRuneInString(s[:at+1])
	} else {
		r, _ = utf8.DecodeRuneInString(s[at:])
	}
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func isInvisible(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	}
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}

func hasInvisible(s string) bool {
	return strings.IndexFunc(s, isInvisible) >= 0
}

func stripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if isInvisible(r) {
			return -1
		}
		return r
	}, s)
}
