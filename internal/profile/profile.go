// Package profile holds the per-family request rules for provider models:
// which ids belong to a family, the values each family accepts for duration,
// resolution and aspect ratio, and the function that shapes a generic request
// into the family's payload.
package profile

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Class groups families by output media. Timeouts and fallback policy are
// keyed on it.
type Class string

const (
	ClassImage Class = "image"
	ClassVideo Class = "video"
	ClassAudio Class = "audio"
)

// Policy decides how an out-of-set numeric value lands on a tier.
type Policy int

const (
	// SnapDefault maps anything outside the set to the default.
	SnapDefault Policy = iota
	// SnapNearest picks the closest tier; ties go to the lower tier.
	SnapNearest
	// SnapFloor picks the largest tier not above the request, or the smallest tier.
	SnapFloor
	// SnapCeil picks the smallest tier not below the request, or the largest tier.
	SnapCeil
)

// DurationFormat is how a duration tier is written into the payload.
type DurationFormat int

const (
	// FormatPlain renders "6".
	FormatPlain DurationFormat = iota
	// FormatSeconds renders "6s".
	FormatSeconds
	// FormatNumber renders 6 as a JSON number.
	FormatNumber
)

// DurationRule enumerates the durations (in seconds) a family accepts.
type DurationRule struct {
	Tiers   []int
	Default int
	Policy  Policy
	Format  DurationFormat
}

// EnumRule enumerates the string values a family accepts for one field.
// Aliases are consulted, case-insensitively, before falling back to Default.
type EnumRule struct {
	Values  []string
	Default string
	Aliases map[string]string
}

// Input is the family-agnostic view of a request the shaping functions work on.
type Input struct {
	Model          string
	Prompt         string
	NegativePrompt string
	Images         []string
	AspectRatio    string
	Resolution     string
	Duration       string
	Seed           *int64
	VideoID        string
	Voice          string
	FirstFrameURL  string
	LastFrameURL   string
	Extra          map[string]any
}

// Payload is the provider-ready request body. encoding/json writes map keys
// in sorted order, so equal payloads always serialize to equal bytes.
type Payload map[string]any

// Keys returns the payload keys in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (p Payload) hasAny(keys ...string) bool {
	for _, k := range keys {
		if _, ok := p[k]; ok {
			return true
		}
	}
	return false
}

// ShapeFunc applies a family's structural transforms after the common fields
// have been filled in. It may add, rename or delete keys.
type ShapeFunc func(in Input, p Payload) error

// Family is one row of the classification table.
type Family struct {
	Name  string
	Class Class
	// Match lists lower-case substrings; any of them selects the family.
	Match  []string
	Fields []string

	Duration    *DurationRule
	Resolution  *EnumRule
	AspectRatio *EnumRule
	Defaults    map[string]any

	MinImages int
	MaxImages int

	// Timeout overrides the class ceiling when non-zero.
	Timeout time.Duration
	// Slow families get the extended video ceiling.
	Slow bool
	// Fallbacks is the ordered chain tried after a content rejection.
	Fallbacks []string
	// Unsupported, when set, is the reason ids of this family are refused.
	Unsupported string
	// Permissive families pass duration, resolution and aspect ratio through
	// untouched because nothing is known about their valid values.
	Permissive bool

	Shape ShapeFunc
}

// FieldError reports a request that cannot be shaped for a family.
type FieldError struct {
	Field   string
	Missing bool
	Reason  string
}

func (e *FieldError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Missing {
		return fmt.Sprintf("missing required field: %s", e.Field)
	}
	return fmt.Sprintf("invalid field: %s", e.Field)
}

// Accepts reports whether key is part of the family's payload schema.
func (f *Family) Accepts(key string) bool {
	return slices.Contains(f.Fields, key)
}

// RequiresImage reports whether model, a member of f, cannot run without a
// reference image.
func (f *Family) RequiresImage(model string) bool {
	if f.MinImages > 0 {
		return true
	}
	m := strings.ToLower(model)
	return strings.Contains(m, "image-to-video") ||
		strings.Contains(m, "reference-to-video") ||
		strings.HasSuffix(m, "/edit")
}

// Build shapes in into the family's payload. The result only ever carries
// keys listed in Fields.
func (f *Family) Build(in Input) (Payload, error) {
	if f.Unsupported != "" {
		return nil, &FieldError{Field: "model", Reason: f.Unsupported}
	}
	if f.RequiresImage(in.Model) && len(in.Images) == 0 {
		return nil, &FieldError{Field: "image_url", Missing: true, Reason: fmt.Sprintf("model %s requires an image input", in.Model)}
	}
	if f.MinImages > 1 && len(in.Images) < f.MinImages {
		return nil, &FieldError{Field: "image_urls", Reason: fmt.Sprintf("model %s requires at least %d images", in.Model, f.MinImages)}
	}

	p := Payload{}
	if in.Prompt != "" {
		p["prompt"] = in.Prompt
	}
	if images := f.limitImages(in.Images); len(images) > 0 && !textOnly(in.Model) {
		p["image_urls"] = images
		p["image_url"] = images[0]
	}
	if v, ok := NormalizeDuration(f, in.Duration); ok {
		p["duration"] = v
	}
	if v, ok := NormalizeResolution(f, in.Resolution); ok {
		p["resolution"] = v
	}
	if v, ok := NormalizeAspectRatio(f, in.AspectRatio); ok {
		p["aspect_ratio"] = v
	}
	if in.NegativePrompt != "" {
		p["negative_prompt"] = in.NegativePrompt
	}
	if in.Seed != nil {
		p["seed"] = *in.Seed
	}
	for k, v := range in.Extra {
		if _, set := p[k]; !set {
			p[k] = v
		}
	}
	for k, v := range f.Defaults {
		if _, set := p[k]; !set {
			p[k] = v
		}
	}
	if f.Shape != nil {
		if err := f.Shape(in, p); err != nil {
			return nil, err
		}
	}

	out := make(Payload, len(p))
	for k, v := range p {
		if f.Accepts(k) {
			out[k] = v
		}
	}
	if !out.hasAny("prompt", "text", "image_url", "image_urls", "first_frame_url", "video_id") {
		return nil, &FieldError{Field: "prompt", Missing: true, Reason: "Missing required field: prompt or image_url"}
	}
	return out, nil
}

func (f *Family) limitImages(images []string) []string {
	if len(images) == 0 {
		return nil
	}
	n := len(images)
	if f.MaxImages > 0 && n > f.MaxImages {
		n = f.MaxImages
	}
	return slices.Clone(images[:n])
}

func textOnly(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "text-to-video") || strings.Contains(m, "text-to-image")
}

// NormalizeDuration returns the family's value for requested. The second
// result is false when the family takes no duration field.
func NormalizeDuration(f *Family, requested string) (any, bool) {
	requested = strings.TrimSpace(requested)
	rule := f.Duration
	if rule == nil {
		if f.Permissive && requested != "" {
			return requested, true
		}
		return nil, false
	}
	tier := rule.Default
	if secs, ok := ParseSeconds(requested); ok {
		tier = rule.snap(secs)
	}
	return rule.render(tier), true
}

// NormalizeResolution returns the family's value for requested.
func NormalizeResolution(f *Family, requested string) (string, bool) {
	return normalizeEnum(f, f.Resolution, requested)
}

// NormalizeAspectRatio returns the family's value for requested.
func NormalizeAspectRatio(f *Family, requested string) (string, bool) {
	return normalizeEnum(f, f.AspectRatio, requested)
}

func normalizeEnum(f *Family, rule *EnumRule, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if rule == nil {
		if f.Permissive && requested != "" {
			return requested, true
		}
		return "", false
	}
	return rule.normalize(requested), true
}

// ValidDurations lists every value NormalizeDuration can emit for f.
func ValidDurations(f *Family) []any {
	if f.Duration == nil {
		return nil
	}
	out := make([]any, 0, len(f.Duration.Tiers))
	for _, t := range f.Duration.Tiers {
		out = append(out, f.Duration.render(t))
	}
	return out
}

func (r *EnumRule) normalize(requested string) string {
	if requested == "" {
		return r.Default
	}
	for _, v := range r.Values {
		if strings.EqualFold(v, requested) {
			return v
		}
	}
	if mapped, ok := r.Aliases[strings.ToLower(requested)]; ok {
		return mapped
	}
	return r.Default
}

func (r *DurationRule) snap(secs float64) int {
	for _, t := range r.Tiers {
		if float64(t) == secs {
			return t
		}
	}
	if len(r.Tiers) == 0 {
		return r.Default
	}
	switch r.Policy {
	case SnapNearest:
		best := r.Tiers[0]
		for _, t := range r.Tiers[1:] {
			if math.Abs(float64(t)-secs) < math.Abs(float64(best)-secs) {
				best = t
			}
		}
		return best
	case SnapFloor:
		best := r.Tiers[0]
		for _, t := range r.Tiers {
			if float64(t) <= secs {
				best = t
			}
		}
		return best
	case SnapCeil:
		for _, t := range r.Tiers {
			if float64(t) >= secs {
				return t
			}
		}
		return r.Tiers[len(r.Tiers)-1]
	default:
		return r.Default
	}
}

func (r *DurationRule) render(tier int) any {
	switch r.Format {
	case FormatSeconds:
		return strconv.Itoa(tier) + "s"
	case FormatNumber:
		return tier
	default:
		return strconv.Itoa(tier)
	}
}

// ParseSeconds reads "6", "6s", "6 sec" or "6.5" as seconds.
func ParseSeconds(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, suffix := range []string{"seconds", "second", "secs", "sec", "s"} {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
