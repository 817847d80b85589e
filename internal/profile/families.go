package profile

import (
	"strings"
	"time"
)

// Table is an ordered list of families. Classify walks it top to bottom, so
// more specific patterns must come before generic ones.
type Table struct {
	families []*Family
	generic  *Family
}

// NewTable builds a table; generic answers for ids nothing else matches.
func NewTable(generic *Family, families ...*Family) *Table {
	return &Table{families: families, generic: generic}
}

// Classify returns the family for modelID. It never returns nil.
func (t *Table) Classify(modelID string) *Family {
	id := strings.ToLower(strings.TrimSpace(modelID))
	for _, f := range t.families {
		for _, m := range f.Match {
			if strings.Contains(id, m) {
				return f
			}
		}
	}
	return t.generic
}

// Families returns the table rows in priority order, generic last.
func (t *Table) Families() []*Family {
	out := make([]*Family, 0, len(t.families)+1)
	out = append(out, t.families...)
	return append(out, t.generic)
}

var defaultTable = NewTable(genericImage,
	// video
	endframe,
	veoReference,
	veoFirstLast,
	veo3,
	hailuo,
	minimax,
	kling,
	wan22,
	wan25,
	wanPro,
	luma,
	ovi,
	soraRemix,
	soraProImage,
	soraProText,
	soraImage,
	soraText,
	hunyuan,
	genericVideo,
	// audio
	elevenLabs,
	// image
	seedreamEdit,
	seedream,
	nanoBananaEdit,
	nanoBanana,
	reveRemix,
	fluxPro,
	flux,
	imagen4,
	otherImage,
)

// Default returns the built-in family table.
func Default() *Table {
	return defaultTable
}

// Classify looks modelID up in the built-in table.
func Classify(modelID string) *Family {
	return defaultTable.Classify(modelID)
}

var (
	veoAspect  = &EnumRule{Values: []string{"auto", "16:9", "9:16"}, Default: "16:9"}
	veoRes     = &EnumRule{Values: []string{"720p", "1080p"}, Default: "720p"}
	soraAspect = &EnumRule{Values: []string{"auto", "9:16", "16:9"}, Default: "auto"}
	soraLength = &DurationRule{Tiers: []int{4, 8, 12}, Default: 4, Policy: SnapCeil, Format: FormatNumber}
	sizeAspect = &EnumRule{Values: []string{"auto", "16:9", "9:16", "4:3", "3:4", "1:1"}, Default: "auto"}
	fluxAspect = &EnumRule{Values: []string{"21:9", "16:9", "4:3", "3:2", "1:1", "2:3", "3:4", "9:16", "9:21"}, Default: "16:9"}
)

var endframe = &Family{
	Name:        "endframe",
	Class:       ClassVideo,
	Match:       []string{"endframe"},
	Unsupported: "EndFrame generation is served by POST /v1/endframe",
}

var veoReference = &Family{
	Name:       "veo3.1-reference",
	Class:      ClassVideo,
	Match:      []string{"veo3.1/reference-to-video"},
	Fields:     []string{"prompt", "image_urls", "duration", "resolution", "generate_audio"},
	Duration:   &DurationRule{Tiers: []int{8}, Default: 8, Format: FormatSeconds},
	Resolution: veoRes,
	Defaults:   map[string]any{"generate_audio": true},
	MinImages:  1,
	Timeout:    3 * time.Minute,
}

var veoFirstLast = &Family{
	Name:        "veo3.1-first-last-frame",
	Class:       ClassVideo,
	Match:       []string{"first-last-frame-to-video"},
	Fields:      []string{"prompt", "first_frame_url", "last_frame_url", "duration", "resolution", "aspect_ratio", "generate_audio"},
	Duration:    &DurationRule{Tiers: []int{4, 6, 8}, Default: 8, Policy: SnapNearest, Format: FormatSeconds},
	Resolution:  veoRes,
	AspectRatio: &EnumRule{Values: []string{"auto", "16:9", "9:16"}, Default: "auto"},
	Defaults:    map[string]any{"generate_audio": true},
	Timeout:     3 * time.Minute,
	Shape:       shapeFirstLastFrame,
}

var veo3 = &Family{
	Name:        "veo3",
	Class:       ClassVideo,
	Match:       []string{"veo3"},
	Fields:      []string{"prompt", "image_url", "duration", "resolution", "aspect_ratio", "generate_audio", "negative_prompt", "seed"},
	Duration:    &DurationRule{Tiers: []int{8}, Default: 8, Format: FormatSeconds},
	Resolution:  veoRes,
	AspectRatio: veoAspect,
	Defaults:    map[string]any{"generate_audio": true},
	Timeout:     3 * time.Minute,
}

var hailuo = &Family{
	Name:     "minimax-hailuo-02",
	Class:    ClassVideo,
	Match:    []string{"minimax/hailuo-02"},
	Fields:   []string{"prompt", "image_url", "duration", "resolution", "prompt_optimizer"},
	Duration: &DurationRule{Tiers: []int{6, 10}, Default: 6, Policy: SnapNearest, Format: FormatPlain},
	Resolution: &EnumRule{
		Values:  []string{"512P", "768P"},
		Default: "768P",
		Aliases: map[string]string{"1080p": "768P", "720p": "768P"},
	},
	Timeout: 4 * time.Minute,
}

var minimax = &Family{
	Name:    "minimax",
	Class:   ClassVideo,
	Match:   []string{"minimax"},
	Fields:  []string{"prompt", "image_url", "prompt_optimizer"},
	Timeout: 4 * time.Minute,
}

var kling = &Family{
	Name:        "kling",
	Class:       ClassVideo,
	Match:       []string{"kling-video"},
	Fields:      []string{"prompt", "image_url", "duration", "aspect_ratio", "negative_prompt", "cfg_scale"},
	Duration:    &DurationRule{Tiers: []int{5, 10}, Default: 5, Policy: SnapFloor, Format: FormatPlain},
	AspectRatio: &EnumRule{Values: []string{"16:9", "9:16", "1:1"}, Default: "16:9"},
	Timeout:     5 * time.Minute,
}

var wan22 = &Family{
	Name:  "wan-v2.2-a14b",
	Class: ClassVideo,
	Match: []string{"wan/v2.2-a14b"},
	Fields: []string{
		"prompt", "image_url", "num_frames", "frames_per_second", "resolution", "aspect_ratio",
		"negative_prompt", "seed", "num_inference_steps", "enable_safety_checker",
		"enable_output_safety_checker", "enable_prompt_expansion", "acceleration", "guidance_scale",
		"guidance_scale_2", "shift", "interpolator_model", "num_interpolated_frames",
		"adjust_fps_for_interpolation", "video_quality", "video_write_mode",
	},
	Resolution: &EnumRule{
		Values:  []string{"480p", "580p", "720p"},
		Default: "720p",
		Aliases: map[string]string{"1080p": "720p"},
	},
	AspectRatio: &EnumRule{Values: []string{"auto", "16:9", "9:16", "1:1"}, Default: "auto"},
	Defaults: map[string]any{
		"num_inference_steps":          27,
		"enable_safety_checker":        true,
		"enable_output_safety_checker": false,
		"enable_prompt_expansion":      false,
		"acceleration":                 "regular",
		"guidance_scale":               3.5,
		"guidance_scale_2":             3.5,
		"shift":                        5,
		"interpolator_model":           "film",
		"num_interpolated_frames":      1,
		"adjust_fps_for_interpolation": true,
		"video_quality":                "high",
		"video_write_mode":             "balanced",
		"negative_prompt":              "",
	},
	Timeout: 6 * time.Minute,
	Shape:   shapeFrameCount,
}

var wan25 = &Family{
	Name:       "wan-25-preview",
	Class:      ClassVideo,
	Match:      []string{"wan-25-preview"},
	Fields:     []string{"prompt", "image_url", "duration", "resolution", "negative_prompt", "enable_prompt_expansion", "seed"},
	Duration:   &DurationRule{Tiers: []int{5, 10}, Default: 5, Policy: SnapFloor, Format: FormatPlain},
	Resolution: &EnumRule{Values: []string{"480p", "720p", "1080p"}, Default: "1080p"},
	Defaults:   map[string]any{"enable_prompt_expansion": true},
	Timeout:    4 * time.Minute,
	Shape:      shapeCappedNegativePrompt,
}

var wanPro = &Family{
	Name:   "wan-pro",
	Class:  ClassVideo,
	Match:  []string{"wan-pro"},
	Fields: []string{"prompt", "image_url", "seed", "enable_safety_checker"},
	Slow:   true,
}

var luma = &Family{
	Name:       "luma-ray-2",
	Class:      ClassVideo,
	Match:      []string{"luma-dream-machine"},
	Fields:     []string{"prompt", "image_url", "duration", "resolution", "aspect_ratio", "loop"},
	Duration:   &DurationRule{Tiers: []int{5, 9}, Default: 5, Policy: SnapFloor, Format: FormatSeconds},
	Resolution: &EnumRule{Values: []string{"540p", "720p", "1080p"}, Default: "540p"},
	AspectRatio: &EnumRule{
		Values:  []string{"16:9", "9:16", "4:3", "3:4", "21:9", "9:21"},
		Default: "16:9",
		Aliases: map[string]string{"auto": "16:9"},
	},
	Defaults: map[string]any{"loop": false},
	Timeout:  5 * time.Minute,
}

var ovi = &Family{
	Name:   "ovi",
	Class:  ClassVideo,
	Match:  []string{"/ovi"},
	Fields: []string{"prompt", "image_url", "resolution", "negative_prompt", "num_inference_steps", "seed"},
	Resolution: &EnumRule{
		Values:  []string{"512x992", "992x512", "960x512", "512x960", "720x720", "448x1120", "1120x448"},
		Default: "992x512",
		Aliases: map[string]string{"1080p": "992x512", "720p": "720x720"},
	},
	Timeout: 6 * time.Minute,
}

var soraRemix = &Family{
	Name:    "sora-2-remix",
	Class:   ClassVideo,
	Match:   []string{"sora-2/video-to-video/remix"},
	Fields:  []string{"prompt", "video_id"},
	Timeout: 5 * time.Minute,
	Shape:   shapeRemix,
}

var soraProImage = &Family{
	Name:        "sora-2-pro-image-to-video",
	Class:       ClassVideo,
	Match:       []string{"sora-2/image-to-video/pro"},
	Fields:      []string{"prompt", "image_url", "resolution", "aspect_ratio", "duration"},
	Duration:    soraLength,
	Resolution:  &EnumRule{Values: []string{"auto", "720p", "1080p"}, Default: "auto"},
	AspectRatio: soraAspect,
	MinImages:   1,
	Timeout:     5 * time.Minute,
}

var soraProText = &Family{
	Name:        "sora-2-pro-text-to-video",
	Class:       ClassVideo,
	Match:       []string{"sora-2/text-to-video/pro"},
	Fields:      []string{"prompt", "resolution", "aspect_ratio", "duration"},
	Duration:    soraLength,
	Resolution:  &EnumRule{Values: []string{"720p", "1080p"}, Default: "720p"},
	AspectRatio: soraAspect,
	Timeout:     5 * time.Minute,
}

var soraImage = &Family{
	Name:     "sora-2-image-to-video",
	Class:    ClassVideo,
	Match:    []string{"sora-2/image-to-video"},
	Fields:   []string{"prompt", "image_url", "resolution", "aspect_ratio", "duration"},
	Duration: soraLength,
	Resolution: &EnumRule{
		Values:  []string{"auto", "720p"},
		Default: "auto",
		Aliases: map[string]string{"1080p": "720p"},
	},
	AspectRatio: soraAspect,
	MinImages:   1,
	Timeout:     5 * time.Minute,
}

var soraText = &Family{
	Name:        "sora-2-text-to-video",
	Class:       ClassVideo,
	Match:       []string{"sora-2"},
	Fields:      []string{"prompt", "resolution", "aspect_ratio", "duration"},
	Duration:    soraLength,
	Resolution:  &EnumRule{Values: []string{"720p"}, Default: "720p"},
	AspectRatio: soraAspect,
	Timeout:     5 * time.Minute,
}

var hunyuan = &Family{
	Name:        "hunyuan-video",
	Class:       ClassVideo,
	Match:       []string{"hunyuan"},
	Fields:      []string{"prompt", "image_url", "resolution", "aspect_ratio", "seed"},
	Resolution:  &EnumRule{Values: []string{"480p", "580p", "720p"}, Default: "720p"},
	AspectRatio: &EnumRule{Values: []string{"16:9", "9:16"}, Default: "16:9"},
	Timeout:     6 * time.Minute,
}

var genericVideo = &Family{
	Name:       "video",
	Class:      ClassVideo,
	Match:      []string{"video", "kling", "veo", "pixverse", "ltx"},
	Fields:     []string{"prompt", "image_url", "duration", "resolution", "aspect_ratio", "negative_prompt", "seed"},
	Permissive: true,
}

var elevenLabs = &Family{
	Name:  "elevenlabs-tts",
	Class: ClassAudio,
	Match: []string{"elevenlabs"},
	Fields: []string{
		"text", "voice_id", "model_id", "stability", "similarity_boost", "style", "speed",
		"previous_text", "next_text", "language_code",
	},
	Defaults: map[string]any{"model_id": "eleven_turbo_v2"},
	Shape:    shapeSpeech,
}

var seedreamEdit = &Family{
	Name:        "seedream-v4-edit",
	Class:       ClassImage,
	Match:       []string{"seedream/v4/edit"},
	Fields:      []string{"prompt", "image_urls", "image_size", "num_images", "max_images", "enable_safety_checker", "seed"},
	AspectRatio: sizeAspect,
	Defaults:    map[string]any{"num_images": 1, "max_images": 1, "enable_safety_checker": true},
	MinImages:   1,
	MaxImages:   10,
	Shape:       shapeImageSize,
}

var seedream = &Family{
	Name:        "seedream",
	Class:       ClassImage,
	Match:       []string{"seedream"},
	Fields:      []string{"prompt", "image_size", "num_images", "max_images", "enable_safety_checker", "seed"},
	AspectRatio: sizeAspect,
	Defaults:    map[string]any{"num_images": 1, "enable_safety_checker": true},
	Shape:       shapeImageSize,
}

var nanoBananaEdit = &Family{
	Name:        "nano-banana-edit",
	Class:       ClassImage,
	Match:       []string{"nano-banana/edit"},
	Fields:      []string{"prompt", "image_urls", "aspect_ratio", "resolution", "num_images", "output_format"},
	AspectRatio: nanoAspect,
	Resolution:  nanoRes,
	Defaults:    map[string]any{"num_images": 1},
	MinImages:   1,
	Timeout:     3 * time.Minute,
	Fallbacks:   []string{"fal-ai/bytedance/seedream/v4/edit", "fal-ai/flux-pro/v1.1-ultra"},
}

var nanoBanana = &Family{
	Name:        "nano-banana",
	Class:       ClassImage,
	Match:       []string{"nano-banana"},
	Fields:      []string{"prompt", "aspect_ratio", "resolution", "num_images", "output_format"},
	AspectRatio: nanoAspect,
	Resolution:  nanoRes,
	Defaults:    map[string]any{"num_images": 1},
	Timeout:     3 * time.Minute,
}

var (
	nanoAspect = &EnumRule{
		Values:  []string{"21:9", "16:9", "3:2", "4:3", "5:4", "1:1", "4:5", "3:4", "2:3", "9:16"},
		Default: "1:1",
	}
	nanoRes = &EnumRule{Values: []string{"1K", "2K", "4K"}, Default: "1K"}
)

var reveRemix = &Family{
	Name:        "reve-remix",
	Class:       ClassImage,
	Match:       []string{"reve/remix"},
	Fields:      []string{"prompt", "image_urls", "aspect_ratio", "output_format", "sync_mode"},
	AspectRatio: &EnumRule{Values: []string{"16:9", "9:16", "3:2", "2:3", "4:3", "3:4", "1:1"}, Default: "1:1"},
	Defaults:    map[string]any{"output_format": "jpeg", "sync_mode": false},
	MinImages:   1,
	MaxImages:   4,
}

var fluxPro = &Family{
	Name:        "flux-pro",
	Class:       ClassImage,
	Match:       []string{"flux-pro"},
	Fields:      []string{"prompt", "image_url", "aspect_ratio", "seed", "num_images", "output_format", "safety_tolerance", "raw", "enable_safety_checker"},
	AspectRatio: fluxAspect,
	Timeout:     3 * time.Minute,
}

var flux = &Family{
	Name:        "flux",
	Class:       ClassImage,
	Match:       []string{"flux"},
	Fields:      []string{"prompt", "image_url", "aspect_ratio", "seed", "num_images", "num_inference_steps", "guidance_scale", "enable_safety_checker"},
	AspectRatio: fluxAspect,
}

var imagen4 = &Family{
	Name:        "imagen4",
	Class:       ClassImage,
	Match:       []string{"imagen4"},
	Fields:      []string{"prompt", "aspect_ratio", "negative_prompt", "seed", "num_images"},
	AspectRatio: &EnumRule{Values: []string{"1:1", "16:9", "9:16", "3:4", "4:3"}, Default: "1:1"},
	Timeout:     3 * time.Minute,
}

var otherImage = &Family{
	Name:        "image",
	Class:       ClassImage,
	Match:       []string{"imagen", "ideogram", "recraft", "photon", "stable-diffusion", "dreamina", "gemini"},
	Fields:      []string{"prompt", "image_url", "image_urls", "aspect_ratio", "negative_prompt", "seed", "num_images"},
	AspectRatio: &EnumRule{Values: []string{"1:1", "16:9", "9:16", "4:3", "3:4", "3:2", "2:3"}, Default: "1:1"},
}

var genericImage = &Family{
	Name:       "generic",
	Class:      ClassImage,
	Fields:     []string{"prompt", "image_url", "image_urls", "aspect_ratio", "resolution", "duration", "negative_prompt", "seed", "num_images"},
	Permissive: true,
}
