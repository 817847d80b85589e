package profile

import (
	"math"
	"regexp"
	"strings"
)

var imageSizeTokens = map[string]string{
	"16:9": "landscape_16_9",
	"9:16": "portrait_16_9",
	"4:3":  "landscape_4_3",
	"3:4":  "portrait_4_3",
	"1:1":  "square_hd",
	"auto": "auto",
}

// ImageSizeTokens lists every image_size value shapeImageSize can emit.
func ImageSizeTokens() []string {
	return []string{"landscape_16_9", "portrait_16_9", "landscape_4_3", "portrait_4_3", "square_hd", "auto"}
}

// shapeImageSize replaces the aspect ratio with the enumerated image_size
// token used by families without free-form ratios.
func shapeImageSize(_ Input, p Payload) error {
	aspect, _ := p["aspect_ratio"].(string)
	token, ok := imageSizeTokens[aspect]
	if !ok {
		token = "auto"
	}
	p["image_size"] = token
	delete(p, "aspect_ratio")
	return nil
}

// shapeFirstLastFrame turns explicit frame urls, or the first and last
// reference image, into the start and end frames of a transition.
func shapeFirstLastFrame(in Input, p Payload) error {
	first, last := in.FirstFrameURL, in.LastFrameURL
	if first == "" && last == "" && len(in.Images) >= 2 {
		first, last = in.Images[0], in.Images[len(in.Images)-1]
	}
	if first == "" || last == "" {
		return &FieldError{
			Field:   "first_frame_url",
			Missing: true,
			Reason:  "first-last-frame-to-video requires first_frame_url and last_frame_url (or at least two image_urls)",
		}
	}
	p["first_frame_url"] = first
	p["last_frame_url"] = last
	return nil
}

const (
	framesPerSecond   = 16
	defaultFrameCount = 81
	minFrameCount     = 17
	maxFrameCount     = 161
)

// FrameCountRange reports the bounds shapeFrameCount clamps to.
func FrameCountRange() (lo, hi int) {
	return minFrameCount, maxFrameCount
}

// shapeFrameCount models time as frames for families that have no duration
// field.
func shapeFrameCount(in Input, p Payload) error {
	frames := defaultFrameCount
	if secs, ok := ParseSeconds(in.Duration); ok {
		frames = int(math.Round(secs*framesPerSecond)) + 1
		frames = max(minFrameCount, min(frames, maxFrameCount))
	}
	p["num_frames"] = frames
	p["frames_per_second"] = framesPerSecond
	delete(p, "duration")
	return nil
}

const (
	negativePromptLimit   = 500
	defaultNegativePrompt = "low resolution, error, worst quality, low quality, defects"
)

func shapeCappedNegativePrompt(in Input, p Payload) error {
	neg := strings.TrimSpace(in.NegativePrompt)
	if neg == "" {
		neg = defaultNegativePrompt
	}
	if r := []rune(neg); len(r) > negativePromptLimit {
		neg = string(r[:negativePromptLimit])
	}
	p["negative_prompt"] = neg
	return nil
}

func shapeRemix(in Input, p Payload) error {
	id := strings.TrimSpace(in.VideoID)
	if id == "" {
		return &FieldError{Field: "video_id", Missing: true, Reason: "sora-2 remix requires video_id from a previous sora-2 generation"}
	}
	p["video_id"] = id
	return nil
}

var voiceIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{20}$`)

var elevenLabsVoices = map[string]string{
	"rachel": "21m00Tcm4TlvDq8ikWAM",
	"domi":   "AZnzlk1XvdvUeBnXmlld",
	"bella":  "EXAVITQu4vr4xnSDxMaL",
	"antoni": "ErXwobaYiN019PkySvjV",
	"elli":   "MF3mGyEYCl7XYWbV9V6O",
	"josh":   "TxGEqnHWrfWFTfGW9XjX",
	"arnold": "VR6AewLTigWG4xSOukaG",
	"adam":   "pNInz6obpgDQGcFmaJgB",
	"sam":    "yoZ06aMxZJJ28mfd3POQ",
}

// VoiceID resolves a voice name or raw id; unknown names get Rachel.
func VoiceID(voice string) string {
	voice = strings.TrimSpace(voice)
	if id, ok := elevenLabsVoices[strings.ToLower(voice)]; ok {
		return id
	}
	if voiceIDPattern.MatchString(voice) {
		return voice
	}
	return elevenLabsVoices["rachel"]
}

// shapeSpeech sends the prompt as the text to speak.
func shapeSpeech(in Input, p Payload) error {
	text := strings.TrimSpace(in.Prompt)
	if text == "" {
		return &FieldError{Field: "text", Missing: true, Reason: "text-to-speech requires a prompt to speak"}
	}
	delete(p, "prompt")
	p["text"] = text
	p["voice_id"] = VoiceID(in.Voice)
	return nil
}
