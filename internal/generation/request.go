package generation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is the model-agnostic generation request accepted at the edge.
type Request struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	ImageURLs      []string `json:"image_urls,omitempty"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	Resolution     string   `json:"resolution,omitempty"`
	Duration       Hint     `json:"duration,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	VideoID        string   `json:"video_id,omitempty"`
	Voice          string   `json:"voice,omitempty"`
	FirstFrameURL  string   `json:"first_frame_url,omitempty"`
	LastFrameURL   string   `json:"last_frame_url,omitempty"`

	// Extra holds fields the request model does not name. They reach the
	// provider only when the target family's schema lists them.
	Extra map[string]any `json:"-"`
}

var knownRequestFields = map[string]struct{}{
	"model": {}, "prompt": {}, "image_url": {}, "image_urls": {}, "aspect_ratio": {},
	"resolution": {}, "duration": {}, "negative_prompt": {}, "seed": {}, "video_id": {},
	"voice": {}, "first_frame_url": {}, "last_frame_url": {},
}

// UnmarshalJSON decodes the named fields and collects the rest into Extra.
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if _, known := knownRequestFields[k]; known {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		var val any
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = val
	}

	*r = Request(p)
	return nil
}

// Images returns the reference images in request order without duplicates.
func (r Request) Images() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	add(r.ImageURL)
	for _, u := range r.ImageURLs {
		add(u)
	}
	return out
}

// HasImage reports whether any image reference is present.
func (r Request) HasImage() bool {
	return len(r.Images()) > 0 || strings.TrimSpace(r.FirstFrameURL) != "" || strings.TrimSpace(r.LastFrameURL) != ""
}

// Hint is a loosely typed generation hint: JSON numbers and strings both
// decode into it.
type Hint string

// UnmarshalJSON accepts 6, 6.5, "6" and "6s".
func (h *Hint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*h = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = Hint(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("hint must be a number or a string")
	}
	*h = Hint(n.String())
	return nil
}
