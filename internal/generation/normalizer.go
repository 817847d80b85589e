package generation

import (
	"context"
	"errors"
	"strings"

	"mediagen/internal/profile"
)

// Normalizer turns a Request into the payload a specific model accepts.
type Normalizer struct {
	table  *profile.Table
	images *ImagePreparer
}

// NewNormalizer builds a normalizer over table. A nil preparer passes image
// URLs through unchanged.
func NewNormalizer(table *profile.Table, images *ImagePreparer) *Normalizer {
	if table == nil {
		table = profile.Default()
	}
	if images == nil {
		images = NewImagePreparer(ImageOptions{})
	}
	return &Normalizer{table: table, images: images}
}

// Table returns the family table the normalizer classifies against.
func (n *Normalizer) Table() *profile.Table {
	return n.table
}

// Normalize shapes req for model. The request's own Model field is ignored so
// the same request can be normalized for fallback candidates. Equal inputs
// produce equal payloads.
func (n *Normalizer) Normalize(ctx context.Context, req Request, model string) (profile.Payload, *profile.Family, error) {
	model = strings.TrimSpace(model)
	family := n.table.Classify(model)

	refs := req.Images()
	frames := []string{strings.TrimSpace(req.FirstFrameURL), strings.TrimSpace(req.LastFrameURL)}
	all := append(append([]string(nil), refs...), nonEmpty(frames)...)
	prepared, err := n.images.Prepare(ctx, all)
	if err != nil {
		return nil, family, err
	}
	images := prepared[:len(refs)]
	rest := prepared[len(refs):]
	for i := range frames {
		if frames[i] != "" {
			frames[i], rest = rest[0], rest[1:]
		}
	}

	in := profile.Input{
		Model:          model,
		Prompt:         strings.TrimSpace(req.Prompt),
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		Images:         images,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
		Duration:       string(req.Duration),
		Seed:           req.Seed,
		VideoID:        strings.TrimSpace(req.VideoID),
		Voice:          strings.TrimSpace(req.Voice),
		FirstFrameURL:  frames[0],
		LastFrameURL:   frames[1],
		Extra:          req.Extra,
	}
	payload, err := family.Build(in)
	if err != nil {
		return nil, family, fieldError(err, model)
	}
	return payload, family, nil
}

func fieldError(err error, model string) error {
	var fe *profile.FieldError
	if !errors.As(err, &fe) {
		return err
	}
	var e *Error
	if fe.Missing {
		e = newError(KindMissingRequiredField, "Missing required field: "+fe.Field, fe.Error())
	} else {
		e = newError(KindValidation, "", fe.Error())
	}
	e.Model = model
	e.Err = err
	return e
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
