package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mediagen/internal/infra"
)

const defaultInlineMaxBytes = 2 << 20

// ImageOptions configures reference image preparation.
type ImageOptions struct {
	// Inline fetches http(s) images and embeds them as data URIs.
	Inline     bool
	MaxBytes   int64
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// ImagePreparer turns reference images into values the provider accepts.
type ImagePreparer struct {
	inline   bool
	maxBytes int64
	client   *http.Client
	logger   zerolog.Logger
}

// NewImagePreparer constructs a preparer. The zero options pass URLs through.
func NewImagePreparer(opts ImageOptions) *ImagePreparer {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultInlineMaxBytes
	}
	return &ImagePreparer{
		inline:   opts.Inline,
		maxBytes: maxBytes,
		client:   client,
		logger:   infra.LoggerOrDiscard(opts.Logger),
	}
}

// Prepare processes refs concurrently and returns them in input order.
func (p *ImagePreparer) Prepare(ctx context.Context, refs []string) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]string, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ref := range refs {
		g.Go(func() error {
			v, err := p.prepareOne(gctx, strings.TrimSpace(ref))
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *ImagePreparer) prepareOne(ctx context.Context, ref string) (string, error) {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:image/"):
		return ref, nil
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if !p.inline {
			return ref, nil
		}
		inlined, err := p.fetch(ctx, ref)
		if err != nil {
			p.logger.Debug().Err(err).Str("url", ref).Msg("images: keeping remote url")
			return ref, nil
		}
		return inlined, nil
	}
	e := newError(KindValidation, "Unsupported image reference", "Images must be http(s) URLs or data:image URIs.")
	e.Details = fmt.Sprintf("Got: %s", truncate(ref, 64))
	return "", e
}

func (p *ImagePreparer) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.ContentLength > p.maxBytes {
		return "", fmt.Errorf("image is %d bytes", resp.ContentLength)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(body)) > p.maxBytes {
		return "", fmt.Errorf("image exceeds %d bytes", p.maxBytes)
	}

	contentType := "image/jpeg"
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mt != "" {
		contentType = mt
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("content type %s is not an image", contentType)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(body), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
