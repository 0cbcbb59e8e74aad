package cms

import (
	"context"
	"net/url"
	"strings"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/storefront/internal/log"
	"github.com/keithlinneman/storefront/internal/pathutil"
	"github.com/keithlinneman/storefront/internal/xerrors"
)

const (
	DefaultPlaceholderURL = "https://placehold.co/600x400/1f2937/f97616?text=No+Image"
	DefaultPresignTTL     = 15 * time.Minute
)

// Presigner is the part of *s3.PresignClient the resolver needs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type MediaOptions struct {
	// BaseURL relative media paths are joined onto. Required.
	BaseURL string

	// Placeholder is returned for missing images, DefaultPlaceholderURL when empty.
	Placeholder string

	// Bucket and Prefix select media held in a private S3 bucket. Objects whose
	// key starts with Prefix are served through presigned URLs. Presigning is
	// off when Bucket or Presigner is unset.
	Bucket     string
	Prefix     string
	PresignTTL time.Duration
	Presigner  Presigner

	Logger log.Logger
}

// MediaResolver turns media references into URLs a browser can load.
type MediaResolver struct {
	base        *url.URL
	placeholder string
	bucket      string
	prefix      string
	ttl         time.Duration
	presigner   Presigner
	logger      log.Logger
}

func NewMediaResolver(opts MediaOptions) (*MediaResolver, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse media base url %q", opts.BaseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, xerrors.Newf("media base url must be absolute (got %q)", opts.BaseURL)
	}
	if opts.Placeholder == "" {
		opts.Placeholder = DefaultPlaceholderURL
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = DefaultPresignTTL
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &MediaResolver{
		base:        u,
		placeholder: opts.Placeholder,
		bucket:      opts.Bucket,
		prefix:      strings.TrimPrefix(opts.Prefix, "/"),
		ttl:         opts.PresignTTL,
		presigner:   opts.Presigner,
		logger:      opts.Logger,
	}, nil
}

// Placeholder returns the URL used for missing images.
func (m *MediaResolver) Placeholder() string { return m.placeholder }

// URL resolves img. A nil or empty image resolves to the placeholder, absolute
// URLs pass through unless they point into the private bucket, and relative
// paths are joined onto the CMS base URL. A relative path with dot segments
// resolves to the placeholder since it could climb out of the media root.
func (m *MediaResolver) URL(ctx context.Context, img *Image) string {
	if img == nil || strings.TrimSpace(img.URL) == "" {
		return m.placeholder
	}
	raw := strings.TrimSpace(img.URL)

	if key, ok := m.objectKey(raw); ok {
		signed, err := m.presign(ctx, key)
		if err == nil {
			return signed
		}
		m.logger.Warn(ctx, "presign media url failed, serving unsigned", "key", key, "error", err.Error())
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "//") {
		return raw
	}
	if pathutil.HasDotSegments(raw) {
		m.logger.Warn(ctx, "media path has dot segments, serving placeholder", "path", raw)
		return m.placeholder
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return m.base.String() + raw
}

// objectKey reports the S3 key for a media URL held in the private bucket.
func (m *MediaResolver) objectKey(raw string) (string, bool) {
	if m.bucket == "" || m.presigner == nil {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	// virtual-hosted style: <bucket>.s3.<region>.amazonaws.com/<key>
	if u.Host != "" && !strings.HasPrefix(u.Host, m.bucket+".") {
		return "", false
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" || !strings.HasPrefix(key, m.prefix) || pathutil.HasDotSegments(key) {
		return "", false
	}
	return key, true
}

func (m *MediaResolver) presign(ctx context.Context, key string) (string, error) {
	req, err := m.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(m.ttl))
	if err != nil {
		return "", xerrors.Wrapf(err, "presign s3://%s/%s", m.bucket, key)
	}
	return req.URL, nil
}

// ResolveItem rewrites every image URL on it in place. An item without a cover
// gets the placeholder, flagged Missing.
func (m *MediaResolver) ResolveItem(ctx context.Context, it *Item) {
	if it.Cover == nil || strings.TrimSpace(it.Cover.URL) == "" {
		it.Cover = &Image{URL: m.placeholder, Alt: it.Title, Missing: true}
	} else {
		it.Cover.URL = m.URL(ctx, it.Cover)
	}
	for i := range it.Gallery {
		it.Gallery[i].URL = m.URL(ctx, &it.Gallery[i])
	}
}

// ResolveItems applies ResolveItem to every element of items.
func (m *MediaResolver) ResolveItems(ctx context.Context, items []Item) {
	for i := range items {
		m.ResolveItem(ctx, &items[i])
	}
}
