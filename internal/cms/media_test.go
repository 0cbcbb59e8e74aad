package cms

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePresigner struct {
	err    error
	gotKey string
	gotTTL time.Duration
	calls  int
}

func (p *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	p.calls++
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.gotTTL = opts.Expires
	if in.Key != nil {
		p.gotKey = *in.Key
	}
	if p.err != nil {
		return nil, p.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + *in.Key + "?X-Amz-Signature=abc"}, nil
}

func newResolver(t *testing.T, opts MediaOptions) *MediaResolver {
	t.Helper()
	if opts.BaseURL == "" {
		opts.BaseURL = "http://cms.local:1337/"
	}
	m, err := NewMediaResolver(opts)
	if err != nil {
		t.Fatalf("NewMediaResolver: %v", err)
	}
	return m
}

func TestMediaResolver_URL(t *testing.T) {
	m := newResolver(t, MediaOptions{})
	ctx := context.Background()

	tests := []struct {
		name string
		img  *Image
		want string
	}{
		{"nil image", nil, DefaultPlaceholderURL},
		{"empty url", &Image{URL: "  "}, DefaultPlaceholderURL},
		{"relative", &Image{URL: "/uploads/a.png"}, "http://cms.local:1337/uploads/a.png"},
		{"relative no slash", &Image{URL: "uploads/a.png"}, "http://cms.local:1337/uploads/a.png"},
		{"absolute", &Image{URL: "https://cdn.example/a.png"}, "https://cdn.example/a.png"},
		{"dot segments", &Image{URL: "/uploads/../admin"}, DefaultPlaceholderURL},
		{"encoded dot segments", &Image{URL: "/uploads/%2e%2e/admin"}, DefaultPlaceholderURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.URL(ctx, tt.img); got != tt.want {
				t.Fatalf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMediaResolver_CustomPlaceholder(t *testing.T) {
	m := newResolver(t, MediaOptions{Placeholder: "/static/none.png"})
	if got := m.URL(context.Background(), nil); got != "/static/none.png" {
		t.Fatalf("URL(nil) = %q", got)
	}
}

func TestMediaResolver_Presign(t *testing.T) {
	p := &fakePresigner{}
	m := newResolver(t, MediaOptions{
		Bucket:     "media-bucket",
		Prefix:     "uploads/",
		PresignTTL: 5 * time.Minute,
		Presigner:  p,
	})
	ctx := context.Background()

	got := m.URL(ctx, &Image{URL: "https://media-bucket.s3.us-east-2.amazonaws.com/uploads/a.png"})
	if got != "https://signed.example/uploads/a.png?X-Amz-Signature=abc" {
		t.Fatalf("URL() = %q", got)
	}
	if p.gotKey != "uploads/a.png" || p.gotTTL != 5*time.Minute {
		t.Fatalf("presigned key=%q ttl=%v", p.gotKey, p.gotTTL)
	}

	// other hosts and keys outside the prefix are left alone
	if got := m.URL(ctx, &Image{URL: "https://cdn.example/uploads/a.png"}); got != "https://cdn.example/uploads/a.png" {
		t.Fatalf("foreign host rewritten: %q", got)
	}
	if got := m.URL(ctx, &Image{URL: "https://media-bucket.s3.amazonaws.com/private/a.png"}); got != "https://media-bucket.s3.amazonaws.com/private/a.png" {
		t.Fatalf("key outside prefix presigned: %q", got)
	}
	if got := m.URL(ctx, &Image{URL: "https://media-bucket.s3.amazonaws.com/uploads/../private/a.png"}); strings.Contains(got, "signed.example") {
		t.Fatalf("key with dot segments presigned: %q", got)
	}
	if p.calls != 1 {
		t.Fatalf("presign calls = %d, want 1", p.calls)
	}
}

func TestMediaResolver_PresignFailureFallsBack(t *testing.T) {
	p := &fakePresigner{err: errors.New("no credentials")}
	m := newResolver(t, MediaOptions{Bucket: "media-bucket", Presigner: p})

	got := m.URL(context.Background(), &Image{URL: "/uploads/a.png"})
	if got != "http://cms.local:1337/uploads/a.png" {
		t.Fatalf("URL() = %q", got)
	}
}

func TestMediaResolver_ResolveItem(t *testing.T) {
	m := newResolver(t, MediaOptions{})
	ctx := context.Background()

	items := []Item{
		{Title: "no cover"},
		{Title: "cover", Cover: &Image{URL: "/uploads/c.png"}, Gallery: []Image{{URL: "/uploads/g.png"}}},
	}
	m.ResolveItems(ctx, items)

	if items[0].Cover == nil || !items[0].Cover.Missing || items[0].Cover.URL != DefaultPlaceholderURL {
		t.Fatalf("missing cover not replaced: %#v", items[0].Cover)
	}
	if items[1].Cover.URL != "http://cms.local:1337/uploads/c.png" {
		t.Fatalf("cover = %q", items[1].Cover.URL)
	}
	if items[1].Gallery[0].URL != "http://cms.local:1337/uploads/g.png" {
		t.Fatalf("gallery = %q", items[1].Gallery[0].URL)
	}
}

func TestNewMediaResolver_RequiresAbsoluteBase(t *testing.T) {
	if _, err := NewMediaResolver(MediaOptions{BaseURL: "cms.local"}); err == nil {
		t.Fatal("expected error for relative base url")
	}
}
