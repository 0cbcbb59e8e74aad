package cms

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/keithlinneman/storefront/internal/xerrors"
)

// CommentType resolves a comment thread content type. It accepts a kind
// ("post", "products") or a content-type uid ("api::post.post").
func CommentType(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, k := range SearchKinds {
		if s == k.CommentType() {
			return s, true
		}
	}
	if k, err := ParseKind(s); err == nil {
		return k.CommentType(), true
	}
	return "", false
}

func threadPath(contentType string, id int) string {
	return "/comments/" + contentType + ":" + strconv.Itoa(id)
}

// Comments returns the comment thread attached to one entry. The comments
// plugin answers with a flat array. Failures yield an empty list.
func (c *Client) Comments(ctx context.Context, contentType string, id int) []Comment {
	ct, ok := CommentType(contentType)
	if !ok || id <= 0 {
		return []Comment{}
	}
	list, err := c.getList(ctx, threadPath(ct, id), nil, "")
	if err != nil {
		c.logFetchFailure(ctx, err, "cms comments fetch failed", "content_type", ct, "id", id)
		return []Comment{}
	}
	return normalizeComments(list)
}

// UserComments returns every comment written by the owner of token.
func (c *Client) UserComments(ctx context.Context, token string) []Comment {
	if token == "" {
		return []Comment{}
	}
	list, err := c.getList(ctx, "/comments/user/me", nil, token)
	if err != nil {
		c.logFetchFailure(ctx, err, "cms user comments fetch failed")
		return []Comment{}
	}
	return normalizeComments(list)
}

// CreateComment posts a comment to an entry's thread on behalf of author.
func (c *Client) CreateComment(ctx context.Context, token, contentType string, id int, content string, author CommentAuthor) (Comment, error) {
	if token == "" {
		return Comment{}, ErrUnauthorized
	}
	ct, ok := CommentType(contentType)
	if !ok {
		return Comment{}, xerrors.Newf("unknown comment content type %q", contentType)
	}
	content = strings.TrimSpace(content)
	if content == "" || id <= 0 {
		return Comment{}, xerrors.New("comment content and target id are required")
	}

	var raw json.RawMessage
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   threadPath(ct, id),
		body: map[string]any{
			"content": content,
			"author":  author,
		},
		token: token,
	}, &raw)
	if err != nil {
		return Comment{}, xerrors.Wrapf(err, "create comment on %s:%d", ct, id)
	}
	cm, ok := normalizeComment(unwrapData(raw))
	if !ok {
		// the plugin acknowledged the write; echo what we sent
		return Comment{Content: content, Author: author}, nil
	}
	if cm.Author.ID == 0 {
		cm.Author = author
	}
	return cm, nil
}

func normalizeComments(list []json.RawMessage) []Comment {
	out := make([]Comment, 0, len(list))
	for _, raw := range list {
		if cm, ok := normalizeComment(raw); ok {
			out = append(out, cm)
		}
	}
	return out
}
