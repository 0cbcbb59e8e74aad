package cms

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// fields is one entity's attributes, already lifted out of any "attributes" key.
type fields map[string]json.RawMessage

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// unwrapData strips a {"data": ...} envelope if present. Anything else is returned as is.
func unwrapData(raw json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	if d, ok := obj["data"]; ok {
		return d
	}
	return raw
}

// asArray returns the elements of a JSON array.
func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	var list []json.RawMessage
	if isNull(raw) {
		return nil, false
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	if list == nil {
		list = []json.RawMessage{}
	}
	return list, true
}

// relationList reads a to-many relation: {"data": [...]}, [...], a single object or null.
func relationList(raw json.RawMessage) []json.RawMessage {
	if isNull(raw) {
		return nil
	}
	inner := unwrapData(raw)
	if isNull(inner) {
		return nil
	}
	if list, ok := asArray(inner); ok {
		return list
	}
	return []json.RawMessage{inner}
}

// relationOne reads a to-one relation: {"data": {...}}, {...}, the first element of an array or null.
func relationOne(raw json.RawMessage) (json.RawMessage, bool) {
	list := relationList(raw)
	if len(list) == 0 || isNull(list[0]) {
		return nil, false
	}
	return list[0], true
}

// entity splits an object into its id and fields, accepting both the nested
// {"id": 1, "attributes": {...}} shape and the flattened {"id": 1, ...} shape.
func entity(raw json.RawMessage) (int, fields, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return 0, nil, false
	}
	id, _ := intValue(obj["id"])

	if a, ok := obj["attributes"]; ok && !isNull(a) {
		var attrs map[string]json.RawMessage
		if err := json.Unmarshal(a, &attrs); err == nil && attrs != nil {
			return id, fields(attrs), true
		}
	}
	return id, fields(obj), true
}

func (f fields) str(key string) string {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// numbers and bools rendered as text
	return strings.Trim(string(bytes.TrimSpace(raw)), `"`)
}

func (f fields) float(key string) *float64 {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &n
		}
	}
	return nil
}

func (f fields) integer(key string) int {
	n, _ := intValue(f[key])
	return n
}

func (f fields) boolean(key string) bool {
	var b bool
	_ = json.Unmarshal(f[key], &b)
	return b
}

func (f fields) timestamp(key string) time.Time {
	s := f.str(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// intLimit is 2^63, the first float64 past math.MaxInt.
const intLimit = -float64(math.MinInt)

// intValue reads an integral JSON number or numeric string. Fractional and
// out-of-range numbers are rejected rather than truncated.
func intValue(raw json.RawMessage) (int, bool) {
	if isNull(raw) {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n != math.Trunc(n) || n < float64(math.MinInt) || n >= intLimit {
			return 0, false
		}
		return int(n), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// stringMap reads a JSON object of free-form key/values (product details,
// portfolio features). Non-string values are kept as their JSON text.
func (f fields) stringMap(key string) map[string]string {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) == 0 {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(bytes.TrimSpace(v))
	}
	return out
}

// blocks reads rich text. A plain string is accepted as a single paragraph.
func (f fields) blocks(key string) []Block {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return nil
	}
	var bs []Block
	if err := json.Unmarshal(raw, &bs); err == nil {
		return bs
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return []Block{{Type: "paragraph", Children: []Span{{Type: "text", Text: s}}}}
	}
	return nil
}

func normalizeImage(raw json.RawMessage) (Image, bool) {
	id, f, ok := entity(raw)
	if !ok {
		return Image{}, false
	}
	img := Image{
		ID:     id,
		Name:   f.str("name"),
		URL:    f.str("url"),
		Alt:    f.str("alternativeText"),
		Width:  f.integer("width"),
		Height: f.integer("height"),
	}
	if img.URL == "" {
		return Image{}, false
	}
	return img, true
}

func (f fields) image(key string) *Image {
	raw, ok := relationOne(f[key])
	if !ok {
		return nil
	}
	img, ok := normalizeImage(raw)
	if !ok {
		return nil
	}
	return &img
}

func (f fields) images(key string) []Image {
	var out []Image
	for _, raw := range relationList(f[key]) {
		if img, ok := normalizeImage(raw); ok {
			out = append(out, img)
		}
	}
	return out
}

// normalizePost adapts a post entity.
func normalizePost(raw json.RawMessage) (Item, bool) {
	id, f, ok := entity(raw)
	if !ok {
		return Item{}, false
	}
	return Item{
		ID:        id,
		Kind:      KindPost,
		Slug:      f.str("slug"),
		Title:     f.str("title"),
		Body:      f.str("content"),
		Cover:     f.image("coverImage"),
		CreatedAt: f.timestamp("createdAt"),
	}, true
}

// normalizeProduct adapts a product entity. The first productImage is the cover.
func normalizeProduct(raw json.RawMessage) (Item, bool) {
	id, f, ok := entity(raw)
	if !ok {
		return Item{}, false
	}
	it := Item{
		ID:          id,
		Kind:        KindProduct,
		Slug:        f.str("slug"),
		Title:       f.str("name"),
		Description: f.blocks("description"),
		Details:     f.stringMap("details"),
		Price:       f.float("price"),
		PaymentLink: f.str("paymentLink"),
		Featured:    f.boolean("isFeatured"),
		Popularity:  f.integer("popularity"),
		Gallery:     f.images("gallery"),
		CreatedAt:   f.timestamp("createdAt"),
	}
	if imgs := f.images("productImage"); len(imgs) > 0 {
		it.Cover = &imgs[0]
	}
	for _, c := range relationList(f["categories"]) {
		if cat, ok := normalizeCategory(c); ok {
			it.Categories = append(it.Categories, CategoryRef{ID: cat.ID, Name: cat.Name, Slug: cat.Slug})
		}
	}
	return it, true
}

// normalizePortfolio adapts a portfolio entity.
func normalizePortfolio(raw json.RawMessage) (Item, bool) {
	id, f, ok := entity(raw)
	if !ok {
		return Item{}, false
	}
	return Item{
		ID:           id,
		Kind:         KindPortfolio,
		Slug:         f.str("slug"),
		Title:        f.str("title"),
		Technologies: f.str("technologies"),
		Description:  f.blocks("description"),
		Details:      f.stringMap("features"),
		LiveURL:      f.str("liveUrl"),
		Cover:        f.image("coverImage"),
		Gallery:      f.images("gallery"),
		CreatedAt:    f.timestamp("createdAt"),
	}, true
}

// normalizeItem dispatches to the adapter for kind.
func normalizeItem(kind Kind, raw json.RawMessage) (Item, bool) {
	switch kind {
	case KindPost:
		return normalizePost(raw)
	case KindProduct:
		return normalizeProduct(raw)
	case KindPortfolio:
		return normalizePortfolio(raw)
	}
	return Item{}, false
}

func normalizeItems(kind Kind, list []json.RawMessage) []Item {
	out := make([]Item, 0, len(list))
	for _, raw := range list {
		if it, ok := normalizeItem(kind, raw); ok {
			out = append(out, it)
		}
	}
	return out
}

// normalizeCategory adapts a category entity. The parent may be a relation
// object, a bare id or null.
func normalizeCategory(raw json.RawMessage) (Category, bool) {
	id, f, ok := entity(raw)
	if !ok {
		return Category{}, false
	}
	c := Category{
		ID:   id,
		Name: f.str("name"),
		Slug: f.str("slug"),
	}
	if p, ok := f["parent"]; ok {
		if pid, ok := intValue(p); ok {
			c.ParentID = &pid
		} else if pr, ok := relationOne(p); ok {
			if pid, _, ok := entity(pr); ok {
				c.ParentID = &pid
			}
		}
	}
	return c, true
}

// normalizeComment accepts the comments plugin shape ({author: {id, name}}) and
// the collection shape ({attributes: {author: {data: {attributes: {username}}}}}).
func normalizeComment(raw json.RawMessage) (Comment, bool) {
	id, f, ok := entity(raw)
	if !ok {
		return Comment{}, false
	}
	c := Comment{
		ID:        id,
		Content:   f.str("content"),
		CreatedAt: f.timestamp("createdAt"),
	}
	if ar, ok := relationOne(f["author"]); ok {
		aid, af, _ := entity(ar)
		c.Author = CommentAuthor{ID: aid, Name: af.str("name"), Email: af.str("email")}
		if c.Author.Name == "" {
			c.Author.Name = af.str("username")
		}
	}
	return c, true
}

func normalizeTicket(raw json.RawMessage) (Ticket, bool) {
	id, f, ok := entity(raw)
	if !ok {
		return Ticket{}, false
	}
	t := Ticket{
		ID:         id,
		Title:      f.str("title"),
		Department: f.str("department"),
		Status:     f.str("status"),
		CreatedAt:  f.timestamp("createdAt"),
		Messages:   []TicketMessage{},
	}
	if u, ok := f["user"]; ok {
		if uid, ok := intValue(u); ok {
			t.UserID = uid
		} else if ur, ok := relationOne(u); ok {
			t.UserID, _, _ = entity(ur)
		}
	}
	for _, mr := range relationList(f["messages"]) {
		_, mf, ok := entity(mr)
		if !ok {
			continue
		}
		m := TicketMessage{Message: mf.str("message"), IsResponse: mf.boolean("isResponse")}
		if a, ok := mf["author"]; ok {
			if aid, ok := intValue(a); ok {
				m.AuthorID = aid
			} else if ar, ok := relationOne(a); ok {
				m.AuthorID, _, _ = entity(ar)
			}
		}
		t.Messages = append(t.Messages, m)
	}
	return t, true
}

func normalizeOrder(raw json.RawMessage) (Order, bool) {
	id, f, ok := entity(raw)
	if !ok {
		return Order{}, false
	}
	o := Order{
		ID:        id,
		OrderID:   f.str("orderId"),
		CreatedAt: f.timestamp("createdAt"),
	}
	o.Products = normalizeItems(KindProduct, relationList(f["products"]))
	return o, true
}
