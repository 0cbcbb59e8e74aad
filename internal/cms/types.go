package cms

import "time"

// Image is a media library reference. URL is usually relative to the CMS base URL.
type Image struct {
	ID      int    `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Missing bool   `json:"-"`
}

// Span is an inline text run inside a rich text block.
type Span struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block is one block of the CMS rich text editor output.
type Block struct {
	Type     string `json:"type"`
	Children []Span `json:"children"`
}

// CategoryRef is a category as embedded in a product.
type CategoryRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Item is the canonical record for posts, products and portfolio entries.
// Fields not carried by a kind are left zero.
type Item struct {
	ID    int    `json:"id"`
	Kind  Kind   `json:"kind"`
	Slug  string `json:"slug,omitempty"`
	Title string `json:"title"`

	Cover   *Image  `json:"cover,omitempty"`
	Gallery []Image `json:"gallery,omitempty"`

	// post
	Body string `json:"body,omitempty"`

	// product + portfolio
	Description []Block           `json:"description,omitempty"`
	Details     map[string]string `json:"details,omitempty"`

	// product
	Price       *float64      `json:"price,omitempty"`
	PaymentLink string        `json:"payment_link,omitempty"`
	Featured    bool          `json:"featured,omitempty"`
	Popularity  int           `json:"popularity,omitempty"`
	Categories  []CategoryRef `json:"categories,omitempty"`

	// portfolio
	Technologies string `json:"technologies,omitempty"`
	LiveURL      string `json:"live_url,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Category is one node of the category hierarchy. ParentID is nil for roots.
type Category struct {
	ID       int         `json:"id"`
	Name     string      `json:"name"`
	Slug     string      `json:"slug"`
	ParentID *int        `json:"parent_id,omitempty"`
	Children []*Category `json:"children,omitempty"`
}

// User is the minimal profile the identity endpoint hands back.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Session is the result of a credential exchange: an opaque bearer token plus profile.
type Session struct {
	Token string `json:"-"`
	User  User   `json:"user"`
}

// CommentAuthor identifies who wrote a comment.
type CommentAuthor struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Comment struct {
	ID        int           `json:"id"`
	Content   string        `json:"content"`
	Author    CommentAuthor `json:"author"`
	CreatedAt time.Time     `json:"created_at,omitzero"`
}

type TicketMessage struct {
	Message    string `json:"message"`
	IsResponse bool   `json:"is_response"`
	AuthorID   int    `json:"author_id,omitempty"`
}

type Ticket struct {
	ID         int             `json:"id"`
	Title      string          `json:"title"`
	Department string          `json:"department"`
	Status     string          `json:"status"`
	UserID     int             `json:"user_id"`
	Messages   []TicketMessage `json:"messages"`
	CreatedAt  time.Time       `json:"created_at,omitzero"`
}

type Order struct {
	ID        int       `json:"id"`
	OrderID   string    `json:"order_id"`
	Products  []Item    `json:"products"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}
