package cms

import "fmt"

// Kind tags a normalized content item with the collection it came from.
type Kind string

const (
	KindPost      Kind = "post"
	KindProduct   Kind = "product"
	KindPortfolio Kind = "portfolio"
)

// SearchKinds is the fixed order search results are concatenated in.
var SearchKinds = []Kind{KindPost, KindProduct, KindPortfolio}

// Collection returns the REST collection path segment for the kind.
func (k Kind) Collection() string {
	switch k {
	case KindPost:
		return "posts"
	case KindProduct:
		return "products"
	case KindPortfolio:
		return "portfolios"
	}
	return ""
}

// TitleField is the attribute searched and displayed as the item title.
// Products call it "name", everything else "title".
func (k Kind) TitleField() string {
	if k == KindProduct {
		return "name"
	}
	return "title"
}

// CommentType is the content-type uid the comments plugin keys threads by.
func (k Kind) CommentType() string {
	switch k {
	case KindPost:
		return "api::post.post"
	case KindProduct:
		return "api::product.product"
	case KindPortfolio:
		return "api::portfolio.portfolio"
	}
	return ""
}

func (k Kind) Valid() bool { return k.Collection() != "" }

// ParseKind accepts the kind tag or its collection name ("posts", "blog" etc).
func ParseKind(s string) (Kind, error) {
	switch s {
	case "post", "posts", "blog":
		return KindPost, nil
	case "product", "products":
		return KindProduct, nil
	case "portfolio", "portfolios":
		return KindPortfolio, nil
	}
	return "", fmt.Errorf("unknown content kind %q (valid kinds are post|product|portfolio)", s)
}
