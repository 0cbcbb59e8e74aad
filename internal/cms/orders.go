package cms

import (
	"context"
	"strconv"
)

// Orders returns userID's orders with their purchased products populated.
func (c *Client) Orders(ctx context.Context, token string, userID int) []Order {
	if token == "" || userID <= 0 {
		return []Order{}
	}
	list, err := c.getList(ctx, "/orders", listQuery("products", Eq("user.id", strconv.Itoa(userID))), token)
	if err != nil {
		c.logFetchFailure(ctx, err, "cms orders fetch failed", "user_id", userID)
		return []Order{}
	}
	out := make([]Order, 0, len(list))
	for _, raw := range list {
		if o, ok := normalizeOrder(raw); ok {
			out = append(out, o)
		}
	}
	return out
}
