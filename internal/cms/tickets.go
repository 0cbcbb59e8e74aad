package cms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/keithlinneman/storefront/internal/xerrors"
)

// TicketStatusOpen is the status every new ticket starts in.
const TicketStatusOpen = "Open"

// Tickets returns the support tickets owned by userID.
func (c *Client) Tickets(ctx context.Context, token string, userID int) []Ticket {
	if token == "" || userID <= 0 {
		return []Ticket{}
	}
	q := listQuery("*", Eq("user.id", strconv.Itoa(userID)))
	list, err := c.getList(ctx, "/tickets", q, token)
	if err != nil {
		c.logFetchFailure(ctx, err, "cms tickets fetch failed", "user_id", userID)
		return []Ticket{}
	}
	out := make([]Ticket, 0, len(list))
	for _, raw := range list {
		if t, ok := normalizeTicket(raw); ok {
			out = append(out, t)
		}
	}
	return out
}

// NewTicket is the caller-supplied part of a ticket.
type NewTicket struct {
	Title      string `json:"title"`
	Department string `json:"department"`
	Message    string `json:"message"`
}

// CreateTicket opens a ticket for userID with nt.Message as its first message.
func (c *Client) CreateTicket(ctx context.Context, token string, userID int, nt NewTicket) (Ticket, error) {
	if token == "" || userID <= 0 {
		return Ticket{}, ErrUnauthorized
	}
	nt.Title = strings.TrimSpace(nt.Title)
	nt.Message = strings.TrimSpace(nt.Message)
	if nt.Title == "" || nt.Message == "" {
		return Ticket{}, xerrors.New("ticket title and message are required")
	}

	payload := map[string]any{
		"data": map[string]any{
			"title":      nt.Title,
			"department": strings.TrimSpace(nt.Department),
			"status":     TicketStatusOpen,
			"user":       userID,
			"messages": []map[string]any{{
				"message":    nt.Message,
				"isResponse": false,
				"author":     userID,
			}},
		},
	}

	var raw json.RawMessage
	err := c.do(ctx, request{method: http.MethodPost, path: "/tickets", body: payload, token: token}, &raw)
	if err != nil {
		return Ticket{}, xerrors.Wrapf(err, "create ticket for user %d", userID)
	}
	t, ok := normalizeTicket(unwrapData(raw))
	if !ok {
		return Ticket{}, xerrors.Wrap(errMalformed, "create ticket")
	}
	// the create response does not populate relations
	if t.UserID == 0 {
		t.UserID = userID
	}
	if len(t.Messages) == 0 {
		t.Messages = []TicketMessage{{Message: nt.Message, AuthorID: userID}}
	}
	if t.Status == "" {
		t.Status = TicketStatusOpen
	}
	return t, nil
}

// Ticket returns one ticket with its messages. It fails with ErrNotFound when
// the ticket does not exist and ErrForbidden when it belongs to someone else.
func (c *Client) Ticket(ctx context.Context, token string, ticketID, userID int) (Ticket, error) {
	if token == "" || userID <= 0 {
		return Ticket{}, ErrUnauthorized
	}
	if ticketID <= 0 {
		return Ticket{}, ErrNotFound
	}
	q := url.Values{}
	q.Set("populate", "messages.author,user")
	raw, err := c.getOne(ctx, "/tickets/"+strconv.Itoa(ticketID), q, token)
	if err != nil {
		return Ticket{}, xerrors.Wrapf(err, "fetch ticket %d", ticketID)
	}
	t, ok := normalizeTicket(raw)
	if !ok {
		return Ticket{}, xerrors.Wrapf(errMalformed, "fetch ticket %d", ticketID)
	}
	if t.UserID != userID {
		return Ticket{}, ErrForbidden
	}
	return t, nil
}
