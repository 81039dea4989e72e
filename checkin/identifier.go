package checkin

import (
	"net/url"
	"strings"
)

// ParseIdentifier extracts a ticket identifier from a QR payload or typed input. The
// payload is either the bare identifier or a validation link carrying it in the
// "ticket" query parameter.
func ParseIdentifier(payload string) string {
	payload = strings.TrimSpace(payload)
	if !strings.Contains(payload, "://") {
		return payload
	}
	u, err := url.Parse(payload)
	if err != nil {
		return payload
	}
	if ticket := strings.TrimSpace(u.Query().Get("ticket")); ticket != "" {
		return ticket
	}
	return payload
}

// ValidationLink builds the deep link a participant opens to have their ticket checked in.
func ValidationLink(baseURL, eventID, ticketID string) string {
	return strings.TrimRight(baseURL, "/") + "/validator/" + url.PathEscape(eventID) + "?ticket=" + url.QueryEscape(ticketID)
}
