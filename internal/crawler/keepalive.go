package crawler

import (
	"net/http"
	"strconv"
	"strings"
)

// reusable implements spec.md §4.1's HTTP keep-alive decision,
// extracted as a standalone predicate over a response's header set
// rather than a subclass of the transport's response type (spec.md §9
// DESIGN NOTES: "avoid coupling to any stdlib class hierarchy").
func reusable(resp *http.Response) bool {
	conn := strings.ToLower(resp.Header.Get("Connection"))

	if resp.ProtoAtLeast(1, 1) {
		return !strings.Contains(conn, "close")
	}

	if strings.Contains(conn, "keep-alive") {
		return true
	}

	ka := resp.Header.Get("Keep-Alive")
	if ka == "" {
		return false
	}
	idx := strings.Index(strings.ToLower(ka), "max=")
	if idx < 0 {
		return false
	}
	rest := ka[idx+len("max="):]
	end := strings.IndexAny(rest, ", ")
	if end >= 0 {
		rest = rest[:end]
	}
	max, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return false
	}
	return max > 1
}
