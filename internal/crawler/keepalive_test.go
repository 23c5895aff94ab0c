package crawler

import (
	"net/http"
	"testing"
)

func resp(proto string, major, minor int, headers map[string]string) *http.Response {
	h := make(http.Header)
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{Proto: proto, ProtoMajor: major, ProtoMinor: minor, Header: h}
}

func TestReusable_HTTP11(t *testing.T) {
	if !reusable(resp("HTTP/1.1", 1, 1, nil)) {
		t.Error("HTTP/1.1 with no Connection header should be reusable")
	}
	if reusable(resp("HTTP/1.1", 1, 1, map[string]string{"Connection": "close"})) {
		t.Error("HTTP/1.1 with Connection: close should not be reusable")
	}
	if !reusable(resp("HTTP/1.1", 1, 1, map[string]string{"Connection": "Keep-Alive"})) {
		t.Error("HTTP/1.1 with Connection: Keep-Alive should be reusable")
	}
}

func TestReusable_HTTP10(t *testing.T) {
	if reusable(resp("HTTP/1.0", 1, 0, nil)) {
		t.Error("HTTP/1.0 with no headers should default to not reusable")
	}
	if !reusable(resp("HTTP/1.0", 1, 0, map[string]string{"Connection": "keep-alive"})) {
		t.Error("HTTP/1.0 with Connection: keep-alive should be reusable")
	}
	if !reusable(resp("HTTP/1.0", 1, 0, map[string]string{"Keep-Alive": "timeout=5, max=100"})) {
		t.Error("HTTP/1.0 with Keep-Alive max>1 should be reusable")
	}
	if reusable(resp("HTTP/1.0", 1, 0, map[string]string{"Keep-Alive": "timeout=5, max=1"})) {
		t.Error("HTTP/1.0 with Keep-Alive max=1 should not be reusable")
	}
	if reusable(resp("HTTP/1.0", 1, 0, map[string]string{"Keep-Alive": "garbage"})) {
		t.Error("unparsable Keep-Alive header should default to not reusable")
	}
}
