package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/ca-hub/ca-hub/internal/config"
)

func TestNewUpstreamClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		UpstreamTimeout: config.Duration(45 * time.Second),
	}

	client := NewUpstreamClient(cfg)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
}

func TestNewProbeClientDoesNotFollowRedirects(t *testing.T) {
	cfg := &config.Config{
		ProbeTimeout: config.Duration(time.Second),
	}

	client := NewProbeClient(cfg)
	if client.Timeout != time.Second {
		t.Fatalf("expected timeout 1s, got %s", client.Timeout)
	}
	if client.CheckRedirect == nil {
		t.Fatalf("probe client must not follow redirects")
	}
	if err := client.CheckRedirect(nil, nil); err != http.ErrUseLastResponse {
		t.Fatalf("expected ErrUseLastResponse, got %v", err)
	}
}

func TestNewCredentialClientDefaultTimeout(t *testing.T) {
	client := NewCredentialClient(nil)
	if client.Timeout != 10*time.Second {
		t.Fatalf("expected default 10s timeout, got %s", client.Timeout)
	}
}

func TestCopyAllowedHeadersFiltersByList(t *testing.T) {
	src := http.Header{}
	src.Add("Accept", "text/html")
	src.Add("User-Agent", "pip/24.0")
	src.Add("Authorization", "Basic leaked")
	src.Add("X-Custom", "1")

	dst := http.Header{}
	CopyAllowedHeaders(dst, src, RequestHeaderAllowList)

	if got := dst.Get("Accept"); got != "text/html" {
		t.Fatalf("expected Accept copied, got %q", got)
	}
	if got := dst.Get("User-Agent"); got != "pip/24.0" {
		t.Fatalf("expected User-Agent copied, got %q", got)
	}
	if _, exists := dst["Authorization"]; exists {
		t.Fatalf("authorization header must not be copied")
	}
	if _, exists := dst["X-Custom"]; exists {
		t.Fatalf("unlisted header must not be copied")
	}
}

func TestCopyAllowedHeadersSkipsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Add("Connection", "keep-alive")
	src.Add("Transfer-Encoding", "chunked")
	src.Add("Content-Type", "application/octet-stream")

	dst := http.Header{}
	CopyAllowedHeaders(dst, src, []string{"Connection", "Transfer-Encoding", "Content-Type"})

	if _, exists := dst["Connection"]; exists {
		t.Fatalf("connection header should not be copied")
	}
	if _, exists := dst["Transfer-Encoding"]; exists {
		t.Fatalf("transfer-encoding header should not be copied")
	}
	if got := dst.Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("expected Content-Type copied, got %q", got)
	}
}
