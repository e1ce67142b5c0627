package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
)

func TestIndexPageRedirectsToMirror(t *testing.T) {
	credStub := newCredentialStub(t, "token")
	defer credStub.Close()
	upstream := newArtifactStub(t, []byte("private index"))
	defer upstream.Close()
	mirrorSrv := newMirrorStub(t, http.StatusOK)
	defer mirrorSrv.Close()

	env := newProxyEnv(t, envOptions{
		credentialURL: credStub.URL,
		upstreamURL:   upstream.URL,
		mirrorURL:     mirrorSrv.URL + "/simple",
	})
	defer env.Close()

	req := httptest.NewRequest(fiber.MethodGet, proxyPrefix+"numpy/", nil)
	req.Header.Set("User-Agent", "pip/24.0")
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if got, want := resp.Header.Get("Location"), mirrorSrv.URL+"/simple/numpy/"; got != want {
		t.Fatalf("expected Location %s, got %s", want, got)
	}
	if got := len(upstream.Requests()); got != 0 {
		t.Fatalf("expected zero upstream requests on redirect, got %d", got)
	}

	probes := mirrorSrv.Probes()
	if len(probes) != 1 {
		t.Fatalf("expected one mirror probe, got %d", len(probes))
	}
	if probes[0].Method != http.MethodHead {
		t.Fatalf("expected HEAD probe, got %s", probes[0].Method)
	}
	if probes[0].Path != "/simple/numpy/" {
		t.Fatalf("expected probe path /simple/numpy/, got %s", probes[0].Path)
	}
	if got := probes[0].Header.Get("User-Agent"); got != "pip/24.0" {
		t.Fatalf("expected probe to carry client User-Agent, got %q", got)
	}
	env.AssertLogContains(t, "mirror_redirect")
}

func TestIndexPageProxiedWhenMirrorMisses(t *testing.T) {
	credStub := newCredentialStub(t, "token")
	defer credStub.Close()
	upstream := newArtifactStub(t, []byte("<html>private numpy index</html>"))
	defer upstream.Close()
	mirrorSrv := newMirrorStub(t, http.StatusNotFound)
	defer mirrorSrv.Close()

	env := newProxyEnv(t, envOptions{
		credentialURL: credStub.URL,
		upstreamURL:   upstream.URL,
		mirrorURL:     mirrorSrv.URL + "/simple",
	})
	defer env.Close()

	resp := env.DoRequest(t, fiber.MethodGet, proxyPrefix+"numpy/", nil)
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<html>private numpy index</html>" {
		t.Fatalf("unexpected body: %s", body)
	}

	if got := len(mirrorSrv.Probes()); got != 1 {
		t.Fatalf("expected one mirror probe, got %d", got)
	}
	requests := upstream.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected one upstream request, got %d", len(requests))
	}
	if want := "/pypi/" + testRepo + "/simple/numpy/"; requests[0].Path != want {
		t.Fatalf("expected upstream path %s, got %s", want, requests[0].Path)
	}
}

func TestArtifactDownloadsNeverProbeMirror(t *testing.T) {
	credStub := newCredentialStub(t, "token")
	defer credStub.Close()
	upstream := newArtifactStub(t, []byte("tarball"))
	defer upstream.Close()
	mirrorSrv := newMirrorStub(t, http.StatusOK)
	defer mirrorSrv.Close()

	env := newProxyEnv(t, envOptions{
		credentialURL: credStub.URL,
		upstreamURL:   upstream.URL,
		mirrorURL:     mirrorSrv.URL + "/simple",
	})
	defer env.Close()

	// 不带尾斜杠的路径是制品下载，必须走私有仓库。
	resp := env.DoRequest(t, fiber.MethodGet, proxyPrefix+"numpy/numpy-1.0.tar.gz", nil)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if got := len(mirrorSrv.Probes()); got != 0 {
		t.Fatalf("expected no mirror probes for artifact download, got %d", got)
	}
	if got := len(upstream.Requests()); got != 1 {
		t.Fatalf("expected one upstream request, got %d", got)
	}
}

func TestMirrorDisabledProxiesEverything(t *testing.T) {
	credStub := newCredentialStub(t, "token")
	defer credStub.Close()
	upstream := newArtifactStub(t, []byte("private index"))
	defer upstream.Close()

	env := newProxyEnv(t, envOptions{
		credentialURL: credStub.URL,
		upstreamURL:   upstream.URL,
	})
	defer env.Close()

	resp := env.DoRequest(t, fiber.MethodGet, proxyPrefix+"numpy/", nil)
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 without mirror, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "private index") {
		t.Fatalf("unexpected body: %s", body)
	}
	if got := len(upstream.Requests()); got != 1 {
		t.Fatalf("expected one upstream request, got %d", got)
	}
}
