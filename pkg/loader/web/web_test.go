package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Sky colours</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Why the sky is blue</h1>
<p>The sky is blue because molecules in the air scatter blue light from the sun more than they scatter red light.
This effect is called Rayleigh scattering and it was described in the nineteenth century.</p>
<p>At sunset the light passes through more of the atmosphere, so more of the blue is scattered away and the sky looks red.</p>
</article>
</body></html>`

func TestWebFileLoader(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(articleHTML))
		case "/plain.txt":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("plain content"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	l := NewWebFileLoader(server.Client())

	got, err := l.GetFileText(context.Background(), server.URL+"/article")
	if err != nil {
		t.Fatalf("GetFileText() error = %v", err)
	}
	if !strings.Contains(string(got), "Rayleigh scattering") {
		t.Fatalf("article text missing: %q", got)
	}

	got, err = l.GetFileText(context.Background(), server.URL+"/plain.txt")
	if err != nil {
		t.Fatalf("GetFileText() error = %v", err)
	}
	if string(got) != "plain content" {
		t.Fatalf("GetFileText() = %q", got)
	}

	before := hits.Load()
	if _, err := l.GetFileText(context.Background(), server.URL+"/plain.txt"); err != nil {
		t.Fatalf("GetFileText() error = %v", err)
	}
	if hits.Load() != before {
		t.Fatalf("expected cached response")
	}

	if _, err := l.GetFileText(context.Background(), server.URL+"/missing"); !errors.Is(err, common.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestIsPublicIP(t *testing.T) {
	tests := map[string]bool{
		"93.184.216.34":   true,
		"2606:4700::1111": true,
		"127.0.0.1":       false,
		"10.0.0.7":        false,
		"192.168.1.20":    false,
		"169.254.169.254": false,
		"0.0.0.0":         false,
		"::1":             false,
		"fe80::1":         false,
		"fd00::1":         false,
	}
	for in, want := range tests {
		if got := IsPublicIP(net.ParseIP(in)); got != want {
			t.Fatalf("IsPublicIP(%s) = %v, want %v", in, got, want)
		}
	}
	if IsPublicIP(nil) {
		t.Fatalf("nil ip must not be public")
	}
}

func TestWebFileLoader_PublicClientRefusesLocalHosts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("internal admin page"))
	}))
	defer server.Close()

	l := NewWebFileLoader(NewPublicClient(time.Second))
	_, err := l.GetFileText(context.Background(), server.URL+"/admin")
	if !errors.Is(err, common.ErrSourceForbidden) {
		t.Fatalf("expected ErrSourceForbidden, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("request reached the local server")
	}
}
