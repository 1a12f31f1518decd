package metadata_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/xraph/pullpay/metadata"
)

func TestHTTPResolverGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ipfs/bafyabc/metadata.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"icon":"star","label":"Pro","description":"Pro tier","webhook":"https://hook"}`))
	}))
	defer srv.Close()

	r := metadata.NewHTTPResolver(metadata.WithGateway(srv.URL + "/ipfs"))
	md, err := r.Resolve(context.Background(), "ipfs://bafyabc/metadata.json")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if md.Label != "Pro" || md.Icon != "star" || md.Webhook != "https://hook" {
		t.Errorf("unexpected metadata: %+v", md)
	}
}

func TestHTTPResolverFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bad-json":
			_, _ = w.Write([]byte(`{not json`))
		case "/no-label":
			_, _ = w.Write([]byte(`{"icon":"x"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := metadata.NewHTTPResolver(metadata.WithDirectURLs(), metadata.WithPrivateNetworks())
	for _, path := range []string{"/bad-json", "/no-label", "/missing"} {
		t.Run(path, func(t *testing.T) {
			if _, err := r.Resolve(context.Background(), srv.URL+path); !errors.Is(err, metadata.ErrUnresolvable) {
				t.Errorf("expected ErrUnresolvable, got %v", err)
			}
		})
	}
}

func TestHTTPResolverDirectURLs(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"label":"Internal"}`))
	}))
	defer srv.Close()

	tests := []struct {
		name string
		opts []metadata.HTTPOption
		ref  string
		ok   bool
	}{
		{"disabled by default", nil, srv.URL + "/doc", false},
		{"loopback", []metadata.HTTPOption{metadata.WithDirectURLs()}, srv.URL + "/doc", false},
		{"cloud metadata", []metadata.HTTPOption{metadata.WithDirectURLs()}, "http://169.254.169.254/latest/meta-data", false},
		{"private range", []metadata.HTTPOption{metadata.WithDirectURLs()}, "http://10.0.0.1/doc", false},
		{"ipv6 loopback", []metadata.HTTPOption{metadata.WithDirectURLs()}, "http://[::1]:1/doc", false},
		{"private allowed", []metadata.HTTPOption{metadata.WithDirectURLs(), metadata.WithPrivateNetworks()}, srv.URL + "/doc", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := hits.Load()
			md, err := metadata.NewHTTPResolver(tt.opts...).Resolve(context.Background(), tt.ref)
			if !tt.ok {
				if !errors.Is(err, metadata.ErrUnresolvable) {
					t.Fatalf("expected ErrUnresolvable, got %v", err)
				}
				if hits.Load() != before {
					t.Error("blocked reference still reached the server")
				}
				return
			}
			if err != nil || md.Label != "Internal" {
				t.Fatalf("Resolve: %+v, %v", md, err)
			}
		})
	}
}

func TestMux(t *testing.T) {
	want := &metadata.Metadata{Label: "Basic"}
	mux := metadata.NewMux().Handle("test", metadata.ResolverFunc(func(context.Context, string) (*metadata.Metadata, error) {
		return want, nil
	}))

	got, err := mux.Resolve(context.Background(), "test://anything")
	if err != nil || got != want {
		t.Fatalf("Resolve: %v, %v", got, err)
	}

	for _, ref := range []string{"other://x", "no-scheme"} {
		if _, err := mux.Resolve(context.Background(), ref); !errors.Is(err, metadata.ErrUnresolvable) {
			t.Errorf("%s: expected ErrUnresolvable, got %v", ref, err)
		}
	}
}
