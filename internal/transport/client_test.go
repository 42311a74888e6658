package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anaf-gateway-go/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, baseURL string, maxRedirects int) *Client {
	t.Helper()
	cfg := &config.Config{
		ANAF: config.ANAFConfig{
			BaseURL:               baseURL,
			RequestTimeoutSeconds: 10,
			MaxRedirects:          maxRedirects,
			IdleConnections:       10,
		},
	}
	c, err := newClient(http.DefaultTransport, cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	return c
}

const xmlBody = `<?xml version="1.0" encoding="UTF-8"?><header><mesaj/></header>`

func TestSend_RedirectChainAccumulatesCookies(t *testing.T) {
	// Simulates the F5 handshake: the first hit on the operation endpoint
	// redirects through the login path, which issues the session cookies.
	mux := http.NewServeMux()
	mux.HandleFunc("/BANCIWS/rest/listaMesaje", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("MRHSession"); err != nil {
			http.SetCookie(w, &http.Cookie{Name: "MRHSession", Value: "a1b2", Path: "/"})
			http.Redirect(w, r, "/my.policy", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(xmlBody))
	})
	mux.HandleFunc("/my.policy", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "LastMRH_Session", Value: "c3d4", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "F5_ST", Value: "1z5", Path: "/"})
		http.Redirect(w, r, "/BANCIWS/rest/listaMesaje", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL+"/BANCIWS/rest/", 10)
	res, err := c.Send(context.Background(), http.MethodPost, "listaMesaje", []byte("<header/>"), "application/xml", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if string(res.Body) != xmlBody {
		t.Errorf("Body = %q, want %q", res.Body, xmlBody)
	}
	if !strings.HasSuffix(res.FinalURL, "/BANCIWS/rest/listaMesaje") {
		t.Errorf("FinalURL = %q, want listaMesaje after redirect chain", res.FinalURL)
	}

	got := map[string]string{}
	for _, ck := range res.Cookies {
		got[ck.Name] = ck.Value
	}
	want := map[string]string{"MRHSession": "a1b2", "LastMRH_Session": "c3d4", "F5_ST": "1z5"}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("cookie %s = %q, want %q", name, got[name], value)
		}
	}
	if len(got) != len(want) {
		t.Errorf("accumulated %d cookies, want %d: %v", len(got), len(want), got)
	}
}

func TestSend_PresentsCookies(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("MRHSession"); err == nil {
			gotCookie = ck.Value
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(xmlBody))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/", 10)
	cookies := []*http.Cookie{{Name: "MRHSession", Value: "tok-123"}}
	if _, err := c.Send(context.Background(), http.MethodPost, "stareMesaj", []byte("<header/>"), "application/xml", cookies); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotCookie != "tok-123" {
		t.Errorf("server saw MRHSession = %q, want %q", gotCookie, "tok-123")
	}
}

func TestSend_SetsRequestHeaders(t *testing.T) {
	var gotContentType, gotUserAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(xmlBody))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/", 10)
	if _, err := c.Send(context.Background(), http.MethodPost, "listaMesaje", []byte("<header/>"), "application/xml", nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotContentType != "application/xml" {
		t.Errorf("Content-Type = %q, want %q", gotContentType, "application/xml")
	}
	if gotUserAgent != userAgent {
		t.Errorf("User-Agent = %q, want %q", gotUserAgent, userAgent)
	}
}

func TestSend_RedirectLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/", 3)
	_, err := c.Send(context.Background(), http.MethodPost, "loop", []byte("<header/>"), "application/xml", nil)
	if err == nil {
		t.Fatal("Send() expected error for unbounded redirect loop, got nil")
	}
	if !strings.Contains(err.Error(), "redirects") {
		t.Errorf("error = %v, want mention of redirects", err)
	}
}

func TestSend_TransportError(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:1/", 10)
	_, err := c.Send(context.Background(), http.MethodPost, "listaMesaje", []byte("<header/>"), "application/xml", nil)
	if err == nil {
		t.Fatal("Send() expected error for unreachable host, got nil")
	}
}

func TestSend_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(5 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/", 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Send(ctx, http.MethodPost, "listaMesaje", []byte("<header/>"), "application/xml", nil); err == nil {
		t.Fatal("Send() expected error for canceled context, got nil")
	}
}

// generateCertFiles writes a self-signed client certificate and key pair to a
// temp dir and returns their paths.
func generateCertFiles(t *testing.T) (certPath, keyPath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certPath = filepath.Join(dir, "client.pem")
	keyPath = filepath.Join(dir, "client.key")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath
}

func TestNew_LoadsCertificate(t *testing.T) {
	certPath, keyPath := generateCertFiles(t)
	cfg := &config.Config{
		ANAF: config.ANAFConfig{
			BaseURL:               "https://financiart.anaf.ro/BANCIWS/rest/",
			CertFile:              certPath,
			KeyFile:               keyPath,
			RequestTimeoutSeconds: 10,
			IdleConnections:       10,
		},
	}

	if _, err := New(cfg, testLogger(), nil); err != nil {
		t.Fatalf("New() error = %v", err)
	}
}

func TestNew_MissingCertificate(t *testing.T) {
	cfg := &config.Config{
		ANAF: config.ANAFConfig{
			BaseURL:  "https://financiart.anaf.ro/BANCIWS/rest/",
			CertFile: "/nonexistent/client.pem",
			KeyFile:  "/nonexistent/client.key",
		},
	}

	if _, err := New(cfg, testLogger(), nil); err == nil {
		t.Fatal("New() expected error for missing certificate files, got nil")
	}
}

func TestSend_PresentsClientCertificate(t *testing.T) {
	certPath, keyPath := generateCertFiles(t)
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatal(err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("load key pair: %v", err)
	}

	var sawClientCert bool
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawClientCert = r.TLS != nil && len(r.TLS.PeerCertificates) > 0
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(xmlBody))
	}))
	srv.TLS = &tls.Config{ClientAuth: tls.RequireAnyClientCert}
	srv.StartTLS()
	defer srv.Close()

	cfg := &config.Config{
		ANAF: config.ANAFConfig{
			BaseURL:               srv.URL + "/BANCIWS/rest/",
			RequestTimeoutSeconds: 10,
			MaxRedirects:          10,
			IdleConnections:       10,
		},
	}
	rt := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates:       []tls.Certificate{pair},
			InsecureSkipVerify: true, // httptest server certificate
		},
	}
	c, err := newClient(rt, cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}

	res, err := c.Send(context.Background(), http.MethodPost, "listaMesaje", []byte("<header/>"), "application/xml", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if !sawClientCert {
		t.Error("server did not receive the client certificate")
	}
}
