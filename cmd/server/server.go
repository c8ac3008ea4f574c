package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tariel-x/lookbook/internal/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/acme/autocert"
)

const shutdownTimeout = 20 * time.Second

func newHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     log.New(newTLSErrorWriter(logger), "", 0),
	}
}

func startServer(ctx context.Context, router *gin.Engine, cfg *config.Config, selfSigned bool, logger *slog.Logger) error {
	switch {
	case selfSigned:
		return startSelfSignedHTTPS(ctx, router, cfg, logger)
	case cfg.HTTPOnly:
		return startHTTP(ctx, router, cfg, logger)
	default:
		return startAutocertHTTPS(ctx, router, cfg, logger)
	}
}

// runServers serves until ctx is done or one server fails, then shuts all of
// them down.
func runServers(ctx context.Context, logger *slog.Logger, servers map[*http.Server]func() error) error {
	errCh := make(chan error, len(servers))
	for srv, listen := range servers {
		go func() {
			if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", srv.Addr, err)
				return
			}
			errCh <- nil
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	for srv := range servers {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("server shutdown failed", "addr", srv.Addr, "error", serr)
		}
	}
	return err
}

func startHTTP(ctx context.Context, router *gin.Engine, cfg *config.Config, logger *slog.Logger) error {
	srv := newHTTPServer(":"+cfg.HTTPPort, router, logger)
	logger.Info("Starting HTTP server", "port", cfg.HTTPPort, "frontend_uri", cfg.FrontendURI)
	return runServers(ctx, logger, map[*http.Server]func() error{srv: srv.ListenAndServe})
}

func startAutocertHTTPS(ctx context.Context, router *gin.Engine, cfg *config.Config, logger *slog.Logger) error {
	certsDir := getCertsDirectory()
	if err := os.MkdirAll(certsDir, 0700); err != nil {
		return fmt.Errorf("create certs directory: %w", err)
	}

	domain := normalizeDomain(cfg.Domain)
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		HostPolicy: func(_ context.Context, host string) error {
			if normalizeDomain(host) != domain {
				return fmt.Errorf("host %q not configured (expected %q)", host, domain)
			}
			return nil
		},
		Cache: autocert.DirCache(certsDir),
	}

	redirect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
	})
	httpSrv := newHTTPServer(":"+cfg.HTTPPort, m.HTTPHandler(redirect), logger)

	httpsSrv := newHTTPServer(":"+cfg.HTTPSPort, router, logger)
	httpsSrv.TLSConfig = m.TLSConfig()

	logger.Info("HTTPS server starting", "port", cfg.HTTPSPort, "domain", domain, "certs_dir", certsDir)
	if domain == "localhost" || domain == "127.0.0.1" {
		logger.Warn("Let's Encrypt will not work for localhost. Use --self-signed or --http-only for local development.")
	}

	return runServers(ctx, logger, map[*http.Server]func() error{
		httpSrv:  httpSrv.ListenAndServe,
		httpsSrv: func() error { return httpsSrv.ListenAndServeTLS("", "") },
	})
}

func startSelfSignedHTTPS(ctx context.Context, router *gin.Engine, cfg *config.Config, logger *slog.Logger) error {
	hosts := []string{"localhost"}
	if cfg.Domain != "" {
		hosts = []string{cfg.Domain}
	}
	certPEM, keyPEM, err := generateSelfSignedCert(hosts)
	if err != nil {
		return err
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("load self-signed certificate: %w", err)
	}

	httpsSrv := newHTTPServer(":"+cfg.HTTPSPort, router, logger)
	httpsSrv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	redirect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + host + ":" + cfg.HTTPSPort + r.URL.Path
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
	httpSrv := newHTTPServer(":"+cfg.HTTPPort, redirect, logger)

	logger.Info("HTTPS server (self-signed) starting", "port", cfg.HTTPSPort, "hosts", hosts)
	return runServers(ctx, logger, map[*http.Server]func() error{
		httpSrv:  httpSrv.ListenAndServe,
		httpsSrv: func() error { return httpsSrv.ListenAndServeTLS("", "") },
	})
}

func getCertsDirectory() string {
	execPath, err := os.Executable()
	if err != nil {
		return "certs"
	}
	return filepath.Join(filepath.Dir(execPath), "certs")
}

// normalizeDomain lowercases and drops a leading www.
func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(domain, "www.")
}

func generateSelfSignedCert(hosts []string) (certPEM, keyPEM []byte, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	var (
		dnsNames []string
		ipAddrs  []net.IP
	)
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if host, _, err := net.SplitHostPort(h); err == nil {
			h = host
		}
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			ipAddrs = append(ipAddrs, ip)
			continue
		}
		dnsNames = append(dnsNames, h)
	}
	if len(dnsNames) == 0 && len(ipAddrs) == 0 {
		dnsNames = []string{"localhost"}
	}
	var commonName string
	if len(dnsNames) > 0 {
		commonName = dnsNames[0]
	} else {
		commonName = ipAddrs[0].String()
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Lookbook Development"},
			CommonName:   commonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddrs,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	privBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	var certBuf, keyBuf bytes.Buffer
	if err := pem.Encode(&certBuf, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return nil, nil, fmt.Errorf("failed to encode certificate: %w", err)
	}
	if err := pem.Encode(&keyBuf, &pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}); err != nil {
		return nil, nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	return certBuf.Bytes(), keyBuf.Bytes(), nil
}
