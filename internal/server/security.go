package server

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/dtroode/accessgate/internal/model"
)

// NewSecurityLayer returns the listener factory shared by the HTTP and gRPC
// servers.
func NewSecurityLayer(enableHTTPS bool, certFileName, privateKeyFileName string) model.SecurityLayer {
	if enableHTTPS {
		return NewTLSListener(certFileName, privateKeyFileName)
	}
	return NewPlainListener()
}

// TLSListener opens TLS listeners from a certificate and key on disk.
// Files are read on every Listen so a restarted server picks up rotated
// certificates.
type TLSListener struct {
	certFileName       string
	privateKeyFileName string
}

// NewTLSListener creates a new TLSListener instance.
//
// Parameters:
//   - certFileName: Path to the PEM certificate chain
//   - privateKeyFileName: Path to the PEM private key
func NewTLSListener(certFileName, privateKeyFileName string) *TLSListener {
	return &TLSListener{
		certFileName:       certFileName,
		privateKeyFileName: privateKeyFileName,
	}
}

// Listen loads the key pair and listens on addr using protocol.
func (l *TLSListener) Listen(protocol, addr string) (net.Listener, error) {
	tlsConfig, err := l.config()
	if err != nil {
		return nil, err
	}
	ln, err := tls.Listen(protocol, addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s %s: %w", protocol, addr, err)
	}
	return ln, nil
}

func (l *TLSListener) config() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(l.certFileName, l.privateKeyFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// PlainListener opens unencrypted listeners. Used behind a TLS terminating
// proxy or in development.
type PlainListener struct{}

func NewPlainListener() *PlainListener {
	return &PlainListener{}
}

func (l *PlainListener) Listen(protocol, addr string) (net.Listener, error) {
	return net.Listen(protocol, addr)
}
