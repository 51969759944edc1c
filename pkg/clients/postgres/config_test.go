package postgres

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeTestCA writes a throwaway self-signed CA to a temp file.
func writeTestCA(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "identity test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return path
}

// ===========================================================================
// Secret
// ===========================================================================

func TestSecret_Redacts(t *testing.T) {
	t.Parallel()
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", s.GoString())
	assert.Equal(t, "hunter2", s.Value())

	out, err := yaml.Marshal(Config{Password: s})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
}

// ===========================================================================
// Validate
// ===========================================================================

func TestConfig_Validate_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{Database: "identity", User: "identity"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, SSLModePrefer, cfg.SSLMode)
	assert.Equal(t, DefaultMaxConns, cfg.MaxConns)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
}

func TestConfig_Validate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty database", Config{User: "u"}, "database must not be empty"},
		{"empty user", Config{Database: "d"}, "user must not be empty"},
		{"port too high", Config{Database: "d", User: "u", Port: 70000}, "port must be between"},
		{"bad ssl mode", Config{Database: "d", User: "u", SSLMode: "sometimes"}, "ssl_mode"},
		{"max below min", Config{Database: "d", User: "u", MaxConns: 1, MinConns: 4}, "max_conns"},
		{"missing root cert", Config{Database: "d", User: "u", SSLRootCert: "/nonexistent/ca.pem"}, "ssl_root_cert"},
		{"uri bad scheme", Config{URI: "mysql://u:p@db/identity"}, "scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Validate_URISkipsStructuredChecks(t *testing.T) {
	t.Parallel()
	for _, uri := range []string{"postgres://u:p@db:5432/identity", "postgresql://db/identity"} {
		cfg := Config{URI: uri}
		require.NoError(t, cfg.Validate(), uri)
		assert.Equal(t, DefaultMaxConns, cfg.MaxConns)
		assert.Equal(t, "identity", cfg.DatabaseName())
	}
}

// ===========================================================================
// ConnectionString
// ===========================================================================

func TestConfig_ConnectionString(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Host:           "db.internal",
		Port:           5433,
		Database:       "identity",
		User:           "svc",
		Password:       Secret("p@ss/w:rd"),
		SSLMode:        SSLModeRequire,
		ConnectTimeout: 15 * time.Second,
	}
	s := cfg.ConnectionString()
	assert.True(t, strings.HasPrefix(s, "postgres://svc:"), s)
	assert.Contains(t, s, "@db.internal:5433/identity?")
	assert.Contains(t, s, "sslmode=require")
	assert.Contains(t, s, "connect_timeout=15")
	assert.NotContains(t, s, "p@ss/w:rd", "password must be escaped")

	assert.Equal(t, "postgres://x", (&Config{URI: "postgres://x", Host: "ignored"}).ConnectionString())
}

// ===========================================================================
// TLS
// ===========================================================================

func TestConfig_tlsConfig(t *testing.T) {
	t.Parallel()
	ca := writeTestCA(t)

	none, err := (&Config{SSLMode: SSLModeRequire}).tlsConfig()
	require.NoError(t, err)
	assert.Nil(t, none)

	disabled, err := (&Config{SSLMode: SSLModeDisable, SSLRootCert: ca}).tlsConfig()
	require.NoError(t, err)
	assert.Nil(t, disabled)

	full, err := (&Config{Host: "db.example.com", SSLMode: SSLModeVerifyFull, SSLRootCert: ca}).tlsConfig()
	require.NoError(t, err)
	assert.Equal(t, "db.example.com", full.ServerName)
	assert.False(t, full.InsecureSkipVerify)

	caOnly, err := (&Config{Host: "db.example.com", SSLMode: SSLModeVerifyCA, SSLRootCert: ca}).tlsConfig()
	require.NoError(t, err)
	assert.True(t, caOnly.InsecureSkipVerify)
	require.NotNil(t, caOnly.VerifyConnection)
	assert.ErrorContains(t, caOnly.VerifyConnection(tls.ConnectionState{}), "did not present a certificate")

	req, err := (&Config{SSLMode: SSLModeRequire, SSLRootCert: ca}).tlsConfig()
	require.NoError(t, err)
	assert.True(t, req.InsecureSkipVerify)
}

func TestConfig_tlsConfig_InvalidPEM(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	_, err := (&Config{SSLMode: SSLModeVerifyFull, SSLRootCert: path}).tlsConfig()
	assert.ErrorContains(t, err, "failed to parse")
}

func TestTruncateSQL(t *testing.T) {
	t.Parallel()
	short := "SELECT 1"
	assert.Equal(t, short, truncateSQL(short))

	long := strings.Repeat("x", maxSQLTruncateLen+20)
	got := truncateSQL(long)
	assert.Len(t, got, maxSQLTruncateLen+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}
