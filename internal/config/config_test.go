package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "kq.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaults(t *testing.T) {
	c := New(WithJWTKey("k"))
	require.NoError(t, c.Validate())
	require.Equal(t, StoragePostgres, c.Storage)
	require.Equal(t, int32(1000), c.TokenAllowance)
	require.Equal(t, 14*24*time.Hour, c.HandleRetention)
}

func TestLoad_FileThenFlagsThenOptions(t *testing.T) {
	p := writeFile(t, `
addr: ":7000"
storage: memory
jwt_key: from-file
handle_retention: 72h
token_allowance: 50
`)
	c, err := Load([]string{"-config", p, "-addr", ":7001"}, WithTokenAllowance(60))
	require.NoError(t, err)
	require.Equal(t, ":7001", c.Addr)
	require.Equal(t, StorageMemory, c.Storage)
	require.Equal(t, "from-file", c.JWTKey)
	require.Equal(t, 72*time.Hour, c.HandleRetention)
	require.Equal(t, int32(60), c.TokenAllowance)
	// untouched flags keep the file value, not the flag default
	require.Equal(t, 15*time.Minute, c.AccessTTL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)

	_, err = Load([]string{"-config", writeFile(t, "no_such_key: 1\n")})
	require.Error(t, err)

	_, err = Load([]string{"-bogus"})
	require.Error(t, err)

	// 2^32+1 would wrap to 1 if narrowed after parsing
	_, err = Load([]string{"-jwt-key", "k", "-storage", "memory", "-token-allowance", "4294967297"})
	require.ErrorContains(t, err, "token-allowance")

	c, err := Load([]string{"-jwt-key", "k", "-storage", "memory", "-token-allowance", "7"})
	require.NoError(t, err)
	require.Equal(t, int32(7), c.TokenAllowance)

	_, err = Load(nil)
	require.ErrorContains(t, err, "jwt")
}

func TestValidate(t *testing.T) {
	for name, opt := range map[string]Option{
		"storage":   WithStorage("redis"),
		"dsn":       WithDSN(""),
		"allowance": WithTokenAllowance(0),
		"retention": WithHandleRetention(0),
		"log level": WithLogLevel("loud"),
		"tls pair":  func(c *Config) { c.TLSCert = "cert.pem" },
	} {
		c := New(WithJWTKey("k"), opt)
		require.Error(t, c.Validate(), name)
	}
	require.NoError(t, New(WithJWTKey("k"), WithStorage(StorageMemory), WithDSN("")).Validate())
}

func TestLogger_WritesRotatedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "kq.log")
	c := New(WithJWTKey("k"), WithLogFile(p), WithLogLevel("debug"))
	log, err := c.Logger()
	require.NoError(t, err)
	log.Info("hello")
	_ = log.Sync()

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Contains(t, string(b), `"msg":"hello"`)
}
