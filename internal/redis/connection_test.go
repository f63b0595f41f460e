package redis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	uri string
}

func (o testOptions) GetURI() string                   { return o.uri }
func (o testOptions) GetMaxConnections() int           { return 2 }
func (o testOptions) GetMaxIdle() int                  { return 1 }
func (o testOptions) GetIdleTimeout() time.Duration    { return time.Minute }
func (o testOptions) GetConnectTimeout() time.Duration { return 10 * time.Millisecond }
func (o testOptions) GetReadTimeout() time.Duration    { return time.Second }
func (o testOptions) GetWriteTimeout() time.Duration   { return time.Second }
func (o testOptions) GetUseTLS() bool                  { return false }
func (o testOptions) GetTLSSkipVerify() bool           { return false }
func (o testOptions) GetTLSCertPath() string           { return "" }

func TestDialRedisRejectsUnknownScheme(t *testing.T) {
	_, err := DialRedis(testOptions{uri: "http://localhost:6379/"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidScheme)
}

func TestCreatePool(t *testing.T) {
	pool, err := CreatePool(testOptions{uri: "redis://localhost:6379/"})
	require.NoError(t, err)
	require.NotNil(t, pool)
	defer pool.Close()

	assert.Equal(t, 2, pool.MaxActive)
	assert.Equal(t, 1, pool.MaxIdle)
}

func TestLoadCertPool(t *testing.T) {
	_, err := LoadCertPool(filepath.Join(t.TempDir(), "missing.pem"))
	require.Error(t, err)

	notPEM := filepath.Join(t.TempDir(), "junk.pem")
	require.NoError(t, os.WriteFile(notPEM, []byte("not a certificate"), 0o600))
	_, err = LoadCertPool(notPEM)
	require.Error(t, err)
}
