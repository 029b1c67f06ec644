package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnrobert/lumauth/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		cfgFile = ""
		forceInit = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestWorkerArgs(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.HostRoot = "/host"
	args := workerArgs(cfg.Auth, cfg.Logging)
	assert.Equal(t, []string{"worker", "--host-root=/host", "--su-timeout=6s", "--log-level=INFO", "--log-format=text", "--su-user=nobody"}, args)

	cfg.Auth.RequiredGroup = "lumauth"
	cfg.Auth.SuFallback = false
	args = workerArgs(cfg.Auth, cfg.Logging)
	assert.Contains(t, args, "--required-group=lumauth")
	assert.Contains(t, args, "--su-fallback=false")
	assert.NotContains(t, args, "--su-user=nobody")
}

func TestWorkerArgsParse(t *testing.T) {
	auth := config.AuthConfig{HostRoot: "/host", RequiredGroup: "staff", SuFallback: true, SuTimeout: 3 * time.Second, SuUser: "lumauth"}
	args := workerArgs(auth, config.LoggingConfig{Level: "WARN", Format: "json"})
	require.NoError(t, workerCmd.Flags().Parse(args[1:]))
	assert.Equal(t, "/host", workerHostRoot)
	assert.Equal(t, "staff", workerRequiredGroup)
	assert.True(t, workerSuFallback)
	assert.Equal(t, 3*time.Second, workerSuTimeout)
	assert.Equal(t, "lumauth", workerSuUser)
	assert.Equal(t, "WARN", workerLogLevel)
	assert.Equal(t, "json", workerLogFormat)
}

func TestConfigInitShowValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = execute(t, "config", "init", "--config", path)
	assert.Error(t, err, "existing file needs --force")

	_, err = execute(t, "config", "init", "--force", "--config", path)
	require.NoError(t, err)

	out, err = execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	t.Setenv("LUMAUTH_SERVER_JWT_SECRET", "do-not-print-this-secret")
	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "do-not-print-this-secret")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "do-not-print-this-secret", cfg.Server.JWTSecret)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lumauthd "+Version)
}

func TestPersistConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Persistence.Type = "redis"
	cfg.Session.Persistence.Redis.Addr = "127.0.0.1:6390"
	cfg.Session.Persistence.Redis.DB = 2

	p := persistConfig(cfg)
	assert.Equal(t, "redis", p.Type)
	assert.Equal(t, "127.0.0.1:6390", p.Redis.Addr)
	assert.Equal(t, 2, p.Redis.DB)
}

type fakeWorker struct {
	exited chan struct{}
}

func (f *fakeWorker) Exited() <-chan struct{} { return f.exited }
func (f *fakeWorker) Wait() error             { return errors.New("signal: killed") }
func (f *fakeWorker) Pid() int                { return 4242 }

type fakeClient struct {
	done chan struct{}
	err  error
}

func (f *fakeClient) Done() <-chan struct{} { return f.done }
func (f *fakeClient) Err() error            { return f.err }

func TestAwaitShutdown(t *testing.T) {
	newWatch := func() (*fakeClient, *fakeWorker) {
		return &fakeClient{done: make(chan struct{})}, &fakeWorker{exited: make(chan struct{})}
	}

	t.Run("worker exits", func(t *testing.T) {
		client, proc := newWatch()
		close(proc.exited)
		exited, err := awaitShutdown(nil, client, proc, nil)
		assert.True(t, exited)
		assert.NoError(t, err)
	})

	t.Run("client fault", func(t *testing.T) {
		client, proc := newWatch()
		client.err = errors.New("bad response")
		close(client.done)
		exited, err := awaitShutdown(nil, client, proc, nil)
		assert.False(t, exited)
		assert.NoError(t, err)
	})

	t.Run("signal", func(t *testing.T) {
		client, proc := newWatch()
		sigs := make(chan os.Signal, 1)
		sigs <- syscall.SIGTERM
		exited, err := awaitShutdown(sigs, client, proc, nil)
		assert.False(t, exited)
		assert.NoError(t, err)
	})

	t.Run("server error", func(t *testing.T) {
		client, proc := newWatch()
		serverErr := make(chan error, 1)
		serverErr <- errors.New("address already in use")
		_, err := awaitShutdown(nil, client, proc, serverErr)
		assert.EqualError(t, err, "address already in use")
	})
}
