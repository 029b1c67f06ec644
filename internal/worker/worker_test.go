package worker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnrobert/lumauth/internal/ipc"
)

const helperEnv = "LUMAUTH_TEST_WORKER"

// TestMain doubles as the worker binary for the spawn tests.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		err := ServeInherited(New(newFakeBackend(), os.Getenv("LUMAUTH_TEST_GROUP")))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type fakeBackend struct {
	passwords map[string]string
	groups    map[string][]string
	calls     int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		passwords: map[string]string{
			"alice":   "pw1",
			"bob":     "pw2",
			"ghost":   "pw3",
			"broken":  "pw4",
			"panicky": "pw5",
		},
		groups: map[string][]string{
			"alice": {"alice", "lumauth"},
			"bob":   {"bob"},
		},
	}
}

func (f *fakeBackend) Verify(username, password string) (bool, error) {
	f.calls++
	switch username {
	case "broken":
		return false, errors.New("shadow unreadable")
	case "panicky":
		panic("boom")
	}
	return f.passwords[username] == password && password != "", nil
}

func (f *fakeBackend) Groups(username string) ([]string, error) {
	g, ok := f.groups[username]
	if !ok {
		return nil, errors.New("unknown user")
	}
	return g, nil
}

func requests(t *testing.T, reqs ...ipc.Request) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := ipc.NewEncoder(&buf)
	for _, r := range reqs {
		require.NoError(t, enc.WriteRequest(r))
	}
	return &buf
}

func responses(t *testing.T, out *bytes.Buffer) []bool {
	t.Helper()
	var got []bool
	dec := ipc.NewDecoder(out)
	for {
		r, err := dec.ReadResponse()
		if errors.Is(err, io.EOF) {
			return got
		}
		require.NoError(t, err)
		got = append(got, r.Result)
	}
}

func TestServeAnswersInOrder(t *testing.T) {
	in := requests(t,
		ipc.Authenticate("alice", "pw1"),
		ipc.Authenticate("alice", "nope"),
		ipc.Authenticate("mallory", "pw1"),
		ipc.Authenticate("bob", "pw2"),
		ipc.Stop(),
		ipc.Authenticate("alice", "pw1"),
	)
	var out bytes.Buffer
	fb := newFakeBackend()

	require.NoError(t, New(fb, "").Serve(in, &out))
	assert.Equal(t, []bool{true, false, false, true}, responses(t, &out))
	assert.Equal(t, 4, fb.calls, "nothing is read after stop")
}

func TestServeRequiredGroup(t *testing.T) {
	in := requests(t,
		ipc.Authenticate("alice", "pw1"),
		ipc.Authenticate("bob", "pw2"),
		ipc.Authenticate("ghost", "pw3"),
		ipc.Stop(),
	)
	var out bytes.Buffer
	require.NoError(t, New(newFakeBackend(), "lumauth").Serve(in, &out))
	assert.Equal(t, []bool{true, false, false}, responses(t, &out))
}

func TestAuthenticateReasons(t *testing.T) {
	w := New(newFakeBackend(), "lumauth")
	cases := map[string]struct {
		user, pw string
		reason   string
	}{
		"granted":    {"alice", "pw1", ReasonGranted},
		"bad pw":     {"alice", "pw2", ReasonInvalidCredentials},
		"policy":     {"bob", "pw2", ReasonPolicyDenied},
		"unresolved": {"ghost", "pw3", ReasonIdentityUnresolved},
		"backend":    {"broken", "pw4", ReasonBackendError},
		"panic":      {"panicky", "pw5", ReasonBackendPanic},
	}
	for name, c := range cases {
		ok, reason := w.authenticate(c.user, c.pw)
		assert.Equal(t, c.reason, reason, name)
		assert.Equal(t, c.reason == ReasonGranted, ok, name)
	}
}

func TestServeMalformedIsFatal(t *testing.T) {
	in := bytes.NewBufferString(`{"action":"authenticate","username":"alice","password":"pw1"}` + "\n" +
		`{"action":"authenticate","username":"alice"}` + "\n" +
		`{"action":"stop"}` + "\n")
	var out bytes.Buffer

	err := New(newFakeBackend(), "").Serve(in, &out)
	assert.ErrorIs(t, err, ErrMalformedRequest)
	assert.Equal(t, []bool{true}, responses(t, &out))
}

func TestServeEOF(t *testing.T) {
	var out bytes.Buffer
	err := New(newFakeBackend(), "").Serve(strings.NewReader(""), &out)
	assert.ErrorIs(t, err, ErrChannelClosed)

	err = New(newFakeBackend(), "").Serve(strings.NewReader(`{"action":"st`), &out)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func spawnHelper(t *testing.T, extraEnv ...string) *Process {
	t.Helper()
	p, err := Spawn(SpawnConfig{
		Path:   os.Args[0],
		Args:   []string{"-test.run=^$"},
		Env:    append([]string{helperEnv + "=1"}, extraEnv...),
		Stderr: io.Discard,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Kill()
		_ = p.Wait()
		_ = p.Close()
	})
	return p
}

func TestSpawnedWorkerStops(t *testing.T) {
	p := spawnHelper(t, "LUMAUTH_TEST_GROUP=lumauth")
	assert.Greater(t, p.Pid(), 0)

	enc := ipc.NewEncoder(p.Requests())
	dec := ipc.NewDecoder(p.Responses())

	require.NoError(t, enc.WriteRequest(ipc.Authenticate("alice", "pw1")))
	r, err := dec.ReadResponse()
	require.NoError(t, err)
	assert.True(t, r.Result)

	require.NoError(t, enc.WriteRequest(ipc.Authenticate("bob", "pw2")))
	r, err = dec.ReadResponse()
	require.NoError(t, err)
	assert.False(t, r.Result)

	require.NoError(t, enc.WriteRequest(ipc.Stop()))
	select {
	case <-p.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not exit after stop")
	}
	assert.NoError(t, p.Wait())
	assert.NoError(t, p.Wait(), "wait is repeatable")

	_, err = dec.ReadResponse()
	assert.ErrorIs(t, err, io.EOF)

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}

func TestSpawnedWorkerExitsOnGarbage(t *testing.T) {
	p := spawnHelper(t)

	_, err := io.WriteString(p.Requests(), "GET / HTTP/1.1\n")
	require.NoError(t, err)

	err = p.Wait()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.ExitCode())
}

func TestSpawnedWorkerExitsWhenParentCloses(t *testing.T) {
	p := spawnHelper(t)
	require.NoError(t, p.Close())

	err := p.Wait()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.ExitCode())
}

func TestSpawnedWorkerExitsWhenRequestsClose(t *testing.T) {
	p := spawnHelper(t)
	require.NoError(t, p.CloseRequests())
	require.NoError(t, p.CloseRequests())

	select {
	case <-p.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not exit on request EOF")
	}
	assert.NoError(t, p.Close())
}

// A worker spawned by a goroutine that dies while locked to its thread must
// survive that thread's exit.
func TestSpawnedWorkerOutlivesSpawningThread(t *testing.T) {
	spawned := make(chan *Process, 1)
	go func() {
		runtime.LockOSThread()
		p, err := Spawn(SpawnConfig{
			Path:   os.Args[0],
			Args:   []string{"-test.run=^$"},
			Env:    []string{helperEnv + "=1"},
			Stderr: io.Discard,
		})
		if err != nil {
			spawned <- nil
			return
		}
		spawned <- p
	}()
	p := <-spawned
	require.NotNil(t, p)
	t.Cleanup(func() {
		_ = p.Kill()
		_ = p.Wait()
		_ = p.Close()
	})

	select {
	case <-p.Exited():
		t.Fatalf("worker died with its spawning thread: %v", p.Wait())
	case <-time.After(500 * time.Millisecond):
	}

	enc := ipc.NewEncoder(p.Requests())
	dec := ipc.NewDecoder(p.Responses())
	require.NoError(t, enc.WriteRequest(ipc.Authenticate("alice", "pw1")))
	_, err := dec.ReadResponse()
	require.NoError(t, err)
}

func TestSpawnMissingExecutable(t *testing.T) {
	_, err := Spawn(SpawnConfig{Path: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}
