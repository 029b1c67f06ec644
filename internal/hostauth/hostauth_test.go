package hostauth

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hnrobert/lumauth/internal/hostfs"
	"github.com/hnrobert/lumauth/internal/userdb"
)

type fixture struct {
	root hostfs.Root
}

func newFixture(t *testing.T, shadow string) fixture {
	t.Helper()
	dir := t.TempDir()
	etc := filepath.Join(dir, "etc")
	require.NoError(t, os.MkdirAll(etc, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(etc, "passwd"), []byte(
		"root:x:0:0:root:/root:/bin/bash\n"+
			"alice:x:1000:1000::/home/alice:/bin/bash\n"+
			"bob:x:1001:100::/home/bob:/bin/sh\n"+
			"nobody:x:65534:65534:nobody:/nonexistent:/usr/sbin/nologin\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(etc, "group"), []byte(
		"root:x:0:\nusers:x:100:\nalice:x:1000:\nsudo:x:27:alice\nops:x:500:bob,alice\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(etc, "shadow"), []byte(shadow), 0600))
	return fixture{root: hostfs.Root(dir)}
}

func sha512Hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := sha512_crypt.New().Generate([]byte(pw), []byte("$6$abcdefgh"))
	require.NoError(t, err)
	return h
}

func TestVerifyCryptFormats(t *testing.T) {
	h5, err := sha256_crypt.New().Generate([]byte("pw5"), []byte("$5$saltsalt"))
	require.NoError(t, err)
	h1, err := md5_crypt.New().Generate([]byte("pw1"), []byte("$1$saltsalt"))
	require.NoError(t, err)
	hb, err := bcrypt.GenerateFromPassword([]byte("pwb"), bcrypt.MinCost)
	require.NoError(t, err)

	fx := newFixture(t, "alice:"+sha512Hash(t, "pw6")+":19000:0:99999:7:::\n"+
		"bob:"+h5+":19000::::::\n"+
		"carol:"+h1+":19000::::::\n"+
		"dave:"+string(hb)+":19000::::::\n")
	b := New(fx.root, Options{})

	cases := []struct {
		user, pw string
		want     bool
	}{
		{"alice", "pw6", true},
		{"alice", "wrong", false},
		{"bob", "pw5", true},
		{"bob", "pw6", false},
		{"carol", "pw1", true},
		{"dave", "pwb", true},
		{"dave", "nope", false},
		{"nobody", "pw6", false},
		{"", "pw6", false},
		{"-alice", "pw6", false},
	}
	for _, c := range cases {
		ok, err := b.Verify(c.user, c.pw)
		require.NoError(t, err, c.user)
		assert.Equal(t, c.want, ok, "%s/%s", c.user, c.pw)
	}
}

func TestVerifyLockedAndExpired(t *testing.T) {
	h := sha512Hash(t, "pw")
	fx := newFixture(t, "alice:!"+h+":19000::::::\n"+
		"bob:"+h+":19000:::::20000:\n")
	b := New(fx.root, Options{})

	ok, err := b.Verify("alice", "pw")
	require.NoError(t, err)
	assert.False(t, ok, "locked account")

	b.now = func() time.Time { return time.Unix(19999*86400, 0) }
	ok, err = b.Verify("bob", "pw")
	require.NoError(t, err)
	assert.True(t, ok)

	b.now = func() time.Time { return time.Unix(20001*86400, 0) }
	ok, err = b.Verify("bob", "pw")
	require.NoError(t, err)
	assert.False(t, ok, "expired account")
}

func TestVerifyUnsupportedHash(t *testing.T) {
	fx := newFixture(t, "alice:$y$j9T$salt$hash:19000::::::\n")

	b := New(fx.root, Options{})
	_, err := b.Verify("alice", "pw")
	assert.ErrorIs(t, err, ErrUnsupportedHash)

	var (
		called string
		cred   *syscall.Credential
	)
	b = New(fx.root, Options{SuFallback: true, SuTimeout: time.Second})
	b.suOK = true // the fixture root stands in for /
	b.euid = func() int { return 0 }
	b.su = func(ctx context.Context, c *syscall.Credential, username, password string) (bool, error) {
		called, cred = username, c
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return password == "pw", nil
	}
	ok, err := b.Verify("alice", "pw")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", called)
	require.NotNil(t, cred, "root must not run su as itself")
	assert.EqualValues(t, 65534, cred.Uid)
	assert.EqualValues(t, 65534, cred.Gid)
	assert.Empty(t, cred.Groups)

	ok, err = b.Verify("alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSuFallbackNeedsHostRoot(t *testing.T) {
	fx := newFixture(t, "alice:$y$j9T$salt$hash:19000::::::\n")

	b := New(fx.root, Options{SuFallback: true})
	b.su = func(context.Context, *syscall.Credential, string, string) (bool, error) {
		t.Fatal("su must not run against a foreign host root")
		return true, nil
	}
	ok, err := b.Verify("alice", "anything")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnsupportedHash)

	assert.True(t, New(hostfs.Root("/"), Options{SuFallback: true}).suOK)
	assert.True(t, New(hostfs.Root(""), Options{SuFallback: true}).suOK)
	assert.False(t, New(hostfs.Root("/"), Options{}).suOK)
}

func TestSuCredential(t *testing.T) {
	fx := newFixture(t, "")

	b := New(fx.root, Options{})
	b.euid = func() int { return 1000 }
	cred, err := b.suCredential()
	require.NoError(t, err)
	assert.Nil(t, cred, "an unprivileged caller is prompted anyway")

	b.euid = func() int { return 0 }
	for _, user := range []string{"root", "missing"} {
		b.opts.SuUser = user
		_, err := b.suCredential()
		assert.ErrorIs(t, err, ErrAuthBackend, user)
	}

	b.opts.SuUser = "bob"
	cred, err = b.suCredential()
	require.NoError(t, err)
	assert.EqualValues(t, 1001, cred.Uid)
	assert.EqualValues(t, 100, cred.Gid)
}

// TestSuAsRootRejectsWrongPassword runs the real su(1) from a root process
// against a locked host account.
func TestSuAsRootRejectsWrongPassword(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("needs root")
	}
	if _, err := exec.LookPath("su"); err != nil {
		t.Skip("su not installed")
	}
	sh, err := userdb.LoadShadow("/etc/shadow")
	if err != nil {
		t.Skipf("host shadow unreadable: %v", err)
	}
	target := ""
	for _, name := range []string{"daemon", "bin", "sys", "nobody"} {
		if e, ok := sh.Lookup(name); ok && (strings.HasPrefix(e.Hash, "*") || strings.HasPrefix(e.Hash, "!")) {
			target = name
			break
		}
	}
	if target == "" {
		t.Skip("no locked system account to target")
	}

	b := New(hostfs.Root("/"), Options{SuFallback: true, SuTimeout: 5 * time.Second})
	if _, err := b.suCredential(); err != nil {
		t.Skipf("no unprivileged su account: %v", err)
	}
	ok, _ := b.verifyWithSu(target, "definitely-not-the-password")
	assert.False(t, ok, "su fallback accepted a wrong password")
}

func TestVerifyMissingShadow(t *testing.T) {
	b := New(hostfs.Root(t.TempDir()), Options{})
	_, err := b.Verify("alice", "pw")
	assert.ErrorIs(t, err, ErrAuthBackend)
}

func TestGroups(t *testing.T) {
	fx := newFixture(t, "")
	b := New(fx.root, Options{})

	groups, err := b.Groups("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "sudo", "ops"}, groups)

	groups, err = b.Groups("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "ops"}, groups)

	_, err = b.Groups("mallory")
	assert.ErrorIs(t, err, ErrUnknownUser)
}
