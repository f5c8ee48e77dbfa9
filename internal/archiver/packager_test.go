package archiver

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTool drops an executable shell script standing in for 7z.
func writeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools need a unix shell")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	p := filepath.Join(t.TempDir(), "fake7z")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o700))
	return p
}

// copyTool records its arguments and copies the last argument (input) to the one before it (output).
const copyTool = `
prev=""
last=""
for a in "$@"; do prev="$last"; last="$a"; done
printf '%s\n' "$@" > "$prev.args"
cp "$last" "$prev"
`

func TestCommandPackager_Success(t *testing.T) {
	tool := writeTool(t, copyTool)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.zip")
	require.NoError(t, os.WriteFile(in, []byte("payload"), 0o600))

	p := NewCommandPackager(tool, 5*time.Second, testLogger())
	require.NoError(t, p.Package(context.Background(), in, out, "s3cretPass"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	args, err := os.ReadFile(out + ".args")
	require.NoError(t, err)
	assert.Equal(t, "a\n-ps3cretPass\n-y\n-mem=AES256\n"+out+"\n"+in+"\n", string(args))
}

func TestCommandPackager_NonZeroExit(t *testing.T) {
	tool := writeTool(t, "echo 'ERROR: cannot open file' >&2\nexit 2\n")
	dir := t.TempDir()

	p := NewCommandPackager(tool, 5*time.Second, testLogger())
	err := p.Package(context.Background(), filepath.Join(dir, "in.txt"), filepath.Join(dir, "out.zip"), "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPackaging)
	assert.Contains(t, err.Error(), "code 2")
	assert.NotContains(t, err.Error(), "cannot open file", "stderr is logged, not returned")
}

func TestCommandPackager_Timeout(t *testing.T) {
	tool := writeTool(t, "exec sleep 5\n")
	dir := t.TempDir()

	p := NewCommandPackager(tool, 100*time.Millisecond, testLogger())
	start := time.Now()
	err := p.Package(context.Background(), filepath.Join(dir, "in.txt"), filepath.Join(dir, "out.zip"), "pw")
	assert.ErrorIs(t, err, ErrPackaging)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestCommandPackager_MissingTool(t *testing.T) {
	p := NewCommandPackager(filepath.Join(t.TempDir(), "does-not-exist"), time.Second, testLogger())
	err := p.Package(context.Background(), "in.txt", "out.zip", "pw")
	assert.ErrorIs(t, err, ErrPackaging)
}

func TestArchive_WithCommandPackager(t *testing.T) {
	tool := writeTool(t, copyTool)
	f := newFixture(t, NewCommandPackager(tool, 5*time.Second, testLogger()), nil)

	artifact, err := f.service.Archive(context.Background(), text("Hello World"))
	require.NoError(t, err)
	assert.FileExists(t, artifact.StoragePath)

	// the fake tool leaves its .args file next to the staged archive; no .txt may remain
	for _, name := range listDir(t, f.workDir) {
		assert.NotEqual(t, ".txt", filepath.Ext(name), name)
	}
}

func TestToolArgs(t *testing.T) {
	assert.Equal(t, []string{"a", "-ppw", "-y", "-mem=AES256", "/o.zip", "/i.txt"}, toolArgs("/i.txt", "/o.zip", "pw"))
	assert.Equal(t, []string{"a", "-ppw", "-y", "/o.7z", "/i.txt"}, toolArgs("/i.txt", "/o.7z", "pw"))
}
