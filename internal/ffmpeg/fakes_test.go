package ffmpeg

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFakeBinary writes an executable shell script standing in for ffmpeg or
// ffprobe and returns its path
func writeFakeBinary(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}
	path := filepath.Join(t.TempDir(), name)
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

// touchLastArg is a script fragment creating the file named by the last argument
const touchLastArg = `for last; do :; done
printf 'data' > "$last"`
