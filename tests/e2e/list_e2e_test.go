package e2e

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkgrepo/tests/testutil"
)

func TestListCommandE2E(t *testing.T) {
	root := testutil.RepoRoot(t)
	localRoot := testutil.CopyTree(t, filepath.Join(root, "fixtures", "sdk"))
	sources := testutil.WriteFile(t, t.TempDir(), "sources.yaml", "sources:\n  - url: file://"+
		filepath.ToSlash(filepath.Join(root, "fixtures", "remote", "repository2.xml"))+"\n    name: fixtures\n")

	cmd := exec.Command("go", "run", "./cmd/pkgrepo", "list",
		"--local-root", localRoot,
		"--sources-file", sources,
		"--channel", "beta",
		"--log-level", "error",
	)
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "GO111MODULE=on")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	assert.Contains(t, string(out), "Installed packages:")
	assert.Regexp(t, `tools\s+22\.3\.4 -> 23\.0\.1`, string(out))
	assert.Regexp(t, `emulator\s+31\.1\.0 rc2\s+beta`, string(out))
}

func TestHashCommandE2E(t *testing.T) {
	root := testutil.RepoRoot(t)
	localRoot := testutil.CopyTree(t, filepath.Join(root, "fixtures", "sdk"))

	cmd := exec.Command("go", "run", "./cmd/pkgrepo", "hash", "--local-root", localRoot)
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "GO111MODULE=on")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	assert.Contains(t, string(out), localRoot)
}
