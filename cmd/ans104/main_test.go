package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ans104/cidutil"
	"xdao.co/ans104/model"
)

const testSeed = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

// packFixture writes two payload files and packs them with ArFS metadata.
func packFixture(t *testing.T, dir string) (bundlePath string, ids []string) {
	t.Helper()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("bravo"), 0o644))

	in := filepath.Join(dir, "raw")
	require.NoError(t, os.MkdirAll(in, 0o755))
	bundlePath = filepath.Join(in, "bundle1")
	code, out, errOut := runCmd(t, "pack", "--seed-hex", testSeed, "--tag", "App=test", "--arfs", "-o", bundlePath, a, b)
	require.Equal(t, 0, code, errOut)

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		id, _, ok := strings.Cut(line, "\t")
		require.True(t, ok, line)
		ids = append(ids, id)
	}
	require.Len(t, ids, 2)
	return bundlePath, ids
}

func TestRun_Usage(t *testing.T) {
	code, _, _ := runCmd(t)
	assert.Equal(t, 2, code)
	code, _, errOut := runCmd(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "unknown command")
	code, out, _ := runCmd(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "ans104 unpack")
}

func TestPackUnpack_Dir(t *testing.T) {
	dir := t.TempDir()
	_, ids := packFixture(t, dir)
	outDir := filepath.Join(dir, "unbundled")

	code, _, errOut := runCmd(t, "unpack", "--input-dir", filepath.Join(dir, "raw"), "--output-dir", outDir, "--workers", "2")
	require.Equal(t, 0, code, errOut)

	entries, err := os.ReadDir(filepath.Join(outDir, "bundle1"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	// Each file yields a data item record and a linked payload written by its
	// metadata item.
	assert.Len(t, names, 6)
	for _, id := range ids {
		assert.Contains(t, names, id)
		assert.Contains(t, names, id+".TAGS.json")
	}
	got, err := os.ReadFile(filepath.Join(outDir, "bundle1", ids[0]))
	require.NoError(t, err)
	assert.Contains(t, string(got), `"dataTxId":"`+ids[0]+`"`)
}

func TestVerifyAndInspect(t *testing.T) {
	dir := t.TempDir()
	bundlePath, ids := packFixture(t, dir)

	code, out, errOut := runCmd(t, "verify", bundlePath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "bundle1: 4 verified, 0 failed")

	code, out, _ = runCmd(t, "inspect", "--items", bundlePath)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "items: 4")
	assert.Contains(t, out, "id="+ids[0])
	assert.Contains(t, out, "tag: ArFS=0.11")

	raw, err := os.ReadFile(bundlePath)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(bundlePath, raw, 0o644))

	code, out, _ = runCmd(t, "verify", "--format", "json", bundlePath)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"failed": 1`)

	code, out, _ = runCmd(t, "verify", "--format", "cbor", bundlePath)
	assert.Equal(t, 1, code)
	reports, err := model.DecodeCBORReports(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Failed)
}

func TestPack_RejectsBadInput(t *testing.T) {
	f := filepath.Join(t.TempDir(), "x")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	code, _, _ := runCmd(t, "pack", "--seed-hex", "abcd", "-o", f+".bundle", f)
	assert.Equal(t, 2, code)
	code, _, _ = runCmd(t, "pack", "--seed-hex", testSeed, "--tag", "novalue", "-o", f+".bundle", f)
	assert.Equal(t, 2, code)
	code, _, _ = runCmd(t, "pack", "--seed-hex", testSeed, "--scheme", "rsa", "-o", f+".bundle", f)
	assert.Equal(t, 2, code)
}

func TestCID(t *testing.T) {
	f := filepath.Join(t.TempDir(), "x")
	require.NoError(t, os.WriteFile(f, []byte("hello"), 0o644))
	code, out, _ := runCmd(t, "cid", f)
	require.Equal(t, 0, code)
	assert.Equal(t, cidutil.CIDv1RawSHA256([]byte("hello"))+"\n", out)
}

func TestBackends(t *testing.T) {
	code, out, _ := runCmd(t, "backends")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "localfs\t")
	assert.Contains(t, out, "grpc\t")
}

func TestUnpackCAS_ArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, ids := packFixture(t, dir)
	outDir := filepath.Join(dir, "out")
	storeA := filepath.Join(dir, "storeA")
	storeB := filepath.Join(dir, "storeB")

	cfgPath := filepath.Join(dir, "ans104.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
input_dir: `+filepath.Join(dir, "raw")+`
output_dir: `+outDir+`
sink: cas
store:
  backends:
    - name: localfs
      config: {dir: `+storeA+`}
log:
  level: error
`), 0o644))

	code, _, errOut := runCmd(t, "unpack", "--config", cfgPath)
	require.Equal(t, 0, code, errOut)
	index := filepath.Join(outDir, "bundle1.cids.json")
	require.FileExists(t, index)

	storeACfg := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(storeACfg, []byte("backends:\n  - name: localfs\n    config: {dir: "+storeA+"}\n"), 0o644))
	storeBCfg := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(storeBCfg, []byte("backends:\n  - name: localfs\n    config: {dir: "+storeB+"}\n"), 0o644))

	tarPath := filepath.Join(dir, "payloads.tar")
	code, _, errOut = runCmd(t, "archive", "export", "--store", storeACfg, "--index", index, "--zstd", "-o", tarPath)
	require.Equal(t, 0, code, errOut)

	code, out, errOut := runCmd(t, "archive", "import", "--store", storeBCfg, tarPath)
	require.Equal(t, 0, code, errOut)
	for _, id := range ids {
		assert.Contains(t, out, `"name": "`+id+`"`)
	}
}

func TestStorePutGet(t *testing.T) {
	dir := t.TempDir()
	storeCfg := filepath.Join(dir, "store.yaml")
	require.NoError(t, os.WriteFile(storeCfg, []byte("backends:\n  - name: localfs\n    config: {dir: "+filepath.Join(dir, "cas")+"}\n"), 0o644))
	f := filepath.Join(dir, "payload")
	require.NoError(t, os.WriteFile(f, []byte("hello"), 0o644))

	code, out, errOut := runCmd(t, "store", "put", "--store", storeCfg, f)
	require.Equal(t, 0, code, errOut)
	id := strings.TrimSpace(out)
	assert.Equal(t, cidutil.CIDv1RawSHA256([]byte("hello")), id)

	code, out, errOut = runCmd(t, "store", "get", "--store", storeCfg, "--cid", id)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "hello", out)

	code, _, _ = runCmd(t, "store", "get", "--store", storeCfg, "--cid", "not-a-cid")
	assert.Equal(t, 2, code)
}
