package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunQuery(t *testing.T) {
	input := writeInput(t, "books.csv", "book,user\nbookA,bob\n,bob\nbookB,bob\n,tim\n")

	code, stdout, stderr := runCLI(
		"-input", input,
		"-table", "books",
		"-query", "SELECT CASE WHEN book IS NULL THEN user ELSE book END AS a FROM books",
	)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "a\nbookA\nbob\nbookB\ntim\n", stdout)
}

func TestRunGroupBy(t *testing.T) {
	input := writeInput(t, "vals.csv", "key,val\na,1\nb,2\nb,\n")
	query := "SELECT key, CASE WHEN NULL_COUNT(val) > 0 THEN NULL ELSE SUM(val) END AS s FROM t GROUP BY key"

	for _, partitions := range []string{"0", "2"} {
		code, stdout, stderr := runCLI("-input", input, "-partitions", partitions, "-query", query)
		require.Equal(t, 0, code, stderr)
		assert.Equal(t, "key,s\na,1\nb,\n", stdout)
	}
}

func TestRunOutputFile(t *testing.T) {
	input := writeInput(t, "vals.csv", "key,val\na,1\nb,2\na,3\n")
	output := filepath.Join(t.TempDir(), "out.parquet")

	code, stdout, stderr := runCLI("-input", input, "-output", output,
		"-query", "SELECT key, SUM(val) AS s FROM t GROUP BY key")
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout)

	code, stdout, stderr = runCLI("-input", output, "-query", "SELECT key, s * 2 AS d FROM t")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "key,d\na,8\nb,4\n", stdout)
}

func TestRunExplain(t *testing.T) {
	input := writeInput(t, "vals.csv", "key,val\na,1\n")

	code, stdout, stderr := runCLI("-input", input, "-explain", "-partitions", "3",
		"-query", "SELECT key, SUM(val) AS s FROM t GROUP BY key")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "agg_partitioned(3, ")
}

func TestRunConfigFile(t *testing.T) {
	input := writeInput(t, "vals.csv", "key,val\na,1\n")
	cfg := writeInput(t, "whenthen.yaml", "worker_pool_size: 2\npartition_count: 2\nlog:\n  level: error\n")

	code, stdout, stderr := runCLI("-config", cfg, "-metrics", "-input", input,
		"-query", "SELECT key, SUM(val) AS s FROM t GROUP BY key")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "key,s\na,1\n", stdout)
	assert.Contains(t, stderr, "group_by_agg_partitioned: 1")

	bad := writeInput(t, "bad.yaml", "worker_pool_size: -1\n")
	code, _, stderr = runCLI("-config", bad, "-input", input, "-query", "SELECT key FROM t")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "loading configuration")
}

func TestRunErrors(t *testing.T) {
	input := writeInput(t, "vals.csv", "key,val\na,1\n")

	code, _, stderr := runCLI("-query", "SELECT key FROM t")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "-input and -query are required")

	code, _, stderr = runCLI("-input", input, "-query", "SELECT nope FROM t")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "error:")

	code, _, _ = runCLI("-input", filepath.Join(t.TempDir(), "missing.csv"), "-query", "SELECT key FROM t")
	assert.Equal(t, 1, code)

	code, _, _ = runCLI("-h")
	assert.Equal(t, 0, code)
}

func TestRunVersion(t *testing.T) {
	code, stdout, _ := runCLI("-version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "whenthen ")
}
