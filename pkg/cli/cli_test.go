package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/emqu/pkg/emqu"
	"github.com/perbu/emqu/pkg/store"
)

// execute runs the root command with args and returns what it wrote to stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := executeWithLogs(t, args...)
	return stdout, err
}

// executeWithLogs is execute that also returns the log output
func executeWithLogs(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := RootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--env-file="))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestEmbedAndQuery(t *testing.T) {
	t.Run("Should write an empty store for an empty match and query it without error", func(t *testing.T) {
		dir := t.TempDir()
		output := filepath.Join(dir, "out.gob")

		stdout, err := execute(t, "embed", filepath.Join(dir, "*.txt"), output, "--provider", "hash")
		require.NoError(t, err)
		assert.Equal(t, "Embedding 0 document(s).\nSuccessfully generated embeddings for 0 documents\n", stdout)

		records, err := store.Read(context.Background(), output, "")
		require.NoError(t, err)
		assert.Empty(t, records)

		for _, k := range []string{"0", "1", "10"} {
			stdout, err = execute(t, "query", output, "anything", "--provider", "hash", "-k", k)
			require.NoError(t, err)
			assert.Empty(t, stdout)
		}
	})

	t.Run("Should write an empty store without loading the model", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("EMQU_EMBEDDER_API_KEY", "")
		dir := t.TempDir()
		output := filepath.Join(dir, "out.json")

		stdout, err := execute(t, "embed", filepath.Join(dir, "*.txt"), output)
		require.NoError(t, err)
		assert.Equal(t, "Embedding 0 document(s).\nSuccessfully generated embeddings for 0 documents\n", stdout)

		records, err := store.Read(context.Background(), output, "")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Should return the closest document first", func(t *testing.T) {
		dir := t.TempDir()
		docs := filepath.Join(dir, "docs")
		require.NoError(t, os.Mkdir(docs, 0o755))
		writeFiles(t, docs, map[string]string{
			"a.txt": "the cat sat on the mat\n",
			"b.txt": "stock market prices fell sharply\n",
			"c.txt": "rain is expected tomorrow morning\n",
		})
		output := filepath.Join(dir, "store.json")

		stdout, err := execute(t, "embed", filepath.Join(docs, "*.txt"), output, "--provider", "hash")
		require.NoError(t, err)
		assert.Equal(t, "Embedding 3 document(s).\nSuccessfully generated embeddings for 3 documents\n", stdout)

		records, err := store.Read(context.Background(), output, "")
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "From: a.txt\nthe cat sat on the mat\n", records[0].Label)
		assert.Equal(t, "From: b.txt\nstock market prices fell sharply\n", records[1].Label)
		assert.Equal(t, "From: c.txt\nrain is expected tomorrow morning\n", records[2].Label)

		stdout, err = execute(t, "query", output, "the cat sat on the mat", "--provider", "hash")
		require.NoError(t, err)
		assert.Equal(t, "From: a.txt\nthe cat sat on the mat\n\n", stdout)

		stdout, err = execute(t, "query", output, "the cat sat on the mat", "--provider", "hash", "--top-k", "5")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stdout, "From: a.txt\nthe cat sat on the mat\n\n"))
		assert.Equal(t, 3, strings.Count(stdout, "From: "))
	})

	t.Run("Should print scores when asked", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"only.md": "hello world"})
		output := filepath.Join(dir, "store.db")

		_, err := execute(t, "embed", filepath.Join(dir, "*.md"), output, "--provider", "hash")
		require.NoError(t, err)

		stdout, err := execute(t, "query", output, "hello world", "--provider", "hash", "--scores")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stdout, "Score: "), stdout)
		assert.Contains(t, stdout, "From: only.md\nhello world\n\n")
	})

	t.Run("Should drop results below the threshold", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"only.md": "hello world"})
		output := filepath.Join(dir, "store.bolt")

		_, err := execute(t, "embed", filepath.Join(dir, "*.md"), output, "--provider", "hash")
		require.NoError(t, err)

		stdout, err := execute(t, "query", output, "hello world", "--provider", "hash", "--threshold", "1.5")
		require.NoError(t, err)
		assert.Empty(t, stdout)
	})

	t.Run("Should reject a negative top-k", func(t *testing.T) {
		dir := t.TempDir()
		output := filepath.Join(dir, "out.gob")
		_, err := execute(t, "embed", filepath.Join(dir, "*.txt"), output, "--provider", "hash")
		require.NoError(t, err)

		_, err = execute(t, "query", output, "anything", "--provider", "hash", "--top-k=-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, emqu.ErrInvalidArgument)
	})

	t.Run("Should fail on a missing store", func(t *testing.T) {
		_, err := execute(t, "query", filepath.Join(t.TempDir(), "missing.gob"), "anything", "--provider", "hash")
		require.Error(t, err)
		assert.ErrorIs(t, err, emqu.ErrIO)
	})

	t.Run("Should fail on a malformed glob", func(t *testing.T) {
		_, err := execute(t, "embed", "[", filepath.Join(t.TempDir(), "out.gob"), "--provider", "hash")
		require.Error(t, err)
		assert.ErrorIs(t, err, emqu.ErrGlob)
	})
}

func TestChunk(t *testing.T) {
	t.Run("Should write one file per chunk with a provenance header", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"notes.txt": "one two three\nfour five six\n"})
		outDir := filepath.Join(dir, "chunks", "nested")

		stdout, err := execute(t, "chunk", filepath.Join(dir, "*.txt"), outDir,
			"--tokenizer", "words", "--max-tokens", "3")
		require.NoError(t, err)
		assert.Equal(t, "Chunking 1 document(s).\nSuccessfully chunked documents into "+outDir+"\n", stdout)

		first, err := os.ReadFile(filepath.Join(outDir, "notes-1.txt"))
		require.NoError(t, err)
		assert.Equal(t, "From notes, lines 1 - 1\n\none two three\n", string(first))

		second, err := os.ReadFile(filepath.Join(outDir, "notes-2.txt"))
		require.NoError(t, err)
		assert.Equal(t, "From notes, lines 2 - 2\n\nfour five six\n", string(second))

		assert.NoFileExists(t, filepath.Join(outDir, "notes-3.txt"))
	})

	t.Run("Should log the chunker settings at debug level", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"notes.txt": "one two three\n"})

		_, logs, err := executeWithLogs(t, "chunk", filepath.Join(dir, "*.txt"), filepath.Join(dir, "out"),
			"--tokenizer", "words", "--max-tokens", "7", "--log-level", "debug", "--log-json")
		require.NoError(t, err)
		assert.Contains(t, logs, `"msg":"Chunker ready"`)
		assert.Contains(t, logs, `"tokenizer":"words"`)
		assert.Contains(t, logs, `"max_tokens":7`)
	})

	t.Run("Should reject a non-positive token budget", func(t *testing.T) {
		dir := t.TempDir()
		_, err := execute(t, "chunk", filepath.Join(dir, "*.txt"), dir, "--tokenizer", "words", "--max-tokens", "0")
		require.Error(t, err)
		assert.ErrorIs(t, err, emqu.ErrInvalidArgument)
	})

	t.Run("Should reject an unknown tokenizer", func(t *testing.T) {
		dir := t.TempDir()
		_, err := execute(t, "chunk", filepath.Join(dir, "*.txt"), dir, "--tokenizer", "bpe")
		require.Error(t, err)
		assert.ErrorIs(t, err, emqu.ErrInvalidArgument)
	})
}

func TestRootCmd(t *testing.T) {
	t.Run("Should register the three commands", func(t *testing.T) {
		root := RootCmd()
		for _, name := range []string{"chunk", "embed", "query"} {
			cmd, _, err := root.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, cmd.Name())
		}
	})

	t.Run("Should reject an invalid log level", func(t *testing.T) {
		dir := t.TempDir()
		_, err := execute(t, "chunk", filepath.Join(dir, "*.txt"), dir, "--tokenizer", "words", "--log-level", "loud")
		require.Error(t, err)
		assert.ErrorIs(t, err, emqu.ErrInvalidArgument)
	})
}
