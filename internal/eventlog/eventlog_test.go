package eventlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleEvent struct {
	ID   string `json:"id"`
	Seq  int    `json:"seq"`
}

func TestAppendThenReadAllRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	l := Open(path)

	require.NoError(t, l.Append(sampleEvent{ID: "a", Seq: 1}))
	require.NoError(t, l.Append(sampleEvent{ID: "b", Seq: 2}))

	events, err := ReadAll[sampleEvent](l)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "a", events[0].ID)
	require.Equal(t, "b", events[1].ID)
}

func TestReadAllOnMissingFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jsonl")
	l := Open(path)

	events, err := ReadAll[sampleEvent](l)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestReadAllRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	l := Open(path)
	require.NoError(t, l.Append(sampleEvent{ID: "a", Seq: 1}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = ReadAll[sampleEvent](l)
	require.Error(t, err)
}

func TestHeadPointerWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "HEAD")
	head, err := ReadHead(path)
	require.NoError(t, err)
	require.Empty(t, head)

	require.NoError(t, WriteHeadAtomic(path, "fnv1a64:abc123"))
	head, err = ReadHead(path)
	require.NoError(t, err)
	require.Equal(t, "fnv1a64:abc123", head)

	require.NoError(t, WriteHeadAtomic(path, "fnv1a64:def456"))
	head, err = ReadHead(path)
	require.NoError(t, err)
	require.Equal(t, "fnv1a64:def456", head)
}
