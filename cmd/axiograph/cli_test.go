package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/axiograph/axiograph/internal/snapshotstore"
)

const cliModule = `
module demo_mod

schema demo:
    object Person
    object Document
    relation authored(author: Person, doc: Document)

instance seed of demo:
    Person = { Alice }
    Document = { Report }
    authored = { (author=Alice, doc=Report) }
`

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String()
}

func resetCLIFlags() {
	querySnapshotID, queryLimit, queryCertify = "head", 0, false
	reachabilitySnapshotID, reachabilityStart = "head", 0
	reachabilityRelations, reachabilityMinConfidence, reachabilityMaxHops, reachabilityShow = "", 0, -1, false
	commitOpsFile, commitMessage, commitCheckpoint = "", "", false
	syncUpdateHeads = true
}

func TestPromoteCommitQueryRoundTrip(t *testing.T) {
	resetCLIFlags()
	storeRoot = t.TempDir()

	modFile := filepath.Join(t.TempDir(), "demo.axi")
	require.NoError(t, os.WriteFile(modFile, []byte(cliModule), 0o644))

	promoteOut := captureStdout(t, func() {
		require.NoError(t, promoteCmd.RunE(promoteCmd, []string{modFile}))
	})
	acceptedID := trimNewline(promoteOut)
	require.NotEmpty(t, acceptedID)

	commitOut := captureStdout(t, func() {
		require.NoError(t, commitCmd.RunE(commitCmd, []string{acceptedID}))
	})
	pathdbID := trimNewline(commitOut)
	require.NotEmpty(t, pathdbID)

	querySnapshotID = pathdbID
	queryOut := captureStdout(t, func() {
		require.NoError(t, queryCmd.RunE(queryCmd, []string{`select x where x : Person`}))
	})
	var rows struct {
		Rows      []json.RawMessage `json:"rows"`
		Truncated bool              `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal([]byte(queryOut), &rows))
	require.Len(t, rows.Rows, 1)
}

func TestCommitAppliesOverlayOpsFromFile(t *testing.T) {
	resetCLIFlags()
	storeRoot = t.TempDir()

	modFile := filepath.Join(t.TempDir(), "demo.axi")
	require.NoError(t, os.WriteFile(modFile, []byte(cliModule), 0o644))
	promoteOut := captureStdout(t, func() {
		require.NoError(t, promoteCmd.RunE(promoteCmd, []string{modFile}))
	})
	acceptedID := trimNewline(promoteOut)

	ops := []snapshotstore.OverlayOp{
		{
			Kind:    snapshotstore.OpImportChunks,
			Payload: mustRawJSON(t, []snapshotstore.ChunkPayload{{DocID: "doc-1", Text: "hello"}}),
		},
	}
	opsFile := filepath.Join(t.TempDir(), "ops.json")
	require.NoError(t, os.WriteFile(opsFile, mustRawJSON(t, ops), 0o644))

	commitOpsFile = opsFile
	commitCheckpoint = true
	commitOut := captureStdout(t, func() {
		require.NoError(t, commitCmd.RunE(commitCmd, []string{acceptedID}))
	})
	require.NotEmpty(t, trimNewline(commitOut))
}

func TestQueryCertifyPrintsQueryResultV3(t *testing.T) {
	resetCLIFlags()
	storeRoot = t.TempDir()

	modFile := filepath.Join(t.TempDir(), "demo.axi")
	require.NoError(t, os.WriteFile(modFile, []byte(cliModule), 0o644))
	acceptedID := trimNewline(captureStdout(t, func() {
		require.NoError(t, promoteCmd.RunE(promoteCmd, []string{modFile}))
	}))
	pathdbID := trimNewline(captureStdout(t, func() {
		require.NoError(t, commitCmd.RunE(commitCmd, []string{acceptedID}))
	}))

	querySnapshotID = pathdbID
	queryCertify = true
	out := captureStdout(t, func() {
		require.NoError(t, queryCmd.RunE(queryCmd, []string{`select x where x : Person`}))
	})
	var env struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	require.Equal(t, "query_result_v3", env.Kind)
}

func TestCertReachabilityRequiresRelations(t *testing.T) {
	resetCLIFlags()
	storeRoot = t.TempDir()

	modFile := filepath.Join(t.TempDir(), "demo.axi")
	require.NoError(t, os.WriteFile(modFile, []byte(cliModule), 0o644))
	acceptedID := trimNewline(captureStdout(t, func() {
		require.NoError(t, promoteCmd.RunE(promoteCmd, []string{modFile}))
	}))
	_ = captureStdout(t, func() {
		require.NoError(t, commitCmd.RunE(commitCmd, []string{acceptedID}))
	})

	err := certReachabilityCmd.RunE(certReachabilityCmd, nil)
	require.Error(t, err)
}

func TestCertReachabilityIssuesCertificate(t *testing.T) {
	resetCLIFlags()
	storeRoot = t.TempDir()

	modFile := filepath.Join(t.TempDir(), "demo.axi")
	require.NoError(t, os.WriteFile(modFile, []byte(cliModule), 0o644))
	acceptedID := trimNewline(captureStdout(t, func() {
		require.NoError(t, promoteCmd.RunE(promoteCmd, []string{modFile}))
	}))
	pathdbID := trimNewline(captureStdout(t, func() {
		require.NoError(t, commitCmd.RunE(commitCmd, []string{acceptedID}))
	}))

	reachabilitySnapshotID = pathdbID
	reachabilityRelations = "authored"
	out := captureStdout(t, func() {
		require.NoError(t, certReachabilityCmd.RunE(certReachabilityCmd, nil))
	})
	var env struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	require.Equal(t, "reachability_v2", env.Kind)
}

func TestSyncCopiesObjectsBetweenStores(t *testing.T) {
	resetCLIFlags()
	fromRoot := t.TempDir()
	toRoot := t.TempDir()

	fromStore, err := snapshotstore.Open(fromRoot)
	require.NoError(t, err)
	acceptedID, err := fromStore.Promote(cliModule)
	require.NoError(t, err)
	pathdbID, _, err := fromStore.Commit(acceptedID, nil, "seed")
	require.NoError(t, err)

	require.NoError(t, syncCmd.RunE(syncCmd, []string{fromRoot, toRoot}))

	toStore, err := snapshotstore.Open(toRoot)
	require.NoError(t, err)
	built, err := toStore.Build(pathdbID, false)
	require.NoError(t, err)
	require.Equal(t, 1, built.FindByAxiType("demo", "Person").Len())
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func mustRawJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
