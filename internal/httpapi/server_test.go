package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/axiograph/axiograph/internal/axiimport"
	"github.com/axiograph/axiograph/internal/checkeddb"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/axiograph/axiograph/internal/snapshotstore"
)

const apiModule = `
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

func newTestServer(t *testing.T, role Role, adminToken string) (*Server, *httptest.Server) {
	t.Helper()
	mod, err := axiimport.Parse(apiModule)
	require.NoError(t, err)
	db := pathdb.New()
	require.NoError(t, axiimport.Import(db, mod))
	env, err := checkeddb.NewTypingEnv(db)
	require.NoError(t, err)

	store, err := snapshotstore.Open(t.TempDir())
	require.NoError(t, err)

	srv, err := New(role, store, adminToken, db, env, "test-snapshot", apiModule)
	require.NoError(t, err)
	return srv, httptest.NewServer(srv.Handler())
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthzReturnsOK(t *testing.T) {
	_, ts := newTestServer(t, RoleMaster, "")
	defer ts.Close()

	resp := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusReportsCountsAndRole(t *testing.T) {
	_, ts := newTestServer(t, RoleReplica, "")
	defer ts.Close()

	resp := doJSON(t, http.MethodGet, ts.URL+"/status", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Equal(t, "replica", status.Role)
	require.Equal(t, "test-snapshot", status.SnapshotKey)
	require.Equal(t, 9, status.EntityCount)
}

func TestQueryReturnsRowsAndOptionalCertificate(t *testing.T) {
	_, ts := newTestServer(t, RoleMaster, "")
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/query", QueryRequest{
		Query:   "select x, y where x : Person, y : Document, authored(author=x, doc=y)",
		Certify: true,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out QueryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Rows, 1)
	require.NotNil(t, out.Certificate)
	require.Equal(t, "query_result_v3", out.Certificate.Kind)
}

func TestQueryRejectsBadSyntax(t *testing.T) {
	_, ts := newTestServer(t, RoleMaster, "")
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/query", QueryRequest{Query: "not a query"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReachabilityCertTraversesRelation(t *testing.T) {
	srv, ts := newTestServer(t, RoleMaster, "")
	defer ts.Close()

	people := srv.db.Entities.ByType(srv.db.TypeID("Person")).ToSlice()
	require.NotEmpty(t, people)

	resp := doJSON(t, http.MethodPost, ts.URL+"/cert/reachability", ReachabilityRequest{
		Start:       people[0],
		RelationIDs: []string{"authored"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReachabilityCertRejectsEmptyRelationIDs(t *testing.T) {
	_, ts := newTestServer(t, RoleMaster, "")
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/cert/reachability", ReachabilityRequest{Start: 1})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRoutesRequireBearerToken(t *testing.T) {
	_, ts := newTestServer(t, RoleMaster, "s3cret")
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/admin/accept/promote", PromoteRequest{CanonicalText: apiModule})
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutesDisabledWithoutConfiguredToken(t *testing.T) {
	_, ts := newTestServer(t, RoleMaster, "")
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/admin/accept/promote", PromoteRequest{CanonicalText: apiModule})
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminPromoteSucceedsWithValidTokenOnMaster(t *testing.T) {
	_, ts := newTestServer(t, RoleMaster, "s3cret")
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/admin/accept/promote", bytes.NewReader(mustJSON(t, PromoteRequest{CanonicalText: apiModule})))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminPromoteForbiddenOnReplica(t *testing.T) {
	_, ts := newTestServer(t, RoleReplica, "s3cret")
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/admin/accept/promote", bytes.NewReader(mustJSON(t, PromoteRequest{CanonicalText: apiModule})))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSnapshotsRejectsUnknownLayer(t *testing.T) {
	_, ts := newTestServer(t, RoleMaster, "")
	defer ts.Close()

	resp := doJSON(t, http.MethodGet, ts.URL+"/snapshots?layer=bogus", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
