package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glkdc.dev/glkdcd/internal/domains/group/candidate"
	"glkdc.dev/glkdcd/internal/domains/group/controller"
	"glkdc.dev/glkdcd/internal/domains/group/fsm"
	"glkdc.dev/glkdcd/internal/domains/group/keycache"
	"glkdc.dev/glkdcd/internal/domains/group/keyepoch"
	"glkdc.dev/glkdcd/internal/domains/group/keystore"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/platform/ratelimiter"
	"glkdc.dev/glkdcd/internal/pubsub"
)

type fakeAccounts struct{ keys map[string][]byte }

func (f *fakeAccounts) PublicKey(ctx context.Context, uid string) ([]byte, error) {
	return f.keys[uid], nil
}

type fakeMutuality struct{}

func (fakeMutuality) IsMutualContact(ctx context.Context, a, b string) (bool, error) { return true, nil }

func newTestServer(t *testing.T) (*httptest.Server, *membership.Store) {
	t.Helper()
	members := membership.New()
	keys := keystore.New()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	f := &fsm.FSM{
		Store:     members,
		KeyStore:  keys,
		Limiters:  ratelimiter.NewDefault(),
		Bus:       pubsub.NewMock(),
		Accounts:  &fakeAccounts{keys: map[string][]byte{}},
		Mutuality: fakeMutuality{},
		Now:       func() time.Time { return clock },
	}
	epoch := &keyepoch.Coordinator{
		Members:  members,
		Keys:     keys,
		Cache:    keycache.New(time.Minute),
		Selector: candidate.New(),
		Bus:      pubsub.NewMock(),
		Policy:   keyepoch.DefaultPolicy(),
		Now:      func() time.Time { return clock },
	}
	c := &controller.Controller{
		FSM:      f,
		KeyEpoch: epoch,
		Members:  members,
		Limiters: ratelimiter.NewDefault(),
		Now:      func() time.Time { return clock },
	}
	return httptest.NewServer(NewRouter(c)), members
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, caller string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))

	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(callerUIDHeader, caller)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp, parsed
}

func TestCreateGroupMissingHeaderIsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, body := doRequest(t, srv, http.MethodPut, "/v3/group/create", "", map[string]any{"gid": 1})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "UNAUTHENTICATED", body["error_code"])
}

func TestCreateGroupValidationError(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, body := doRequest(t, srv, http.MethodPut, "/v3/group/create", "u1", map[string]any{"gid": 0})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "BAD_REQUEST", body["error_code"])
}

func TestGroupKeysRejectsOversizedVersionBatch(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	versions := make([]int, maxVersionsPerFetch+1)
	resp, body := doRequest(t, srv, http.MethodPost, "/v3/group/group_keys", "u1", map[string]any{
		"gid": 1, "versions": versions,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "BAD_REQUEST", body["error_code"])
}

func TestCreateGroupRejectsUnverifiableSignatureChain(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	createBody := map[string]any{
		"gid":                           42,
		"ownerPublicKey":                []byte("owner-pub"),
		"qrCodeSetting":                 []byte("qr"),
		"shareSignature":                []byte("sig1"),
		"shareAndOwnerConfirmSignature": []byte("sig2"),
		"ownerConfirm":                  false,
		"encryptedGroupInfoSecret":      []byte("egis"),
		"encryptedEphemeralKey":         []byte("eek"),
	}
	resp, body := doRequest(t, srv, http.MethodPut, "/v3/group/create", "owner1", createBody)
	// The signature chain won't verify against fake bytes, so creation is
	// expected to fail validation; this still exercises the envelope and
	// header-derived actor wiring end to end.
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "BAD_SIGNATURE", body["error_code"])
}

func TestDHKeysWithoutCallerHeaderIsRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, _ := doRequest(t, srv, http.MethodPost, "/v3/group/dh_keys", "", map[string]any{"uids": []string{"u2"}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMembersRejectsOversizedUIDBatch(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	uids := make([]string, maxUIDsPerMembersQuery+1)
	resp, body := doRequest(t, srv, http.MethodPost, "/v3/group/members", "u1", map[string]any{
		"gid": 1, "uids": uids,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "BAD_REQUEST", body["error_code"])
}

func TestMembersBatchQueryReturnsSeededMembers(t *testing.T) {
	srv, members := newTestServer(t)
	defer srv.Close()

	require.NoError(t, members.CreateGroup(model.Group{GID: 7, Version: model.GroupVersionV3}))
	require.NoError(t, members.InsertMember(model.GroupMember{GID: 7, UID: "u1", Role: model.MemberRoleOwner}))

	resp, body := doRequest(t, srv, http.MethodPost, "/v3/group/members", "u1", map[string]any{
		"gid": 7, "uids": []string{"u1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result, ok := body["result"].([]any)
	require.True(t, ok)
	require.Len(t, result, 1)
}
