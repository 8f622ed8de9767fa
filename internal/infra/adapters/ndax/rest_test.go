package ndax

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/ndax-gateway/errs"
	"github.com/coachpo/ndax-gateway/internal/auth"
)

var fixedNow = time.UnixMilli(1717171717000)

func newTestSigner(t *testing.T, creds auth.Credentials) *auth.Signer {
	t.Helper()
	signer, err := auth.NewSigner(creds, func() time.Time { return fixedNow })
	require.NoError(t, err)
	return signer
}

func newTestREST(t *testing.T, handler http.HandlerFunc, signer *auth.Signer) *RESTClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewRESTClient(RESTConfig{BaseURL: server.URL + "/AP", RateLimit: 1000, Burst: 10}, signer)
	require.NoError(t, err)
	return client
}

func TestGetAssetsIsUnauthenticated(t *testing.T) {
	client := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/AP/Assets", r.URL.Path)
		require.Empty(t, r.URL.RawQuery)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Empty(t, r.Header.Get(auth.HeaderSignature))
		_, _ = w.Write([]byte(`[{"AssetId":1,"Symbol":"BTC"}]`))
	}, nil)

	body, err := client.GetAssets(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[{"AssetId":1,"Symbol":"BTC"}]`, string(body))
}

func TestGetOpenOrdersSendsSignedHeaders(t *testing.T) {
	creds := auth.Credentials{APIKey: "key", Secret: "secret", UserID: "42", AccountName: "alice", AccountID: "7"}
	nonce := "1717171717000"
	client := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/AP/GetOpenOrders", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("OMSId"))
		require.Equal(t, "7", r.URL.Query().Get("AccountId"))
		require.Equal(t, nonce, r.Header.Get(auth.HeaderNonce))
		require.Equal(t, "key", r.Header.Get(auth.HeaderAPIKey))
		require.Equal(t, "42", r.Header.Get(auth.HeaderUserID))
		require.Equal(t, auth.Sign(nonce, "42", "key", "secret"), r.Header.Get(auth.HeaderSignature))
		_, _ = w.Write([]byte(`[]`))
	}, newTestSigner(t, creds))

	body, err := client.GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(body))
}

func TestAuthenticateUserSendsSignatureParams(t *testing.T) {
	creds := auth.Credentials{APIKey: "key", Secret: "secret", UserID: "42"}
	client := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "/AP/AuthenticateUser", r.URL.Path)
		require.Equal(t, "key", q.Get("APIKey"))
		require.Equal(t, "42", q.Get("UserId"))
		require.Equal(t, "1717171717000", q.Get("Nonce"))
		require.Equal(t, auth.Sign("1717171717000", "42", "key", "secret"), q.Get("Signature"))
		_, _ = w.Write([]byte(`{"Authenticated":true,"SessionToken":"abc"}`))
	}, newTestSigner(t, creds))

	body, err := client.AuthenticateUser(context.Background())
	require.NoError(t, err)
	require.Contains(t, string(body), "SessionToken")
}

func TestGetUserAccountInfosParams(t *testing.T) {
	creds := auth.Credentials{APIKey: "key", Secret: "secret", UserID: "42", AccountName: "alice"}
	client := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "/AP/GetUserAccountInfos", r.URL.Path)
		require.Equal(t, "1", q.Get("OMSId"))
		require.Equal(t, "42", q.Get("UserId"))
		require.Equal(t, "alice", q.Get("UserName"))
		_, _ = w.Write([]byte(`[{"AccountId":7}]`))
	}, newTestSigner(t, creds))

	_, err := client.GetUserAccountInfos(context.Background())
	require.NoError(t, err)
}

func TestRESTErrorsCarryStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   errs.Code
	}{
		{name: "server error", status: http.StatusInternalServerError, code: errs.CodeExchange},
		{name: "unauthorised", status: http.StatusUnauthorized, code: errs.CodeAuth},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestREST(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("upstream says no"))
			}, nil)

			_, err := client.GetAssets(context.Background())
			require.Error(t, err)
			require.True(t, errs.HasCode(err, tc.code))

			var e *errs.E
			require.True(t, errors.As(err, &e))
			require.Equal(t, tc.status, e.HTTP)
			require.Equal(t, "upstream says no", e.RawMsg)
		})
	}
}

func TestRESTResultFalseIsAnError(t *testing.T) {
	creds := auth.Credentials{APIKey: "key", Secret: "secret", UserID: "42", AccountID: "7"}
	client := newTestREST(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":false,"errormsg":"Not Authorized","errorcode":20}`))
	}, newTestSigner(t, creds))

	_, err := client.CancelAllOrders(context.Background())
	require.Error(t, err)
	require.True(t, errs.HasCode(err, errs.CodeExchange))
	require.Contains(t, err.Error(), "Not Authorized")
}

func TestPrivateCallsNeedCredentials(t *testing.T) {
	var hits atomic.Int32
	client := newTestREST(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}, nil)

	_, err := client.GetOpenOrders(context.Background())
	require.True(t, errs.HasCode(err, errs.CodeSigning))

	noAccount := newTestREST(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}, newTestSigner(t, auth.Credentials{APIKey: "key", Secret: "secret", UserID: "42"}))
	_, err = noAccount.CancelAllOrders(context.Background())
	require.True(t, errs.HasCode(err, errs.CodeAuth))

	require.Zero(t, hits.Load())
}

func TestNewRESTClientRejectsBadBaseURL(t *testing.T) {
	_, err := NewRESTClient(RESTConfig{BaseURL: "not a url"}, nil)
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}
