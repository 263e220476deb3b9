package bankid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, "api-user", "api-password", "company-guid")
	require.NoError(t, err)
	return client
}

func TestNewRequiresConfiguration(t *testing.T) {
	_, err := New("", "user", "pass", "company")
	require.Error(t, err)

	_, err = New("http://vendor", "user", "", "company")
	require.Error(t, err)
}

func TestSignFlatResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sign", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "api-user", req["apiUser"])
		require.Equal(t, "company-guid", req["companyApiGuid"])
		require.Equal(t, "198001011234", req["personalNumber"])
		require.Equal(t, "10.0.0.1", req["endUserIp"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"OrderRef":"abc","AutoStartToken":"xyz"}`))
	})

	res, err := client.Sign(context.Background(), "10.0.0.1", "198001011234", "consent")
	require.NoError(t, err)
	require.Equal(t, "abc", res.OrderRef)
	require.Equal(t, "xyz", res.AutoStartToken)
}

func TestSignNestedAuthResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"authResponse":{"orderRef":"abc","autoStartToken":"xyz"}}`))
	})

	res, err := client.Sign(context.Background(), "10.0.0.1", "198001011234", "consent")
	require.NoError(t, err)
	require.Equal(t, "abc", res.OrderRef)
	require.Equal(t, "xyz", res.AutoStartToken)
}

func TestSignConflictIsTyped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"Sign transaction already in progress for this user"}`))
	})

	_, err := client.Sign(context.Background(), "10.0.0.1", "198001011234", "consent")
	require.ErrorIs(t, err, ErrConflict)
}

func TestSignNestedErrorObject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errorObject":{"message":"invalid credentials"}}`))
	})

	_, err := client.Sign(context.Background(), "10.0.0.1", "198001011234", "consent")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConflict)
}

func TestSignNonJSONResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway timeout</html>`))
	})

	_, err := client.Sign(context.Background(), "10.0.0.1", "198001011234", "consent")
	require.Error(t, err)
}

func TestCollectStatusNestedAPICallResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collectstatus", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "abc", req["orderRef"])

		w.Write([]byte(`{"apiCallResponse":{
			"Status":"COMPLETE",
			"HintCode":"",
			"CompletionData":{"user":{"personalNumber":"198001011234","name":"Anna Andersson"}}
		}}`))
	})

	res, err := client.CollectStatus(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, StatusComplete, res.Status)
	require.NotNil(t, res.Completion)
	require.Equal(t, "198001011234", res.Completion.User.PersonalNumber)
}

func TestCollectStatusPending(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Status":"pending","HintCode":"userSign"}`))
	})

	res, err := client.CollectStatus(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, StatusPending, res.Status)
	require.Equal(t, HintUserSign, res.HintCode)
	require.Nil(t, res.Completion)
}

func TestCollectStatusMissingStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := client.CollectStatus(context.Background(), "abc")
	require.Error(t, err)
}

func TestCollectQR(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collectqr", r.URL.Path)
		w.Write([]byte(`{"qrImage":"data:image/png;base64,AAAA"}`))
	})

	qr, err := client.CollectQR(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "data:image/png;base64,AAAA", qr)
}

func TestCollectQRMissingImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"qrImage":""}`))
	})

	_, err := client.CollectQR(context.Background(), "abc")
	require.Error(t, err)
}
