package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"stellar-swap/pkg/chain"
	"stellar-swap/pkg/client"
	"stellar-swap/pkg/types"
)

func testSubmission() *types.OrderSubmission {
	return &types.OrderSubmission{
		OrderID:      "0xabc123",
		BuyerAddress: "GBUYER",
		SrcChainID:   100,
		DstChainID:   8453,
		SrcToken:     "native",
		DstToken:     "usdc-token",
		SrcAmount:    "100000000",
		DstAmount:    "12000000",
		MarketPrice:  "0.12000000",
		Slippage:     100,
	}
}

func TestRelaySubmitCreate(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	relay := client.NewRelayClient(srv.URL + "/")
	require.NoError(t, relay.SubmitCreate(context.Background(), testSubmission()))

	require.Equal(t, "/create", gotPath)
	require.Equal(t, "0xabc123", gotBody["orderId"])
	require.Equal(t, "0.12000000", gotBody["market_price"])

	// Only the economic terms go over the wire
	for _, forbidden := range []string{"commitment", "secret", "secrets", "windows"} {
		require.NotContains(t, gotBody, forbidden)
	}
}

func TestRelaySubmitPartialFillPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	relay := client.NewRelayClient(srv.URL)
	require.NoError(t, relay.SubmitPartialFill(context.Background(), testSubmission()))
	require.Equal(t, "/partialfill", gotPath)
}

func TestRelayErrorMessageExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "order already announced"}`))
	}))
	defer srv.Close()

	relay := client.NewRelayClient(srv.URL)
	err := relay.SubmitCreate(context.Background(), testSubmission())
	require.Error(t, err)
	require.Contains(t, err.Error(), "order already announced")
	require.NotErrorIs(t, err, chain.ErrNetworkFailure)
}

func TestRelayUnreachableIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	relay := client.NewRelayClient(srv.URL)
	err := relay.SubmitCreate(context.Background(), testSubmission())
	require.ErrorIs(t, err, chain.ErrNetworkFailure)
}
