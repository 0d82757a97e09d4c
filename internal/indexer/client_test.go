package indexer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClientGetBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/blocks/42", r.URL.Path)
		assert.Equal(t, "8453", r.URL.Query().Get("chain_id"))
		fmt.Fprint(w, `{
			"number": 42,
			"timestamp": 1700000000,
			"transactions": [
				{"from": "0x1111111111111111111111111111111111111111",
				 "hash": "0x2222222222222222222222222222222222222222222222222222222222222222",
				 "input": "0xdeadbeef"}
			]
		}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	block, err := client.GetBlock(context.Background(), 8453, 42)
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, uint64(42), block.Number)
	assert.Equal(t, uint64(1700000000), block.Time)
	require.Len(t, block.Transactions, 1)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), block.Transactions[0].From)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, block.Transactions[0].Input)
}

func TestClientGetBlockNotYetAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	block, err := client.GetBlock(context.Background(), 8453, 10_000_000)
	require.NoError(t, err)
	assert.Nil(t, block, "a block past the head is not an error")
}

func TestClientGetBlockBadInputHex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"number": 1, "timestamp": 1, "transactions": [{"from": "0x0", "hash": "0x0", "input": "zzz"}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	_, err := client.GetBlock(context.Background(), 8453, 1)
	assert.Error(t, err)
}

func TestClientHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/head", r.URL.Path)
		fmt.Fprint(w, `{"number": 123456}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	head, err := client.Head(context.Background(), 8453)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), head)
}
