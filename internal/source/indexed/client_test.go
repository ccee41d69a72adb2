package indexed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chainhist/chainhist/internal/ratelimit"
	"github.com/chainhist/chainhist/internal/source"
)

func newTestLimiter() *ratelimit.Limiter {
	return ratelimit.New(
		map[string]ratelimit.Limit{"test": {MaxRequests: 1000, Window: time.Second}},
		map[string]string{"ethereum": "test"},
	)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cli, err := NewClient(Config{
		Network: "ethereum",
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, newTestLimiter())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return cli, srv
}

func TestFetchNativeParsesRows(t *testing.T) {
	var gotQuery map[string]string
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"module":     q.Get("module"),
			"action":     q.Get("action"),
			"address":    q.Get("address"),
			"startblock": q.Get("startblock"),
			"endblock":   q.Get("endblock"),
			"page":       q.Get("page"),
			"offset":     q.Get("offset"),
			"sort":       q.Get("sort"),
			"apikey":     q.Get("apikey"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "1",
			"message": "OK",
			"result": [
				{
					"hash": "0xaaa",
					"from": "0x0000000000000000000000000000000000000001",
					"to": "0x0000000000000000000000000000000000000002",
					"value": "1000000000000000000",
					"blockNumber": "19000000",
					"timeStamp": "1700000000",
					"gasUsed": "21000",
					"gasPrice": "20000000000",
					"isError": "0",
					"txreceipt_status": "1"
				}
			]
		}`))
	})

	recs, err := cli.FetchNative(context.Background(), "0xWallet", source.FetchOptions{
		StartBlock: 100,
		Page:       2,
		PageSize:   25,
	})
	if err != nil {
		t.Fatalf("fetch native: %v", err)
	}

	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Hash != "0xaaa" || rec.BlockNumber != 19000000 || rec.TimeStamp != 1700000000 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.GasUsed != "21000" || rec.GasPrice != "20000000000" {
		t.Fatalf("gas fields not carried: %+v", rec)
	}
	if rec.IsError || rec.ReceiptStatus != "1" {
		t.Fatalf("status fields wrong: %+v", rec)
	}

	want := map[string]string{
		"module":     "account",
		"action":     "txlist",
		"address":    "0xWallet",
		"startblock": "100",
		"endblock":   "99999999",
		"page":       "2",
		"offset":     "25",
		"sort":       "desc",
		"apikey":     "test-key",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestFetchTokenTransfersUsesTokentxAction(t *testing.T) {
	var action string
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		action = r.URL.Query().Get("action")
		_, _ = w.Write([]byte(`{
			"status": "1",
			"result": [
				{
					"hash": "0xbbb",
					"from": "0x0000000000000000000000000000000000000001",
					"to": "0x0000000000000000000000000000000000000002",
					"value": "2500000",
					"blockNumber": "19000001",
					"timeStamp": "1700000100",
					"tokenSymbol": "USDC",
					"tokenName": "USD Coin",
					"tokenDecimal": "6",
					"contractAddress": "0x0000000000000000000000000000000000000009"
				}
			]
		}`))
	})

	recs, err := cli.FetchTokenTransfers(context.Background(), "0xWallet", source.FetchOptions{})
	if err != nil {
		t.Fatalf("fetch tokens: %v", err)
	}
	if action != "tokentx" {
		t.Fatalf("action = %q, want tokentx", action)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].TokenSymbol != "USDC" || recs[0].TokenDecimal != 6 {
		t.Fatalf("token fields wrong: %+v", recs[0])
	}
}

func TestNonSuccessStatusIsEmptyNotError(t *testing.T) {
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "0", "message": "No transactions found", "result": []}`))
	})

	recs, err := cli.FetchNative(context.Background(), "0xWallet", source.FetchOptions{})
	if err != nil {
		t.Fatalf("no-result response should not error: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records, want 0", len(recs))
	}
}

func TestTransportFailureIsError(t *testing.T) {
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := cli.FetchNative(context.Background(), "0xWallet", source.FetchOptions{})
	if !errors.Is(err, source.ErrUnavailable) {
		t.Fatalf("err = %v, want source.ErrUnavailable", err)
	}
}

func TestMalformedBodyIsError(t *testing.T) {
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := cli.FetchNative(context.Background(), "0xWallet", source.FetchOptions{})
	if !errors.Is(err, source.ErrUnavailable) {
		t.Fatalf("err = %v, want source.ErrUnavailable", err)
	}
}

func TestAscendingSortOrder(t *testing.T) {
	var sortParam string
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sortParam = r.URL.Query().Get("sort")
		_, _ = w.Write([]byte(`{"status": "1", "result": []}`))
	})

	if _, err := cli.FetchNative(context.Background(), "0xWallet", source.FetchOptions{Ascending: true}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if sortParam != "asc" {
		t.Fatalf("sort = %q, want asc", sortParam)
	}
}
