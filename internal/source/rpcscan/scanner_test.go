package rpcscan

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainhist/chainhist/internal/ratelimit"
	"github.com/chainhist/chainhist/internal/source"
)

const testChainID = 1337

type fakeBlockClient struct {
	latest uint64
	blocks map[uint64]*types.Block
	broken map[uint64]bool
}

func (f *fakeBlockClient) BlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeBlockClient) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	n := number.Uint64()
	if f.broken[n] {
		return nil, fmt.Errorf("rpc error at block %d", n)
	}
	b, ok := f.blocks[n]
	if !ok {
		return nil, fmt.Errorf("unknown block %d", n)
	}
	return b, nil
}

func testKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func signedTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, to common.Address, value int64) *types.Transaction {
	t.Helper()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(value),
		Gas:      21000,
		GasPrice: big.NewInt(1000000000),
	})
	signer := types.LatestSignerForChainID(big.NewInt(testChainID))
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return signed
}

func makeBlock(number uint64, timestamp uint64, txs []*types.Transaction) *types.Block {
	header := &types.Header{
		Number: new(big.Int).SetUint64(number),
		Time:   timestamp,
	}
	return types.NewBlockWithHeader(header).WithBody(txs, nil)
}

func newTestScanner(t *testing.T, client BlockClient, maxBlocks int) *Scanner {
	t.Helper()
	limiter := ratelimit.New(
		map[string]ratelimit.Limit{"rpc": {MaxRequests: 1000, Window: time.Second}},
		map[string]string{"devnet": "rpc"},
	)
	s, err := NewScanner(client, Config{
		Network:   "devnet",
		ChainID:   testChainID,
		MaxBlocks: maxBlocks,
	}, limiter, nil)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	return s
}

func TestFetchNativeMatchesSenderAndRecipient(t *testing.T) {
	walletKey, wallet := testKey(t)
	otherKey, other := testKey(t)

	sent := signedTx(t, walletKey, 0, other, 100)
	received := signedTx(t, otherKey, 0, wallet, 200)
	unrelated := signedTx(t, otherKey, 1, other, 300)

	client := &fakeBlockClient{
		latest: 10,
		blocks: map[uint64]*types.Block{
			10: makeBlock(10, 1700000000, []*types.Transaction{sent, unrelated}),
			9:  makeBlock(9, 1699999940, []*types.Transaction{received}),
		},
	}

	s := newTestScanner(t, client, 2)
	recs, err := s.FetchNative(context.Background(), wallet.Hex(), source.FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Hash != sent.Hash().Hex() {
		t.Errorf("first record hash = %s, want sent tx %s", recs[0].Hash, sent.Hash().Hex())
	}
	if recs[0].From != strings.ToLower(wallet.Hex()) {
		t.Errorf("sent record from = %s, want wallet", recs[0].From)
	}
	if recs[0].Value != "100" || recs[0].BlockNumber != 10 || recs[0].TimeStamp != 1700000000 {
		t.Errorf("sent record fields wrong: %+v", recs[0])
	}
	if recs[1].To != strings.ToLower(wallet.Hex()) {
		t.Errorf("received record to = %s, want wallet", recs[1].To)
	}
}

func TestFetchNativeIsCaseInsensitive(t *testing.T) {
	walletKey, wallet := testKey(t)
	_, other := testKey(t)

	tx := signedTx(t, walletKey, 0, other, 1)
	client := &fakeBlockClient{
		latest: 1,
		blocks: map[uint64]*types.Block{1: makeBlock(1, 100, []*types.Transaction{tx})},
	}

	s := newTestScanner(t, client, 1)
	recs, err := s.FetchNative(context.Background(), strings.ToUpper(wallet.Hex()), source.FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
}

func TestFetchNativeSkipsFailedBlocks(t *testing.T) {
	walletKey, wallet := testKey(t)
	_, other := testKey(t)

	tx1 := signedTx(t, walletKey, 0, other, 1)
	tx2 := signedTx(t, walletKey, 1, other, 2)

	client := &fakeBlockClient{
		latest: 5,
		blocks: map[uint64]*types.Block{
			5: makeBlock(5, 500, []*types.Transaction{tx1}),
			3: makeBlock(3, 300, []*types.Transaction{tx2}),
		},
		broken: map[uint64]bool{4: true},
	}

	s := newTestScanner(t, client, 3)
	recs, err := s.FetchNative(context.Background(), wallet.Hex(), source.FetchOptions{})
	if err != nil {
		t.Fatalf("scan should tolerate per-block failures: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
}

func TestFetchNativeLeavesGasUsedEmpty(t *testing.T) {
	walletKey, wallet := testKey(t)
	_, other := testKey(t)

	tx := signedTx(t, walletKey, 0, other, 1)
	client := &fakeBlockClient{
		latest: 1,
		blocks: map[uint64]*types.Block{1: makeBlock(1, 100, []*types.Transaction{tx})},
	}

	s := newTestScanner(t, client, 1)
	recs, err := s.FetchNative(context.Background(), wallet.Hex(), source.FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].GasUsed != "" {
		t.Errorf("GasUsed = %q, want empty (no receipts fetched)", recs[0].GasUsed)
	}
	if recs[0].GasPrice != "1000000000" {
		t.Errorf("GasPrice = %q, want 1000000000", recs[0].GasPrice)
	}
}

func TestFetchTokenTransfersIsEmpty(t *testing.T) {
	client := &fakeBlockClient{latest: 1, blocks: map[uint64]*types.Block{}}
	s := newTestScanner(t, client, 1)

	recs, err := s.FetchTokenTransfers(context.Background(), "0xabc", source.FetchOptions{})
	if err != nil {
		t.Fatalf("fetch tokens: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records, want 0", len(recs))
	}
}

func TestNewScannerClampsMaxBlocks(t *testing.T) {
	client := &fakeBlockClient{}
	s := newTestScanner(t, client, MaxScanBlocks+50)
	if s.maxBlocks != MaxScanBlocks {
		t.Fatalf("maxBlocks = %d, want %d", s.maxBlocks, MaxScanBlocks)
	}
	s = newTestScanner(t, client, 0)
	if s.maxBlocks != MaxScanBlocks {
		t.Fatalf("maxBlocks = %d, want %d", s.maxBlocks, MaxScanBlocks)
	}
}
