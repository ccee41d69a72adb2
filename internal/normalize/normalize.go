// Package normalize turns raw source records into canonical transactions.
// It is pure: no I/O, no shared state.
package normalize

import (
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainhist/chainhist/internal/model"
)

// Network carries the chain facts normalization needs.
type Network struct {
	Name        string
	Symbol      string
	Decimals    int
	ExplorerURL string
}

// Record converts one raw record into a canonical transaction, deriving
// direction and type relative to wallet. Sources are never trusted for
// either.
func Record(raw model.RawRecord, wallet string, net Network) model.Transaction {
	from := strings.ToLower(raw.From)
	to := strings.ToLower(raw.To)

	direction := model.DirectionIncoming
	if from == strings.ToLower(wallet) {
		direction = model.DirectionOutgoing
	}

	txType := classify(raw, direction)

	decimals := net.Decimals
	if txType == model.TypeTokenTransfer && raw.TokenDecimal > 0 {
		decimals = raw.TokenDecimal
	}

	tx := model.Transaction{
		Hash:        raw.Hash,
		From:        from,
		To:          to,
		Amount:      scaleUnits(raw.Value, decimals),
		Fee:         fee(raw, net.Decimals),
		Status:      status(raw),
		Network:     net.Name,
		BlockNumber: raw.BlockNumber,
		Timestamp:   time.Unix(raw.TimeStamp, 0).UTC(),
		Type:        txType,
		Direction:   direction,
	}

	if raw.TokenSymbol != "" {
		tx.TokenSymbol = raw.TokenSymbol
		tx.TokenName = raw.TokenName
		tx.TokenDecimals = raw.TokenDecimal
	}

	if net.ExplorerURL != "" && raw.Hash != "" {
		tx.ExplorerURL = strings.TrimRight(net.ExplorerURL, "/") + "/tx/" + raw.Hash
	}

	tx.Metadata = metadata(raw)
	return tx
}

// classify labels a transaction. A record can be both a contract call and
// a token movement; contract_interaction deliberately wins, matching the
// upstream precedence the rest of the platform expects.
func classify(raw model.RawRecord, direction model.Direction) model.Type {
	if raw.To == "" || raw.ContractAddress != "" {
		return model.TypeContractInteraction
	}
	if raw.TokenSymbol != "" {
		return model.TypeTokenTransfer
	}
	if direction == model.DirectionOutgoing {
		return model.TypeSent
	}
	return model.TypeReceived
}

// fee computes gasUsed*gasPrice in smallest units and scales to human
// units. Either input missing yields an absent fee, never a zero.
func fee(raw model.RawRecord, nativeDecimals int) string {
	if raw.GasUsed == "" || raw.GasPrice == "" {
		return ""
	}
	used, okU := new(big.Int).SetString(raw.GasUsed, 10)
	price, okP := new(big.Int).SetString(raw.GasPrice, 10)
	if !okU || !okP {
		return ""
	}
	wei := new(big.Int).Mul(used, price)
	return decimal.NewFromBigInt(wei, -int32(nativeDecimals)).String()
}

func status(raw model.RawRecord) model.Status {
	if raw.IsError || raw.ReceiptStatus == "0" {
		return model.StatusFailed
	}
	return model.StatusConfirmed
}

func scaleUnits(value string, decimals int) string {
	if value == "" {
		return "0"
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

func metadata(raw model.RawRecord) map[string]string {
	m := map[string]string{}
	if raw.ContractAddress != "" {
		m["contractAddress"] = strings.ToLower(raw.ContractAddress)
	}
	if raw.MethodID != "" {
		m["methodId"] = raw.MethodID
	}
	if raw.FunctionName != "" {
		m["functionName"] = raw.FunctionName
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
