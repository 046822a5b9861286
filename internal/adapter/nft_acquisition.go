package adapter

import (
	"time"

	"github.com/chain-portfolio/internal/types"
)

const lamportsPerSOL = 1e9

// HeliusTransaction is the subset of a Helius enhanced transaction used to
// infer how an NFT was acquired
type HeliusTransaction struct {
	Signature       string `json:"signature"`
	Type            string `json:"type"`
	Source          string `json:"source"`
	FeePayer        string `json:"feePayer"`
	Timestamp       int64  `json:"timestamp"`
	NativeTransfers []struct {
		FromUserAccount string `json:"fromUserAccount"`
		ToUserAccount   string `json:"toUserAccount"`
		Amount          int64  `json:"amount"`
	} `json:"nativeTransfers"`
	TokenTransfers []struct {
		FromUserAccount string  `json:"fromUserAccount"`
		ToUserAccount   string  `json:"toUserAccount"`
		Mint            string  `json:"mint"`
		TokenAmount     float64 `json:"tokenAmount"`
	} `json:"tokenTransfers"`
	Events struct {
		NFT *struct {
			Type   string `json:"type"`
			Amount int64  `json:"amount"`
			Buyer  string `json:"buyer"`
			Seller string `json:"seller"`
		} `json:"nft"`
	} `json:"events"`
}

// Acquisition is the inferred origin of an NFT
type Acquisition struct {
	Type  types.AcquisitionType
	Price *float64
	Date  *time.Time
}

// InferAcquisition classifies how owner came to hold mint from the mint's
// transaction history, newest first. The most recent transaction that
// delivered the NFT to owner decides:
//
//   - owner paid the fee of a mint transaction: minted
//   - an NFT sale event names owner as buyer: purchased at the sale amount
//   - owner sent SOL in the same transaction: purchased at that amount
//   - otherwise: received
//
// Without such a transaction the acquisition is unknown.
func InferAcquisition(owner, mint string, txs []HeliusTransaction) Acquisition {
	for _, tx := range txs {
		if !deliveredTo(owner, mint, tx) {
			continue
		}

		date := time.Unix(tx.Timestamp, 0).UTC()
		acq := Acquisition{Date: &date}
		spent := solSpentBy(owner, tx)

		switch {
		case tx.Type == "NFT_MINT" && tx.FeePayer == owner:
			acq.Type = types.AcquisitionMinted
			if spent > 0 {
				acq.Price = &spent
			}
		case tx.Events.NFT != nil && tx.Events.NFT.Type == "NFT_SALE" && tx.Events.NFT.Buyer == owner:
			acq.Type = types.AcquisitionPurchased
			price := float64(tx.Events.NFT.Amount) / lamportsPerSOL
			acq.Price = &price
		case spent > 0:
			acq.Type = types.AcquisitionPurchased
			acq.Price = &spent
		default:
			acq.Type = types.AcquisitionReceived
		}
		return acq
	}
	return Acquisition{Type: types.AcquisitionUnknown}
}

// deliveredTo reports whether tx moved mint into owner's wallet
func deliveredTo(owner, mint string, tx HeliusTransaction) bool {
	if tx.Type == "NFT_MINT" && tx.FeePayer == owner {
		return true
	}
	if tx.Events.NFT != nil && tx.Events.NFT.Buyer == owner {
		return true
	}
	for _, t := range tx.TokenTransfers {
		if t.Mint == mint && t.ToUserAccount == owner {
			return true
		}
	}
	return false
}

// solSpentBy sums native SOL sent by owner within tx
func solSpentBy(owner string, tx HeliusTransaction) float64 {
	var lamports int64
	for _, t := range tx.NativeTransfers {
		if t.FromUserAccount == owner {
			lamports += t.Amount
		}
	}
	return float64(lamports) / lamportsPerSOL
}
