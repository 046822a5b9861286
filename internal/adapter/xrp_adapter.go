package adapter

import (
	"context"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/chain-portfolio/internal/types"
	"github.com/chain-portfolio/internal/upstream"
)

var xrpAddressRe = regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`)

type xrplRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type xrplAccountInfo struct {
	Result struct {
		AccountData struct {
			Balance string `json:"Balance"`
		} `json:"account_data"`
		Status       string `json:"status"`
		Error        string `json:"error"`
		ErrorMessage string `json:"error_message"`
	} `json:"result"`
}

// XRPAdapter reads XRP balances from a rippled JSON-RPC endpoint
type XRPAdapter struct {
	base
	client *upstream.Client
}

// NewXRPAdapter creates the XRP Ledger adapter
func NewXRPAdapter(client *upstream.Client, prices PriceSource) *XRPAdapter {
	return &XRPAdapter{
		base:   base{chain: types.ChainXRP, prices: prices},
		client: client,
	}
}

// ValidateAddress checks if address format is valid for this chain
func (a *XRPAdapter) ValidateAddress(address string) bool {
	return xrpAddressRe.MatchString(address)
}

// GetHoldings returns the XRP balance of address. Unfunded accounts
// report a zero balance.
func (a *XRPAdapter) GetHoldings(ctx context.Context, address string, _ HoldingsOptions) (*Holdings, error) {
	if !a.ValidateAddress(address) {
		return a.rejected(ctx, address)
	}
	return a.nativeHoldings(ctx, address, "xrpl.account_info", func(ctx context.Context) (decimal.Decimal, error) {
		req := xrplRequest{
			Method: "account_info",
			Params: []interface{}{map[string]interface{}{
				"account":      address,
				"ledger_index": "validated",
				"strict":       true,
			}},
		}
		var resp xrplAccountInfo
		if err := a.client.PostJSON(ctx, "/", req, &resp); err != nil {
			return decimal.Zero, err
		}
		switch {
		case resp.Result.Error == "actNotFound":
			return decimal.Zero, nil
		case resp.Result.Error != "":
			return decimal.Zero, fmt.Errorf("xrpl %s: %s", resp.Result.Error, resp.Result.ErrorMessage)
		}
		return unitsFromString(resp.Result.AccountData.Balance, NativeDecimals(a.chain))
	})
}
