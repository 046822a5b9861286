package types

import "testing"

func TestParseChainID(t *testing.T) {
	tests := []struct {
		in   string
		want ChainID
		ok   bool
	}{
		{"bitcoin", ChainBitcoin, true},
		{" Ethereum ", ChainEthereum, true},
		{"TRON", ChainTron, true},
		{"polygon", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseChainID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseChainID(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAllChainsHasTen(t *testing.T) {
	if len(AllChains) != 10 {
		t.Errorf("expected 10 supported chains, got %d", len(AllChains))
	}
}

func TestServiceErrorMessage(t *testing.T) {
	err := &ServiceError{Code: ErrCodeInvalidInput, Message: "chain is required"}
	if err.Error() != "chain is required" {
		t.Errorf("unexpected error string %q", err.Error())
	}
}
