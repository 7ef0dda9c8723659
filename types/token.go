package types

// Token describes the fungible token the ledger accounts for.
type Token struct {
	Name     string `json:"name"     yaml:"name"`
	Symbol   string `json:"symbol"   yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// DefaultToken is the token the stock deployment creates.
func DefaultToken() Token {
	return Token{Name: "Buster", Symbol: "BSTR", Decimals: 9}
}
