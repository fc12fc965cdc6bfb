package protocol

// RequestAccountsParams names the site asking to connect. Name is a display
// hint only; the origin is taken from sender metadata.
type RequestAccountsParams struct {
	Name string `json:"name,omitempty"`
}

// GetBalanceParams selects the address to query. Empty means the active account.
type GetBalanceParams struct {
	Address string `json:"address,omitempty"`
}

// SendPaymentParams describes a payment from the active account. Amount and
// fee are decimal strings in MINA.
type SendPaymentParams struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Fee    string `json:"fee"`
	Memo   string `json:"memo,omitempty"`
}

// SendStakeDelegationParams delegates the active account's stake to To.
type SendStakeDelegationParams struct {
	To   string `json:"to"`
	Fee  string `json:"fee"`
	Memo string `json:"memo,omitempty"`
}

// SignMessageParams carries a UTF-8 message to sign.
type SignMessageParams struct {
	Message string `json:"message"`
}

// SignFieldsParams carries field elements as decimal integer strings.
type SignFieldsParams struct {
	Fields []string `json:"fields"`
}
