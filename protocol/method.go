package protocol

// Method names a page-originated operation.
type Method string

const (
	MethodRequestAccounts     Method = "mina_requestAccounts"
	MethodAccounts            Method = "mina_accounts"
	MethodGetBalance          Method = "mina_getBalance"
	MethodChainID             Method = "mina_chainId"
	MethodSendPayment         Method = "mina_sendPayment"
	MethodSendStakeDelegation Method = "mina_sendStakeDelegation"
	MethodSignMessage         Method = "mina_signMessage"
	MethodSignFields          Method = "mina_signFields"
)

var methods = map[Method]struct{}{
	MethodRequestAccounts:     {},
	MethodAccounts:            {},
	MethodGetBalance:          {},
	MethodChainID:             {},
	MethodSendPayment:         {},
	MethodSendStakeDelegation: {},
	MethodSignMessage:         {},
	MethodSignFields:          {},
}

// Known reports whether m is in the method catalog.
func (m Method) Known() bool {
	_, ok := methods[m]
	return ok
}

// Methods returns the catalog.
func Methods() []Method {
	return []Method{
		MethodRequestAccounts,
		MethodAccounts,
		MethodGetBalance,
		MethodChainID,
		MethodSendPayment,
		MethodSendStakeDelegation,
		MethodSignMessage,
		MethodSignFields,
	}
}
