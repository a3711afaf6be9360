package shared

import "github.com/oklog/ulid/v2"

// Business code prefixes
const (
	PrefixTransfer = "TRF"
	PrefixTopUp    = "TOPUP"
	PrefixOrder    = "ORDER"
	PrefixBill     = "BILL"
	PrefixWalletTx = "WTX"
)

// NewCode returns a sortable, unique business code such as TRF-01HZX3....
func NewCode(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}
