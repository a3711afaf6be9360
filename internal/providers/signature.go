// Package providers contains the bill provider integrations the orchestrator
// can route to. Each kind is registered under a name used by PROVIDER_<NAME>_KIND.
package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/orchestrator"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

const (
	KindHTTP    = "http"
	KindSandbox = "sandbox"
)

// Register adds the built-in provider kinds to reg.
func Register(reg *orchestrator.Registry) error {
	if err := reg.Register(KindHTTP, NewHTTPProvider); err != nil {
		return err
	}
	return reg.Register(KindSandbox, NewSandbox)
}

// Sign returns the signature a provider sends for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignedNotification(secret string, headers http.Header, body []byte) (*provider.Notification, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", shared.ErrExternalVerificationFailed)
	}
	got, err := hex.DecodeString(headers.Get(SignatureHeader))
	if err != nil || len(got) == 0 {
		return nil, fmt.Errorf("%w: missing or malformed %s", shared.ErrExternalVerificationFailed, SignatureHeader)
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	if !hmac.Equal(got, want) {
		return nil, fmt.Errorf("%w: signature mismatch", shared.ErrExternalVerificationFailed)
	}

	var n provider.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: malformed notification: %v", shared.ErrExternalVerificationFailed, err)
	}
	if n.RefID == "" {
		return nil, fmt.Errorf("%w: notification without ref_id", shared.ErrExternalVerificationFailed)
	}
	switch n.Status {
	case provider.PaymentSuccess, provider.PaymentFailed, provider.PaymentPending:
	default:
		return nil, fmt.Errorf("unknown provider status %q: %w", n.Status, shared.ErrInvalidRequest)
	}
	return &n, nil
}
