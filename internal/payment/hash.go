package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// CallbackHash signs paymentId+conversationId+status+conversationData with
// the shared secret.
func CallbackHash(secret string, p CallbackPayload) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(p.PaymentID + p.ConversationID + p.Status + p.ConversationData))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallbackHash compares in constant time.
func VerifyCallbackHash(secret string, p CallbackPayload) bool {
	if secret == "" || p.Hash == "" {
		return false
	}
	want := CallbackHash(secret, p)
	return hmac.Equal([]byte(want), []byte(p.Hash))
}
