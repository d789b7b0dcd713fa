package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the lowercase hex HMAC-SHA256 of "orderID|paymentID" keyed
// with secret. This is what the gateway sends back as the callback signature.
func Sign(orderID, paymentID, secret string) string {
	return signBytes([]byte(orderID+"|"+paymentID), secret)
}

// Verify reports whether signature authenticates the (orderID, paymentID)
// pair. It never panics; malformed input is simply a mismatch.
func Verify(orderID, paymentID, signature, secret string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if secret == "" || signature == "" {
		return false
	}
	return equalHex(Sign(orderID, paymentID, secret), signature)
}

// VerifyWebhook authenticates a raw webhook body against the
// X-Razorpay-Signature header value.
func VerifyWebhook(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return equalHex(signBytes(body, secret), signature)
}

func SignWebhook(body []byte, secret string) string {
	return signBytes(body, secret)
}

func signBytes(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// equalHex compares in constant time with respect to the content; the
// length check leaks only the length, which is public.
func equalHex(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(got))
}
