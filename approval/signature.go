package approval

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderTimestamp = "X-Signature-Timestamp"
	HeaderSignature = "X-Signature"

	signatureVersion = "v0"
)

// Sign computes the versioned signature for a timestamp and raw body.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the request signature over the exact raw body. A maxSkew
// of zero skips the timestamp freshness check.
func VerifySignature(secret string, header http.Header, body []byte, now time.Time, maxSkew time.Duration) error {
	timestamp := header.Get(HeaderTimestamp)
	signature := header.Get(HeaderSignature)
	if timestamp == "" || signature == "" {
		return ErrMissingSignature
	}

	if maxSkew > 0 {
		secs, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: timestamp %q", ErrInvalidSignature, timestamp)
		}
		skew := now.Sub(time.Unix(secs, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > maxSkew {
			return ErrStaleRequest
		}
	}

	expected := Sign(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
