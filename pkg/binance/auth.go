package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Authenticator signs a request before it is sent.
type Authenticator interface {
	Sign(req *http.Request, params url.Values) error
}

// HMACAuthenticator implements Binance SIGNED endpoint security: a timestamp
// and recvWindow are added to the query, the encoded query is signed with
// HMAC-SHA256 and the key goes into the X-MBX-APIKEY header.
type HMACAuthenticator struct {
	apiKey     string
	apiSecret  string
	recvWindow time.Duration
	now        func() time.Time
}

func NewHMACAuthenticator(apiKey, apiSecret string, recvWindow time.Duration) *HMACAuthenticator {
	return &HMACAuthenticator{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: recvWindow,
		now:        time.Now,
	}
}

func (a *HMACAuthenticator) Sign(req *http.Request, params url.Values) error {
	params.Set("timestamp", strconv.FormatInt(a.now().UnixMilli(), 10))
	if a.recvWindow > 0 {
		params.Set("recvWindow", strconv.FormatInt(a.recvWindow.Milliseconds(), 10))
	}
	query := params.Encode()
	req.URL.RawQuery = query + "&signature=" + a.sign(query)
	req.Header.Set("X-MBX-APIKEY", a.apiKey)
	return nil
}

func (a *HMACAuthenticator) sign(payload string) string {
	return computeHMAC(payload, a.apiSecret)
}

func computeHMAC(message, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
