package netsuite

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// signer produces token-based-authentication Authorization headers for the
// SuiteQL REST endpoint (OAuth 1.0 with HMAC-SHA256 and the account id as
// realm). Request bodies are JSON and do not participate in the signature
// base string; query parameters (limit/offset) do.
type signer struct {
	accountID      string
	consumerKey    string
	consumerSecret string
	tokenID        string
	tokenSecret    string

	nonce func() string
	now   func() time.Time
}

func newSigner(accountID, consumerKey, consumerSecret, tokenID, tokenSecret string) *signer {
	return &signer{
		accountID:      accountID,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		tokenID:        tokenID,
		tokenSecret:    tokenSecret,
		nonce:          randomNonce,
		now:            time.Now,
	}
}

// Authorize returns the Authorization header value for a request.
func (s *signer) Authorize(method string, u *url.URL) string {
	oauth := map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            s.nonce(),
		"oauth_signature_method": "HMAC-SHA256",
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_token":            s.tokenID,
		"oauth_version":          "1.0",
	}

	params := make([]string, 0, len(oauth)+4)
	for k, v := range oauth {
		params = append(params, percentEncode(k)+"="+percentEncode(v))
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			params = append(params, percentEncode(k)+"="+percentEncode(v))
		}
	}
	sort.Strings(params)

	base := strings.Join([]string{
		strings.ToUpper(method),
		percentEncode(baseURI(u)),
		percentEncode(strings.Join(params, "&")),
	}, "&")

	key := percentEncode(s.consumerSecret) + "&" + percentEncode(s.tokenSecret)
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(base))
	oauth["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	keys := make([]string, 0, len(oauth))
	for k := range oauth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "OAuth realm=%q", s.accountID)
	for _, k := range keys {
		fmt.Fprintf(&b, ", %s=%q", k, percentEncode(oauth[k]))
	}
	return b.String()
}

func baseURI(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.Fragment = ""
	return c.String()
}

// percentEncode applies RFC 3986 encoding; url.QueryEscape differs on
// spaces and tildes, which breaks the signature.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(buf)
}
