// Package auth signs private REST calls to the NDAX gateway.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coachpo/ndax-gateway/errs"
)

const component = "auth"

// Header names attached to every private request.
const (
	HeaderNonce     = "Nonce"
	HeaderAPIKey    = "APIKey"
	HeaderSignature = "Signature"
	HeaderUserID    = "UserId"
)

// Credentials are the static session credentials.
// Secret is the shared HMAC key; configuration calls it "signature" but it is never sent as-is.
type Credentials struct {
	APIKey      string
	Secret      string
	UserID      string
	AccountName string
	AccountID   string
}

// Validate reports a signing error when the fields needed for a signature are missing.
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api key")
	}
	if strings.TrimSpace(c.Secret) == "" {
		missing = append(missing, "secret")
	}
	if strings.TrimSpace(c.UserID) == "" {
		missing = append(missing, "user id")
	}
	if len(missing) > 0 {
		return errs.New(component, errs.CodeSigning,
			errs.WithMessage("credentials incomplete: "+strings.Join(missing, ", ")))
	}
	return nil
}

// Sign returns hex(HMAC-SHA256(secret, nonce + userID + apiKey)).
func Sign(nonce, userID, apiKey, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce + userID + apiKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// Headers is the per-request authentication context.
type Headers struct {
	Nonce     string
	APIKey    string
	Signature string
	UserID    string
}

// Apply sets the four authentication headers on h.
func (h Headers) Apply(header http.Header) {
	header.Set(HeaderNonce, h.Nonce)
	header.Set(HeaderAPIKey, h.APIKey)
	header.Set(HeaderSignature, h.Signature)
	header.Set(HeaderUserID, h.UserID)
}

// Signer derives a fresh nonce and signature per call. It is safe for concurrent use.
type Signer struct {
	creds Credentials
	clock func() time.Time
}

// NewSigner validates the credentials and returns a Signer.
func NewSigner(creds Credentials, clock func() time.Time) (*Signer, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}
	return &Signer{creds: creds, clock: clock}, nil
}

// Credentials returns the static credentials the signer was built with.
func (s *Signer) Credentials() Credentials {
	return s.creds
}

// Nonce returns the current wall-clock time in whole milliseconds since the epoch.
func (s *Signer) Nonce() string {
	return strconv.FormatInt(s.clock().UnixMilli(), 10)
}

// Headers builds the authentication context for one request.
func (s *Signer) Headers() Headers {
	nonce := s.Nonce()
	return Headers{
		Nonce:     nonce,
		APIKey:    s.creds.APIKey,
		Signature: Sign(nonce, s.creds.UserID, s.creds.APIKey, s.creds.Secret),
		UserID:    s.creds.UserID,
	}
}
