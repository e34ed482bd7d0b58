package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"bilancio/internal/core"
)

// Signer mints and checks expiring signatures for blob download links.
// The signature covers the path and the expiry instant, so neither can
// be swapped without invalidating it.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the unix expiry and the hex signature for path.
func (s *Signer) Sign(path string, ttl time.Duration) (int64, string) {
	exp := s.now().Add(ttl).Unix()
	return exp, s.mac(path, exp)
}

// Check validates a signature produced by Sign.
func (s *Signer) Check(path string, exp int64, sig string) error {
	if s.now().Unix() > exp {
		return core.ErrInvalidToken
	}
	want := s.mac(path, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return core.ErrInvalidToken
	}
	return nil
}

func (s *Signer) mac(path string, exp int64) string {
	h := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(h, "%s\n%s", path, strconv.FormatInt(exp, 10))
	return hex.EncodeToString(h.Sum(nil))
}
