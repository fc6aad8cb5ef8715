package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/Misty-clouds/eurobankv2/utils"
)

// TOTPService generates and validates RFC 6238 time-based one-time codes.
// Codes are HMAC-SHA1 over a 30 second counter, truncated to 6 digits.
// Validation accepts the neighbouring window on each side to absorb clock
// drift between the operator's device and the server.
type TOTPService struct {
	secret []byte
	period time.Duration
	digits int
	skew   int

	now func() time.Time
}

// NewTOTPService creates a TOTP service from a base32-encoded shared secret
func NewTOTPService(secret string) (*TOTPService, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid TOTP secret: %w", err)
	}
	return &TOTPService{
		secret: key,
		period: utils.TOTPPeriod,
		digits: utils.TOTPDigits,
		skew:   1,
		now:    utils.UTCNow,
	}, nil
}

// GenerateAt computes the code for the window containing t
func (s *TOTPService) GenerateAt(t time.Time) string {
	counter := uint64(t.Unix()) / uint64(s.period.Seconds())

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, s.secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 section 5.3
	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < s.digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", s.digits, code%mod)
}

// Generate computes the code for the current window
func (s *TOTPService) Generate() string {
	return s.GenerateAt(s.now())
}

// Next computes the code for the window after the current one
func (s *TOTPService) Next() string {
	return s.GenerateAt(s.now().Add(s.period))
}

// Remaining reports how long the current window's code stays valid
func (s *TOTPService) Remaining() time.Duration {
	elapsed := time.Duration(s.now().Unix()%int64(s.period.Seconds())) * time.Second
	return s.period - elapsed
}

// Validate checks a code against the current window and skew neighbours
func (s *TOTPService) Validate(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != s.digits {
		return false
	}

	now := s.now()
	for offset := -s.skew; offset <= s.skew; offset++ {
		candidate := s.GenerateAt(now.Add(time.Duration(offset) * s.period))
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true
		}
	}
	return false
}
