package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base32 of the RFC 6238 reference key "12345678901234567890"
const rfcTestSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestTOTPGenerateAtReferenceVectors(t *testing.T) {
	svc, err := NewTOTPService(rfcTestSecret)
	require.NoError(t, err)

	// RFC 6238 appendix B vectors, truncated to six digits.
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"first window", time.Unix(59, 0).UTC(), "287082"},
		{"window boundary", time.Unix(1111111109, 0).UTC(), "081804"},
		{"just past boundary", time.Unix(1111111111, 0).UTC(), "050471"},
		{"large counter", time.Unix(1234567890, 0).UTC(), "005924"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.GenerateAt(tt.at))
		})
	}
}

func TestTOTPValidate(t *testing.T) {
	newFixed := func(t *testing.T, at time.Time) *TOTPService {
		t.Helper()
		svc, err := NewTOTPService(rfcTestSecret)
		require.NoError(t, err)
		svc.now = func() time.Time { return at }
		return svc
	}

	base := time.Unix(1111111109, 0).UTC()

	t.Run("current window accepted", func(t *testing.T) {
		svc := newFixed(t, base)
		assert.True(t, svc.Validate(svc.Generate()))
	})

	t.Run("previous window accepted", func(t *testing.T) {
		svc := newFixed(t, base)
		code := svc.GenerateAt(base.Add(-30 * time.Second))
		assert.True(t, svc.Validate(code))
	})

	t.Run("next window accepted", func(t *testing.T) {
		svc := newFixed(t, base)
		code := svc.GenerateAt(base.Add(30 * time.Second))
		assert.True(t, svc.Validate(code))
	})

	t.Run("two windows back rejected", func(t *testing.T) {
		svc := newFixed(t, base)
		code := svc.GenerateAt(base.Add(-60 * time.Second))
		assert.False(t, svc.Validate(code))
	})

	t.Run("wrong length rejected", func(t *testing.T) {
		svc := newFixed(t, base)
		assert.False(t, svc.Validate("12345"))
		assert.False(t, svc.Validate("1234567"))
		assert.False(t, svc.Validate(""))
	})

	t.Run("surrounding whitespace tolerated", func(t *testing.T) {
		svc := newFixed(t, base)
		assert.True(t, svc.Validate(" "+svc.Generate()+" "))
	})
}

func TestTOTPNextAndRemaining(t *testing.T) {
	svc, err := NewTOTPService(rfcTestSecret)
	require.NoError(t, err)

	// 10 seconds into the window starting at Unix 30.
	svc.now = func() time.Time { return time.Unix(40, 0).UTC() }

	assert.Equal(t, svc.GenerateAt(time.Unix(40, 0).UTC()), svc.Generate())
	assert.Equal(t, svc.GenerateAt(time.Unix(70, 0).UTC()), svc.Next())
	assert.Equal(t, 20*time.Second, svc.Remaining())

	// First second of a window.
	svc.now = func() time.Time { return time.Unix(60, 0).UTC() }
	assert.Equal(t, 30*time.Second, svc.Remaining())
}

func TestNewTOTPServiceSecretHandling(t *testing.T) {
	t.Run("lowercase and spaced secret normalized", func(t *testing.T) {
		canonical, err := NewTOTPService(rfcTestSecret)
		require.NoError(t, err)
		sloppy, err := NewTOTPService("gezd gnbv gy3t qojq gezd gnbv gy3t qojq")
		require.NoError(t, err)

		at := time.Unix(59, 0).UTC()
		assert.Equal(t, canonical.GenerateAt(at), sloppy.GenerateAt(at))
	})

	t.Run("invalid base32 rejected", func(t *testing.T) {
		_, err := NewTOTPService("not-base32-!!!")
		assert.Error(t, err)
	})
}
