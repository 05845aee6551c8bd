package detector

import (
	"testing"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibebox/internal/domain/screen"
)

func fp(bits uint64) *screen.Fingerprint {
	return &screen.Fingerprint{
		Hash: goimagehash.NewImageHash(bits, goimagehash.DHash),
		At:   time.Now(),
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		prev         *screen.Fingerprint
		curr         *screen.Fingerprint
		wantDistance float64
		wantExceeds  bool
	}{
		{
			name:         "Identical fingerprints",
			prev:         fp(0xDEADBEEFCAFEF00D),
			curr:         fp(0xDEADBEEFCAFEF00D),
			wantDistance: 0.0,
			wantExceeds:  false,
		},
		{
			name:         "First sample establishes baseline",
			prev:         nil,
			curr:         fp(0xDEADBEEFCAFEF00D),
			wantDistance: 0.0,
			wantExceeds:  false,
		},
		{
			name:         "Below threshold",
			prev:         fp(0),
			curr:         fp(0b11111), // 5/64 ≈ 0.078
			wantDistance: 5.0 / 64,
			wantExceeds:  false,
		},
		{
			name:         "Exactly at threshold boundary",
			prev:         fp(0),
			curr:         fp(0b1111111), // 7/64 ≈ 0.109
			wantDistance: 7.0 / 64,
			wantExceeds:  true,
		},
		{
			name:         "Just under boundary",
			prev:         fp(0),
			curr:         fp(0b111111), // 6/64 ≈ 0.094
			wantDistance: 6.0 / 64,
			wantExceeds:  false,
		},
		{
			name:         "Large change",
			prev:         fp(0),
			curr:         fp(0xFFFF), // 16/64 = 0.25
			wantDistance: 0.25,
			wantExceeds:  true,
		},
		{
			name:         "Maximum distance",
			prev:         fp(0),
			curr:         fp(^uint64(0)),
			wantDistance: 1.0,
			wantExceeds:  true,
		},
	}

	d := New(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := d.Classify(tt.prev, tt.curr)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantDistance, ev.Distance, 1e-9)
			assert.Equal(t, tt.wantExceeds, ev.Exceeds)
		})
	}
}

func TestClassifySymmetric(t *testing.T) {
	d := New(0)
	a := fp(0x0F0F0F0F0F0F0F0F)
	b := fp(0x00FF00FF00FF00FF)

	ab, err := d.Classify(a, b)
	require.NoError(t, err)
	ba, err := d.Classify(b, a)
	require.NoError(t, err)
	assert.Equal(t, ab.Distance, ba.Distance)
}

func TestClassifyMissingCurrent(t *testing.T) {
	d := New(0)
	_, err := d.Classify(fp(1), nil)
	assert.Error(t, err)
}

func TestNewDefaultThreshold(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(0).Threshold())
	assert.Equal(t, 0.2, New(0.2).Threshold())
}
