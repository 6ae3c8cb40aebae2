package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRupiah(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{0, "Rp0"},
		{500, "Rp500"},
		{15000, "Rp15.000"},
		{1250000, "Rp1.250.000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRupiah(tt.amount))
	}
}
