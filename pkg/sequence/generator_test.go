package sequence

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatCode(t *testing.T) {
	code, err := FormatCode("CMP", "261016", 1)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^CMP-261016-001[A-Z2-9]{2}$`), code)

	code, err = FormatCode("DSP", "261016", 36*36*36)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^DSP-261016-1000[A-Z2-9]{2}$`), code)
}
