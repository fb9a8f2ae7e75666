package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	cases := []struct {
		env   string
		flags Flags
		want  zerolog.Level
	}{
		{"prod", Flags{}, zerolog.InfoLevel},
		{"dev", Flags{}, zerolog.TraceLevel},
		{"TEST", Flags{}, zerolog.TraceLevel},
		{"staging", Flags{}, zerolog.InfoLevel},
		{"prod", Flags{Debug: true}, zerolog.DebugLevel},
		{"prod", Flags{Trace: true}, zerolog.TraceLevel},
		{"dev", Flags{Info: true}, zerolog.InfoLevel},
		{"dev", Flags{Debug: true, Trace: true}, zerolog.DebugLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LevelFor(tc.env, tc.flags), "%s %+v", tc.env, tc.flags)
	}
}
