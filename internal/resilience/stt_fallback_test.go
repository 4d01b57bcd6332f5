package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/docent/pkg/provider/stt"
	sttmock "github.com/MrWong99/docent/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		primary       *sttmock.Provider
		secondary     *sttmock.Provider
		want          string
		wantErr       bool
		wantSecondary int
	}{
		{
			name:      "primary answers",
			primary:   &sttmock.Provider{Text: "from primary"},
			secondary: &sttmock.Provider{Text: "from secondary"},
			want:      "from primary",
		},
		{
			name:          "fails over",
			primary:       &sttmock.Provider{Err: errors.New("whisper down")},
			secondary:     &sttmock.Provider{Text: "from secondary"},
			want:          "from secondary",
			wantSecondary: 1,
		},
		{
			name:          "all fail",
			primary:       &sttmock.Provider{Err: errors.New("whisper down")},
			secondary:     &sttmock.Provider{Err: errors.New("deepgram down")},
			wantErr:       true,
			wantSecondary: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fb := NewSTTFallback(tc.primary, "primary", FallbackConfig{})
			fb.AddFallback("secondary", tc.secondary)

			got, err := fb.Transcribe(context.Background(), []int16{1, 2}, 16000)
			if tc.wantErr {
				if !errors.Is(err, ErrAllFailed) {
					t.Errorf("err = %v, want ErrAllFailed", err)
				}
			} else if err != nil || got.Text != tc.want {
				t.Errorf("Transcribe = %+v, %v; want %q", got, err, tc.want)
			}
			if tc.primary.CallCount() != 1 {
				t.Errorf("primary calls = %d, want 1", tc.primary.CallCount())
			}
			if tc.secondary.CallCount() != tc.wantSecondary {
				t.Errorf("secondary calls = %d, want %d", tc.secondary.CallCount(), tc.wantSecondary)
			}
		})
	}
}

func TestSTTFallback_Group(t *testing.T) {
	t.Parallel()

	fb := NewSTTFallback(&sttmock.Provider{}, "whisper", FallbackConfig{})
	if fb.Group().Len() != 1 {
		t.Errorf("Len = %d, want 1", fb.Group().Len())
	}
	var _ stt.Provider = fb
}
