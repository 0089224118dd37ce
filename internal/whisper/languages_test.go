package whisper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "", want: AutoLanguage},
		{input: "auto", want: AutoLanguage},
		{input: " AUTO ", want: AutoLanguage},
		{input: "en", want: "en"},
		{input: "DE", want: "de"},
		{input: "yue", want: "yue"},
		{input: "klingon", wantErr: true},
		{input: "english", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ValidateLanguage(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLanguagesHaveUniqueCodes(t *testing.T) {
	t.Parallel()

	langs := Languages()
	require.Equal(t, "en", langs[0].Code)

	seen := make(map[string]bool, len(langs))
	for _, lang := range langs {
		require.NotEmpty(t, lang.Name)
		require.Falsef(t, seen[lang.Code], "duplicate language code %s", lang.Code)
		seen[lang.Code] = true
	}
	require.False(t, seen[AutoLanguage])
}

func TestBuildArgsOmitsLanguageForAuto(t *testing.T) {
	t.Parallel()

	args := BuildArgs("/m/ggml-base.bin", "/a/speech.wav", "/o/transcript", "auto")
	require.Equal(t, []string{"-m", "/m/ggml-base.bin", "-f", "/a/speech.wav", "-nt", "-otxt", "-of", "/o/transcript"}, args)

	args = BuildArgs("/m/ggml-base.bin", "/a/speech.wav", "/o/transcript", "EN")
	require.Equal(t, []string{"-l", "en"}, args[len(args)-2:])
}
