package whisper

import (
	"fmt"
	"strings"
)

// Language is a language code understood by whisper models.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// languages mirrors the whisper tokenizer table, in tokenizer order.
var languages = []Language{
	{Code: "en", Name: "English"},
	{Code: "zh", Name: "Chinese"},
	{Code: "de", Name: "German"},
	{Code: "es", Name: "Spanish"},
	{Code: "ru", Name: "Russian"},
	{Code: "ko", Name: "Korean"},
	{Code: "fr", Name: "French"},
	{Code: "ja", Name: "Japanese"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "tr", Name: "Turkish"},
	{Code: "pl", Name: "Polish"},
	{Code: "ca", Name: "Catalan"},
	{Code: "nl", Name: "Dutch"},
	{Code: "ar", Name: "Arabic"},
	{Code: "sv", Name: "Swedish"},
	{Code: "it", Name: "Italian"},
	{Code: "id", Name: "Indonesian"},
	{Code: "hi", Name: "Hindi"},
	{Code: "fi", Name: "Finnish"},
	{Code: "vi", Name: "Vietnamese"},
	{Code: "he", Name: "Hebrew"},
	{Code: "uk", Name: "Ukrainian"},
	{Code: "el", Name: "Greek"},
	{Code: "ms", Name: "Malay"},
	{Code: "cs", Name: "Czech"},
	{Code: "ro", Name: "Romanian"},
	{Code: "da", Name: "Danish"},
	{Code: "hu", Name: "Hungarian"},
	{Code: "ta", Name: "Tamil"},
	{Code: "no", Name: "Norwegian"},
	{Code: "th", Name: "Thai"},
	{Code: "ur", Name: "Urdu"},
	{Code: "hr", Name: "Croatian"},
	{Code: "bg", Name: "Bulgarian"},
	{Code: "lt", Name: "Lithuanian"},
	{Code: "la", Name: "Latin"},
	{Code: "mi", Name: "Maori"},
	{Code: "ml", Name: "Malayalam"},
	{Code: "cy", Name: "Welsh"},
	{Code: "sk", Name: "Slovak"},
	{Code: "te", Name: "Telugu"},
	{Code: "fa", Name: "Persian"},
	{Code: "lv", Name: "Latvian"},
	{Code: "bn", Name: "Bengali"},
	{Code: "sr", Name: "Serbian"},
	{Code: "az", Name: "Azerbaijani"},
	{Code: "sl", Name: "Slovenian"},
	{Code: "kn", Name: "Kannada"},
	{Code: "et", Name: "Estonian"},
	{Code: "mk", Name: "Macedonian"},
	{Code: "br", Name: "Breton"},
	{Code: "eu", Name: "Basque"},
	{Code: "is", Name: "Icelandic"},
	{Code: "hy", Name: "Armenian"},
	{Code: "ne", Name: "Nepali"},
	{Code: "mn", Name: "Mongolian"},
	{Code: "bs", Name: "Bosnian"},
	{Code: "kk", Name: "Kazakh"},
	{Code: "sq", Name: "Albanian"},
	{Code: "sw", Name: "Swahili"},
	{Code: "gl", Name: "Galician"},
	{Code: "mr", Name: "Marathi"},
	{Code: "pa", Name: "Punjabi"},
	{Code: "si", Name: "Sinhala"},
	{Code: "km", Name: "Khmer"},
	{Code: "sn", Name: "Shona"},
	{Code: "yo", Name: "Yoruba"},
	{Code: "so", Name: "Somali"},
	{Code: "af", Name: "Afrikaans"},
	{Code: "oc", Name: "Occitan"},
	{Code: "ka", Name: "Georgian"},
	{Code: "be", Name: "Belarusian"},
	{Code: "tg", Name: "Tajik"},
	{Code: "sd", Name: "Sindhi"},
	{Code: "gu", Name: "Gujarati"},
	{Code: "am", Name: "Amharic"},
	{Code: "yi", Name: "Yiddish"},
	{Code: "lo", Name: "Lao"},
	{Code: "uz", Name: "Uzbek"},
	{Code: "fo", Name: "Faroese"},
	{Code: "ht", Name: "Haitian Creole"},
	{Code: "ps", Name: "Pashto"},
	{Code: "tk", Name: "Turkmen"},
	{Code: "nn", Name: "Nynorsk"},
	{Code: "mt", Name: "Maltese"},
	{Code: "sa", Name: "Sanskrit"},
	{Code: "lb", Name: "Luxembourgish"},
	{Code: "my", Name: "Myanmar"},
	{Code: "bo", Name: "Tibetan"},
	{Code: "tl", Name: "Tagalog"},
	{Code: "mg", Name: "Malagasy"},
	{Code: "as", Name: "Assamese"},
	{Code: "tt", Name: "Tatar"},
	{Code: "haw", Name: "Hawaiian"},
	{Code: "ln", Name: "Lingala"},
	{Code: "ha", Name: "Hausa"},
	{Code: "ba", Name: "Bashkir"},
	{Code: "jw", Name: "Javanese"},
	{Code: "su", Name: "Sundanese"},
	{Code: "yue", Name: "Cantonese"},
}

// Languages returns the supported language codes, excluding AutoLanguage.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// NormalizeLanguage lowercases and trims input; empty input means auto.
func NormalizeLanguage(input string) string {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if trimmed == "" {
		return AutoLanguage
	}
	return trimmed
}

// ValidateLanguage accepts AutoLanguage or any registered code.
func ValidateLanguage(input string) (string, error) {
	code := NormalizeLanguage(input)
	if code == AutoLanguage {
		return code, nil
	}
	for _, lang := range languages {
		if lang.Code == code {
			return code, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q (use %q or a whisper language code such as en, de, fr)", input, AutoLanguage)
}
