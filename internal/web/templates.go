package web

import (
	"embed"
	"html/template"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fmueller/voxbatch/internal/media"
	"github.com/fmueller/voxbatch/internal/whisper"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(
	template.New("index.html").
		Funcs(template.FuncMap{"section": newSection}).
		ParseFS(templateFS, "templates/index.html"),
)

type pageData struct {
	Models    []string
	Languages []whisper.Language
	Model     string
	Language  string
	Accept    string
	Folder    string
	Version   string

	Message string
	IsError bool

	Report    string
	ReportID  string
	Succeeded int
	Failed    int
}

type section struct {
	Page *pageData
	Mode string
}

func newSection(page *pageData, mode string) section {
	return section{Page: page, Mode: mode}
}

func renderIndex(w io.Writer, page *pageData) error {
	return indexTemplate.Execute(w, page)
}

func acceptAttr() string {
	return strings.Join(media.MediaExtensions(), ",")
}

// displayMessage capitalizes an error message for the page.
func displayMessage(err error) string {
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
