// Package sitemap emits the .hhc (table of contents) and .hhk (index) HTML
// files that help viewers expect inside an archive. The emitter is a plain
// template over the packed entry list; it carries no knowledge of the
// archive format.
package sitemap

import (
	"bytes"
	"path"
	"strings"
	"text/template"
)

// Page is one sitemap target.
type Page struct {
	Title string
	Local string // entry name within the archive, without the leading slash
}

const sitemapTmpl = `<!DOCTYPE HTML PUBLIC "-//IETF//DTD HTML//EN">
<HTML>
<HEAD>
<meta name="GENERATOR" content="go-chm">
</HEAD><BODY>
<OBJECT type="text/site properties">
	<param name="ImageType" value="Folder">
</OBJECT>
<UL>
{{- range . }}
	<LI> <OBJECT type="text/sitemap">
		<param name="Name" value="{{ .Title }}">
		<param name="Local" value="{{ .Local }}">
		</OBJECT>
{{- end }}
</UL>
</BODY></HTML>
`

var tmpl = template.Must(template.New("sitemap").Parse(sitemapTmpl))

// Contents renders a .hhc document listing every HTML page in names, in the
// order given.
func Contents(names []string) ([]byte, error) {
	return render(pages(names))
}

// Index renders a .hhk document. The structure matches Contents; viewers
// distinguish the two by file extension.
func Index(names []string) ([]byte, error) {
	return render(pages(names))
}

func render(ps []Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ps); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pages selects the HTML entries and derives display titles from their base
// names.
func pages(names []string) []Page {
	var ps []Page
	for _, name := range names {
		ext := strings.ToLower(path.Ext(name))
		if ext != ".html" && ext != ".htm" {
			continue
		}
		local := strings.TrimPrefix(name, "/")
		title := strings.TrimSuffix(path.Base(local), path.Ext(local))
		ps = append(ps, Page{Title: title, Local: local})
	}
	return ps
}
