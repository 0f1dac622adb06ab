package extract

import (
	"io"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// htmlText strips page chrome with goquery, converts the remaining body to
// markdown and flattens that to plain text.
func htmlText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()
	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	body, err := sel.Html()
	if err != nil {
		return "", err
	}
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(body)
	if err != nil {
		return "", err
	}
	return markdownToText([]byte(markdown)), nil
}
