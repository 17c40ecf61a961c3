package publish

import (
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// verifyOutput walks the rendered tree and checks that relative links
// between pages resolve. Broken links are logged as warnings; they never
// fail the publish.
func (p *Publisher) verifyOutput() error {
	return filepath.WalkDir(p.outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".html") {
			return err
		}
		f, openErr := os.Open(filepath.Clean(path))
		if openErr != nil {
			return openErr
		}
		defer func() { _ = f.Close() }()

		for _, link := range extractLinks(f) {
			if !p.isRelativeLink(link) {
				continue
			}
			target := filepath.Join(filepath.Dir(path), filepath.FromSlash(link))
			if _, statErr := os.Stat(target); statErr != nil {
				slog.Warn("Broken relative link in published docs",
					slog.String("page", path),
					slog.String("link", link))
			}
		}
		return nil
	})
}

// extractLinks collects href and src values from an HTML document.
func extractLinks(r io.Reader) []string {
	doc, err := html.Parse(r)
	if err != nil {
		return nil
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key == "href" || attr.Key == "src" {
					if attr.Val != "" {
						links = append(links, attr.Val)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func (p *Publisher) isRelativeLink(link string) bool {
	if strings.HasPrefix(link, "#") || strings.HasPrefix(link, "/") {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
