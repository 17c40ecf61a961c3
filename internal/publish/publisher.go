// Package publish renders package documentation after a successful run on
// the publishing channel.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/matrixci/internal/config"
	"git.home.luguber.info/inful/matrixci/internal/errors"
	"git.home.luguber.info/inful/matrixci/internal/logfields"
	"git.home.luguber.info/inful/matrixci/internal/pipeline"
	"git.home.luguber.info/inful/matrixci/internal/toolchain"
)

// ShouldPublish is the post-pipeline gate: only a passing entry on the
// publishing channel publishes. Allowed failures never publish even when the
// aggregate run passes.
func ShouldPublish(entry toolchain.Entry, verdict pipeline.Verdict, publishing toolchain.Channel) bool {
	return entry.Channel == publishing && verdict == pipeline.VerdictPass
}

// Publisher renders package docs directories into a static HTML tree.
type Publisher struct {
	outputDir  string
	baseURL    string
	publishing toolchain.Channel
	md         goldmark.Markdown
	titler     cases.Caser
}

func NewPublisher(cfg config.PublishConfig, publishing toolchain.Channel) *Publisher {
	return &Publisher{
		outputDir:  cfg.OutputDir,
		baseURL:    cfg.BaseURL,
		publishing: publishing,
		md:         goldmark.New(),
		titler:     cases.Title(language.English),
	}
}

// ShouldPublish applies the gate against this publisher's channel.
func (p *Publisher) ShouldPublish(entry toolchain.Entry, verdict pipeline.Verdict) bool {
	return ShouldPublish(entry, verdict, p.publishing)
}

// Publish renders every markdown file under each package's docs directory
// into OutputDir/<package>/. Packages without a docs directory are skipped.
func (p *Publisher) Publish(ctx context.Context, workDir string, packages []config.Package) error {
	for _, pkg := range packages {
		if pkg.DocsDir == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.publishPackage(workDir, pkg); err != nil {
			return err
		}
	}
	return p.verifyOutput()
}

func (p *Publisher) publishPackage(workDir string, pkg config.Package) error {
	docsDir := filepath.Join(workDir, pkg.Dir, pkg.DocsDir)
	entries, err := os.ReadDir(docsDir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("No docs directory, skipping", logfields.Package(pkg.Name))
			return nil
		}
		return errors.Wrap(err, errors.CategoryPublish, errors.SeverityError, "failed to read docs directory").WithContext("dir", docsDir)
	}

	outDir := filepath.Join(p.outputDir, pkg.Name)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return errors.Wrap(err, errors.CategoryPublish, errors.SeverityError, "failed to create output directory").WithContext("dir", outDir)
	}

	rendered := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		src := filepath.Join(docsDir, e.Name())
		dst := filepath.Join(outDir, strings.TrimSuffix(e.Name(), ".md")+".html")
		if err := p.renderFile(src, dst); err != nil {
			return err
		}
		rendered++
	}

	slog.Info("Published package docs",
		logfields.Package(pkg.Name),
		slog.Int("pages", rendered),
		slog.String("output", outDir))
	return nil
}

func (p *Publisher) renderFile(src, dst string) error {
	raw, err := os.ReadFile(filepath.Clean(src))
	if err != nil {
		return errors.Wrap(err, errors.CategoryPublish, errors.SeverityError, "failed to read markdown source").WithContext("path", src)
	}

	var body bytes.Buffer
	if err := p.md.Convert(raw, &body); err != nil {
		return errors.Wrap(err, errors.CategoryPublish, errors.SeverityError, "failed to render markdown").WithContext("path", src)
	}

	title := p.pageTitle(src)
	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", title)
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")

	if err := os.WriteFile(dst, page.Bytes(), 0o640); err != nil {
		return errors.Wrap(err, errors.CategoryPublish, errors.SeverityError, "failed to write rendered page").WithContext("path", dst)
	}
	return nil
}

// pageTitle derives a human title from the source file name:
// "getting-started.md" becomes "Getting Started".
func (p *Publisher) pageTitle(src string) string {
	name := strings.TrimSuffix(filepath.Base(src), ".md")
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return p.titler.String(name)
}
