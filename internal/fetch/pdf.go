package fetch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// PDFDocument is the text and metadata extracted from a PDF
type PDFDocument struct {
	Text   string `json:"text"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
	Pages  int    `json:"pages,omitempty"`
}

// PDFService extracts text and renders thumbnails from PDF bytes
type PDFService interface {
	ExtractText(ctx context.Context, data []byte) (*PDFDocument, error)
	RasterizeFirstPage(ctx context.Context, data []byte) ([]byte, error)
}

// runFunc runs an external tool and returns its stdout
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- tool paths come from configuration
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Poppler shells out to pdftotext, pdfinfo and pdftoppm
type Poppler struct {
	pdfToText string
	pdfInfo   string
	pdfToPPM  string
	timeout   time.Duration
	run       runFunc
}

// NewPoppler creates a poppler-backed PDF service
func NewPoppler(pdfToText, pdfInfo, pdfToPPM string, timeout time.Duration) *Poppler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poppler{
		pdfToText: pdfToText,
		pdfInfo:   pdfInfo,
		pdfToPPM:  pdfToPPM,
		timeout:   timeout,
		run:       runCommand,
	}
}

// ExtractText returns the document text plus Title/Author from the info dictionary.
// Missing metadata is not an error.
func (p *Poppler) ExtractText(ctx context.Context, data []byte) (*PDFDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	path, cleanup, err := writeTemp(data, "doc-*.pdf")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := p.run(ctx, p.pdfToText, "-enc", "UTF-8", "-nopgbrk", path, "-")
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	doc := &PDFDocument{Text: cleanPDFText(string(out))}

	if info, err := p.run(ctx, p.pdfInfo, "-enc", "UTF-8", path); err == nil {
		doc.Title, doc.Author, doc.Pages = parsePDFInfo(info)
	}

	return doc, nil
}

// RasterizeFirstPage renders page one to PNG
func (p *Poppler) RasterizeFirstPage(ctx context.Context, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	path, cleanup, err := writeTemp(data, "thumb-*.pdf")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	prefix := strings.TrimSuffix(path, ".pdf")
	if _, err := p.run(ctx, p.pdfToPPM, "-png", "-f", "1", "-l", "1", "-scale-to", "600", "-singlefile", path, prefix); err != nil {
		return nil, fmt.Errorf("rasterize pdf: %w", err)
	}

	png := prefix + ".png"
	defer func() { _ = os.Remove(png) }()
	img, err := os.ReadFile(png)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail: %w", err)
	}
	return img, nil
}

func writeTemp(data []byte, pattern string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp pdf: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", nil, fmt.Errorf("write temp pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", nil, fmt.Errorf("close temp pdf: %w", err)
	}
	return f.Name(), func() { _ = os.Remove(f.Name()) }, nil
}

// parsePDFInfo reads the "Key: value" lines printed by pdfinfo
func parsePDFInfo(out []byte) (title, author string, pages int) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, val, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "Title":
			title = val
		case "Author":
			author = val
		case "Pages":
			pages, _ = strconv.Atoi(val)
		}
	}
	return title, author, pages
}

// cleanPDFText joins hard-wrapped lines into paragraphs and drops hyphenation
func cleanPDFText(raw string) string {
	var paras []string
	var cur strings.Builder
	flush := func() {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			paras = append(paras, s)
		}
		cur.Reset()
	}

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		if strings.HasSuffix(line, "-") && len(line) > 1 {
			cur.WriteString(strings.TrimSuffix(line, "-"))
			continue
		}
		cur.WriteString(line)
		cur.WriteByte(' ')
	}
	flush()
	return strings.Join(paras, "\n\n")
}
