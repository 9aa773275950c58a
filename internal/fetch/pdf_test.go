package fetch

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/provenance/internal/model"
)

func modelHTTP(ua, referer string) model.HTTPConfig {
	return model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: ua, Referer: referer, MaxBodyBytes: 1 << 20}
}

func TestPoppler_ExtractText(t *testing.T) {
	p := NewPoppler("pdftotext", "pdfinfo", "pdftoppm", time.Second)
	var calls []string
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, name)
		switch name {
		case "pdftotext":
			return []byte("Coffee and the heart: a lon-\ngitudinal study of 5,000 adults.\n\nSecond paragraph.\n"), nil
		case "pdfinfo":
			return []byte("Title:          Coffee and the heart\nAuthor:         Jane Doe\nPages:          12\n"), nil
		}
		return nil, errors.New("unexpected tool")
	}

	doc, err := p.ExtractText(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if doc.Title != "Coffee and the heart" || doc.Author != "Jane Doe" || doc.Pages != 12 {
		t.Errorf("Unexpected metadata: %+v", doc)
	}
	if !strings.HasPrefix(doc.Text, "Coffee and the heart: a longitudinal study of 5,000 adults.") {
		t.Errorf("Expected dehyphenated text, got %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "\n\nSecond paragraph.") {
		t.Errorf("Expected paragraph break, got %q", doc.Text)
	}
	if len(calls) != 2 {
		t.Errorf("Expected pdftotext and pdfinfo, got %v", calls)
	}
}

func TestPoppler_MissingInfoIsNotFatal(t *testing.T) {
	p := NewPoppler("pdftotext", "pdfinfo", "pdftoppm", time.Second)
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "pdftotext" {
			return []byte("text"), nil
		}
		return nil, errors.New("pdfinfo: not found")
	}

	doc, err := p.ExtractText(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if doc.Title != "" || doc.Text != "text" {
		t.Errorf("Unexpected document: %+v", doc)
	}
}

func TestPoppler_RasterizeFirstPage(t *testing.T) {
	p := NewPoppler("pdftotext", "pdfinfo", "pdftoppm", time.Second)
	var lastPrefix string
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		prefix := args[len(args)-1]
		lastPrefix = prefix
		return nil, os.WriteFile(prefix+".png", []byte("PNGDATA"), 0o644)
	}

	img, err := p.RasterizeFirstPage(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(img) != "PNGDATA" {
		t.Errorf("Unexpected image: %q", img)
	}

	if _, err := os.Stat(lastPrefix + ".png"); !os.IsNotExist(err) {
		t.Errorf("Expected thumbnail temp file removed, stat err %v", err)
	}
}
