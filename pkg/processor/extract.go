package processor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	// ErrUnreadableDocument wraps every failure to turn a file into text.
	ErrUnreadableDocument = errors.New("unreadable document")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
)

// SupportedExtensions lists the file formats the index is built from.
var SupportedExtensions = []string{".txt", ".md", ".pdf", ".docx", ".html", ".htm"}

// IsSupported reports whether name has one of SupportedExtensions.
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// CommandRunner runs an external tool and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type ExtractorConfig struct {
	// PDFToText is the pdftotext binary used for .pdf files.
	PDFToText string
	Runner    CommandRunner
}

// FileExtractor reads plain text out of the supported formats.
type FileExtractor struct {
	config ExtractorConfig
}

func NewExtractor(config ExtractorConfig) *FileExtractor {
	if config.PDFToText == "" {
		config.PDFToText = "pdftotext"
	}
	if config.Runner == nil {
		config.Runner = execRunner{}
	}
	return &FileExtractor{config: config}
}

// Extract returns the text of the file at path. format is the file extension
// including the dot; when empty it is taken from path.
func (e *FileExtractor) Extract(ctx context.Context, path, format string) (string, error) {
	if format == "" {
		format = filepath.Ext(path)
	}
	switch strings.ToLower(format) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filepath.Base(path), err)
		}
		return strings.ToValidUTF8(string(data), "�"), nil
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filepath.Base(path), err)
		}
		defer f.Close()
		text, err := HTMLToText(f)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filepath.Base(path), err)
		}
		return strings.ToValidUTF8(text, "�"), nil
	case ".docx":
		return e.extractDOCX(path)
	case ".pdf":
		return e.extractPDF(ctx, path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func (e *FileExtractor) extractPDF(ctx context.Context, path string) (string, error) {
	if _, err := exec.LookPath(e.config.PDFToText); err != nil {
		if _, ok := e.config.Runner.(execRunner); ok {
			return "", fmt.Errorf("%w: %s not installed", ErrUnreadableDocument, e.config.PDFToText)
		}
	}
	out, err := e.config.Runner.Run(ctx, e.config.PDFToText, "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filepath.Base(path), err)
	}
	// pdftotext separates pages with form feeds
	text := strings.ReplaceAll(string(out), "\f", "\n")
	return strings.ToValidUTF8(text, "�"), nil
}

type docxBody struct {
	Paragraphs []struct {
		Runs []struct {
			Text []string `xml:"t"`
		} `xml:"r"`
	} `xml:"body>p"`
}

func (e *FileExtractor) extractDOCX(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filepath.Base(path), err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %s: not a docx archive", ErrUnreadableDocument, filepath.Base(path))
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filepath.Base(path), err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filepath.Base(path), err)
		}

		var body docxBody
		if err := xml.Unmarshal(raw, &body); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filepath.Base(path), err)
		}
		lines := make([]string, 0, len(body.Paragraphs))
		for _, p := range body.Paragraphs {
			var sb strings.Builder
			for _, r := range p.Runs {
				for _, t := range r.Text {
					sb.WriteString(t)
				}
			}
			lines = append(lines, sb.String())
		}
		return strings.Join(lines, "\n"), nil
	}

	return "", fmt.Errorf("%w: %s: missing word/document.xml", ErrUnreadableDocument, filepath.Base(path))
}
