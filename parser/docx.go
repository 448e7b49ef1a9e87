package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DOCXParser reads terms from body paragraphs and from the first cell of
// every table row. Heading and title paragraphs are skipped.
type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	rc, err := r.Open("word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("reading document.xml: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	terms, err := parseDocxTerms(data)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}

	return &ParseResult{
		Terms:  terms,
		Method: "native",
		Metadata: map[string]string{
			"term_count": strconv.Itoa(len(terms)),
		},
	}, nil
}

// DOCX XML structures (simplified)
type docxBody struct {
	XMLName xml.Name    `xml:"body"`
	Paras   []docxPara  `xml:"p"`
	Tables  []docxTable `xml:"tbl"`
}

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxPara struct {
	XMLName xml.Name    `xml:"p"`
	PPr     *docxParaPr `xml:"pPr"`
	Runs    []docxRun   `xml:"r"`
}

type docxParaPr struct {
	PStyle *docxPStyle `xml:"pStyle"`
}

type docxPStyle struct {
	Val string `xml:"val,attr"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

func parseDocxTerms(data []byte) ([]string, error) {
	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var terms []string
	for _, para := range doc.Body.Paras {
		if isHeadingPara(para) {
			continue
		}
		if t := cleanTermLine(extractParaText(para)); t != "" {
			terms = append(terms, t)
		}
	}

	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			if len(row.Cells) == 0 {
				continue
			}
			var cellText strings.Builder
			for _, p := range row.Cells[0].Paras {
				if cellText.Len() > 0 {
					cellText.WriteString(" ")
				}
				cellText.WriteString(extractParaText(p))
			}
			if t := strings.TrimSpace(cellText.String()); t != "" {
				terms = append(terms, t)
			}
		}
	}

	return terms, nil
}

func isHeadingPara(para docxPara) bool {
	if para.PPr == nil || para.PPr.PStyle == nil {
		return false
	}
	style := strings.ToLower(para.PPr.PStyle.Val)
	return strings.HasPrefix(style, "heading") || strings.HasPrefix(style, "title")
}

func extractParaText(para docxPara) string {
	var b strings.Builder
	for _, run := range para.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}
