package document

import (
	"bytes"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/sawpanic/noticerun/internal/fault"
)

func init() {
	// keep pdfcpu from writing a config dir under $HOME
	api.DisableConfigDir()
}

// Merger concatenates PDF documents in order.
type Merger interface {
	Merge(docs [][]byte) ([]byte, error)
}

// PDFMerger merges with pdfcpu.
type PDFMerger struct{}

// Merge implements Merger.
func (PDFMerger) Merge(docs [][]byte) ([]byte, error) {
	switch len(docs) {
	case 0:
		return nil, fault.Newf(fault.MalformedData, "merge documents", "nothing to merge")
	case 1:
		return docs[0], nil
	}
	readers := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		readers[i] = bytes.NewReader(d)
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, nil); err != nil {
		return nil, fault.New(fault.EncryptionOrIO, "merge documents", err)
	}
	return buf.Bytes(), nil
}

// PageCount returns the number of pages in doc.
func PageCount(doc []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(doc), nil)
	if err != nil {
		return 0, fault.New(fault.MalformedData, "count pages", err)
	}
	return n, nil
}
