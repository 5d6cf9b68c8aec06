package document

import (
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/noticerun/internal/fault"
)

// DefaultPartCeiling is the largest part the task store accepts.
const DefaultPartCeiling int64 = 15 << 20

// Part is one merged slice of a building's notice bundle.
type Part struct {
	Number int
	Docs   int
	Data   []byte
}

// PartSink receives parts in order as they close.
type PartSink func(Part) error

// Packer accumulates lease documents into parts no larger than a ceiling.
// A document that alone exceeds the ceiling becomes its own part.
type Packer struct {
	ceiling int64
	merger  Merger
	sink    PartSink

	current [][]byte
	total   int64
	next    int
	done    bool
}

// NewPacker creates a Packer. ceiling <= 0 uses DefaultPartCeiling.
func NewPacker(ceiling int64, merger Merger, sink PartSink) *Packer {
	if ceiling <= 0 {
		ceiling = DefaultPartCeiling
	}
	return &Packer{ceiling: ceiling, merger: merger, sink: sink, next: 1}
}

// Pending reports how many documents are held in the open part.
func (p *Packer) Pending() int {
	return len(p.current)
}

// Add appends doc, first closing the open part if doc would push it past
// the ceiling.
func (p *Packer) Add(doc []byte) error {
	if p.done {
		return fault.Newf(fault.MalformedData, "pack document", "packer already finished")
	}
	size := int64(len(doc))
	if len(p.current) > 0 && p.total+size > p.ceiling {
		if err := p.flush(nil); err != nil {
			return err
		}
	}
	p.current = append(p.current, doc)
	p.total += size
	return nil
}

// Finish prepends page to the last part and closes it. When the page would
// push a multi-document part past the ceiling, the part's last document is
// split off first so that it travels with the page. If the page still does
// not fit next to that document, the document closes alone and the page
// becomes a part of its own.
func (p *Packer) Finish(page []byte) error {
	if p.done {
		return nil
	}
	p.done = true
	if len(p.current) == 0 && page == nil {
		return nil
	}
	pageSize := int64(len(page))

	if n := len(p.current); n > 1 && p.total+pageSize > p.ceiling {
		last := p.current[n-1]
		p.current = p.current[:n-1]
		if err := p.flush(nil); err != nil {
			return err
		}
		p.current = [][]byte{last}
		p.total = int64(len(last))
	}
	if page != nil && len(p.current) > 0 && p.total+pageSize > p.ceiling {
		if err := p.flush(nil); err != nil {
			return err
		}
	}
	return p.flush(page)
}

func (p *Packer) flush(page []byte) error {
	docs := p.current
	if page != nil {
		docs = append([][]byte{page}, docs...)
	}
	data, err := p.merger.Merge(docs)
	if err != nil {
		return err
	}
	part := Part{Number: p.next, Docs: len(p.current), Data: data}
	log.Debug().Int("part", part.Number).Int("docs", part.Docs).Int("bytes", len(data)).Msg("Closed notice part")

	p.next++
	p.current = nil
	p.total = 0
	return p.sink(part)
}
