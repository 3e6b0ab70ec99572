package session

import (
	"path/filepath"
	"time"
)

// Document is an immutable snapshot of the watched file. HTML is always the
// render of Raw; a failed read never replaces either.
type Document struct {
	Path  string
	Title string
	Raw   string
	HTML  string
	// Seq is the change sequence number of the read that produced Raw.
	Seq uint64
	// Rendered is false until a read of Path has succeeded.
	Rendered  bool
	UpdatedAt time.Time
}

func emptyDocument(path string) *Document {
	return &Document{
		Path:  path,
		Title: filepath.Base(path),
	}
}

func (d *Document) withContent(raw, html string, seq uint64, at time.Time) *Document {
	next := *d
	next.Raw = raw
	next.HTML = html
	next.Seq = seq
	next.Rendered = true
	next.UpdatedAt = at
	return &next
}
