package domain

import (
	"fmt"
	"strings"
)

// DefaultMaxLinks is the upper bound on links per batch.
const DefaultMaxLinks = 10

// Summary messages returned to the caller. The HTTP boundary keys its status
// codes off these, so they are part of the external contract.
const (
	MsgNoLinks       = "No links provided."
	MsgTorStart      = "Could not start TOR."
	MsgTorRotate     = "Could not rotate TOR IP."
	MsgNoVideos      = "No videos were downloaded."
	MsgUnexpected    = "Download failed due to unexpected error."
	MsgBusy          = "Another download is already in progress."
	MsgArchiveFailed = "Error creating zip file"
)

// MsgTooManyLinks formats the oversized-batch message.
func MsgTooManyLinks(max int) string {
	return fmt.Sprintf("Maximum %d links allowed.", max)
}

// MsgDownloaded formats the success summary.
func MsgDownloaded(n int) string {
	return fmt.Sprintf("Successfully downloaded %d videos.", n)
}

// BatchRequest is the ordered list of links of one batch.
type BatchRequest struct {
	Links []string
}

// Validate enforces 1 <= len(links) <= max and trims surrounding whitespace.
func (b *BatchRequest) Validate(max int) error {
	if len(b.Links) == 0 {
		return ErrValidation{Reason: MsgNoLinks}
	}
	if len(b.Links) > max {
		return ErrValidation{Reason: MsgTooManyLinks(max)}
	}
	links := make([]string, len(b.Links))
	for i, l := range b.Links {
		links[i] = strings.TrimSpace(l)
	}
	b.Links = links
	return nil
}

// FetchRequest is one link with the cookie and proxy it must be fetched with.
type FetchRequest struct {
	Link       string
	CookiePath string
	Proxy      string
}

type FetchOutcome struct {
	Link      string
	Succeeded bool
}

// ResultKind tells the HTTP boundary how to render a BatchResult.
type ResultKind int

const (
	ResultRejected ResultKind = iota
	ResultFailed
	ResultEmpty
	ResultArchive
	ResultBusy
	ResultPackFailed
)

// BatchResult is either a textual summary or an archive payload.
type BatchResult struct {
	BatchID   string
	Kind      ResultKind
	Summary   string
	Succeeded int
	Archive   []byte
}

// HasArchive reports whether the result carries packaged output.
func (r BatchResult) HasArchive() bool {
	return r.Kind == ResultArchive
}
