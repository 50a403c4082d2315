package notes

import (
	"context"
	"fmt"
	"strings"
)

// DocumentStore reads and writes whole notes documents. A document that does
// not exist yet reads as empty.
type DocumentStore interface {
	Read(ctx context.Context, docID string) (string, error)
	Write(ctx context.Context, docID, content string) error
}

type Notebook struct {
	docs DocumentStore
}

func NewNotebook(docs DocumentStore) *Notebook {
	return &Notebook{docs: docs}
}

// Append adds a delimited section to the end of the document. Concurrent
// human edits are not merged; the last writer wins.
func (n *Notebook) Append(ctx context.Context, docID string, section Section) error {
	if strings.TrimSpace(docID) == "" {
		return fmt.Errorf("append notes: document id is empty")
	}
	current, err := n.docs.Read(ctx, docID)
	if err != nil {
		return fmt.Errorf("append notes: %w", err)
	}
	var b strings.Builder
	b.WriteString(current)
	if current != "" && !strings.HasSuffix(current, "\n") {
		b.WriteString("\n")
	}
	if current != "" {
		b.WriteString("\n")
	}
	b.WriteString(Render(section))
	if err := n.docs.Write(ctx, docID, b.String()); err != nil {
		return fmt.Errorf("append notes: %w", err)
	}
	return nil
}

// MostRecent loads the document and returns only its newest section of the
// requested kind.
func (n *Notebook) MostRecent(ctx context.Context, docID, kind string) (Section, bool, error) {
	if strings.TrimSpace(docID) == "" {
		return Section{}, false, nil
	}
	doc, err := n.docs.Read(ctx, docID)
	if err != nil {
		return Section{}, false, fmt.Errorf("read notes: %w", err)
	}
	section, ok := MostRecent(doc, kind)
	return section, ok, nil
}
