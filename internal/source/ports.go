// Package source defines the ports used to retrieve receipts from a remote
// system of record.
package source

import (
	"context"

	"kvitto/internal/core"
)

// Page is one slice of a sender's receipt list. HasMore reports whether a
// request at offset+len(Receipts) can return further rows.
type Page struct {
	Receipts []core.Receipt
	HasMore  bool
}

type (
	ReceiptLister interface {
		// ListReceipts returns up to limit receipts starting at offset.
		ListReceipts(ctx context.Context, sender string, limit, offset int) (Page, error)
	}

	DetailFetcher interface {
		// GetReceiptDetail returns the expanded payload for one receipt key.
		GetReceiptDetail(ctx context.Context, key string) (core.ReceiptDetail, error)
	}

	Source interface {
		ReceiptLister
		DetailFetcher
	}
)
