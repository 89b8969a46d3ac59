package kivra

import (
	"context"
	"fmt"

	"kvitto/internal/core"
	"kvitto/internal/source"
)

const receiptsBySenderQuery = `query ReceiptsBySender($senderKey: String!, $limit: Int, $offset: Int) {
  receiptsV2(senderKey: $senderKey, limit: $limit, offset: $offset) {
    total
    list {
      key
      store { name }
      purchaseDate
      totalAmount { amount }
    }
  }
}`

const receiptDetailsQuery = `query ReceiptDetails($key: String!) {
  receiptV2(key: $key) {
    key
    store { name }
    items { text quantity cost }
  }
}`

type receiptsData struct {
	ReceiptsV2 *struct {
		Total *int           `json:"total"`
		List  []core.Receipt `json:"list"`
	} `json:"receiptsV2"`
}

type detailData struct {
	ReceiptV2 *struct {
		Key   string          `json:"key"`
		Store core.Store      `json:"store"`
		Items []core.LineItem `json:"items"`
	} `json:"receiptV2"`
}

// ListReceipts fetches one page of receipts for sender.
//
// HasMore is derived from the total the server reports with every page. When
// the server omits it, HasMore stays true for any non-empty page and the
// caller stops at the first empty one.
func (c *Client) ListReceipts(ctx context.Context, sender string, limit, offset int) (source.Page, error) {
	data, err := post[receiptsData](ctx, c, "ReceiptsBySender", receiptsBySenderQuery, map[string]any{
		"senderKey": sender,
		"limit":     limit,
		"offset":    offset,
	})
	if err != nil {
		return source.Page{}, err
	}
	if data.ReceiptsV2 == nil {
		return source.Page{}, fmt.Errorf("%w: ReceiptsBySender: no receipts in response", core.ErrProtocol)
	}

	list := data.ReceiptsV2.List
	for _, r := range list {
		if err := r.Validate(); err != nil {
			return source.Page{}, fmt.Errorf("%w: ReceiptsBySender: %v", core.ErrProtocol, err)
		}
	}

	hasMore := len(list) > 0
	if total := data.ReceiptsV2.Total; total != nil {
		hasMore = offset+len(list) < *total
	}
	return source.Page{Receipts: list, HasMore: hasMore}, nil
}

// GetReceiptDetail fetches the line items of one receipt.
func (c *Client) GetReceiptDetail(ctx context.Context, key string) (core.ReceiptDetail, error) {
	data, err := post[detailData](ctx, c, "ReceiptDetails", receiptDetailsQuery, map[string]any{"key": key})
	if err != nil {
		return core.ReceiptDetail{}, err
	}
	if data.ReceiptV2 == nil {
		return core.ReceiptDetail{}, fmt.Errorf("%w: ReceiptDetails: no receipt %q in response", core.ErrProtocol, key)
	}
	d := data.ReceiptV2
	detailKey := d.Key
	if detailKey == "" {
		detailKey = key
	}
	return core.ReceiptDetail{Key: detailKey, StoreName: d.Store.Name, Items: d.Items}, nil
}
