// Package memory provides an in-process receipt source for tests and offline
// demos.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"kvitto/internal/core"
	"kvitto/internal/source"
)

const (
	receiptsFile = "receipts.json"
	detailsFile  = "details.json"
)

type Source struct {
	mu         sync.Mutex
	receipts   map[string][]core.Receipt
	details    map[string]core.ReceiptDetail
	detailErrs map[string]error
	listErr    error
}

var _ source.Source = (*Source)(nil)

func New() *Source {
	return &Source{
		receipts:   map[string][]core.Receipt{},
		details:    map[string]core.ReceiptDetail{},
		detailErrs: map[string]error{},
	}
}

// NewFromDir seeds a Source from a fixture directory. receipts.json holds an
// object mapping sender to a receipt array; details.json holds an array of
// details. Missing files leave the source empty.
func NewFromDir(dir string) (*Source, error) {
	s := New()

	var bySender map[string][]core.Receipt
	if err := readJSON(filepath.Join(dir, receiptsFile), &bySender); err != nil {
		return nil, err
	}
	for sender, rs := range bySender {
		if err := s.Add(sender, rs...); err != nil {
			return nil, err
		}
	}

	var details []core.ReceiptDetail
	if err := readJSON(filepath.Join(dir, detailsFile), &details); err != nil {
		return nil, err
	}
	for _, d := range details {
		s.AddDetail(d)
	}
	return s, nil
}

func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read seed %s: %w", path, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode seed %s: %w", path, err)
	}
	return nil
}

// Add appends receipts to sender's list.
func (s *Source) Add(sender string, receipts ...core.Receipt) error {
	for _, r := range receipts {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[sender] = append(s.receipts[sender], receipts...)
	return nil
}

func (s *Source) AddDetail(d core.ReceiptDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[d.Key] = d
}

// FailDetail makes GetReceiptDetail return err for key until cleared with nil.
func (s *Source) FailDetail(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.detailErrs, key)
		return
	}
	s.detailErrs[key] = err
}

// FailList makes every ListReceipts call return err until cleared with nil.
func (s *Source) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

func (s *Source) ListReceipts(ctx context.Context, sender string, limit, offset int) (source.Page, error) {
	if err := ctx.Err(); err != nil {
		return source.Page{}, fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return source.Page{}, s.listErr
	}
	if limit <= 0 {
		return source.Page{}, fmt.Errorf("%w: limit must be positive", core.ErrProtocol)
	}

	all := s.receipts[sender]
	if offset >= len(all) {
		return source.Page{}, nil
	}
	end := min(offset+limit, len(all))
	page := append([]core.Receipt(nil), all[offset:end]...)
	return source.Page{Receipts: page, HasMore: end < len(all)}, nil
}

func (s *Source) GetReceiptDetail(ctx context.Context, key string) (core.ReceiptDetail, error) {
	if err := ctx.Err(); err != nil {
		return core.ReceiptDetail{}, fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.detailErrs[key]; ok {
		return core.ReceiptDetail{}, err
	}
	d, ok := s.details[key]
	if !ok {
		return core.ReceiptDetail{}, fmt.Errorf("%w: no receipt %q", core.ErrProtocol, key)
	}
	return d, nil
}
