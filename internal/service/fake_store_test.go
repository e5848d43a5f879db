package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/rto-permits/internal/model"
	"github.com/nurpe/rto-permits/internal/repository"
	"github.com/nurpe/rto-permits/internal/validity"
)

// memStore keeps rows in insertion order. Transaction snapshots everything and
// restores the snapshot when fn fails.
type memStore struct {
	partA   []model.PermitPartA
	partB   []model.PermitPartB
	bills   []model.Bill
	nextNum int
	writes  int

	failCreatePartB error
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) Permits() repository.PermitStore { return (*memPermits)(s) }
func (s *memStore) Bills() repository.BillLedger    { return (*memBills)(s) }

func (s *memStore) Transaction(_ context.Context, fn func(tx repository.Store) error) error {
	snapshotA := append([]model.PermitPartA(nil), s.partA...)
	snapshotB := append([]model.PermitPartB(nil), s.partB...)
	snapshotBills := append([]model.Bill(nil), s.bills...)
	snapshotNum, snapshotWrites := s.nextNum, s.writes

	if err := fn(s); err != nil {
		s.partA, s.partB, s.bills = snapshotA, snapshotB, snapshotBills
		s.nextNum, s.writes = snapshotNum, snapshotWrites
		return err
	}
	return nil
}

type memPermits memStore

func (p *memPermits) CreatePartA(_ context.Context, row *model.PermitPartA) error {
	p.partA = append(p.partA, *row)
	p.writes++
	return nil
}

func (p *memPermits) CreatePartB(_ context.Context, row *model.PermitPartB) error {
	if p.failCreatePartB != nil {
		return p.failCreatePartB
	}
	p.partB = append(p.partB, *row)
	p.writes++
	return nil
}

func (p *memPermits) GetPartA(_ context.Context, id uuid.UUID) (*model.PermitPartA, error) {
	for i := range p.partA {
		if p.partA[i].ID == id {
			row := p.partA[i]
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (p *memPermits) GetPartB(_ context.Context, id uuid.UUID) (*model.PermitPartB, error) {
	for i := range p.partB {
		if p.partB[i].ID == id {
			row := p.partB[i]
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (p *memPermits) InForcePartA(_ context.Context, key model.PermitKey) (*model.PermitPartA, error) {
	for i := len(p.partA) - 1; i >= 0; i-- {
		if p.partA[i].Key() == key && p.partA[i].Status.InForce() {
			row := p.partA[i]
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (p *memPermits) InForcePartB(_ context.Context, key model.PermitKey) (*model.PermitPartB, error) {
	for i := len(p.partB) - 1; i >= 0; i-- {
		if p.partB[i].Key() == key && p.partB[i].Status.InForce() {
			row := p.partB[i]
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (p *memPermits) InForcePartBByKeys(_ context.Context, keys []model.PermitKey) ([]model.PermitPartB, error) {
	wanted := make(map[model.PermitKey]struct{}, len(keys))
	for _, key := range keys {
		wanted[key] = struct{}{}
	}
	var rows []model.PermitPartB
	for i := len(p.partB) - 1; i >= 0; i-- {
		if _, ok := wanted[p.partB[i].Key()]; ok && p.partB[i].Status.InForce() {
			rows = append(rows, p.partB[i])
		}
	}
	return rows, nil
}

func (p *memPermits) ExpirePartA(_ context.Context, key model.PermitKey, at time.Time) (int64, error) {
	var n int64
	for i := range p.partA {
		if p.partA[i].Key() == key && p.partA[i].Status.InForce() {
			p.partA[i].Status = validity.StatusExpired
			p.partA[i].UpdatedAt = at
			n++
		}
	}
	p.writes += int(n)
	return n, nil
}

func (p *memPermits) ExpirePartB(_ context.Context, key model.PermitKey, at time.Time) (int64, error) {
	var n int64
	for i := range p.partB {
		if p.partB[i].Key() == key && p.partB[i].Status.InForce() {
			p.partB[i].Status = validity.StatusExpired
			p.partB[i].UpdatedAt = at
			n++
		}
	}
	p.writes += int(n)
	return n, nil
}

func (p *memPermits) ListPartAByKey(_ context.Context, key model.PermitKey) ([]model.PermitPartA, error) {
	var rows []model.PermitPartA
	for _, row := range p.partA {
		if row.Key() == key {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (p *memPermits) ListPartBByKey(_ context.Context, key model.PermitKey) ([]model.PermitPartB, error) {
	var rows []model.PermitPartB
	for _, row := range p.partB {
		if row.Key() == key {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (p *memPermits) DeletePartAByKey(_ context.Context, key model.PermitKey) (int64, error) {
	kept := p.partA[:0:0]
	var n int64
	for _, row := range p.partA {
		if row.Key() == key {
			n++
			continue
		}
		kept = append(kept, row)
	}
	p.partA = kept
	p.writes += int(n)
	return n, nil
}

func (p *memPermits) DeletePartBByKey(_ context.Context, key model.PermitKey) (int64, error) {
	kept := p.partB[:0:0]
	var n int64
	for _, row := range p.partB {
		if row.Key() == key {
			n++
			continue
		}
		kept = append(kept, row)
	}
	p.partB = kept
	p.writes += int(n)
	return n, nil
}

func (p *memPermits) SearchPartA(_ context.Context, filter model.PermitFilter) ([]model.PermitPartA, error) {
	search := strings.ToLower(filter.Search)
	var rows []model.PermitPartA
	for i := len(p.partA) - 1; i >= 0; i-- {
		row := p.partA[i]
		if search != "" {
			haystack := strings.ToLower(strings.Join([]string{row.PermitNumber, row.HolderName, row.VehicleNumber, row.Mobile}, "|"))
			if !strings.Contains(haystack, search) {
				continue
			}
		}
		if filter.Pending && !row.Balance.IsPositive() {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *memPermits) ListInForcePartA(_ context.Context) ([]model.PermitPartA, error) {
	var rows []model.PermitPartA
	for _, row := range p.partA {
		if row.Status.InForce() {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (p *memPermits) ListInForcePartB(_ context.Context) ([]model.PermitPartB, error) {
	var rows []model.PermitPartB
	for _, row := range p.partB {
		if row.Status.InForce() {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (p *memPermits) UpdatePartAStatus(_ context.Context, ids []uuid.UUID, status validity.Status, at time.Time) (int64, error) {
	set := idSet(ids)
	var n int64
	for i := range p.partA {
		if _, ok := set[p.partA[i].ID]; ok {
			p.partA[i].Status = status
			p.partA[i].UpdatedAt = at
			n++
		}
	}
	p.writes += int(n)
	return n, nil
}

func (p *memPermits) UpdatePartBStatus(_ context.Context, ids []uuid.UUID, status validity.Status, at time.Time) (int64, error) {
	set := idSet(ids)
	var n int64
	for i := range p.partB {
		if _, ok := set[p.partB[i].ID]; ok {
			p.partB[i].Status = status
			p.partB[i].UpdatedAt = at
			n++
		}
	}
	p.writes += int(n)
	return n, nil
}

type memBills memStore

func (b *memBills) NextBillNumber(_ context.Context) (string, error) {
	if b.nextNum == 0 {
		b.nextNum = len(b.bills)
	}
	b.nextNum++
	return repository.FormatBillNumber(int64(b.nextNum)), nil
}

func (b *memBills) CreateBill(_ context.Context, bill *model.Bill) error {
	b.bills = append(b.bills, *bill)
	b.writes++
	return nil
}

func (b *memBills) GetBill(_ context.Context, id uuid.UUID) (*model.Bill, error) {
	for i := range b.bills {
		if b.bills[i].ID == id {
			bill := b.bills[i]
			return &bill, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (b *memBills) ListBills(_ context.Context, ids []uuid.UUID) ([]model.Bill, error) {
	set := idSet(ids)
	var bills []model.Bill
	for _, bill := range b.bills {
		if _, ok := set[bill.ID]; ok {
			bills = append(bills, bill)
		}
	}
	return bills, nil
}

func (b *memBills) AttachPDFPath(_ context.Context, id uuid.UUID, path string) error {
	for i := range b.bills {
		if b.bills[i].ID != id {
			continue
		}
		if b.bills[i].HasPDF() && *b.bills[i].BillPDFPath != path {
			return repository.ErrPDFAlreadyAttached
		}
		b.bills[i].BillPDFPath = &path
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (b *memBills) DeleteBills(_ context.Context, ids []uuid.UUID) (int64, error) {
	set := idSet(ids)
	kept := b.bills[:0:0]
	var n int64
	for _, bill := range b.bills {
		if _, ok := set[bill.ID]; ok {
			n++
			continue
		}
		kept = append(kept, bill)
	}
	b.bills = kept
	b.writes += int(n)
	return n, nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// inForceCount returns how many rows per key are active or expiring soon.
func (s *memStore) inForceCount() (map[model.PermitKey]int, map[model.PermitKey]int) {
	a := map[model.PermitKey]int{}
	b := map[model.PermitKey]int{}
	for _, row := range s.partA {
		if row.Status.InForce() {
			a[row.Key()]++
		}
	}
	for _, row := range s.partB {
		if row.Status.InForce() {
			b[row.Key()]++
		}
	}
	return a, b
}

func (s *memStore) billNumbers() []string {
	numbers := make([]string, 0, len(s.bills))
	for _, bill := range s.bills {
		numbers = append(numbers, bill.BillNumber)
	}
	sort.Strings(numbers)
	return numbers
}

var errBoom = errors.New("boom")
