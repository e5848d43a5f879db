package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/rto-permits/internal/config"
	"github.com/nurpe/rto-permits/internal/model"
	"github.com/nurpe/rto-permits/internal/validity"
)

type recordingQueue struct {
	billIDs []uuid.UUID
	err     error
}

func (q *recordingQueue) EnqueueBillPDF(_ context.Context, billID uuid.UUID) error {
	q.billIDs = append(q.billIDs, billID)
	return q.err
}

var (
	testToday = time.Date(2026, time.February, 10, 9, 30, 0, 0, time.UTC)
	operator  = model.Principal{UserID: uuid.New(), Role: model.RoleOperator}
)

func testConfig() *config.Config {
	return &config.Config{Permits: config.PermitsConfig{
		PDFDir:             "uploads/bills",
		PartBDefaultFee:    5000,
		ExpiringWindowDays: 30,
	}}
}

func newTestService(store *memStore) (*PermitService, *recordingQueue) {
	queue := &recordingQueue{}
	svc := NewPermitService(store, queue, nil, testConfig(), zerolog.Nop())
	svc.now = func() time.Time { return testToday }
	return svc, queue
}

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func validCreateInput() CreatePermitInput {
	return CreatePermitInput{
		VehicleNumber:  "mh 12 ab 1234",
		PermitNumber:   "NP-100",
		HolderName:     "Ramesh Kumar",
		FatherName:     "Suresh Kumar",
		Mobile:         "9800000000",
		PartAValidFrom: "01-01-2026",
		PartAValidTo:   "31-12-2030",
		PartBNumber:    "PB-1",
		PartBValidFrom: "01/01/2026",
		PartBValidTo:   "31/12/2026",
		Fees:           FeeInput{TotalFee: dec("15000"), Paid: dec("10000"), Balance: dec("5000")},
		Images:         []string{" a.jpg ", ""},
		Principal:      operator,
	}
}

func assertSingleInForce(t *testing.T, store *memStore) {
	t.Helper()
	a, b := store.inForceCount()
	for key, n := range a {
		assert.LessOrEqual(t, n, 1, "part A rows in force for %v", key)
	}
	for key, n := range b {
		assert.LessOrEqual(t, n, 1, "part B rows in force for %v", key)
	}
}

func assertFeeInvariant(t *testing.T, store *memStore) {
	t.Helper()
	for _, row := range store.partA {
		assert.True(t, row.Paid.LessThanOrEqual(row.TotalFee))
		assert.True(t, row.Balance.Equal(row.TotalFee.Sub(row.Paid)))
	}
	for _, row := range store.partB {
		if row.TotalFee == nil {
			continue
		}
		assert.True(t, row.Paid.LessThanOrEqual(*row.TotalFee))
		assert.True(t, row.Balance.Equal(row.TotalFee.Sub(*row.Paid)))
	}
}

func TestCreatePermit_PaidAboveTotalWritesNothing(t *testing.T) {
	store := newMemStore()
	svc, queue := newTestService(store)

	input := validCreateInput()
	input.Fees = FeeInput{TotalFee: dec("1000"), Paid: dec("1200"), Balance: dec("0")}

	_, err := svc.CreatePermit(context.Background(), input)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "paid amount cannot exceed total fee")
	assert.Zero(t, store.writes)
	assert.Empty(t, store.bills)
	assert.Empty(t, queue.billIDs)
}

func TestCreatePermit_OneCombinedBillOnPartA(t *testing.T) {
	store := newMemStore()
	svc, queue := newTestService(store)

	result, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.NoError(t, err)

	require.Len(t, store.bills, 1)
	bill := store.bills[0]
	require.Len(t, bill.Items, 1)
	assert.True(t, bill.Items[0].Amount.Equal(decimal.NewFromInt(15000)))
	assert.Equal(t, 1, bill.Items[0].Quantity)
	assert.True(t, bill.TotalAmount.Equal(decimal.NewFromInt(15000)))
	assert.Equal(t, "01", bill.BillNumber)
	assert.Equal(t, "Ramesh Kumar", bill.CustomerName)
	assert.Contains(t, bill.Items[0].Description, "PB-1")

	require.Len(t, store.partA, 1)
	require.Len(t, store.partB, 1)
	partA, partB := store.partA[0], store.partB[0]
	require.NotNil(t, partA.BillID)
	assert.Equal(t, bill.ID, *partA.BillID)
	assert.Nil(t, partB.BillID)
	assert.Nil(t, partB.TotalFee)
	assert.Equal(t, validity.StatusActive, partA.Status)
	assert.Equal(t, validity.StatusActive, partB.Status)

	assert.Equal(t, "MH12AB1234", partA.VehicleNumber)
	assert.Equal(t, partA.Key(), partB.Key())
	assert.Equal(t, "31-12-2026", partB.ValidTo.String())
	assert.Equal(t, []string{"a.jpg"}, []string(partA.Images))

	assert.Equal(t, result.Bill.ID, bill.ID)
	assert.Equal(t, []uuid.UUID{bill.ID}, queue.billIDs)
	assertFeeInvariant(t, store)
}

func TestCreatePermit_BalanceIsRecomputed(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)

	input := validCreateInput()
	input.Fees = FeeInput{TotalFee: dec("10000.005"), Paid: dec("4000"), Balance: dec("1")}

	result, err := svc.CreatePermit(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "6000.01", result.PartA.Balance.StringFixed(2))
	assertFeeInvariant(t, store)
}

func TestCreatePermit_ValidationOrder(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreatePermitInput)
		want   string
	}{
		{name: "everything missing", mutate: func(in *CreatePermitInput) { *in = CreatePermitInput{Principal: operator} }, want: "vehicle number is required"},
		{name: "permit number", mutate: func(in *CreatePermitInput) { in.PermitNumber = " "; in.HolderName = "" }, want: "permit number is required"},
		{name: "holder", mutate: func(in *CreatePermitInput) { in.HolderName = ""; in.PartBNumber = "" }, want: "permit holder name is required"},
		{name: "part A dates", mutate: func(in *CreatePermitInput) { in.PartAValidTo = ""; in.PartBNumber = "" }, want: "part A valid from and valid to dates are required"},
		{name: "part A bad date", mutate: func(in *CreatePermitInput) { in.PartAValidFrom = "31-02-2026" }, want: "part A valid from"},
		{name: "part A reversed", mutate: func(in *CreatePermitInput) { in.PartAValidTo = "01-01-2020" }, want: "part A valid to cannot be before valid from"},
		{name: "part B number", mutate: func(in *CreatePermitInput) { in.PartBNumber = ""; in.Fees = FeeInput{} }, want: "part B number is required"},
		{name: "part B dates", mutate: func(in *CreatePermitInput) { in.PartBValidFrom = ""; in.Fees = FeeInput{} }, want: "part B valid from and valid to dates are required"},
		{name: "fees missing", mutate: func(in *CreatePermitInput) { in.Fees.Balance = nil }, want: "total fee, paid and balance are required"},
		{name: "negative balance", mutate: func(in *CreatePermitInput) { in.Fees.Balance = dec("-1") }, want: "balance cannot be negative"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			svc, _ := newTestService(store)
			input := validCreateInput()
			tc.mutate(&input)

			_, err := svc.CreatePermit(context.Background(), input)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tc.want)
			assert.Zero(t, store.writes)
		})
	}
}

func TestCreatePermit_RequiresWriteRole(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)

	input := validCreateInput()
	input.Principal = model.Principal{UserID: uuid.New(), Role: model.RoleViewer}

	_, err := svc.CreatePermit(context.Background(), input)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCreatePermit_RejectsSecondInForceChain(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)

	_, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.NoError(t, err)

	_, err = svc.CreatePermit(context.Background(), validCreateInput())
	assert.ErrorIs(t, err, ErrPermitExists)
	assert.Len(t, store.bills, 1)
	assert.Len(t, store.partA, 1)
}

func TestCreatePermit_FailedWriteRollsBack(t *testing.T) {
	store := newMemStore()
	store.failCreatePartB = errBoom
	svc, queue := newTestService(store)

	_, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, store.bills)
	assert.Empty(t, store.partA)
	assert.Empty(t, queue.billIDs)
}

func TestCreatePermit_EnqueueFailureIsNotReturned(t *testing.T) {
	store := newMemStore()
	svc, queue := newTestService(store)
	queue.err = errors.New("redis down")

	result, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.NoError(t, err)
	assert.NotNil(t, result.Bill)
	assert.Len(t, queue.billIDs, 1)
}

func TestRenewPartA_WithInForcePartBBillsOnlyPartA(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	created, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.NoError(t, err)
	partBBefore := store.partB[0]

	result, err := svc.RenewPartA(context.Background(), RenewPartAInput{
		PartAID:   created.PartA.ID,
		ValidFrom: "01-01-2031",
		ValidTo:   "31-12-2035",
		Fees:      FeeInput{TotalFee: dec("12000"), Paid: dec("12000"), Balance: dec("0")},
		Principal: operator,
	})
	require.NoError(t, err)
	assert.True(t, result.UsedExistingPartB)

	require.Len(t, store.partA, 2)
	assert.Equal(t, validity.StatusExpired, store.partA[0].Status)
	assert.Equal(t, validity.StatusActive, store.partA[1].Status)
	assert.Equal(t, "Ramesh Kumar", store.partA[1].HolderName)

	require.Len(t, store.bills, 2)
	assert.NotEqual(t, *store.partA[0].BillID, *store.partA[1].BillID)
	assert.Equal(t, "02", result.Bill.BillNumber)
	assert.NotContains(t, result.Bill.Items[0].Description, "Part B")

	require.Len(t, store.partB, 1)
	assert.Equal(t, partBBefore, store.partB[0])
	assert.Equal(t, partBBefore.ID, result.PartB.ID)

	assertSingleInForce(t, store)
	assertFeeInvariant(t, store)
}

func TestRenewPartA_WithoutPartBRequiresPartBNumber(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	created, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.NoError(t, err)
	store.partB[0].Status = validity.StatusExpired
	writes := store.writes

	_, err = svc.RenewPartA(context.Background(), RenewPartAInput{
		PartAID:   created.PartA.ID,
		ValidFrom: "01-01-2031",
		ValidTo:   "31-12-2035",
		Fees:      FeeInput{TotalFee: dec("12000"), Paid: dec("0"), Balance: dec("12000")},
		Principal: operator,
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "part B number is required")
	assert.Equal(t, writes, store.writes)
	assert.Len(t, store.bills, 1)
	assert.Len(t, store.partA, 1)
}

func TestRenewPartA_WithoutPartBIssuesBoth(t *testing.T) {
	store := newMemStore()
	svc, queue := newTestService(store)
	created, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.NoError(t, err)
	store.partB[0].Status = validity.StatusExpired

	result, err := svc.RenewPartA(context.Background(), RenewPartAInput{
		PartAID:        created.PartA.ID,
		ValidFrom:      "01-01-2031",
		ValidTo:        "31-12-2035",
		Fees:           FeeInput{TotalFee: dec("20000"), Paid: dec("5000"), Balance: dec("15000")},
		PartBNumber:    "PB-2",
		PartBValidFrom: "01-01-2031",
		PartBValidTo:   "31-12-2031",
		Principal:      operator,
	})
	require.NoError(t, err)
	assert.False(t, result.UsedExistingPartB)

	require.Len(t, store.bills, 2)
	require.Len(t, store.partB, 2)
	assert.Equal(t, "PB-2", result.PartB.PartBNumber)
	assert.Nil(t, result.PartB.BillID)
	assert.Equal(t, result.Bill.ID, *result.PartA.BillID)
	assert.Contains(t, result.Bill.Items[0].Description, "PB-2")
	assert.Len(t, queue.billIDs, 2)

	assertSingleInForce(t, store)
	assertFeeInvariant(t, store)
}

func TestRenewPartA_UnknownAnchor(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	_, err := svc.RenewPartA(context.Background(), RenewPartAInput{
		PartAID:   uuid.New(),
		ValidFrom: "01-01-2031",
		ValidTo:   "31-12-2035",
		Fees:      FeeInput{TotalFee: dec("1"), Paid: dec("1"), Balance: dec("0")},
		Principal: operator,
	})
	assert.ErrorIs(t, err, ErrPermitNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenewPartB_DefaultsFeeAndBillsSeparately(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	created, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.NoError(t, err)
	partABefore := store.partA[0]

	result, err := svc.RenewPartB(context.Background(), RenewPartBInput{
		PartAID:     created.PartA.ID,
		PartBNumber: "PB-2",
		ValidFrom:   "01-01-2027",
		ValidTo:     "31-12-2027",
		Principal:   operator,
	})
	require.NoError(t, err)

	require.NotNil(t, result.PartB.TotalFee)
	assert.True(t, result.PartB.TotalFee.Equal(decimal.NewFromInt(5000)))
	assert.True(t, result.PartB.Paid.IsZero())
	assert.True(t, result.PartB.Balance.Equal(decimal.NewFromInt(5000)))
	require.NotNil(t, result.PartB.BillID)
	assert.Equal(t, result.Bill.ID, *result.PartB.BillID)
	assert.NotEqual(t, *partABefore.BillID, result.Bill.ID)

	assert.Equal(t, validity.StatusExpired, store.partB[0].Status)
	assert.Equal(t, partABefore, store.partA[0])
	assert.Equal(t, []string{"01", "02"}, store.billNumbers())

	assertSingleInForce(t, store)
	assertFeeInvariant(t, store)
}

func TestRenewPartB_PaidAboveTotal(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	created, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.NoError(t, err)
	writes := store.writes

	_, err = svc.RenewPartB(context.Background(), RenewPartBInput{
		PartAID:     created.PartA.ID,
		PartBNumber: "PB-2",
		ValidFrom:   "01-01-2027",
		ValidTo:     "31-12-2027",
		TotalFee:    dec("100"),
		Paid:        dec("200"),
		Principal:   operator,
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, writes, store.writes)
}

func TestRenewPartB_NegativeBalanceWritesNothing(t *testing.T) {
	store := newMemStore()
	svc, queue := newTestService(store)
	created, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.NoError(t, err)
	writes := store.writes
	enqueued := len(queue.billIDs)

	_, err = svc.RenewPartB(context.Background(), RenewPartBInput{
		PartAID:     created.PartA.ID,
		PartBNumber: "PB-2",
		ValidFrom:   "01-01-2027",
		ValidTo:     "31-12-2027",
		TotalFee:    dec("5000"),
		Paid:        dec("1000"),
		Balance:     dec("-1"),
		Principal:   operator,
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, writes, store.writes)
	assert.Len(t, queue.billIDs, enqueued)
	assert.Len(t, store.partB, 1)
}

func seedChain(t *testing.T, store *memStore, dir string) model.PermitKey {
	t.Helper()
	key := model.PermitKey{VehicleNumber: "KA01XY0001", PermitNumber: "NP-7"}
	newBill := func(num string) model.Bill {
		path := filepath.Join(dir, "bill-"+num+".pdf")
		require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
		return model.Bill{ID: uuid.New(), BillNumber: num, BillPDFPath: &path}
	}
	b1, b2, b3 := newBill("01"), newBill("02"), newBill("03")
	store.bills = append(store.bills, b1, b2, b3)
	store.partA = append(store.partA,
		model.PermitPartA{ID: uuid.New(), VehicleNumber: key.VehicleNumber, PermitNumber: key.PermitNumber, Status: validity.StatusExpired, BillID: &b1.ID},
		model.PermitPartA{ID: uuid.New(), VehicleNumber: key.VehicleNumber, PermitNumber: key.PermitNumber, Status: validity.StatusActive, BillID: &b2.ID},
	)
	store.partB = append(store.partB,
		model.PermitPartB{ID: uuid.New(), VehicleNumber: key.VehicleNumber, PermitNumber: key.PermitNumber, Status: validity.StatusActive, BillID: &b3.ID},
	)
	return key
}

func TestDeletePermit_RemovesWholeChain(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	other, err := svc.CreatePermit(context.Background(), validCreateInput())
	require.NoError(t, err)

	dir := t.TempDir()
	key := seedChain(t, store, dir)
	anchor := store.partA[len(store.partA)-2]

	result, err := svc.DeletePermit(context.Background(), anchor.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.PartADeleted)
	assert.Equal(t, int64(1), result.PartBDeleted)
	assert.Equal(t, int64(3), result.BillsDeleted)
	assert.Equal(t, 3, result.FilesRemoved)

	rowsA, _ := store.Permits().ListPartAByKey(context.Background(), key)
	rowsB, _ := store.Permits().ListPartBByKey(context.Background(), key)
	assert.Empty(t, rowsA)
	assert.Empty(t, rowsB)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.Len(t, store.partA, 1)
	assert.Equal(t, other.PartA.ID, store.partA[0].ID)
	assert.Len(t, store.bills, 1)
}

func TestDeletePermit_MissingFileIsNotFatal(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	dir := t.TempDir()
	seedChain(t, store, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "bill-02.pdf")))

	result, err := svc.DeletePermit(context.Background(), store.partA[0].ID, operator)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.BillsDeleted)
	assert.Equal(t, 2, result.FilesRemoved)
}

func TestDeletePermit_Unknown(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	_, err := svc.DeletePermit(context.Background(), uuid.New(), operator)
	assert.ErrorIs(t, err, ErrPermitNotFound)
}
