package library_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	testutil "github.com/trezcool/maktaba/tests"
)

func TestSweep(t *testing.T) {
	f := setup(t, func(conf *core.LibraryConfig) { conf.DailyFineRate = money("1.50") })
	book := testutil.CreateBook(t, f.svc, "Kintu", "978-1940436036", 5)
	amina := testutil.CreateMember(t, f.svc, "Amina", "amina@school.test", 3)
	baraka := testutil.CreateMember(t, f.svc, "Baraka", "", 3)

	late := testutil.Borrow(t, f.svc, amina.ID, book.ID, 1)
	lateReturned := testutil.Borrow(t, f.svc, amina.ID, book.ID, 1)
	notYet := testutil.Borrow(t, f.svc, baraka.ID, book.ID, 10)
	lateNoEmail := testutil.Borrow(t, f.svc, baraka.ID, book.ID, 2)

	f.clock.Advance(3 * day)
	_, err := f.svc.Return(ctx, lateReturned.ID, library.ReturnBorrow{})
	require.NoError(t, err)

	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Marked)
	assert.Equal(t, 0, report.Failed)
	assertMoney(t, "4.50", report.FinesCharged) // 2 days + 1 day

	rec := f.borrow(t, late.ID)
	assert.Equal(t, library.StatusOverdue, rec.Status)
	assert.Equal(t, 2, rec.DaysOverdue)
	assertMoney(t, "3", rec.FineAmount)

	rec = f.borrow(t, lateNoEmail.ID)
	assert.Equal(t, library.StatusOverdue, rec.Status)
	assert.Equal(t, 1, rec.DaysOverdue)

	assert.Equal(t, library.StatusIssued, f.borrow(t, notYet.ID).Status)
	assert.Equal(t, library.StatusReturned, f.borrow(t, lateReturned.ID).Status)

	m := f.member(t, amina.ID)
	assert.Equal(t, 1, m.OverdueCount)
	assertMoney(t, "6", m.FineAmount) // 3 on return + 3 by the sweep
	m = f.member(t, baraka.ID)
	assert.Equal(t, 1, m.OverdueCount)
	assertMoney(t, "1.50", m.FineAmount)

	sent := f.mailer.SentMessages()
	require.Len(t, sent, 1, "members without an email get no notice")
	assert.Equal(t, "amina@school.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].Subject, "Kintu")
	assert.True(t, strings.Contains(sent[0].Body, "2 day(s) overdue"), sent[0].Body)
	assert.True(t, strings.Contains(sent[0].Body, "3.00"), sent[0].Body)
}

func TestSweep_idempotent(t *testing.T) {
	f := setup(t, func(conf *core.LibraryConfig) { conf.DailyFineRate = money("1") })
	book := testutil.CreateBook(t, f.svc, "Dust", "978-0307961112", 1)
	member := testutil.CreateMember(t, f.svc, "Kito", "kito@school.test", 3)
	testutil.Borrow(t, f.svc, member.ID, book.ID, 1)

	f.clock.Advance(5 * day)
	first, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Marked)
	memberAfterFirst := f.member(t, member.ID)

	second, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Scanned)
	assert.Equal(t, 0, second.Marked)
	assertMoney(t, "0", second.FinesCharged)
	assert.Equal(t, memberAfterFirst, f.member(t, member.ID))
	assertMoney(t, "4", memberAfterFirst.FineAmount)
	assert.Len(t, f.mailer.SentMessages(), 1)
}

func TestSweep_noticesDisabled(t *testing.T) {
	f := setup(t, func(conf *core.LibraryConfig) { conf.SendOverdueNotices = false })
	book := testutil.CreateBook(t, f.svc, "Nervous Conditions", "978-1580052108", 1)
	member := testutil.CreateMember(t, f.svc, "Tendai", "tendai@school.test", 3)
	testutil.Borrow(t, f.svc, member.ID, book.ID, 1)

	f.clock.Advance(2 * day)
	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Marked)
	assert.Empty(t, f.mailer.SentMessages())
}

// failingRepo fails every transaction touching the given entry.
type failingRepo struct {
	library.Repository
	failID string
}

type failingTx struct {
	library.Tx
	failID string
}

func (r failingRepo) InTx(ctx context.Context, fn func(tx library.Tx) error) error {
	return r.Repository.InTx(ctx, func(tx library.Tx) error {
		return fn(failingTx{Tx: tx, failID: r.failID})
	})
}

func (tx failingTx) UpdateBorrow(ctx context.Context, rec *library.BorrowRecord) error {
	if rec.ID == tx.failID {
		return assert.AnError
	}
	return tx.Tx.UpdateBorrow(ctx, rec)
}

func TestSweep_isolatesFailures(t *testing.T) {
	f := setup(t, func(conf *core.LibraryConfig) { conf.DailyFineRate = money("1") })
	book := testutil.CreateBook(t, f.svc, "Half of a Yellow Sun", "978-1400095209", 3)
	member := testutil.CreateMember(t, f.svc, "Chidi", "", 3)
	bad := testutil.Borrow(t, f.svc, member.ID, book.ID, 1)
	good := testutil.Borrow(t, f.svc, member.ID, book.ID, 1)

	repo := failingRepo{Repository: f.repo, failID: bad.ID}
	sweeper := library.NewSweeper(repo, f.conf, f.clock, core.NewStdLogger(nil), nil)

	f.clock.Advance(2 * day)
	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Marked)
	assert.Equal(t, 1, report.Failed)

	assert.Equal(t, library.StatusIssued, f.borrow(t, bad.ID).Status)
	assert.Equal(t, library.StatusOverdue, f.borrow(t, good.ID).Status)
	m := f.member(t, member.ID)
	assert.Equal(t, 1, m.OverdueCount, "failed entry left no partial update")
	assertMoney(t, "1", m.FineAmount)
}

func TestSweeper_Run(t *testing.T) {
	f := setup(t)
	book := testutil.CreateBook(t, f.svc, "Purple Hibiscus", "978-1616202415", 1)
	member := testutil.CreateMember(t, f.svc, "Ngozi", "", 3)
	rec := testutil.Borrow(t, f.svc, member.ID, book.ID, 1)
	f.clock.Advance(2 * day)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		f.sweeper.Run(runCtx, time.Hour)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		got, err := f.svc.GetBorrow(ctx, rec.ID)
		return err == nil && got.Status == library.StatusOverdue
	}, time.Second, 10*time.Millisecond, "sweeps right away")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop on context cancellation")
	}
}
