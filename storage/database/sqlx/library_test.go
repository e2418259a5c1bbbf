package sqlxrepos_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/storage/database"
	sqlxrepos "github.com/trezcool/maktaba/storage/database/sqlx"
	testutil "github.com/trezcool/maktaba/tests"
)

var (
	ctx = context.Background()
	t0  = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	day = 24 * time.Hour
)

type fixture struct {
	clock   *core.ManualClock
	repo    library.Repository
	svc     library.Service
	sweeper *library.Sweeper
}

// setup migrates a fresh sqlite database in a temp dir.
func setup(t *testing.T) *fixture {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "maktaba.db")

	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db.DB, conf.Database.Engine, "up"))

	f := &fixture{
		clock: core.NewManualClock(t0),
		repo:  sqlxrepos.NewLibraryRepository(db),
	}
	logger := core.NewStdLogger(nil)
	f.svc = library.NewService(f.repo, conf.Library, f.clock, logger)
	f.sweeper = library.NewSweeper(f.repo, conf.Library, f.clock, logger, nil)
	return f
}

func (f *fixture) book(t *testing.T, id string) library.Book {
	t.Helper()
	book, err := f.repo.GetBook(ctx, id)
	require.NoError(t, err)
	return book
}

func (f *fixture) member(t *testing.T, id string) library.Member {
	t.Helper()
	member, err := f.repo.GetMember(ctx, id)
	require.NoError(t, err)
	return member
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestLibraryRepository_lastCopy(t *testing.T) {
	f := setup(t)
	book := testutil.CreateBook(t, f.svc, "Things Fall Apart", "978-0385474542", 1)
	amani := testutil.CreateMember(t, f.svc, "Amani", "", 3)
	baraka := testutil.CreateMember(t, f.svc, "Baraka", "", 3)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, memberID := range []string{amani.ID, baraka.ID} {
		wg.Add(1)
		go func(i int, memberID string) {
			defer wg.Done()
			_, errs[i] = f.svc.Borrow(ctx, library.NewBorrow{MemberID: memberID, BookID: book.ID, BorrowDays: 7})
		}(i, memberID)
	}
	wg.Wait()

	var borrowed, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			borrowed++
		case errors.Is(err, library.ErrBookUnavailable):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, borrowed)
	assert.Equal(t, 1, rejected)

	got := f.book(t, book.ID)
	assert.Equal(t, 0, got.AvailableCopies)
	assert.Equal(t, 1, got.BorrowCount)

	t.Run("conditional update refuses going below zero", func(t *testing.T) {
		err := f.repo.InTx(ctx, func(tx library.Tx) error {
			return tx.AdjustBookCopies(ctx, book.ID, -1, 1, t0)
		})
		assert.True(t, errors.Is(err, library.ErrConcurrencyConflict), err)
		assert.Equal(t, got, f.book(t, book.ID))
	})

	t.Run("conditional update refuses going above total", func(t *testing.T) {
		err := f.repo.InTx(ctx, func(tx library.Tx) error {
			if err := tx.AdjustBookCopies(ctx, book.ID, 1, 0, t0); err != nil {
				return err
			}
			return tx.AdjustBookCopies(ctx, book.ID, 1, 0, t0)
		})
		assert.True(t, errors.Is(err, library.ErrConcurrencyConflict), err)
		assert.Equal(t, 0, f.book(t, book.ID).AvailableCopies, "the whole unit of work is rolled back")
	})
}

func TestLibraryRepository_staleBorrowVersion(t *testing.T) {
	f := setup(t)
	book := testutil.CreateBook(t, f.svc, "Nervous Conditions", "978-0954702335", 1)
	member := testutil.CreateMember(t, f.svc, "Zawadi", "", 3)
	stale := testutil.Borrow(t, f.svc, member.ID, book.ID, 7)
	require.Equal(t, 1, stale.Version)

	fresh := stale
	fresh.Notes = "cover torn"
	err := f.repo.InTx(ctx, func(tx library.Tx) error {
		return tx.UpdateBorrow(ctx, &fresh)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Version)

	stale.Notes = "lost in transit"
	err = f.repo.InTx(ctx, func(tx library.Tx) error {
		return tx.UpdateBorrow(ctx, &stale)
	})
	assert.True(t, errors.Is(err, library.ErrConcurrencyConflict), err)
	assert.True(t, errors.Is(err, core.ErrConflict), err)
	assert.Equal(t, 1, stale.Version)

	got, err := f.repo.GetBorrow(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, "cover torn", got.Notes)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, library.StatusIssued, got.Status)
	assert.True(t, t0.AddDate(0, 0, 7).Equal(got.DueDate), got.DueDate)
}

func TestLibraryRepository_memberLimit(t *testing.T) {
	f := setup(t)
	book := testutil.CreateBook(t, f.svc, "So Long a Letter", "978-1577666011", 3)
	member := testutil.CreateMember(t, f.svc, "Neema", "", 1)
	testutil.Borrow(t, f.svc, member.ID, book.ID, 7)
	before := f.member(t, member.ID)
	require.Equal(t, 1, before.CurrentBorrowCount)

	err := f.repo.InTx(ctx, func(tx library.Tx) error {
		return tx.AdjustMemberCounters(ctx, member.ID, library.MemberDelta{CurrentBorrow: 1, TotalBorrow: 1}, t0)
	})
	assert.True(t, errors.Is(err, library.ErrConcurrencyConflict), err)
	assert.Equal(t, before, f.member(t, member.ID))

	idle := testutil.CreateMember(t, f.svc, "Juma", "", 2)
	err = f.repo.InTx(ctx, func(tx library.Tx) error {
		return tx.AdjustMemberCounters(ctx, idle.ID, library.MemberDelta{CurrentBorrow: -1}, t0)
	})
	assert.True(t, errors.Is(err, library.ErrConcurrencyConflict), err)
	assert.Equal(t, 0, f.member(t, idle.ID).CurrentBorrowCount)

	_, err = f.svc.Borrow(ctx, library.NewBorrow{MemberID: member.ID, BookID: book.ID, BorrowDays: 7})
	assert.True(t, errors.Is(err, library.ErrBorrowLimitReached), err)
	assert.Equal(t, 2, f.book(t, book.ID).AvailableCopies)
}

func TestLibraryRepository_sweepAndReturn(t *testing.T) {
	f := setup(t)
	book := testutil.CreateBook(t, f.svc, "The River Between", "978-0435905484", 2)
	member := testutil.CreateMember(t, f.svc, "Imani", "", 3)
	late := testutil.Borrow(t, f.svc, member.ID, book.ID, 1)
	onTime := testutil.Borrow(t, f.svc, member.ID, book.ID, 10)

	f.clock.Advance(3 * day) // 2 days late
	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Marked)
	assertMoney(t, "2", report.FinesCharged)

	report, err = f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned, "nothing left to mark")

	rec, err := f.svc.Return(ctx, late.ID, library.ReturnBorrow{ReturnedBy: "front desk"})
	require.NoError(t, err)
	assert.Equal(t, library.StatusReturned, rec.Status)
	assert.Equal(t, 2, rec.DaysOverdue)
	assertMoney(t, "2", rec.FineAmount)

	m := f.member(t, member.ID)
	assert.Equal(t, 1, m.CurrentBorrowCount)
	assert.Equal(t, 1, m.OverdueCount)
	assertMoney(t, "4", m.FineAmount) // 2 by the sweep, 2 on return
	assert.Equal(t, 1, f.book(t, book.ID).AvailableCopies)

	recs, err := f.svc.BorrowsByMember(ctx, member.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	ids := []string{recs[0].ID, recs[1].ID}
	assert.ElementsMatch(t, []string{late.ID, onTime.ID}, ids)

	stats, err := f.svc.Stats(ctx, nil)
	require.NoError(t, err)
	for _, s := range stats {
		switch s.Status {
		case library.StatusReturned:
			assert.Equal(t, 1, s.Count)
			assertMoney(t, "2", s.FineTotal)
		case library.StatusIssued:
			assert.Equal(t, 1, s.Count)
			assertMoney(t, "0", s.FineTotal)
		default:
			assert.Equal(t, 0, s.Count, s.Status)
		}
	}
}
