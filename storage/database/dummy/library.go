package dummydb

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
)

type libraryRepository struct {
	db *DB
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *DB) library.Repository {
	return &libraryRepository{db: db}
}

// InTx serialises transactions. fn writes to a copy of the tables which replaces them
// only if fn succeeds.
func (repo *libraryRepository) InTx(ctx context.Context, fn func(tx library.Tx) error) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := repo.db.lib.clone()
	if err := fn(&libraryTx{t: work}); err != nil {
		return err
	}
	repo.db.lib = work
	return nil
}

func (repo *libraryRepository) GetBook(_ context.Context, id string) (library.Book, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return getBook(repo.db.lib, id)
}

func (repo *libraryRepository) ISBNExists(_ context.Context, isbn string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	for _, b := range repo.db.lib.books {
		if strings.EqualFold(b.ISBN, isbn) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *libraryRepository) QueryBooks(_ context.Context, filter *library.BookFilter, orderings []core.DBOrdering) ([]library.Book, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	books := make([]library.Book, 0)
	for _, id := range repo.db.lib.bookOrder {
		b := repo.db.lib.books[id]
		if search != "" && !containsAny(search, b.Title, b.Author, b.ISBN) {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		books = append(books, b)
	}
	sortBy(books, orderings, compareBooks)
	return books, nil
}

func (repo *libraryRepository) GetMember(_ context.Context, id string) (library.Member, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return getMember(repo.db.lib, id)
}

func (repo *libraryRepository) QueryMembers(_ context.Context, filter *library.MemberFilter, orderings []core.DBOrdering) ([]library.Member, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	members := make([]library.Member, 0)
	for _, id := range repo.db.lib.memberOrder {
		m := repo.db.lib.members[id]
		if search != "" && !containsAny(search, m.Name, m.Email) {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		members = append(members, m)
	}
	sortBy(members, orderings, compareMembers)
	return members, nil
}

func (repo *libraryRepository) GetBorrow(_ context.Context, id string) (library.BorrowRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return getBorrow(repo.db.lib, id)
}

func (repo *libraryRepository) QueryBorrows(_ context.Context, filter *library.BorrowFilter, orderings []core.DBOrdering) ([]library.BorrowRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	recs := filterBorrows(repo.db.lib, filter)
	sortBy(recs, orderings, compareBorrows)
	return recs, nil
}

func (repo *libraryRepository) BorrowStats(_ context.Context, filter *library.BorrowFilter) ([]library.StatusStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	byStatus := make(map[library.BorrowStatus]*library.StatusStats)
	var stats []library.StatusStats
	for _, rec := range filterBorrows(repo.db.lib, filter) {
		s, ok := byStatus[rec.Status]
		if !ok {
			s = &library.StatusStats{Status: rec.Status, FineTotal: decimal.Zero}
			byStatus[rec.Status] = s
		}
		s.Count++
		s.FineTotal = s.FineTotal.Add(rec.FineAmount)
	}
	for _, status := range library.BorrowStatuses {
		if s, ok := byStatus[status]; ok {
			stats = append(stats, *s)
		}
	}
	return stats, nil
}

func filterBorrows(t *libraryTables, filter *library.BorrowFilter) []library.BorrowRecord {
	recs := make([]library.BorrowRecord, 0)
	for _, id := range t.borrowOrder {
		rec := t.borrows[id]
		if filter.MemberID != "" && rec.MemberID != filter.MemberID {
			continue
		}
		if filter.BookID != "" && rec.BookID != filter.BookID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, rec.Status) {
			continue
		}
		if !filter.DueBefore.IsZero() && !rec.DueDate.Before(filter.DueBefore) {
			continue
		}
		if !filter.DueAfter.IsZero() && !rec.DueDate.After(filter.DueAfter) {
			continue
		}
		recs = append(recs, rec)
	}
	return recs
}

func hasStatus(statuses []library.BorrowStatus, status library.BorrowStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// libraryTx writes to a working copy of the tables.
type libraryTx struct {
	t *libraryTables
}

var _ library.Tx = (*libraryTx)(nil) // interface compliance check

func (tx *libraryTx) GetBook(_ context.Context, id string) (library.Book, error) {
	return getBook(tx.t, id)
}

func (tx *libraryTx) GetMember(_ context.Context, id string) (library.Member, error) {
	return getMember(tx.t, id)
}

func (tx *libraryTx) GetBorrow(_ context.Context, id string) (library.BorrowRecord, error) {
	return getBorrow(tx.t, id)
}

func (tx *libraryTx) InsertBook(_ context.Context, book library.Book) error {
	if _, ok := tx.t.books[book.ID]; ok {
		return errors.Errorf("duplicate book id %q", book.ID)
	}
	for _, b := range tx.t.books {
		if strings.EqualFold(b.ISBN, book.ISBN) {
			return library.ErrISBNExists
		}
	}
	tx.t.books[book.ID] = book
	tx.t.bookOrder = append(tx.t.bookOrder, book.ID)
	return nil
}

func (tx *libraryTx) UpdateBook(_ context.Context, book *library.Book) error {
	stored, ok := tx.t.books[book.ID]
	if !ok {
		return library.ErrBookNotFound
	}
	if stored.Version != book.Version {
		return library.ErrConcurrencyConflict
	}
	book.Version++
	tx.t.books[book.ID] = *book
	return nil
}

func (tx *libraryTx) InsertMember(_ context.Context, member library.Member) error {
	if _, ok := tx.t.members[member.ID]; ok {
		return errors.Errorf("duplicate member id %q", member.ID)
	}
	tx.t.members[member.ID] = member
	tx.t.memberOrder = append(tx.t.memberOrder, member.ID)
	return nil
}

func (tx *libraryTx) UpdateMember(_ context.Context, member *library.Member) error {
	stored, ok := tx.t.members[member.ID]
	if !ok {
		return library.ErrMemberNotFound
	}
	if stored.Version != member.Version {
		return library.ErrConcurrencyConflict
	}
	member.Version++
	tx.t.members[member.ID] = *member
	return nil
}

func (tx *libraryTx) InsertBorrow(_ context.Context, rec library.BorrowRecord) error {
	if _, ok := tx.t.borrows[rec.ID]; ok {
		return errors.Errorf("duplicate borrow id %q", rec.ID)
	}
	if _, ok := tx.t.members[rec.MemberID]; !ok {
		return library.ErrMemberNotFound
	}
	if _, ok := tx.t.books[rec.BookID]; !ok {
		return library.ErrBookNotFound
	}
	tx.t.borrows[rec.ID] = rec
	tx.t.borrowOrder = append(tx.t.borrowOrder, rec.ID)
	return nil
}

func (tx *libraryTx) UpdateBorrow(_ context.Context, rec *library.BorrowRecord) error {
	stored, ok := tx.t.borrows[rec.ID]
	if !ok {
		return library.ErrBorrowNotFound
	}
	if stored.Version != rec.Version {
		return library.ErrConcurrencyConflict
	}
	rec.Version++
	tx.t.borrows[rec.ID] = *rec
	return nil
}

func (tx *libraryTx) AdjustBookCopies(_ context.Context, bookID string, availableDelta, borrowDelta int, now time.Time) error {
	book, ok := tx.t.books[bookID]
	if !ok {
		return library.ErrBookNotFound
	}
	available := book.AvailableCopies + availableDelta
	if available < 0 || available > book.TotalCopies {
		return library.ErrConcurrencyConflict
	}
	book.AvailableCopies = available
	book.BorrowCount += borrowDelta
	book.Version++
	book.UpdatedAt = now
	tx.t.books[bookID] = book
	return nil
}

func (tx *libraryTx) AdjustMemberCounters(_ context.Context, memberID string, delta library.MemberDelta, now time.Time) error {
	member, ok := tx.t.members[memberID]
	if !ok {
		return library.ErrMemberNotFound
	}
	current := member.CurrentBorrowCount + delta.CurrentBorrow
	if current < 0 || (delta.CurrentBorrow > 0 && current > member.MaxBorrowLimit) {
		return library.ErrConcurrencyConflict
	}
	member.CurrentBorrowCount = current
	member.TotalBorrowCount += delta.TotalBorrow
	member.OverdueCount += delta.Overdue
	member.FineAmount = member.FineAmount.Add(delta.Fine)
	member.Version++
	member.UpdatedAt = now
	tx.t.members[memberID] = member
	return nil
}

func getBook(t *libraryTables, id string) (library.Book, error) {
	if b, ok := t.books[id]; ok {
		return b, nil
	}
	return library.Book{}, library.ErrBookNotFound
}

func getMember(t *libraryTables, id string) (library.Member, error) {
	if m, ok := t.members[id]; ok {
		return m, nil
	}
	return library.Member{}, library.ErrMemberNotFound
}

func getBorrow(t *libraryTables, id string) (library.BorrowRecord, error) {
	if r, ok := t.borrows[id]; ok {
		return r, nil
	}
	return library.BorrowRecord{}, library.ErrBorrowNotFound
}
