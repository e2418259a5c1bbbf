package library

import (
	"context"
	"time"

	"github.com/trezcool/maktaba/core"
)

type (
	// Repository is the library storage. Writes only happen through InTx.
	Repository interface {
		// InTx runs fn in a single unit of work: every write made through tx is committed
		// if fn returns nil, and none is otherwise.
		InTx(ctx context.Context, fn func(tx Tx) error) error

		GetBook(ctx context.Context, id string) (Book, error)
		ISBNExists(ctx context.Context, isbn string) (bool, error)
		QueryBooks(ctx context.Context, filter *BookFilter, orderings []core.DBOrdering) ([]Book, error)
		GetMember(ctx context.Context, id string) (Member, error)
		QueryMembers(ctx context.Context, filter *MemberFilter, orderings []core.DBOrdering) ([]Member, error)
		GetBorrow(ctx context.Context, id string) (BorrowRecord, error)
		QueryBorrows(ctx context.Context, filter *BorrowFilter, orderings []core.DBOrdering) ([]BorrowRecord, error)
		BorrowStats(ctx context.Context, filter *BorrowFilter) ([]StatusStats, error)
	}

	// Tx is a unit of work.
	// Update* methods are optimistic: they only apply if the stored Version still matches,
	// bump the Version of their argument on success and fail with ErrConcurrencyConflict
	// otherwise. Adjust* methods are conditional read-modify-writes done by the storage.
	Tx interface {
		GetBook(ctx context.Context, id string) (Book, error)
		GetMember(ctx context.Context, id string) (Member, error)
		GetBorrow(ctx context.Context, id string) (BorrowRecord, error)

		InsertBook(ctx context.Context, book Book) error
		UpdateBook(ctx context.Context, book *Book) error
		InsertMember(ctx context.Context, member Member) error
		UpdateMember(ctx context.Context, member *Member) error
		InsertBorrow(ctx context.Context, rec BorrowRecord) error
		UpdateBorrow(ctx context.Context, rec *BorrowRecord) error

		// AdjustBookCopies adds availableDelta to AvailableCopies and borrowDelta to BorrowCount,
		// as long as 0 <= AvailableCopies <= TotalCopies still holds.
		AdjustBookCopies(ctx context.Context, bookID string, availableDelta, borrowDelta int, now time.Time) error
		// AdjustMemberCounters applies delta, as long as CurrentBorrowCount stays >= 0 and,
		// when it grows, <= MaxBorrowLimit.
		AdjustMemberCounters(ctx context.Context, memberID string, delta MemberDelta, now time.Time) error
	}
)

// Orderable fields
var (
	BookOrderings   = []string{"title", "author", "isbn", "available_copies", "borrow_count", "created_at"}
	MemberOrderings = []string{"name", "email", "current_borrow_count", "overdue_count", "fine_amount", "created_at"}
	BorrowOrderings = []string{"borrow_date", "due_date", "return_date", "status", "fine_amount", "days_overdue", "created_at"}
)

// BookFilter applies AND operation on its set fields.
// Search does a case-insensitive match on one of Book.Title, Book.Author or Book.ISBN.
type BookFilter struct {
	Search string     `query:"search"`
	Status BookStatus `query:"status"`
}

// MemberFilter applies AND operation on its set fields.
// Search does a case-insensitive match on one of Member.Name or Member.Email.
type MemberFilter struct {
	Search string       `query:"search"`
	Status MemberStatus `query:"status"`
}

// BorrowFilter applies AND operation on its set fields. Statuses are OR'ed.
type BorrowFilter struct {
	MemberID  string
	BookID    string
	Statuses  []BorrowStatus
	DueBefore time.Time // exclusive
	DueAfter  time.Time // exclusive
}

func (f *BookFilter) Clean() {
	f.Search = core.CleanString(f.Search)
}

func (f *MemberFilter) Clean() {
	f.Search = core.CleanString(f.Search)
}
