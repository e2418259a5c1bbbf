package library

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/maktaba/core"
)

// Service is the circulation desk. It is the only writer of ledger entries, book copy counts
// and member counters.
type Service interface {
	CreateBook(ctx context.Context, nb NewBook) (Book, error)
	GetBook(ctx context.Context, id string) (Book, error)
	QueryBooks(ctx context.Context, filter *BookFilter, orderings []core.DBOrdering) ([]Book, error)
	SetBookCopies(ctx context.Context, id string, total int) (Book, error)
	SetBookStatus(ctx context.Context, id string, status BookStatus) (Book, error)

	CreateMember(ctx context.Context, nm NewMember) (Member, error)
	GetMember(ctx context.Context, id string) (Member, error)
	QueryMembers(ctx context.Context, filter *MemberFilter, orderings []core.DBOrdering) ([]Member, error)
	SetMemberStatus(ctx context.Context, id string, status MemberStatus) (Member, error)

	Borrow(ctx context.Context, nb NewBorrow) (BorrowRecord, error)
	Return(ctx context.Context, id string, rb ReturnBorrow) (BorrowRecord, error)
	Renew(ctx context.Context, id string, rb RenewBorrow) (BorrowRecord, error)
	MarkLost(ctx context.Context, id string, lr LostReport) (BorrowRecord, error)
	MarkDamaged(ctx context.Context, id string, dr DamageReport) (BorrowRecord, error)

	GetBorrow(ctx context.Context, id string) (BorrowRecord, error)
	QueryBorrows(ctx context.Context, filter *BorrowFilter, orderings []core.DBOrdering) ([]BorrowRecord, error)
	BorrowsByMember(ctx context.Context, memberID string) ([]BorrowRecord, error)
	BorrowsByBook(ctx context.Context, bookID string) ([]BorrowRecord, error)
	Stats(ctx context.Context, filter *BorrowFilter) ([]StatusStats, error)
}

type service struct {
	repo   Repository
	conf   core.LibraryConfig
	clock  core.Clock
	logger core.Logger
}

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, conf core.LibraryConfig, clock core.Clock, logger core.Logger) Service {
	if clock == nil {
		clock = core.SystemClock()
	}
	return &service{repo: repo, conf: conf, clock: clock, logger: logger}
}

// inTx runs fn in a transaction, retrying it from scratch on concurrency conflicts.
func (svc *service) inTx(ctx context.Context, fn func(tx Tx) error) error {
	return core.RetryOnConflict(ctx, svc.conf.ConflictRetries, func(ctx context.Context) error {
		return svc.repo.InTx(ctx, fn)
	})
}

// Catalog

func (svc *service) CreateBook(ctx context.Context, nb NewBook) (Book, error) {
	exists, err := svc.repo.ISBNExists(ctx, nb.ISBN)
	if err != nil {
		return Book{}, errors.Wrap(err, "checking isbn")
	}
	if exists {
		return Book{}, ErrISBNExists
	}

	now := svc.clock.Now()
	book := Book{
		ID:              core.NewID(),
		Title:           nb.Title,
		Author:          nb.Author,
		ISBN:            nb.ISBN,
		TotalCopies:     nb.TotalCopies,
		AvailableCopies: nb.TotalCopies,
		Status:          nb.Status,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if book.Status == "" {
		book.Status = BookAvailable
	}
	err = svc.repo.InTx(ctx, func(tx Tx) error {
		return tx.InsertBook(ctx, book)
	})
	if err != nil {
		return Book{}, errors.Wrap(err, "inserting book")
	}
	return book, nil
}

func (svc *service) GetBook(ctx context.Context, id string) (Book, error) {
	return svc.repo.GetBook(ctx, id)
}

func (svc *service) QueryBooks(ctx context.Context, filter *BookFilter, orderings []core.DBOrdering) ([]Book, error) {
	if filter == nil {
		filter = new(BookFilter)
	}
	return svc.repo.QueryBooks(ctx, filter, orderings)
}

// SetBookCopies changes the number of owned copies. Copies on loan cannot be removed.
func (svc *service) SetBookCopies(ctx context.Context, id string, total int) (Book, error) {
	if total < 0 {
		return Book{}, core.NewValidationError(nil, core.FieldError{Field: "total_copies", Error: "must be 0 or greater"})
	}

	var book Book
	err := svc.inTx(ctx, func(tx Tx) error {
		var err error
		if book, err = tx.GetBook(ctx, id); err != nil {
			return err
		}
		if total < book.OnLoan() {
			return ErrCopiesOnLoan
		}
		book.AvailableCopies += total - book.TotalCopies
		book.TotalCopies = total
		book.UpdatedAt = svc.clock.Now()
		return tx.UpdateBook(ctx, &book)
	})
	if err != nil {
		return Book{}, errors.Wrap(err, "setting book copies")
	}
	return book, nil
}

func (svc *service) SetBookStatus(ctx context.Context, id string, status BookStatus) (Book, error) {
	if !status.Valid() {
		return Book{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: invalidStatusTxt})
	}

	var book Book
	err := svc.inTx(ctx, func(tx Tx) error {
		var err error
		if book, err = tx.GetBook(ctx, id); err != nil {
			return err
		}
		book.Status = status
		book.UpdatedAt = svc.clock.Now()
		return tx.UpdateBook(ctx, &book)
	})
	if err != nil {
		return Book{}, errors.Wrap(err, "setting book status")
	}
	return book, nil
}

// Members

func (svc *service) CreateMember(ctx context.Context, nm NewMember) (Member, error) {
	now := svc.clock.Now()
	member := Member{
		ID:             core.NewID(),
		Name:           nm.Name,
		Email:          nm.Email,
		MaxBorrowLimit: nm.MaxBorrowLimit,
		FineAmount:     decimal.Zero,
		Status:         MemberActive,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if member.MaxBorrowLimit <= 0 {
		member.MaxBorrowLimit = svc.conf.DefaultBorrowLimit
	}
	err := svc.repo.InTx(ctx, func(tx Tx) error {
		return tx.InsertMember(ctx, member)
	})
	if err != nil {
		return Member{}, errors.Wrap(err, "inserting member")
	}
	return member, nil
}

func (svc *service) GetMember(ctx context.Context, id string) (Member, error) {
	return svc.repo.GetMember(ctx, id)
}

func (svc *service) QueryMembers(ctx context.Context, filter *MemberFilter, orderings []core.DBOrdering) ([]Member, error) {
	if filter == nil {
		filter = new(MemberFilter)
	}
	return svc.repo.QueryMembers(ctx, filter, orderings)
}

func (svc *service) SetMemberStatus(ctx context.Context, id string, status MemberStatus) (Member, error) {
	if !status.Valid() {
		return Member{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: invalidStatusTxt})
	}

	var member Member
	err := svc.inTx(ctx, func(tx Tx) error {
		var err error
		if member, err = tx.GetMember(ctx, id); err != nil {
			return err
		}
		member.Status = status
		member.UpdatedAt = svc.clock.Now()
		return tx.UpdateMember(ctx, &member)
	})
	if err != nil {
		return Member{}, errors.Wrap(err, "setting member status")
	}
	return member, nil
}

// Ledger

func (svc *service) GetBorrow(ctx context.Context, id string) (BorrowRecord, error) {
	return svc.repo.GetBorrow(ctx, id)
}

func (svc *service) QueryBorrows(ctx context.Context, filter *BorrowFilter, orderings []core.DBOrdering) ([]BorrowRecord, error) {
	if filter == nil {
		filter = new(BorrowFilter)
	}
	return svc.repo.QueryBorrows(ctx, filter, orderings)
}

var latestFirst = []core.DBOrdering{{Field: "borrow_date", Ascending: false}}

func (svc *service) BorrowsByMember(ctx context.Context, memberID string) ([]BorrowRecord, error) {
	if _, err := svc.repo.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return svc.repo.QueryBorrows(ctx, &BorrowFilter{MemberID: memberID}, latestFirst)
}

func (svc *service) BorrowsByBook(ctx context.Context, bookID string) ([]BorrowRecord, error) {
	if _, err := svc.repo.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return svc.repo.QueryBorrows(ctx, &BorrowFilter{BookID: bookID}, latestFirst)
}

// Stats returns one entry per BorrowStatus, in BorrowStatuses order.
func (svc *service) Stats(ctx context.Context, filter *BorrowFilter) ([]StatusStats, error) {
	if filter == nil {
		filter = new(BorrowFilter)
	}
	stats, err := svc.repo.BorrowStats(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "computing borrow stats")
	}
	byStatus := make(map[BorrowStatus]StatusStats, len(stats))
	for _, s := range stats {
		byStatus[s.Status] = s
	}
	all := make([]StatusStats, 0, len(BorrowStatuses))
	for _, status := range BorrowStatuses {
		s, ok := byStatus[status]
		if !ok {
			s = StatusStats{Status: status, FineTotal: decimal.Zero}
		}
		all = append(all, s)
	}
	return all, nil
}
