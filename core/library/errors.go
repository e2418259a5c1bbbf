package library

import "github.com/trezcool/maktaba/core"

var (
	// not found
	ErrMemberNotFound = core.NewNotFoundError("member not found")
	ErrBookNotFound   = core.NewNotFoundError("book not found")
	ErrBorrowNotFound = core.NewNotFoundError("borrow record not found")

	// invalid state
	ErrMemberNotActive     = core.NewInvalidStateError("member is not active")
	ErrBorrowLimitReached  = core.NewInvalidStateError("member has reached their borrow limit")
	ErrBookUnavailable     = core.NewInvalidStateError("no copy of this book is available")
	ErrDueDateNotInFuture  = core.NewInvalidStateError("due date must be in the future")
	ErrAlreadyReturned     = core.NewInvalidStateError("book already returned")
	ErrBorrowClosed        = core.NewInvalidStateError("borrow record is closed")
	ErrNotRenewable        = core.NewInvalidStateError("only issued or overdue borrows can be renewed")
	ErrRenewalLimitReached = core.NewInvalidStateError("renewal limit reached")
	ErrCopiesOnLoan        = core.NewInvalidStateError("total copies cannot be lower than the copies on loan")

	// conflict
	ErrConcurrencyConflict = core.NewConflictError("record was modified concurrently, please retry")

	// validation
	ErrISBNExists = core.NewValidationError(nil, core.FieldError{Field: "isbn", Error: "a book with this isbn already exists"})
)
