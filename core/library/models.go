package library

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

type (
	BookStatus   string
	MemberStatus string
	BorrowStatus string
)

// Book statuses. The status is set by librarians and never follows AvailableCopies.
const (
	BookAvailable BookStatus = "AVAILABLE"
	BookBorrowed  BookStatus = "BORROWED"
	BookReserved  BookStatus = "RESERVED"
	BookDamaged   BookStatus = "DAMAGED"
	BookLost      BookStatus = "LOST"
)

// Member statuses
const (
	MemberActive    MemberStatus = "ACTIVE"
	MemberInactive  MemberStatus = "INACTIVE"
	MemberSuspended MemberStatus = "SUSPENDED"
)

// Borrow statuses
const (
	StatusIssued   BorrowStatus = "ISSUED"
	StatusReturned BorrowStatus = "RETURNED"
	StatusOverdue  BorrowStatus = "OVERDUE"
	StatusLost     BorrowStatus = "LOST"
	StatusDamaged  BorrowStatus = "DAMAGED"
)

var (
	BookStatuses   = []BookStatus{BookAvailable, BookBorrowed, BookReserved, BookDamaged, BookLost}
	MemberStatuses = []MemberStatus{MemberActive, MemberInactive, MemberSuspended}
	BorrowStatuses = []BorrowStatus{StatusIssued, StatusReturned, StatusOverdue, StatusLost, StatusDamaged}
)

func (s BookStatus) Valid() bool {
	for _, st := range BookStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s MemberStatus) Valid() bool {
	for _, st := range MemberStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s BorrowStatus) Valid() bool {
	for _, st := range BorrowStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s BorrowStatus) Terminal() bool {
	return s == StatusReturned || s == StatusLost || s == StatusDamaged
}

// Open reports whether the copy is still out with the member.
func (s BorrowStatus) Open() bool {
	return s == StatusIssued || s == StatusOverdue
}

type Book struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Author           string     `json:"author"`
	ISBN             string     `json:"isbn"`
	TotalCopies      int        `json:"total_copies"`
	AvailableCopies  int        `json:"available_copies"`
	Status           BookStatus `json:"status"`
	BorrowCount      int        `json:"borrow_count"`
	ReservationCount int        `json:"reservation_count"`
	Version          int        `json:"version"`
	CreatedAt        time.Time  `json:"created_at"` // UTC
	UpdatedAt        time.Time  `json:"updated_at"` // UTC
}

// OnLoan is the number of copies currently out.
func (b Book) OnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}

func (b Book) Borrowable() bool {
	return b.Status == BookAvailable && b.AvailableCopies > 0
}

type Member struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Email              string          `json:"email"`
	MaxBorrowLimit     int             `json:"max_borrow_limit"`
	CurrentBorrowCount int             `json:"current_borrow_count"`
	TotalBorrowCount   int             `json:"total_borrow_count"`
	OverdueCount       int             `json:"overdue_count"`
	FineAmount         decimal.Decimal `json:"fine_amount"`
	Status             MemberStatus    `json:"status"`
	Version            int             `json:"version"`
	CreatedAt          time.Time       `json:"created_at"` // UTC
	UpdatedAt          time.Time       `json:"updated_at"` // UTC
}

func (m Member) Active() bool {
	return m.Status == MemberActive
}

func (m Member) AtLimit() bool {
	return m.CurrentBorrowCount >= m.MaxBorrowLimit
}

// MemberDelta is an atomic change to a Member's counters.
type MemberDelta struct {
	CurrentBorrow int
	TotalBorrow   int
	Overdue       int
	Fine          decimal.Decimal
}

func (d MemberDelta) IsZero() bool {
	return d.CurrentBorrow == 0 && d.TotalBorrow == 0 && d.Overdue == 0 && d.Fine.IsZero()
}

// BorrowRecord is a ledger entry: one copy of a Book lent to a Member.
type BorrowRecord struct {
	ID                string          `json:"id"`
	MemberID          string          `json:"member_id"`
	BookID            string          `json:"book_id"`
	BorrowDate        time.Time       `json:"borrow_date"`
	DueDate           time.Time       `json:"due_date"`
	OriginalDueDate   *time.Time      `json:"original_due_date"`
	ReturnDate        *time.Time      `json:"return_date"`
	ReturnedBy        string          `json:"returned_by"`
	Status            BorrowStatus    `json:"status"`
	FineAmount        decimal.Decimal `json:"fine_amount"`
	DaysOverdue       int             `json:"days_overdue"`
	IsRenewed         bool            `json:"is_renewed"`
	RenewalCount      int             `json:"renewal_count"`
	DamageDescription string          `json:"damage_description"`
	Notes             string          `json:"notes"`
	Version           int             `json:"version"`
	CreatedAt         time.Time       `json:"created_at"` // UTC
	UpdatedAt         time.Time       `json:"updated_at"` // UTC
}

// OverdueAt reports whether an ISSUED entry is past its due date at now.
func (r BorrowRecord) OverdueAt(now time.Time) bool {
	return r.Status == StatusIssued && now.After(r.DueDate)
}

// checkOpen returns the error matching a terminal status, nil otherwise.
func (r BorrowRecord) checkOpen() error {
	switch r.Status {
	case StatusReturned:
		return ErrAlreadyReturned
	case StatusLost, StatusDamaged:
		return ErrBorrowClosed
	}
	return nil
}

// DaysLate counts started days between due and now; 0 when now is not after due.
func DaysLate(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	late := now.Sub(due)
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

// Fine is days × rate.
func Fine(days int, rate decimal.Decimal) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return rate.Mul(decimal.NewFromInt(int64(days)))
}

// StatusStats aggregates ledger entries of one status.
type StatusStats struct {
	Status    BorrowStatus    `json:"status"`
	Count     int             `json:"count"`
	FineTotal decimal.Decimal `json:"fine_total"`
}
