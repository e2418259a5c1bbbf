package library

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/maktaba/core"
)

// Borrow lends a copy of a book to a member.
// Checks run in order: member exists and is active, member is under their limit,
// book exists and is borrowable, due date is in the future.
func (svc *service) Borrow(ctx context.Context, nb NewBorrow) (BorrowRecord, error) {
	var rec BorrowRecord
	err := svc.inTx(ctx, func(tx Tx) error {
		now := svc.clock.Now()

		member, err := tx.GetMember(ctx, nb.MemberID)
		if err != nil {
			return err
		}
		if !member.Active() {
			return ErrMemberNotActive
		}
		if member.AtLimit() {
			return ErrBorrowLimitReached
		}

		book, err := tx.GetBook(ctx, nb.BookID)
		if err != nil {
			return err
		}
		if !book.Borrowable() {
			return ErrBookUnavailable
		}

		due := svc.loanDueDate(now, nb)
		if !due.After(now) {
			return ErrDueDateNotInFuture
		}

		rec = BorrowRecord{
			ID:         core.NewID(),
			MemberID:   member.ID,
			BookID:     book.ID,
			BorrowDate: now,
			DueDate:    due,
			Status:     StatusIssued,
			FineAmount: decimal.Zero,
			Notes:      nb.Notes,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		// lock order: book, member
		if err := tx.AdjustBookCopies(ctx, book.ID, -1, 1, now); err != nil {
			return err
		}
		delta := MemberDelta{CurrentBorrow: 1, TotalBorrow: 1}
		if err := tx.AdjustMemberCounters(ctx, member.ID, delta, now); err != nil {
			return err
		}
		return tx.InsertBorrow(ctx, rec)
	})
	if err != nil {
		return BorrowRecord{}, errors.Wrap(err, "borrowing book")
	}
	return rec, nil
}

func (svc *service) loanDueDate(now time.Time, nb NewBorrow) time.Time {
	switch {
	case nb.DueDate != nil:
		return nb.DueDate.UTC()
	case nb.BorrowDays != 0:
		return now.AddDate(0, 0, nb.BorrowDays)
	default:
		return now.AddDate(0, 0, svc.conf.DefaultLoanDays)
	}
}

// Return closes a loan, charging a fine for every started day past the due date.
// The fine is recomputed and charged to the member in full, even when the overdue
// sweep already charged part of it.
func (svc *service) Return(ctx context.Context, id string, rb ReturnBorrow) (BorrowRecord, error) {
	var rec BorrowRecord
	err := svc.inTx(ctx, func(tx Tx) error {
		var err error
		if rec, err = tx.GetBorrow(ctx, id); err != nil {
			return err
		}
		if err = rec.checkOpen(); err != nil {
			return err
		}

		now := svc.clock.Now()
		days := DaysLate(rec.DueDate, now)
		fine := Fine(days, svc.conf.DailyFineRate)

		rec.Status = StatusReturned
		rec.ReturnDate = &now
		rec.ReturnedBy = rb.ReturnedBy
		rec.DaysOverdue = days
		rec.FineAmount = fine
		rec.UpdatedAt = now
		if rb.Notes != "" {
			rec.Notes = rb.Notes
		}

		// lock order: entry, book, member
		if err = tx.UpdateBorrow(ctx, &rec); err != nil {
			return err
		}
		if err = tx.AdjustBookCopies(ctx, rec.BookID, 1, 0, now); err != nil {
			return err
		}
		return tx.AdjustMemberCounters(ctx, rec.MemberID, MemberDelta{CurrentBorrow: -1, Fine: fine}, now)
	})
	if err != nil {
		return BorrowRecord{}, errors.Wrap(err, "returning book")
	}
	return rec, nil
}

// Renew extends an open loan. The entry goes back to ISSUED and its fine is waived;
// fines already charged to the member stay.
func (svc *service) Renew(ctx context.Context, id string, rb RenewBorrow) (BorrowRecord, error) {
	var rec BorrowRecord
	err := svc.inTx(ctx, func(tx Tx) error {
		var err error
		if rec, err = tx.GetBorrow(ctx, id); err != nil {
			return err
		}
		if !rec.Status.Open() {
			return ErrNotRenewable
		}
		if rec.RenewalCount >= svc.conf.MaxRenewals {
			return ErrRenewalLimitReached
		}

		now := svc.clock.Now()
		due := now.AddDate(0, 0, svc.conf.RenewalDays)
		if rb.NewDueDate != nil {
			due = rb.NewDueDate.UTC()
		}
		if !due.After(now) {
			return ErrDueDateNotInFuture
		}

		if rec.OriginalDueDate == nil {
			orig := rec.DueDate
			rec.OriginalDueDate = &orig
		}
		rec.DueDate = due
		rec.Status = StatusIssued
		rec.IsRenewed = true
		rec.RenewalCount++
		rec.FineAmount = decimal.Zero
		rec.DaysOverdue = 0
		rec.UpdatedAt = now
		return tx.UpdateBorrow(ctx, &rec)
	})
	if err != nil {
		return BorrowRecord{}, errors.Wrap(err, "renewing borrow")
	}
	return rec, nil
}

// MarkLost closes a loan whose copy will not come back.
// The copy is not returned to the shelf and the member keeps it on their count.
func (svc *service) MarkLost(ctx context.Context, id string, lr LostReport) (BorrowRecord, error) {
	rec, err := svc.close(ctx, id, StatusLost, svc.conf.LostReplacementCost, func(rec *BorrowRecord) {
		if lr.Notes != "" {
			rec.Notes = lr.Notes
		}
	})
	if err != nil {
		return BorrowRecord{}, errors.Wrap(err, "marking borrow lost")
	}
	return rec, nil
}

// MarkDamaged closes a loan whose copy came back unusable.
func (svc *service) MarkDamaged(ctx context.Context, id string, dr DamageReport) (BorrowRecord, error) {
	desc := strings.TrimSpace(dr.Description)
	if desc == "" {
		return BorrowRecord{}, core.NewValidationError(nil, core.FieldError{Field: "damage_description", Error: "this field cannot be blank"})
	}

	rec, err := svc.close(ctx, id, StatusDamaged, svc.conf.DamageCost, func(rec *BorrowRecord) {
		rec.DamageDescription = desc
		if dr.Notes != "" {
			rec.Notes = dr.Notes
		}
	})
	if err != nil {
		return BorrowRecord{}, errors.Wrap(err, "marking borrow damaged")
	}
	return rec, nil
}

// close moves an open entry to a terminal status, setting its fine to cost and charging
// the member the full cost.
func (svc *service) close(ctx context.Context, id string, status BorrowStatus, cost decimal.Decimal, edit func(rec *BorrowRecord)) (BorrowRecord, error) {
	var rec BorrowRecord
	err := svc.inTx(ctx, func(tx Tx) error {
		var err error
		if rec, err = tx.GetBorrow(ctx, id); err != nil {
			return err
		}
		if err = rec.checkOpen(); err != nil {
			return err
		}

		now := svc.clock.Now()
		rec.Status = status
		rec.FineAmount = cost
		rec.UpdatedAt = now
		edit(&rec)

		// lock order: entry, member
		if err = tx.UpdateBorrow(ctx, &rec); err != nil {
			return err
		}
		return tx.AdjustMemberCounters(ctx, rec.MemberID, MemberDelta{Fine: cost}, now)
	})
	return rec, err
}
