package library

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/maktaba/core"
)

// SweepReport sums up one overdue sweep.
type SweepReport struct {
	Scanned      int             `json:"scanned"`
	Marked       int             `json:"marked"`
	Failed       int             `json:"failed"`
	FinesCharged decimal.Decimal `json:"fines_charged"`
}

func (r SweepReport) String() string {
	return fmt.Sprintf("scanned=%d marked=%d failed=%d fines_charged=%s", r.Scanned, r.Marked, r.Failed, r.FinesCharged)
}

// Sweeper marks ISSUED entries past their due date as OVERDUE and charges their fines.
type Sweeper struct {
	repo   Repository
	conf   core.LibraryConfig
	clock  core.Clock
	logger core.Logger
	mailer core.EmailService // optional
}

func NewSweeper(repo Repository, conf core.LibraryConfig, clock core.Clock, logger core.Logger, mailer core.EmailService) *Sweeper {
	if clock == nil {
		clock = core.SystemClock()
	}
	return &Sweeper{repo: repo, conf: conf, clock: clock, logger: logger, mailer: mailer}
}

// Sweep runs one pass. Every entry is handled in its own transaction: a failing entry is
// logged and counted, and the pass goes on. Entries returned or renewed since they were
// listed are skipped.
func (sw *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{FinesCharged: decimal.Zero}
	now := sw.clock.Now()

	candidates, err := sw.repo.QueryBorrows(ctx, &BorrowFilter{Statuses: []BorrowStatus{StatusIssued}, DueBefore: now}, nil)
	if err != nil {
		return report, errors.Wrap(err, "listing overdue candidates")
	}

	var notices []*core.EmailMessage
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		res, err := sw.markOverdue(ctx, candidate.ID, now)
		if err != nil {
			report.Failed++
			if sw.logger != nil {
				sw.logger.Error("marking borrow overdue", errors.Wrap(err, "marking borrow overdue"), map[string]interface{}{
					"borrow_id": candidate.ID,
				})
			}
			continue
		}
		if !res.marked {
			continue
		}
		report.Marked++
		report.FinesCharged = report.FinesCharged.Add(res.rec.FineAmount)
		if msg := sw.notice(res); msg != nil {
			notices = append(notices, msg)
		}
	}

	if len(notices) > 0 {
		sw.mailer.SendMessages(notices...)
	}
	return report, nil
}

type overdueResult struct {
	marked bool
	rec    BorrowRecord
	member Member
	book   Book
}

func (sw *Sweeper) markOverdue(ctx context.Context, id string, now time.Time) (overdueResult, error) {
	var res overdueResult
	err := core.RetryOnConflict(ctx, sw.conf.ConflictRetries, func(ctx context.Context) error {
		res = overdueResult{}
		return sw.repo.InTx(ctx, func(tx Tx) error {
			rec, err := tx.GetBorrow(ctx, id)
			if err != nil {
				return err
			}
			if !rec.OverdueAt(now) {
				return nil
			}

			days := DaysLate(rec.DueDate, now)
			rec.Status = StatusOverdue
			rec.DaysOverdue = days
			rec.FineAmount = Fine(days, sw.conf.DailyFineRate)
			rec.UpdatedAt = now

			// lock order: entry, member
			if err = tx.UpdateBorrow(ctx, &rec); err != nil {
				return err
			}
			delta := MemberDelta{Overdue: 1, Fine: rec.FineAmount}
			if err = tx.AdjustMemberCounters(ctx, rec.MemberID, delta, now); err != nil {
				return err
			}

			res.marked = true
			res.rec = rec
			if res.member, err = tx.GetMember(ctx, rec.MemberID); err != nil {
				return err
			}
			res.book, err = tx.GetBook(ctx, rec.BookID)
			return err
		})
	})
	return res, err
}

func (sw *Sweeper) notice(res overdueResult) *core.EmailMessage {
	if sw.mailer == nil || !sw.conf.SendOverdueNotices || res.member.Email == "" {
		return nil
	}
	msg := &core.EmailMessage{
		Subject: fmt.Sprintf("Overdue: %s", res.book.Title),
		Body: fmt.Sprintf(
			"Hello %s,\n\n"+
				"\"%s\" was due back on %s and is now %d day(s) overdue.\n"+
				"A fine of %s has been added to your library account.\n\n"+
				"Please return it as soon as possible.\n",
			res.member.Name, res.book.Title, res.rec.DueDate.Format("2006-01-02"),
			res.rec.DaysOverdue, res.rec.FineAmount.StringFixed(2),
		),
	}
	msg.To = append(msg.To, mail.Address{Name: res.member.Name, Address: res.member.Email})
	return msg
}

// Run sweeps once right away, then on every tick of interval, until ctx is done.
func (sw *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = day
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sw.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.runOnce(ctx)
		}
	}
}

func (sw *Sweeper) runOnce(ctx context.Context) {
	report, err := sw.Sweep(ctx)
	if sw.logger == nil {
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			sw.logger.Error("sweeping overdue borrows", errors.Wrap(err, "sweeping overdue borrows"))
		}
		return
	}
	sw.logger.Info("overdue sweep done: " + report.String())
}
