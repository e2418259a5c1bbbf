package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
)

const (
	booksTable   = "books"
	membersTable = "members"
	borrowsTable = "borrow_records"
)

var (
	bookColumns = []interface{}{
		"id", "title", "author", "isbn", "total_copies", "available_copies", "status",
		"borrow_count", "reservation_count", "version", "created_at", "updated_at",
	}
	memberColumns = []interface{}{
		"id", "name", "email", "max_borrow_limit", "current_borrow_count", "total_borrow_count",
		"overdue_count", "fine_amount", "status", "version", "created_at", "updated_at",
	}
	borrowColumns = []interface{}{
		"id", "member_id", "book_id", "borrow_date", "due_date", "original_due_date", "return_date",
		"returned_by", "status", "fine_amount", "days_overdue", "is_renewed", "renewal_count",
		"damage_description", "notes", "version", "created_at", "updated_at",
	}
)

type bookRow struct {
	ID               string    `db:"id"`
	Title            string    `db:"title"`
	Author           string    `db:"author"`
	ISBN             string    `db:"isbn"`
	TotalCopies      int       `db:"total_copies"`
	AvailableCopies  int       `db:"available_copies"`
	Status           string    `db:"status"`
	BorrowCount      int       `db:"borrow_count"`
	ReservationCount int       `db:"reservation_count"`
	Version          int       `db:"version"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (row bookRow) toBook() library.Book {
	return library.Book{
		ID:               row.ID,
		Title:            row.Title,
		Author:           row.Author,
		ISBN:             row.ISBN,
		TotalCopies:      row.TotalCopies,
		AvailableCopies:  row.AvailableCopies,
		Status:           library.BookStatus(row.Status),
		BorrowCount:      row.BorrowCount,
		ReservationCount: row.ReservationCount,
		Version:          row.Version,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
}

func bookRecord(b library.Book) goqu.Record {
	return goqu.Record{
		"id":                b.ID,
		"title":             b.Title,
		"author":            b.Author,
		"isbn":              b.ISBN,
		"total_copies":      b.TotalCopies,
		"available_copies":  b.AvailableCopies,
		"status":            string(b.Status),
		"borrow_count":      b.BorrowCount,
		"reservation_count": b.ReservationCount,
		"version":           b.Version,
		"created_at":        b.CreatedAt.UTC(),
		"updated_at":        b.UpdatedAt.UTC(),
	}
}

type memberRow struct {
	ID                 string          `db:"id"`
	Name               string          `db:"name"`
	Email              string          `db:"email"`
	MaxBorrowLimit     int             `db:"max_borrow_limit"`
	CurrentBorrowCount int             `db:"current_borrow_count"`
	TotalBorrowCount   int             `db:"total_borrow_count"`
	OverdueCount       int             `db:"overdue_count"`
	FineAmount         decimal.Decimal `db:"fine_amount"`
	Status             string          `db:"status"`
	Version            int             `db:"version"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func (row memberRow) toMember() library.Member {
	return library.Member{
		ID:                 row.ID,
		Name:               row.Name,
		Email:              row.Email,
		MaxBorrowLimit:     row.MaxBorrowLimit,
		CurrentBorrowCount: row.CurrentBorrowCount,
		TotalBorrowCount:   row.TotalBorrowCount,
		OverdueCount:       row.OverdueCount,
		FineAmount:         row.FineAmount,
		Status:             library.MemberStatus(row.Status),
		Version:            row.Version,
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}
}

func memberRecord(m library.Member) goqu.Record {
	return goqu.Record{
		"id":                   m.ID,
		"name":                 m.Name,
		"email":                m.Email,
		"max_borrow_limit":     m.MaxBorrowLimit,
		"current_borrow_count": m.CurrentBorrowCount,
		"total_borrow_count":   m.TotalBorrowCount,
		"overdue_count":        m.OverdueCount,
		"fine_amount":          m.FineAmount,
		"status":               string(m.Status),
		"version":              m.Version,
		"created_at":           m.CreatedAt.UTC(),
		"updated_at":           m.UpdatedAt.UTC(),
	}
}

type borrowRow struct {
	ID                string          `db:"id"`
	MemberID          string          `db:"member_id"`
	BookID            string          `db:"book_id"`
	BorrowDate        time.Time       `db:"borrow_date"`
	DueDate           time.Time       `db:"due_date"`
	OriginalDueDate   null.Time       `db:"original_due_date"`
	ReturnDate        null.Time       `db:"return_date"`
	ReturnedBy        string          `db:"returned_by"`
	Status            string          `db:"status"`
	FineAmount        decimal.Decimal `db:"fine_amount"`
	DaysOverdue       int             `db:"days_overdue"`
	IsRenewed         bool            `db:"is_renewed"`
	RenewalCount      int             `db:"renewal_count"`
	DamageDescription string          `db:"damage_description"`
	Notes             string          `db:"notes"`
	Version           int             `db:"version"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func optTime(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func (row borrowRow) toBorrow() library.BorrowRecord {
	return library.BorrowRecord{
		ID:                row.ID,
		MemberID:          row.MemberID,
		BookID:            row.BookID,
		BorrowDate:        row.BorrowDate.UTC(),
		DueDate:           row.DueDate.UTC(),
		OriginalDueDate:   optTime(row.OriginalDueDate),
		ReturnDate:        optTime(row.ReturnDate),
		ReturnedBy:        row.ReturnedBy,
		Status:            library.BorrowStatus(row.Status),
		FineAmount:        row.FineAmount,
		DaysOverdue:       row.DaysOverdue,
		IsRenewed:         row.IsRenewed,
		RenewalCount:      row.RenewalCount,
		DamageDescription: row.DamageDescription,
		Notes:             row.Notes,
		Version:           row.Version,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

func borrowRecord(r library.BorrowRecord) goqu.Record {
	return goqu.Record{
		"id":                 r.ID,
		"member_id":          r.MemberID,
		"book_id":            r.BookID,
		"borrow_date":        r.BorrowDate.UTC(),
		"due_date":           r.DueDate.UTC(),
		"original_due_date":  nullTime(r.OriginalDueDate),
		"return_date":        nullTime(r.ReturnDate),
		"returned_by":        r.ReturnedBy,
		"status":             string(r.Status),
		"fine_amount":        r.FineAmount,
		"days_overdue":       r.DaysOverdue,
		"is_renewed":         r.IsRenewed,
		"renewal_count":      r.RenewalCount,
		"damage_description": r.DamageDescription,
		"notes":              r.Notes,
		"version":            r.Version,
		"created_at":         r.CreatedAt.UTC(),
		"updated_at":         r.UpdatedAt.UTC(),
	}
}

// reader serves lookups both inside and outside transactions.
type reader struct {
	q       queryer
	dialect goqu.DialectWrapper
}

func (r reader) getBook(ctx context.Context, id string) (library.Book, error) {
	var row bookRow
	ds := r.dialect.From(booksTable).Prepared(true).Select(bookColumns...).Where(goqu.C("id").Eq(id))
	if err := get(ctx, r.q, &row, ds); err != nil {
		if isNoRows(err) {
			return library.Book{}, library.ErrBookNotFound
		}
		return library.Book{}, errors.Wrap(err, "getting book")
	}
	return row.toBook(), nil
}

func (r reader) getMember(ctx context.Context, id string) (library.Member, error) {
	var row memberRow
	ds := r.dialect.From(membersTable).Prepared(true).Select(memberColumns...).Where(goqu.C("id").Eq(id))
	if err := get(ctx, r.q, &row, ds); err != nil {
		if isNoRows(err) {
			return library.Member{}, library.ErrMemberNotFound
		}
		return library.Member{}, errors.Wrap(err, "getting member")
	}
	return row.toMember(), nil
}

func (r reader) getBorrow(ctx context.Context, id string) (library.BorrowRecord, error) {
	var row borrowRow
	ds := r.dialect.From(borrowsTable).Prepared(true).Select(borrowColumns...).Where(goqu.C("id").Eq(id))
	if err := get(ctx, r.q, &row, ds); err != nil {
		if isNoRows(err) {
			return library.BorrowRecord{}, library.ErrBorrowNotFound
		}
		return library.BorrowRecord{}, errors.Wrap(err, "getting borrow record")
	}
	return row.toBorrow(), nil
}

type libraryRepository struct {
	db *sqlx.DB
	reader
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *sqlx.DB) library.Repository {
	return &libraryRepository{db: db, reader: reader{q: db, dialect: dialectFor(db)}}
}

func (repo *libraryRepository) InTx(ctx context.Context, fn func(tx library.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(&libraryTx{reader: reader{q: tx, dialect: repo.dialect}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo *libraryRepository) GetBook(ctx context.Context, id string) (library.Book, error) {
	return repo.getBook(ctx, id)
}

func (repo *libraryRepository) ISBNExists(ctx context.Context, isbn string) (bool, error) {
	var ids []string
	ds := repo.dialect.From(booksTable).Prepared(true).Select("id").
		Where(goqu.L("LOWER(isbn) = ?", strings.ToLower(isbn))).Limit(1)
	if err := selectAll(ctx, repo.q, &ids, ds); err != nil {
		return false, errors.Wrap(err, "checking isbn")
	}
	return len(ids) > 0, nil
}

func (repo *libraryRepository) QueryBooks(ctx context.Context, filter *library.BookFilter, orderings []core.DBOrdering) ([]library.Book, error) {
	ds := repo.dialect.From(booksTable).Prepared(true).Select(bookColumns...)
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		ds = ds.Where(goqu.Or(
			goqu.L("LOWER(title) LIKE ?", pattern),
			goqu.L("LOWER(author) LIKE ?", pattern),
			goqu.L("LOWER(isbn) LIKE ?", pattern),
		))
	}
	if filter.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(filter.Status)))
	}
	ds = ds.Order(withDefault(orderedExps(orderings, library.BookOrderings))...)

	var rows []bookRow
	if err := selectAll(ctx, repo.q, &rows, ds); err != nil {
		return nil, errors.Wrap(err, "querying books")
	}
	books := make([]library.Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, row.toBook())
	}
	return books, nil
}

func (repo *libraryRepository) GetMember(ctx context.Context, id string) (library.Member, error) {
	return repo.getMember(ctx, id)
}

func (repo *libraryRepository) QueryMembers(ctx context.Context, filter *library.MemberFilter, orderings []core.DBOrdering) ([]library.Member, error) {
	ds := repo.dialect.From(membersTable).Prepared(true).Select(memberColumns...)
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		ds = ds.Where(goqu.Or(
			goqu.L("LOWER(name) LIKE ?", pattern),
			goqu.L("LOWER(email) LIKE ?", pattern),
		))
	}
	if filter.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(filter.Status)))
	}
	ds = ds.Order(withDefault(orderedExps(orderings, library.MemberOrderings))...)

	var rows []memberRow
	if err := selectAll(ctx, repo.q, &rows, ds); err != nil {
		return nil, errors.Wrap(err, "querying members")
	}
	members := make([]library.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, row.toMember())
	}
	return members, nil
}

func (repo *libraryRepository) GetBorrow(ctx context.Context, id string) (library.BorrowRecord, error) {
	return repo.getBorrow(ctx, id)
}

func borrowConditions(filter *library.BorrowFilter) []goqu.Expression {
	var conds []goqu.Expression
	if filter.MemberID != "" {
		conds = append(conds, goqu.C("member_id").Eq(filter.MemberID))
	}
	if filter.BookID != "" {
		conds = append(conds, goqu.C("book_id").Eq(filter.BookID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]interface{}, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		conds = append(conds, goqu.C("status").In(statuses...))
	}
	if !filter.DueBefore.IsZero() {
		conds = append(conds, goqu.C("due_date").Lt(filter.DueBefore.UTC()))
	}
	if !filter.DueAfter.IsZero() {
		conds = append(conds, goqu.C("due_date").Gt(filter.DueAfter.UTC()))
	}
	return conds
}

func (repo *libraryRepository) QueryBorrows(ctx context.Context, filter *library.BorrowFilter, orderings []core.DBOrdering) ([]library.BorrowRecord, error) {
	ds := repo.dialect.From(borrowsTable).Prepared(true).Select(borrowColumns...).
		Where(borrowConditions(filter)...).
		Order(withDefault(orderedExps(orderings, library.BorrowOrderings))...)

	var rows []borrowRow
	if err := selectAll(ctx, repo.q, &rows, ds); err != nil {
		return nil, errors.Wrap(err, "querying borrow records")
	}
	recs := make([]library.BorrowRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.toBorrow())
	}
	return recs, nil
}

func (repo *libraryRepository) BorrowStats(ctx context.Context, filter *library.BorrowFilter) ([]library.StatusStats, error) {
	ds := repo.dialect.From(borrowsTable).Prepared(true).
		Select(
			goqu.C("status"),
			goqu.COUNT(goqu.Star()).As("count"),
			goqu.COALESCE(goqu.SUM("fine_amount"), 0).As("fine_total"),
		).
		Where(borrowConditions(filter)...).
		GroupBy("status")

	var rows []struct {
		Status    string          `db:"status"`
		Count     int             `db:"count"`
		FineTotal decimal.Decimal `db:"fine_total"`
	}
	if err := selectAll(ctx, repo.q, &rows, ds); err != nil {
		return nil, errors.Wrap(err, "computing borrow stats")
	}
	stats := make([]library.StatusStats, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, library.StatusStats{
			Status:    library.BorrowStatus(row.Status),
			Count:     row.Count,
			FineTotal: row.FineTotal,
		})
	}
	return stats, nil
}

// withDefault falls back to creation order, and breaks ties on id.
func withDefault(ords []exp.OrderedExpression) []exp.OrderedExpression {
	if len(ords) == 0 {
		ords = append(ords, goqu.C("created_at").Asc())
	}
	return append(ords, goqu.C("id").Asc())
}

// libraryTx runs inside a database transaction.
// Writes go entry, book, member, in that order, so concurrent transactions lock rows alike.
type libraryTx struct {
	reader
}

var _ library.Tx = (*libraryTx)(nil) // interface compliance check

func (tx *libraryTx) GetBook(ctx context.Context, id string) (library.Book, error) {
	return tx.getBook(ctx, id)
}

func (tx *libraryTx) GetMember(ctx context.Context, id string) (library.Member, error) {
	return tx.getMember(ctx, id)
}

func (tx *libraryTx) GetBorrow(ctx context.Context, id string) (library.BorrowRecord, error) {
	return tx.getBorrow(ctx, id)
}

func (tx *libraryTx) InsertBook(ctx context.Context, book library.Book) error {
	ds := tx.dialect.Insert(booksTable).Prepared(true).Rows(bookRecord(book))
	if _, err := exec(ctx, tx.q, ds); err != nil {
		if isUniqueViolation(err) {
			return library.ErrISBNExists
		}
		return errors.Wrap(err, "inserting book")
	}
	return nil
}

// updateVersioned updates the row matching id and version, bumping the version.
func (tx *libraryTx) updateVersioned(ctx context.Context, table, id string, version int, rec goqu.Record) error {
	delete(rec, "id")
	delete(rec, "created_at")
	rec["version"] = version + 1
	ds := tx.dialect.Update(table).Prepared(true).Set(rec).
		Where(goqu.C("id").Eq(id), goqu.C("version").Eq(version))
	n, err := exec(ctx, tx.q, ds)
	if err != nil {
		return errors.Wrapf(err, "updating %s", table)
	}
	if n == 0 {
		return library.ErrConcurrencyConflict
	}
	return nil
}

func (tx *libraryTx) UpdateBook(ctx context.Context, book *library.Book) error {
	if err := tx.updateVersioned(ctx, booksTable, book.ID, book.Version, bookRecord(*book)); err != nil {
		return err
	}
	book.Version++
	return nil
}

func (tx *libraryTx) InsertMember(ctx context.Context, member library.Member) error {
	ds := tx.dialect.Insert(membersTable).Prepared(true).Rows(memberRecord(member))
	if _, err := exec(ctx, tx.q, ds); err != nil {
		return errors.Wrap(err, "inserting member")
	}
	return nil
}

func (tx *libraryTx) UpdateMember(ctx context.Context, member *library.Member) error {
	// counters are only moved by AdjustMemberCounters
	rec := goqu.Record{
		"name":             member.Name,
		"email":            member.Email,
		"max_borrow_limit": member.MaxBorrowLimit,
		"status":           string(member.Status),
		"updated_at":       member.UpdatedAt.UTC(),
	}
	if err := tx.updateVersioned(ctx, membersTable, member.ID, member.Version, rec); err != nil {
		return err
	}
	member.Version++
	return nil
}

func (tx *libraryTx) InsertBorrow(ctx context.Context, rec library.BorrowRecord) error {
	ds := tx.dialect.Insert(borrowsTable).Prepared(true).Rows(borrowRecord(rec))
	if _, err := exec(ctx, tx.q, ds); err != nil {
		return errors.Wrap(err, "inserting borrow record")
	}
	return nil
}

func (tx *libraryTx) UpdateBorrow(ctx context.Context, rec *library.BorrowRecord) error {
	if err := tx.updateVersioned(ctx, borrowsTable, rec.ID, rec.Version, borrowRecord(*rec)); err != nil {
		return err
	}
	rec.Version++
	return nil
}

func (tx *libraryTx) AdjustBookCopies(ctx context.Context, bookID string, availableDelta, borrowDelta int, now time.Time) error {
	ds := tx.dialect.Update(booksTable).Prepared(true).
		Set(goqu.Record{
			"available_copies": goqu.L("available_copies + ?", availableDelta),
			"borrow_count":     goqu.L("borrow_count + ?", borrowDelta),
			"version":          goqu.L("version + 1"),
			"updated_at":       now.UTC(),
		}).
		Where(
			goqu.C("id").Eq(bookID),
			goqu.L("available_copies + ? BETWEEN 0 AND total_copies", availableDelta),
		)
	n, err := exec(ctx, tx.q, ds)
	if err != nil {
		return errors.Wrap(err, "adjusting book copies")
	}
	if n == 0 {
		return library.ErrConcurrencyConflict
	}
	return nil
}

func (tx *libraryTx) AdjustMemberCounters(ctx context.Context, memberID string, delta library.MemberDelta, now time.Time) error {
	conds := []goqu.Expression{
		goqu.C("id").Eq(memberID),
		goqu.L("current_borrow_count + ? >= 0", delta.CurrentBorrow),
	}
	if delta.CurrentBorrow > 0 {
		conds = append(conds, goqu.L("current_borrow_count + ? <= max_borrow_limit", delta.CurrentBorrow))
	}
	ds := tx.dialect.Update(membersTable).Prepared(true).
		Set(goqu.Record{
			"current_borrow_count": goqu.L("current_borrow_count + ?", delta.CurrentBorrow),
			"total_borrow_count":   goqu.L("total_borrow_count + ?", delta.TotalBorrow),
			"overdue_count":        goqu.L("overdue_count + ?", delta.Overdue),
			"fine_amount":          goqu.L("fine_amount + ?", delta.Fine),
			"version":              goqu.L("version + 1"),
			"updated_at":           now.UTC(),
		}).
		Where(conds...)
	n, err := exec(ctx, tx.q, ds)
	if err != nil {
		return errors.Wrap(err, "adjusting member counters")
	}
	if n == 0 {
		return library.ErrConcurrencyConflict
	}
	return nil
}
