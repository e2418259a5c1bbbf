package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/maktaba/apps/api/echo"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/tests"
)

const day = 24 * time.Hour

func Test_libraryApi_access(t *testing.T) {
	f := setup(t)

	f.run(t, []httpTest{
		{name: "Auth required", path: "/v1/library/books", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "Staff required", path: "/v1/library/books", token: f.token(t, f.outsider),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{name: "Librarian", path: "/v1/library/books", token: f.token(t, f.librarian), wantData: []byte(`[]`)},
		{name: "Admin", path: "/v1/library/books", token: f.token(t, f.admin), wantData: []byte(`[]`)},
	})
}

func Test_libraryApi_books(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.librarian)

	dune := testutil.CreateBook(t, f.libSvc, "Dune", "978-0441013593", 2)
	emma := testutil.CreateBook(t, f.libSvc, "Emma", "978-0141439587", 1)

	f.run(t, []httpTest{
		{
			name: "create: required fields", method: http.MethodPost, path: "/v1/library/books", token: token,
			body:     []byte(`{"total_copies": 1}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"title": "this field is required", "isbn": "this field is required"}`),
		},
		{
			name: "create: negative copies", method: http.MethodPost, path: "/v1/library/books", token: token,
			body:     []byte(`{"title": "Ulysses", "isbn": "978-0199535675", "total_copies": -1}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "create: duplicate isbn", method: http.MethodPost, path: "/v1/library/books", token: token,
			body:     []byte(`{"title": "Dune (again)", "isbn": "978-0441013593", "total_copies": 1}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"isbn": "a book with this isbn already exists"}`),
		},
		{name: "retrieve", path: "/v1/library/books/" + dune.ID, token: token, wantData: marshalObj(t, dune)},
		{
			name: "retrieve: unknown", path: "/v1/library/books/nope", token: token,
			wantCode: http.StatusNotFound, wantData: []byte(`{"error": "book not found"}`),
		},
		{name: "query: all", path: "/v1/library/books", token: token, wantData: marshalObj(t, []library.Book{dune, emma})},
		{name: "query: search", path: "/v1/library/books?search=EMM", token: token, wantData: marshalObj(t, []library.Book{emma})},
		{
			name: "query: ordering", path: "/v1/library/books?ordering=-title", token: token,
			wantData: marshalObj(t, []library.Book{emma, dune}),
		},
		{
			name: "status: invalid", method: http.MethodPut, path: "/v1/library/books/" + dune.ID + "/status", token: token,
			body: []byte(`{"status": "SHREDDED"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status": "invalid status"}`),
		},
	})

	t.Run("create", func(t *testing.T) {
		body := []byte(`{"title": "Ulysses", "author": "James Joyce", "isbn": "978-0199535675", "total_copies": 3}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/books", token, body)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var book library.Book
		decode(t, rec, &book)
		assert.Equal(t, "Ulysses", book.Title)
		assert.Equal(t, 3, book.TotalCopies)
		assert.Equal(t, 3, book.AvailableCopies)
		assert.Equal(t, library.BookAvailable, book.Status)
	})

	t.Run("copies cannot drop below copies on loan", func(t *testing.T) {
		member := testutil.CreateMember(t, f.libSvc, "Amani", "", 3)
		testutil.Borrow(t, f.libSvc, member.ID, dune.ID, 7)
		testutil.Borrow(t, f.libSvc, member.ID, dune.ID, 7)

		req, rec := newAuthRequest(http.MethodPut, "/v1/library/books/"+dune.ID+"/copies", token, []byte(`{"total_copies": 1}`))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodPut, "/v1/library/books/"+dune.ID+"/copies", token, []byte(`{"total_copies": 5}`))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var book library.Book
		decode(t, rec, &book)
		assert.Equal(t, 5, book.TotalCopies)
		assert.Equal(t, 3, book.AvailableCopies)
	})
}

func Test_libraryApi_members(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.librarian)

	amani := testutil.CreateMember(t, f.libSvc, "Amani", "amani@school.cd", 2)

	f.run(t, []httpTest{
		{
			name: "create: name required", method: http.MethodPost, path: "/v1/library/members", token: token,
			body: []byte(`{"email": "x@school.cd"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "this field is required"}`),
		},
		{name: "retrieve", path: "/v1/library/members/" + amani.ID, token: token, wantData: marshalObj(t, amani)},
		{
			name: "retrieve: unknown", path: "/v1/library/members/nope", token: token,
			wantCode: http.StatusNotFound, wantData: []byte(`{"error": "member not found"}`),
		},
		{
			name: "borrows: unknown member", path: "/v1/library/members/nope/borrows", token: token,
			wantCode: http.StatusNotFound, wantData: []byte(`{"error": "member not found"}`),
		},
		{name: "borrows: none yet", path: "/v1/library/members/" + amani.ID + "/borrows", token: token, wantData: []byte(`[]`)},
	})

	t.Run("create uses the default borrow limit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/members", token, []byte(`{"name": " Baraka ", "email": "Baraka@School.cd"}`))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var member library.Member
		decode(t, rec, &member)
		assert.Equal(t, "Baraka", member.Name)
		assert.Equal(t, "baraka@school.cd", member.Email)
		assert.Equal(t, f.conf.Library.DefaultBorrowLimit, member.MaxBorrowLimit)
		assert.Equal(t, library.MemberActive, member.Status)
	})

	t.Run("suspended members cannot borrow", func(t *testing.T) {
		book := testutil.CreateBook(t, f.libSvc, "Dune", "978-0441013593", 1)

		req, rec := newAuthRequest(http.MethodPut, "/v1/library/members/"+amani.ID+"/status", token, []byte(`{"status": "SUSPENDED"}`))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := marshalObj(t, library.NewBorrow{MemberID: amani.ID, BookID: book.ID})
		req, rec = newAuthRequest(http.MethodPost, "/v1/library/borrows", token, body)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		ok, err := jsonBytesEqual(rec.Body.Bytes(), []byte(`{"error": "member is not active"}`))
		require.NoError(t, err)
		assert.True(t, ok, rec.Body.String())
	})
}

func Test_libraryApi_circulation(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.librarian)

	book := testutil.CreateBook(t, f.libSvc, "Dune", "978-0441013593", 1)
	member := testutil.CreateMember(t, f.libSvc, "Amani", "amani@school.cd", 1)

	var rec library.BorrowRecord
	t.Run("borrow", func(t *testing.T) {
		body := []byte(`{"member_id": "` + member.ID + `", "book_id": "` + book.ID + `", "borrow_days": 7}`)
		req, res := newAuthRequest(http.MethodPost, "/v1/library/borrows", token, body)
		f.app.ServeHTTP(res, req)
		require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

		decode(t, res, &rec)
		assert.Equal(t, library.StatusIssued, rec.Status)
		assert.True(t, rec.DueDate.Equal(t0.Add(7*day)))
	})

	f.run(t, []httpTest{
		{
			name: "borrow: limit reached", method: http.MethodPost, path: "/v1/library/borrows", token: token,
			body:     marshalObj(t, library.NewBorrow{MemberID: member.ID, BookID: book.ID}),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"error": "member has reached their borrow limit"}`),
		},
		{
			name: "borrow: unknown member", method: http.MethodPost, path: "/v1/library/borrows", token: token,
			body:     marshalObj(t, library.NewBorrow{MemberID: "nope", BookID: book.ID}),
			wantCode: http.StatusNotFound, wantData: []byte(`{"error": "member not found"}`),
		},
		{
			name: "borrow: missing ids", method: http.MethodPost, path: "/v1/library/borrows", token: token,
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"member_id": "this field is required", "book_id": "this field is required"}`),
		},
		{
			name: "borrow: unknown record", path: "/v1/library/borrows/nope", token: token,
			wantCode: http.StatusNotFound, wantData: []byte(`{"error": "borrow record not found"}`),
		},
		{
			name: "damaged: description required", method: http.MethodPost, path: "/v1/library/borrows/" + rec.ID + "/damaged",
			token: token, body: []byte(`{"damage_description": "  "}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"damage_description": "this field is required"}`),
		},
	})

	t.Run("renew", func(t *testing.T) {
		req, res := newAuthRequest(http.MethodPost, "/v1/library/borrows/"+rec.ID+"/renew", token)
		f.app.ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())

		var renewed library.BorrowRecord
		decode(t, res, &renewed)
		assert.Equal(t, 1, renewed.RenewalCount)
		assert.True(t, renewed.IsRenewed)
		require.NotNil(t, renewed.OriginalDueDate)
		assert.True(t, renewed.OriginalDueDate.Equal(rec.DueDate))
		assert.True(t, renewed.DueDate.Equal(t0.Add(time.Duration(f.conf.Library.RenewalDays)*day)))
		rec = renewed
	})

	t.Run("return late", func(t *testing.T) {
		f.clock.Set(rec.DueDate.Add(3*day - time.Hour))

		req, res := newAuthRequest(http.MethodPost, "/v1/library/borrows/"+rec.ID+"/return", token, []byte(`{"returned_by": "front desk"}`))
		f.app.ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())

		var returned library.BorrowRecord
		decode(t, res, &returned)
		assert.Equal(t, library.StatusReturned, returned.Status)
		assert.Equal(t, 3, returned.DaysOverdue)
		assert.True(t, returned.FineAmount.Equal(decimal.NewFromInt(3)), returned.FineAmount.String())
		assert.Equal(t, "front desk", returned.ReturnedBy)
	})

	f.run(t, []httpTest{
		{
			name: "return twice", method: http.MethodPost, path: "/v1/library/borrows/" + rec.ID + "/return", token: token,
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"error": "book already returned"}`),
		},
		{
			name: "renew a returned borrow", method: http.MethodPost, path: "/v1/library/borrows/" + rec.ID + "/renew", token: token,
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"error": "only issued or overdue borrows can be renewed"}`),
		},
		{
			name: "lose a returned borrow", method: http.MethodPost, path: "/v1/library/borrows/" + rec.ID + "/lost", token: token,
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"error": "book already returned"}`),
		},
	})

	t.Run("member counters", func(t *testing.T) {
		req, res := newAuthRequest(http.MethodGet, "/v1/library/members/"+member.ID, token)
		f.app.ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code)

		var m library.Member
		decode(t, res, &m)
		assert.Equal(t, 0, m.CurrentBorrowCount)
		assert.Equal(t, 1, m.TotalBorrowCount)
		assert.True(t, m.FineAmount.Equal(decimal.NewFromInt(3)), m.FineAmount.String())
	})
}

func Test_libraryApi_lostAndDamaged(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.librarian)

	book := testutil.CreateBook(t, f.libSvc, "Dune", "978-0441013593", 2)
	member := testutil.CreateMember(t, f.libSvc, "Amani", "", 2)
	lost := testutil.Borrow(t, f.libSvc, member.ID, book.ID, 7)
	damaged := testutil.Borrow(t, f.libSvc, member.ID, book.ID, 7)

	req, res := newAuthRequest(http.MethodPost, "/v1/library/borrows/"+lost.ID+"/lost", token, []byte(`{"notes": "left on the bus"}`))
	f.app.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var rec library.BorrowRecord
	decode(t, res, &rec)
	assert.Equal(t, library.StatusLost, rec.Status)
	assert.True(t, rec.FineAmount.Equal(f.conf.Library.LostReplacementCost))

	req, res = newAuthRequest(http.MethodPost, "/v1/library/borrows/"+damaged.ID+"/damaged", token, []byte(`{"damage_description": "coffee stains"}`))
	f.app.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	decode(t, res, &rec)
	assert.Equal(t, library.StatusDamaged, rec.Status)
	assert.Equal(t, "coffee stains", rec.DamageDescription)
	assert.True(t, rec.FineAmount.Equal(f.conf.Library.DamageCost))

	f.run(t, []httpTest{
		{
			name: "lost is terminal", method: http.MethodPost, path: "/v1/library/borrows/" + lost.ID + "/return", token: token,
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"error": "borrow record is closed"}`),
		},
		{
			name: "damaged is terminal", method: http.MethodPost, path: "/v1/library/borrows/" + damaged.ID + "/lost", token: token,
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"error": "borrow record is closed"}`),
		},
	})
}

func Test_libraryApi_ledger(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.librarian)

	book := testutil.CreateBook(t, f.libSvc, "Dune", "978-0441013593", 3)
	amani := testutil.CreateMember(t, f.libSvc, "Amani", "", 3)
	baraka := testutil.CreateMember(t, f.libSvc, "Baraka", "", 3)

	early := testutil.Borrow(t, f.libSvc, amani.ID, book.ID, 3)
	f.clock.Advance(time.Hour)
	late := testutil.Borrow(t, f.libSvc, amani.ID, book.ID, 20)
	f.clock.Advance(time.Hour)
	other := testutil.Borrow(t, f.libSvc, baraka.ID, book.ID, 10)

	// only `early` is past due
	f.clock.Set(t0.Add(5 * day))

	path := func(params url.Values) string { return "/v1/library/borrows?" + params.Encode() }

	t.Run("sweep requires an admin", func(t *testing.T) {
		req, res := newAuthRequest(http.MethodPost, "/v1/library/borrows/sweep", token)
		f.app.ServeHTTP(res, req)
		assert.Equal(t, http.StatusForbidden, res.Code)
	})

	t.Run("sweep", func(t *testing.T) {
		req, res := newAuthRequest(http.MethodPost, "/v1/library/borrows/sweep", f.token(t, f.admin))
		f.app.ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())

		var report library.SweepReport
		decode(t, res, &report)
		assert.Equal(t, 1, report.Scanned)
		assert.Equal(t, 1, report.Marked)
		assert.Equal(t, 0, report.Failed)
		assert.True(t, report.FinesCharged.Equal(decimal.NewFromInt(2)), report.FinesCharged.String())
	})

	early, err := f.libSvc.GetBorrow(context.Background(), early.ID)
	require.NoError(t, err)

	f.run(t, []httpTest{
		{
			name: "status filter", path: path(url.Values{"status": {"overdue"}}), token: token,
			wantData: marshalObj(t, []library.BorrowRecord{early}),
		},
		{
			name: "status filter: several", path: path(url.Values{"status": {"overdue,issued"}, "ordering": {"borrow_date"}}),
			token: token, wantData: marshalObj(t, []library.BorrowRecord{early, late, other}),
		},
		{
			name: "status filter: invalid", path: path(url.Values{"status": {"burnt"}}), token: token,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"status": "invalid status"}`),
		},
		{
			name: "member filter", path: path(url.Values{"member_id": {baraka.ID}}), token: token,
			wantData: marshalObj(t, []library.BorrowRecord{other}),
		},
		{
			name: "due window", token: token,
			path: path(url.Values{
				"due_after":  {t0.Add(4 * day).Format(time.RFC3339)},
				"due_before": {t0.Add(15 * day).Format(time.RFC3339)},
			}),
			wantData: marshalObj(t, []library.BorrowRecord{other}),
		},
		{
			name: "due window: bad time", path: path(url.Values{"due_before": {"tomorrow"}}), token: token,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"due_before": "invalid time, use RFC 3339"}`),
		},
		{
			name: "by member, latest first", path: "/v1/library/members/" + amani.ID + "/borrows", token: token,
			wantData: marshalObj(t, []library.BorrowRecord{late, early}),
		},
		{
			name: "by book, latest first", path: "/v1/library/books/" + book.ID + "/borrows", token: token,
			wantData: marshalObj(t, []library.BorrowRecord{other, late, early}),
		},
	})

	t.Run("stats", func(t *testing.T) {
		req, res := newAuthRequest(http.MethodGet, "/v1/library/borrows/stats", token)
		f.app.ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())

		var stats []library.StatusStats
		decode(t, res, &stats)
		require.Len(t, stats, len(library.BorrowStatuses))
		counts := make(map[library.BorrowStatus]int, len(stats))
		for i, s := range stats {
			assert.Equal(t, library.BorrowStatuses[i], s.Status)
			counts[s.Status] = s.Count
		}
		assert.Equal(t, 2, counts[library.StatusIssued])
		assert.Equal(t, 1, counts[library.StatusOverdue])
		assert.Equal(t, 0, counts[library.StatusReturned])
	})
}

// conflictingService fails every lookup with a concurrency conflict.
type conflictingService struct {
	library.Service
}

func (conflictingService) GetBook(context.Context, string) (library.Book, error) {
	return library.Book{}, library.ErrConcurrencyConflict
}

func Test_libraryApi_conflict(t *testing.T) {
	f := setup(t, func(opts *Options) {
		opts.LibrarySvc = conflictingService{opts.LibrarySvc}
	})

	f.run(t, []httpTest{
		{
			name: "conflict", path: "/v1/library/books/any", token: f.token(t, f.librarian),
			wantCode: http.StatusConflict, wantData: []byte(`{"error": "record was modified concurrently, please retry"}`),
		},
	})
}
