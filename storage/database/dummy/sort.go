package dummydb

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
)

// sortBy stable-sorts items by orderings, first ordering first.
func sortBy[T any](items []T, orderings []core.DBOrdering, compare func(a, b T, field string) int) {
	for i := len(orderings) - 1; i >= 0; i-- {
		ord := orderings[i]
		sort.SliceStable(items, func(a, b int) bool {
			c := compare(items[a], items[b], ord.Field)
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		})
	}
}

func containsAny(search string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareOptTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return compareTimes(*a, *b)
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareDecimals(a, b decimal.Decimal) int {
	return a.Cmp(b)
}

func compareBooks(a, b library.Book, field string) int {
	switch field {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "author":
		return strings.Compare(a.Author, b.Author)
	case "isbn":
		return strings.Compare(a.ISBN, b.ISBN)
	case "available_copies":
		return compareInts(a.AvailableCopies, b.AvailableCopies)
	case "borrow_count":
		return compareInts(a.BorrowCount, b.BorrowCount)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
	return 0
}

func compareMembers(a, b library.Member, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "current_borrow_count":
		return compareInts(a.CurrentBorrowCount, b.CurrentBorrowCount)
	case "overdue_count":
		return compareInts(a.OverdueCount, b.OverdueCount)
	case "fine_amount":
		return compareDecimals(a.FineAmount, b.FineAmount)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
	return 0
}

func compareBorrows(a, b library.BorrowRecord, field string) int {
	switch field {
	case "borrow_date":
		return compareTimes(a.BorrowDate, b.BorrowDate)
	case "due_date":
		return compareTimes(a.DueDate, b.DueDate)
	case "return_date":
		return compareOptTimes(a.ReturnDate, b.ReturnDate)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "fine_amount":
		return compareDecimals(a.FineAmount, b.FineAmount)
	case "days_overdue":
		return compareInts(a.DaysOverdue, b.DaysOverdue)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
	return 0
}
