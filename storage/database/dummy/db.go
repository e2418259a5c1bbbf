// Package dummydb is an in-memory storage, used for tests and demos.
package dummydb

import (
	"sync"

	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/user"
)

// DB is an in-memory database. A library transaction holds the write lock from start to end.
type DB struct {
	mu    sync.RWMutex
	users *userTable
	lib   *libraryTables
}

type userTable struct {
	rows  map[string]user.User
	order []string
}

type libraryTables struct {
	books       map[string]library.Book
	bookOrder   []string
	members     map[string]library.Member
	memberOrder []string
	borrows     map[string]library.BorrowRecord
	borrowOrder []string
}

func Open() *DB {
	return &DB{
		users: &userTable{rows: make(map[string]user.User)},
		lib: &libraryTables{
			books:   make(map[string]library.Book),
			members: make(map[string]library.Member),
			borrows: make(map[string]library.BorrowRecord),
		},
	}
}

// clone returns a working copy that a transaction can write to.
func (t *libraryTables) clone() *libraryTables {
	c := &libraryTables{
		books:       make(map[string]library.Book, len(t.books)),
		bookOrder:   append([]string(nil), t.bookOrder...),
		members:     make(map[string]library.Member, len(t.members)),
		memberOrder: append([]string(nil), t.memberOrder...),
		borrows:     make(map[string]library.BorrowRecord, len(t.borrows)),
		borrowOrder: append([]string(nil), t.borrowOrder...),
	}
	for k, v := range t.books {
		c.books[k] = v
	}
	for k, v := range t.members {
		c.members[k] = v
	}
	for k, v := range t.borrows {
		c.borrows[k] = v
	}
	return c
}
