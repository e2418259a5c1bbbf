package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.Create(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateBook(t *testing.T, svc library.Service, title, isbn string, copies int) library.Book {
	t.Helper()
	book, err := svc.CreateBook(context.Background(), library.NewBook{
		Title:       title,
		Author:      "Anonymous",
		ISBN:        isbn,
		TotalCopies: copies,
	})
	if err != nil {
		t.Fatalf("CreateBook() failed: %v", err)
	}
	return book
}

func CreateMember(t *testing.T, svc library.Service, name, email string, limit int) library.Member {
	t.Helper()
	member, err := svc.CreateMember(context.Background(), library.NewMember{
		Name:           name,
		Email:          email,
		MaxBorrowLimit: limit,
	})
	if err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}
	return member
}

func Borrow(t *testing.T, svc library.Service, memberID, bookID string, days int) library.BorrowRecord {
	t.Helper()
	rec, err := svc.Borrow(context.Background(), library.NewBorrow{
		MemberID:   memberID,
		BookID:     bookID,
		BorrowDays: days,
	})
	if err != nil {
		t.Fatalf("Borrow() failed: %v", err)
	}
	return rec
}
