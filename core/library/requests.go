package library

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktaba/core"
)

type (
	NewBook struct {
		Title       string     `json:"title" validate:"required,notblank,max=255"`
		Author      string     `json:"author" validate:"max=255"`
		ISBN        string     `json:"isbn" validate:"required,notblank,max=20"`
		TotalCopies int        `json:"total_copies" validate:"min=0"`
		Status      BookStatus `json:"status" validate:"omitempty,bookstatus"`
	}

	UpdateCopies struct {
		TotalCopies int `json:"total_copies" validate:"min=0"`
	}

	UpdateBookStatus struct {
		Status BookStatus `json:"status" validate:"required,bookstatus"`
	}

	NewMember struct {
		Name           string `json:"name" validate:"required,notblank,max=255"`
		Email          string `json:"email" validate:"omitempty,email"`
		MaxBorrowLimit int    `json:"max_borrow_limit" validate:"omitempty,min=1"`
	}

	UpdateMemberStatus struct {
		Status MemberStatus `json:"status" validate:"required,memberstatus"`
	}

	// NewBorrow lends BookID to MemberID. DueDate wins over BorrowDays;
	// the default loan period applies when neither is set.
	NewBorrow struct {
		MemberID   string     `json:"member_id" validate:"required"`
		BookID     string     `json:"book_id" validate:"required"`
		DueDate    *time.Time `json:"due_date"`
		BorrowDays int        `json:"borrow_days" validate:"omitempty,min=1"`
		Notes      string     `json:"notes"`
	}

	ReturnBorrow struct {
		ReturnedBy string `json:"returned_by"`
		Notes      string `json:"notes"`
	}

	// RenewBorrow extends a loan to NewDueDate, or by the renewal period if unset.
	RenewBorrow struct {
		NewDueDate *time.Time `json:"new_due_date"`
	}

	LostReport struct {
		Notes string `json:"notes"`
	}

	DamageReport struct {
		Description string `json:"damage_description" validate:"required,notblank"`
		Notes       string `json:"notes"`
	}
)

func (nb *NewBook) Validate(validate *validator.Validate) error {
	nb.Title = core.CleanString(nb.Title)
	nb.Author = core.CleanString(nb.Author)
	nb.ISBN = core.CleanString(nb.ISBN)
	return validate.Struct(nb)
}

func (uc *UpdateCopies) Validate(validate *validator.Validate) error {
	return validate.Struct(uc)
}

func (us *UpdateBookStatus) Validate(validate *validator.Validate) error {
	return validate.Struct(us)
}

func (nm *NewMember) Validate(validate *validator.Validate) error {
	nm.Name = core.CleanString(nm.Name)
	nm.Email = core.CleanString(nm.Email, true /* lower */)
	return validate.Struct(nm)
}

func (us *UpdateMemberStatus) Validate(validate *validator.Validate) error {
	return validate.Struct(us)
}

func (nb *NewBorrow) Validate(validate *validator.Validate) error {
	nb.MemberID = core.CleanString(nb.MemberID)
	nb.BookID = core.CleanString(nb.BookID)
	nb.Notes = core.CleanString(nb.Notes)
	return validate.Struct(nb)
}

func (rb *ReturnBorrow) Validate(validate *validator.Validate) error {
	rb.ReturnedBy = core.CleanString(rb.ReturnedBy)
	rb.Notes = core.CleanString(rb.Notes)
	return validate.Struct(rb)
}

func (rb *RenewBorrow) Validate(validate *validator.Validate) error {
	return validate.Struct(rb)
}

func (lr *LostReport) Validate(validate *validator.Validate) error {
	lr.Notes = core.CleanString(lr.Notes)
	return validate.Struct(lr)
}

func (dr *DamageReport) Validate(validate *validator.Validate) error {
	dr.Description = core.CleanString(dr.Description)
	dr.Notes = core.CleanString(dr.Notes)
	return validate.Struct(dr)
}
