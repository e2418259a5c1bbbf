package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core/library"
)

type libraryApi struct {
	svc      library.Service
	sweeper  *library.Sweeper
	validate *validator.Validate
}

func registerLibraryAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *libraryApi) {
	lg := g.Group("/library", jwt, staffMiddleware())

	bg := lg.Group("/books")
	bg.POST("", api.createBook)
	bg.GET("", api.queryBooks)
	bg.GET("/:id", api.retrieveBook)
	bg.PUT("/:id/copies", api.setBookCopies)
	bg.PUT("/:id/status", api.setBookStatus)
	bg.GET("/:id/borrows", api.bookBorrows)

	mg := lg.Group("/members")
	mg.POST("", api.createMember)
	mg.GET("", api.queryMembers)
	mg.GET("/:id", api.retrieveMember)
	mg.PUT("/:id/status", api.setMemberStatus)
	mg.GET("/:id/borrows", api.memberBorrows)

	cg := lg.Group("/borrows")
	cg.POST("", api.borrow)
	cg.GET("", api.queryBorrows)
	cg.GET("/stats", api.stats)
	cg.POST("/sweep", api.sweep, adminMiddleware())
	cg.GET("/:id", api.retrieveBorrow)
	cg.POST("/:id/return", api.returnBorrow)
	cg.POST("/:id/renew", api.renew)
	cg.POST("/:id/lost", api.markLost)
	cg.POST("/:id/damaged", api.markDamaged)
}

// Books

func (api *libraryApi) createBook(ctx echo.Context) error {
	var data library.NewBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBook")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	book, err := api.svc.CreateBook(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating book")
	}
	return ctx.JSON(http.StatusCreated, book)
}

func (api *libraryApi) queryBooks(ctx echo.Context) error {
	filter := new(library.BookFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []library.Book{})
	}
	filter.Clean()

	books, err := api.svc.QueryBooks(ctx.Request().Context(), filter, bindOrderings(ctx, library.BookOrderings))
	if err != nil {
		return errors.Wrap(err, "querying books")
	}
	return ctx.JSON(http.StatusOK, books)
}

func (api *libraryApi) retrieveBook(ctx echo.Context) error {
	book, err := api.svc.GetBook(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting book")
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *libraryApi) setBookCopies(ctx echo.Context) error {
	var data library.UpdateCopies
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCopies")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	book, err := api.svc.SetBookCopies(ctx.Request().Context(), ctx.Param("id"), data.TotalCopies)
	if err != nil {
		return errors.Wrap(err, "setting book copies")
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *libraryApi) setBookStatus(ctx echo.Context) error {
	var data library.UpdateBookStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBookStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	book, err := api.svc.SetBookStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "setting book status")
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *libraryApi) bookBorrows(ctx echo.Context) error {
	recs, err := api.svc.BorrowsByBook(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing book borrows")
	}
	return ctx.JSON(http.StatusOK, recs)
}

// Members

func (api *libraryApi) createMember(ctx echo.Context) error {
	var data library.NewMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMember")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	member, err := api.svc.CreateMember(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating member")
	}
	return ctx.JSON(http.StatusCreated, member)
}

func (api *libraryApi) queryMembers(ctx echo.Context) error {
	filter := new(library.MemberFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []library.Member{})
	}
	filter.Clean()

	members, err := api.svc.QueryMembers(ctx.Request().Context(), filter, bindOrderings(ctx, library.MemberOrderings))
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *libraryApi) retrieveMember(ctx echo.Context) error {
	member, err := api.svc.GetMember(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting member")
	}
	return ctx.JSON(http.StatusOK, member)
}

func (api *libraryApi) setMemberStatus(ctx echo.Context) error {
	var data library.UpdateMemberStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMemberStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	member, err := api.svc.SetMemberStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "setting member status")
	}
	return ctx.JSON(http.StatusOK, member)
}

func (api *libraryApi) memberBorrows(ctx echo.Context) error {
	recs, err := api.svc.BorrowsByMember(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing member borrows")
	}
	return ctx.JSON(http.StatusOK, recs)
}

// Circulation

func (api *libraryApi) borrow(ctx echo.Context) error {
	var data library.NewBorrow
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBorrow")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Borrow(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "borrowing book")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *libraryApi) queryBorrows(ctx echo.Context) error {
	filter, err := bindBorrowFilter(ctx)
	if err != nil {
		return err
	}

	recs, err := api.svc.QueryBorrows(ctx.Request().Context(), filter, bindOrderings(ctx, library.BorrowOrderings))
	if err != nil {
		return errors.Wrap(err, "querying borrows")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *libraryApi) stats(ctx echo.Context) error {
	filter, err := bindBorrowFilter(ctx)
	if err != nil {
		return err
	}

	stats, err := api.svc.Stats(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "computing borrow stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *libraryApi) retrieveBorrow(ctx echo.Context) error {
	rec, err := api.svc.GetBorrow(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting borrow")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *libraryApi) returnBorrow(ctx echo.Context) error {
	var data library.ReturnBorrow
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReturnBorrow")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Return(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "returning book")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *libraryApi) renew(ctx echo.Context) error {
	var data library.RenewBorrow
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RenewBorrow")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Renew(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "renewing borrow")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *libraryApi) markLost(ctx echo.Context) error {
	var data library.LostReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LostReport")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.MarkLost(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "marking borrow lost")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *libraryApi) markDamaged(ctx echo.Context) error {
	var data library.DamageReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DamageReport")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.MarkDamaged(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "marking borrow damaged")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *libraryApi) sweep(ctx echo.Context) error {
	if api.sweeper == nil {
		return echo.ErrNotFound
	}
	report, err := api.sweeper.Sweep(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "sweeping overdue borrows")
	}
	return ctx.JSON(http.StatusOK, report)
}
