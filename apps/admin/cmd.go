package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/user"
	"github.com/trezcool/maktaba/storage/database"
)

var (
	gooseRunFunc     = database.Migrate // mockable
	readPasswordFunc = term.ReadPassword // mockable

	errHelp          = errors.New("help provided")
	errEmptyPassword = errors.New("password cannot be empty")
)

type commandLine struct {
	out        io.Writer
	db         *sql.DB
	engine     string
	usrSvc     user.Service
	sweeper    *library.Sweeper
	validate   *validator.Validate
	translator ut.Translator
}

func newCommandLine(out io.Writer) *commandLine {
	cli := &commandLine{
		out:        out,
		validate:   validator.New(),
		translator: core.NewTranslator(),
	}
	core.InitValidators(cli.validate, cli.translator)
	user.InitValidators(cli.validate, cli.translator)
	return cli
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 0 {
		args = args[1:] // drop program name
	}
	root.SetArgs(args)
	return root.Execute()
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Maktaba administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	root.AddCommand(cli.migrateCmd(), cli.addUserCmd(), cli.resetPasswordCmd(), cli.sweepCmd())
	return root
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, down, status, version, ...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return errHelp
			}
			return gooseRunFunc(cli.db, cli.engine, args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var nu user.NewUser
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a staff account. The password is prompted next, twice.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.promptPassword("Enter password:")
			if err != nil {
				return err
			}
			confirm, err := cli.promptPassword("Confirm password:")
			if err != nil {
				return err
			}
			nu.Password, nu.PasswordConfirm = pwd, confirm
			if nu.Name == "" {
				nu.Name = nu.Username
			}
			if err = nu.Validate(cli.validate, cli.usrSvc); err != nil {
				return cli.explain(err)
			}
			usr, err := cli.usrSvc.Create(nu)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.out, "created user %s (%s)\n", usr.Username, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&nu.Username, "username", "", "the user's username")
	cmd.Flags().StringVar(&nu.Email, "email", "", "the user's email")
	cmd.Flags().StringVar(&nu.Name, "name", "", "the user's name (defaults to the username)")
	cmd.Flags().StringSliceVar(&nu.Roles, "role", []string{user.RoleLibrarian}, "the user's roles")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password. The password is prompted next.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			usr, err := cli.usrSvc.GetByUsernameOrEmail(uname)
			if err != nil {
				return err
			}
			pwd, err := cli.promptPassword("Enter password:")
			if err != nil {
				return err
			}
			return cli.usrSvc.ResetPassword(usr.ID, pwd)
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "the user's username or email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (cli *commandLine) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark overdue borrows and charge their fines, once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := cli.sweeper.Sweep(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cli.out, report.String())
			return nil
		},
	}
}

func (cli *commandLine) promptPassword(prompt string) (string, error) {
	_, _ = fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}

// explain turns validation errors into a readable error.
func (cli *commandLine) explain(err error) error {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		return fmt.Errorf("%s: %s", vErrs[0].Field(), vErrs[0].Translate(cli.translator))
	}
	return err
}
