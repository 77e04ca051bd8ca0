package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
)

var (
	errHelp        = errors.New("help provided")
	errNotPostgres = errors.New("migrations only run against a postgres database")
)

type commandLine struct {
	conf       *core.Config
	db         *sql.DB // nil unless the postgres engine is configured
	studentSvc student.Service
	paymentSvc payment.Service
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  addstudent -id ID -name NAME [-class CLASS] [-department DEPT] [-email EMAIL] [-fee AMOUNT] - register a student")
	fmt.Fprintln(cli.out, "  assessfee -id ID -fee AMOUNT - set the tuition fee of a student")
	fmt.Fprintln(cli.out, "  reconcile [-student ID] [-fix] - compare stored balances with the ledger")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose command against the postgres database")
	fmt.Fprintln(cli.out, "  token -username USERNAME -roles admin,accountant,secretary - issue an API token")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addStudentCmd := cli.newFlagSet("addstudent")
	addStudentID := addStudentCmd.String("id", "", "The student's id (letters, digits, dashes and underscores).")
	addStudentName := addStudentCmd.String("name", "", "The student's full name.")
	addStudentClass := addStudentCmd.String("class", "", "The student's class.")
	addStudentDept := addStudentCmd.String("department", "", "The student's department.")
	addStudentEmail := addStudentCmd.String("email", "", "The guardian's email, used for reminders.")
	addStudentFee := addStudentCmd.String("fee", "", "The tuition fee; leave empty to assess it later.")

	assessFeeCmd := cli.newFlagSet("assessfee")
	assessFeeID := assessFeeCmd.String("id", "", "The student's id.")
	assessFeeAmount := assessFeeCmd.String("fee", "", "The new tuition fee.")

	reconcileCmd := cli.newFlagSet("reconcile")
	reconcileStudent := reconcileCmd.String("student", "", "Only report this student.")
	reconcileFix := reconcileCmd.Bool("fix", false, "Rewrite drifted balances from the ledger.")

	tokenCmd := cli.newFlagSet("token")
	tokenUname := tokenCmd.String("username", "", "The name recorded as processedBy/refundedBy.")
	tokenRoles := tokenCmd.String("roles", "", "Comma separated roles.")

	switch args[1] {
	case "addstudent":
		if err := addStudentCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addStudentID == "" || *addStudentName == "" {
			addStudentCmd.Usage()
			return errHelp
		}
		ns := student.NewStudent{
			ID:         *addStudentID,
			Name:       *addStudentName,
			Class:      *addStudentClass,
			Department: *addStudentDept,
			Email:      *addStudentEmail,
		}
		if *addStudentFee != "" {
			fee, err := decimal.NewFromString(*addStudentFee)
			if err != nil {
				return fmt.Errorf("invalid fee %q", *addStudentFee)
			}
			ns.TuitionFee = &fee
		}
		return cli.addStudent(ns)

	case "assessfee":
		if err := assessFeeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *assessFeeID == "" || *assessFeeAmount == "" {
			assessFeeCmd.Usage()
			return errHelp
		}
		fee, err := decimal.NewFromString(*assessFeeAmount)
		if err != nil {
			return fmt.Errorf("invalid fee %q", *assessFeeAmount)
		}
		return cli.assessFee(*assessFeeID, fee)

	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.reconcile(*reconcileStudent, *reconcileFix)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *tokenUname == "" || *tokenRoles == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenUname, strings.Split(*tokenRoles, ","))

	default:
		cli.printUsage()
		return errHelp
	}
}
