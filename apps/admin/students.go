package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core/student"
)

func (cli *commandLine) addStudent(ns student.NewStudent) error {
	if err := ns.Validate(cli.validate); err != nil {
		return cli.translate(err)
	}
	s, err := cli.studentSvc.Create(context.Background(), ns)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "student %s registered\n", s.ID)
	return nil
}

func (cli *commandLine) assessFee(id string, fee decimal.Decimal) error {
	s, err := cli.paymentSvc.AssessFee(context.Background(), id, fee)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "student %s: fee %s, paid %s, balance %s (%s)\n",
		s.ID, s.Payments.TuitionFee, s.Payments.PaidAmount, s.Payments.Balance, s.Payments.Status)
	return nil
}

// translate flattens validation errors into a single "field: message" line per field.
func (cli *commandLine) translate(err error) error {
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(vErrs))
	for _, vErr := range vErrs {
		msgs = append(msgs, vErr.Field()+": "+vErr.Translate(cli.translator))
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}
