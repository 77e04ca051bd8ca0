package main

import (
	"context"
	"fmt"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
)

// reconcile prints one line per student and the diff of every drifted projection.
func (cli *commandLine) reconcile(studentID string, fix bool) error {
	ctx := context.Background()
	studentID = core.CleanString(studentID)

	var recs []payment.Reconciliation
	if studentID != "" && !fix {
		rec, err := cli.paymentSvc.Reconcile(ctx, studentID)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	} else {
		all, err := cli.paymentSvc.ReconcileAll(ctx, fix)
		if err != nil {
			return err
		}
		for _, rec := range all {
			if studentID == "" || rec.StudentID == studentID {
				recs = append(recs, rec)
			}
		}
	}

	drifted := 0
	for _, rec := range recs {
		switch {
		case rec.Consistent:
			fmt.Fprintf(cli.out, "%s: ok\n", rec.StudentID)
		case rec.Fixed:
			drifted++
			fmt.Fprintf(cli.out, "%s: fixed\n%s", rec.StudentID, rec.Diff())
		default:
			drifted++
			fmt.Fprintf(cli.out, "%s: drifted\n%s", rec.StudentID, rec.Diff())
		}
	}
	fmt.Fprintf(cli.out, "%d student(s) checked, %d drifted\n", len(recs), drifted)
	return nil
}
