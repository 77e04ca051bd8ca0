package payment

import (
	"context"
	"io"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/student"
	"github.com/trezcool/bursar/fs"
)

var templates = template.Must(template.ParseFS(appfs.FS, "templates/*.txt"))

type (
	ReceiptStudent struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Class      string `json:"class"`
		Department string `json:"department"`
	}

	ReceiptPayment struct {
		Amount      decimal.Decimal `json:"amount"`
		Method      Method          `json:"method"`
		Reference   string          `json:"reference"`
		Description string          `json:"description"`
	}

	// Receipt is a point-in-time snapshot of a transaction. Balance is the student's balance when the
	// receipt is generated, not the balance right after the transaction.
	Receipt struct {
		ReceiptNumber string          `json:"receiptNumber"`
		Date          core.Date       `json:"date"`
		Student       ReceiptStudent  `json:"student"`
		Payment       ReceiptPayment  `json:"payment"`
		Balance       decimal.Decimal `json:"balance"`
		ProcessedBy   string          `json:"processedBy"`
		Status        Status          `json:"status"`
	}
)

// Render writes the printable text version of the receipt.
func (r Receipt) Render(w io.Writer) error {
	return templates.ExecuteTemplate(w, "receipt.txt", r)
}

func (svc *service) GenerateReceipt(ctx context.Context, id string) (Receipt, error) {
	txn, err := svc.repo.GetTransaction(ctx, core.CleanString(id))
	if err != nil {
		return Receipt{}, err
	}
	s, err := svc.repo.GetStudent(ctx, txn.StudentID)
	if err != nil {
		return Receipt{}, err
	}
	return newReceipt(txn, s), nil
}

func newReceipt(txn Transaction, s student.Student) Receipt {
	r := Receipt{
		ReceiptNumber: txn.ReceiptNumber,
		Date:          core.DateOf(txn.ProcessedAt),
		Student: ReceiptStudent{
			ID:         s.ID,
			Name:       s.Name,
			Class:      s.Class,
			Department: s.Department,
		},
		Payment: ReceiptPayment{
			Amount:      txn.Amount,
			Method:      txn.PaymentMethod,
			Reference:   txn.Reference,
			Description: txn.Description,
		},
		ProcessedBy: txn.ProcessedBy,
		Status:      txn.Status,
	}
	if s.Payments != nil {
		r.Balance = s.Payments.Balance
	}
	return r
}
