package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

func (svc *service) GetPaymentStatistics(ctx context.Context, filter StatsFilter) (Statistics, error) {
	txns, err := svc.QueryTransactions(ctx, QueryFilter{Window: filter.Window})
	if err != nil {
		return Statistics{}, err
	}
	return ComputeStatistics(txns), nil
}

// ComputeStatistics aggregates txns. Refunded transactions are listed but excluded from revenue,
// count, average and the per-method breakdown.
func ComputeStatistics(txns []Transaction) Statistics {
	stats := Statistics{Transactions: txns}
	if stats.Transactions == nil {
		stats.Transactions = []Transaction{}
	}

	for _, txn := range txns {
		if txn.IsRefunded() {
			stats.RefundedCount++
			stats.RefundedAmount = stats.RefundedAmount.Add(txn.Amount)
			continue
		}
		stats.TransactionCount++
		stats.TotalRevenue = stats.TotalRevenue.Add(txn.Amount)
		stats.ByMethod.add(txn.PaymentMethod, txn.Amount)
	}

	if stats.TransactionCount > 0 {
		stats.AverageTransaction = stats.TotalRevenue.DivRound(decimal.NewFromInt(int64(stats.TransactionCount)), 2)
	}
	return stats
}
