package core

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places amounts are stored with.
const MoneyPlaces = 2

// maxMoney bounds amounts to what a NUMERIC(14, 2) column holds.
var maxMoney = decimal.New(1, 12)

// IsMoney reports whether d can be stored as is: at most MoneyPlaces decimal places, below 10^12 in absolute value.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces)) && d.Abs().LessThan(maxMoney)
}
