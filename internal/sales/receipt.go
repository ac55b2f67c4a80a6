package sales

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var receiptPrinter = message.NewPrinter(language.French)

// FormatReceiptTotal renders a sale total the way it appears on the printed
// ticket, with French digit grouping and two decimals.
func FormatReceiptTotal(total decimal.Decimal) string {
	return receiptPrinter.Sprintf("%v €", number.Decimal(total.InexactFloat64(), number.Scale(2)))
}
