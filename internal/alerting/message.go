package alerting

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"price-watch/internal/fetcher"
	"price-watch/internal/storage"
)

var amountPrinter = message.NewPrinter(language.English)

// PriceDrop renders the notification for an alert whose target was met by best.
func PriceDrop(alert storage.Alert, best fetcher.Quote, currency string) Message {
	builder := strings.Builder{}
	builder.WriteString("Price Alert Triggered!\n\n")
	builder.WriteString(fmt.Sprintf("Product: %s\n", alert.Query))
	builder.WriteString(fmt.Sprintf("Target Price: %s\n", FormatAmount(currency, alert.TargetPrice)))
	builder.WriteString(fmt.Sprintf("Current Price: %s\n", FormatAmount(currency, best.Price.Decimal)))
	builder.WriteString(fmt.Sprintf("Store: %s\n", best.Source))
	builder.WriteString(fmt.Sprintf("Link: %s\n\n", best.Link))
	builder.WriteString(fmt.Sprintf("Alert ID: %d", alert.ID))

	return Message{
		Method:  alert.NotifyMethod,
		To:      alert.Email,
		Subject: fmt.Sprintf("Price Drop Alert: %s", alert.Query),
		Body:    builder.String(),
	}
}

// FormatAmount renders d with thousands separators, e.g. ₹1,299 or ₹1,299.50.
func FormatAmount(currency string, d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return currency + amountPrinter.Sprintf("%d", d.IntPart())
	}
	return currency + amountPrinter.Sprintf("%.2f", d.InexactFloat64())
}
