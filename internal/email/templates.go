package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderItem is one line of an order for email purposes
type OrderItem struct {
	Name     string
	Variant  string
	Quantity int
	Price    decimal.Decimal
}

type OrderSummary struct {
	OrderNumber   string
	CustomerName  string
	PaymentMethod string
	Items         []OrderItem
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Shipping      decimal.Decimal
	Total         decimal.Decimal
	Currency      string
}

type PaymentReceipt struct {
	OrderNumber    string
	Amount         decimal.Decimal
	Currency       string
	CardBrand      string
	LastFourDigits string
}

type RefundNotice struct {
	OrderNumber string
	Amount      decimal.Decimal
	Currency    string
	Reason      string
}

const layout = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>
	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		%s
		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
		<p style="font-size: 12px; color: #999; margin-bottom: 0;">This email was sent automatically by %s. Please contact support if you have any questions.</p>
	</div>
</body>
</html>`

func page(shopName, title, content string) string {
	return fmt.Sprintf(layout, html.EscapeString(title), content, html.EscapeString(shopName))
}

func orderNumberBlock(orderNumber string) string {
	return fmt.Sprintf(`<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>`, html.EscapeString(orderNumber))
}

// BuildOrderConfirmationBody builds the HTML body for order confirmation email
func BuildOrderConfirmationBody(shopName string, o OrderSummary) string {
	var rows strings.Builder
	for _, item := range o.Items {
		name := html.EscapeString(item.Name)
		if item.Variant != "" {
			name += ` <span style="color: #999;">(` + html.EscapeString(item.Variant) + `)</span>`
		}
		fmt.Fprintf(&rows, `<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			name,
			item.Quantity,
			FormatMoney(item.Price, o.Currency),
			FormatMoney(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))), o.Currency),
		)
	}

	totals := fmt.Sprintf(`<table style="width: 100%%; margin: 20px 0;">
			<tr><td style="color: #666;">Subtotal</td><td style="text-align: right;">%s</td></tr>
			<tr><td style="color: #666;">Tax</td><td style="text-align: right;">%s</td></tr>
			<tr><td style="color: #666;">Shipping</td><td style="text-align: right;">%s</td></tr>
			<tr><td style="font-weight: bold;">Total</td><td style="text-align: right; font-size: 20px; font-weight: bold; color: #667eea;">%s</td></tr>
		</table>`,
		FormatMoney(o.Subtotal, o.Currency),
		FormatMoney(o.Tax, o.Currency),
		FormatMoney(o.Shipping, o.Currency),
		FormatMoney(o.Total, o.Currency),
	)

	content := fmt.Sprintf(`<p style="margin-top: 0;">Hello %s, thank you for your order.</p>
		%s
		<p>Payment method: <strong>%s</strong></p>
		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left;">Item</th>
					<th style="padding: 12px; text-align: center;">Qty</th>
					<th style="padding: 12px; text-align: right;">Price</th>
					<th style="padding: 12px; text-align: right;">Line total</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>
		%s`,
		html.EscapeString(o.CustomerName),
		orderNumberBlock(o.OrderNumber),
		html.EscapeString(paymentMethodLabel(o.PaymentMethod)),
		rows.String(),
		totals,
	)
	return page(shopName, "Thank you for your order", content)
}

func BuildPaymentReceiptBody(shopName string, r PaymentReceipt) string {
	card := ""
	if r.LastFourDigits != "" {
		card = fmt.Sprintf(`<p>Charged to %s ending in <strong>%s</strong>.</p>`,
			html.EscapeString(r.CardBrand), html.EscapeString(r.LastFourDigits))
	}
	content := fmt.Sprintf(`<p style="margin-top: 0;">We received your payment of <strong>%s</strong>.</p>
		%s
		%s
		<p>Your order is now being prepared.</p>`,
		FormatMoney(r.Amount, r.Currency), orderNumberBlock(r.OrderNumber), card)
	return page(shopName, "Payment received", content)
}

func BuildRefundBody(shopName string, r RefundNotice) string {
	reason := ""
	if r.Reason != "" {
		reason = `<p>Reason: ` + html.EscapeString(r.Reason) + `</p>`
	}
	content := fmt.Sprintf(`<p style="margin-top: 0;">A refund of <strong>%s</strong> was issued to your card.</p>
		%s
		%s
		<p>Depending on your bank it can take a few business days to appear.</p>`,
		FormatMoney(r.Amount, r.Currency), orderNumberBlock(r.OrderNumber), reason)
	return page(shopName, "Refund issued", content)
}

func paymentMethodLabel(m string) string {
	switch m {
	case "credit_card":
		return "Credit card"
	case "bank_transfer":
		return "Bank transfer"
	case "cash_on_delivery":
		return "Cash on delivery"
	}
	return m
}

// FormatMoney renders an amount with two decimals, thousands separators and
// the currency code, e.g. "1,234.50 TRY".
func FormatMoney(amount decimal.Decimal, currency string) string {
	s := amount.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(",")
		}
		b.WriteRune(r)
	}
	b.WriteString(".")
	b.WriteString(frac)
	if currency != "" {
		b.WriteString(" ")
		b.WriteString(currency)
	}
	return b.String()
}
