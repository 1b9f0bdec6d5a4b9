// Package notify renders placed orders into WhatsApp click-to-chat links.
package notify

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/flicky/spice-storefront/internal/config"
)

var ErrNoStoreNumber = errors.New("whatsapp store number is not configured")

type Line struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
}

type OrderSummary struct {
	OrderID          string
	CartID           string
	Lines            []Line
	Total            decimal.Decimal
	DeliveryLocation string
}

type WhatsAppFormatter struct {
	baseURL  string
	contact  string
	currency string
}

// NewWhatsAppFormatter fails when no store number is configured, since the
// resulting links would address nobody.
func NewWhatsAppFormatter(cfg config.WhatsAppConfig) (*WhatsAppFormatter, error) {
	number := digitsOnly(cfg.StoreNumber)
	if number == "" {
		return nil, ErrNoStoreNumber
	}
	code := digitsOnly(cfg.CountryCode)
	if strings.HasPrefix(number, code) && len(number) > 10 {
		code = ""
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://wa.me"
	}
	return &WhatsAppFormatter{
		baseURL:  base,
		contact:  code + number,
		currency: cfg.CurrencySymbol,
	}, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (f *WhatsAppFormatter) money(d decimal.Decimal) string {
	return f.currency + d.StringFixedBank(2)
}

// Message renders the plain-text order message.
func (f *WhatsAppFormatter) Message(o OrderSummary) string {
	lines := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, fmt.Sprintf("%s x%d - %s", l.Name, l.Quantity, f.money(l.Price)))
	}

	var b strings.Builder
	b.WriteString("🛒 *New Order Received*\n\n")
	fmt.Fprintf(&b, "📋 *Order ID:* %s\n", o.OrderID)
	fmt.Fprintf(&b, "🛍️ *Cart ID:* %s\n\n", o.CartID)
	fmt.Fprintf(&b, "📦 *Products:*\n%s\n\n", strings.Join(lines, "\n"))
	fmt.Fprintf(&b, "💰 *Total Amount:* %s\n\n", f.money(o.Total))
	fmt.Fprintf(&b, "📍 *Delivery Location:*\n%s\n\n", o.DeliveryLocation)
	b.WriteString("Please confirm this order and provide payment details. Thank you! 🙏")
	return b.String()
}

// Link returns https://<base>/<contact>?text=<message>, percent-encoded
// with %20 for spaces.
func (f *WhatsAppFormatter) Link(o OrderSummary) string {
	text := strings.ReplaceAll(url.QueryEscape(f.Message(o)), "+", "%20")
	return fmt.Sprintf("%s/%s?text=%s", f.baseURL, f.contact, text)
}
