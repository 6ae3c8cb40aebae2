// Package notify sends support alerts. The only alert today is the
// post-payment one: a penalty was captured but the locker code could not be
// retrieved, which the flow treats as fatal for the session. Support has to
// reconcile it by hand.
package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"payungku-returns/internal/logger"
)

var rupiahPrinter = message.NewPrinter(language.Indonesian)

// FormatRupiah renders an amount in whole rupiah with Indonesian digit
// grouping, e.g. 15000 -> "Rp15.000".
func FormatRupiah(amount int64) string {
	return rupiahPrinter.Sprintf("Rp%d", amount)
}

type SupportMailer struct {
	apiKey       string
	fromEmail    string
	fromName     string
	supportEmail string
}

func NewSupportMailer(apiKey, fromEmail, fromName, supportEmail string) *SupportMailer {
	return &SupportMailer{
		apiKey:       apiKey,
		fromEmail:    fromEmail,
		fromName:     fromName,
		supportEmail: supportEmail,
	}
}

// AlertLockerCodeFailure notifies support that a captured penalty payment was
// not followed by a locker code. Failures here are logged, not propagated:
// the session is already in its terminal state by the time this fires.
func (s *SupportMailer) AlertLockerCodeFailure(ctx context.Context, rentCode string, penaltyAmount int64, cause error) {
	subject := fmt.Sprintf("[PayungKu] Kode loker gagal setelah pembayaran denda (%s)", rentCode)
	body := fmt.Sprintf(
		"Pengembalian dengan kode sewa %s sudah membayar denda %s, tetapi kode loker gagal diambil dari API inti.\n\n"+
			"Penyebab: %v\n\n"+
			"Transaksi perlu diselesaikan manual sebelum pelanggan menghubungi dukungan.",
		rentCode, FormatRupiah(penaltyAmount), cause,
	)

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("PayungKu Support", s.supportEmail)
	msg := mail.NewSingleEmail(from, subject, to, body, "")

	client := sendgrid.NewSendClient(s.apiKey)
	logger.ExternalServiceCall("sendgrid", "AlertLockerCodeFailure", "rentCode", rentCode)
	resp, err := client.SendWithContext(ctx, msg)
	if err == nil && resp.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	logger.ExternalServiceResult("sendgrid", "AlertLockerCodeFailure", err, "rentCode", rentCode)
}
