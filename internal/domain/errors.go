package domain

import "errors"

var (
	ErrEmptyToken           = errors.New("return token is required")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionClosed        = errors.New("session is closed")
	ErrInvalidTransition    = errors.New("action not allowed in current state")
	ErrMissingPaymentHandle = errors.New("no payment handle available")
)

// User-facing messages shown by the SPA. The backend-supplied reason is
// preferred when present; these are the fallbacks.
const (
	MsgInvalidCode      = "Kode tidak valid atau sudah dikembalikan."
	MsgNetworkFailure   = "Terjadi kesalahan jaringan. Silakan coba lagi."
	MsgPaymentFailed    = "Pembayaran denda gagal. Silakan coba lagi."
	MsgPaymentPending   = "Pembayaran sedang diproses."
	MsgLockerCodeFailed = "Pembayaran diterima, tetapi kode loker gagal diambil. Hubungi dukungan PayungKu."
	MsgTokenRotatedLoop = "Kode telah diperbarui. Silakan pindai ulang QR."
	MsgConfirmFailed    = "Gagal mengonfirmasi pengembalian. Silakan coba lagi."
)
