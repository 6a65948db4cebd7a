package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Catalog ───────────────────────────────────────────────────────
	ErrQuizNotFound ErrCode = "QUIZ_NOT_FOUND"

	// ─── Session ───────────────────────────────────────────────────────
	ErrSessionNotFound   ErrCode = "SESSION_NOT_FOUND"
	ErrReportNotReady    ErrCode = "REPORT_NOT_READY"
	ErrFullscreenDenied  ErrCode = "FULLSCREEN_DENIED"
	ErrInvalidTransition ErrCode = "INVALID_TRANSITION"
	ErrStartInProgress   ErrCode = "START_IN_PROGRESS"
	ErrUnknownAction     ErrCode = "UNKNOWN_ACTION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Catalog ───────────────────────────────────────────────────────
	case ErrQuizNotFound:
		return "Kuis tidak ditemukan. Silakan pilih kuis dari katalog."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Sesi ujian tidak ditemukan."
	case ErrReportNotReady:
		return "Laporan belum tersedia. Sesi ujian belum selesai."
	case ErrFullscreenDenied:
		return "Mode layar penuh diperlukan untuk memulai ujian."
	case ErrInvalidTransition:
		return "Tindakan ini tidak diperbolehkan pada status sesi saat ini."
	case ErrStartInProgress:
		return "Sesi ujian sedang dimulai."
	case ErrUnknownAction:
		return "Aksi tidak dikenali."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
