package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrAssessmentUnavailable ErrCode = "ASSESSMENT_UNAVAILABLE"
	ErrNoQuestions           ErrCode = "NO_QUESTIONS"
	ErrAttemptInProgress     ErrCode = "ATTEMPT_IN_PROGRESS"
	ErrAttemptStartFailed    ErrCode = "ATTEMPT_START_FAILED"
	ErrAttemptNotActive      ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrUnknownQuestion       ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidAnswer         ErrCode = "INVALID_ANSWER"
	ErrSaveFailed            ErrCode = "SAVE_FAILED"
	ErrSubmitFailed          ErrCode = "SUBMIT_FAILED"
	ErrSessionClosed         ErrCode = "SESSION_CLOSED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrUnknownAction:
		return "Aksi tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Attempt-specific ──────────────────────────────────────────────
	case ErrAssessmentUnavailable:
		return "Asesmen ini tidak tersedia."
	case ErrNoQuestions:
		return "Asesmen ini tidak memiliki pertanyaan."
	case ErrAttemptInProgress:
		return "Anda masih memiliki pengerjaan aktif untuk asesmen ini."
	case ErrAttemptStartFailed:
		return "Pengerjaan tidak dapat dimulai. Silakan coba lagi."
	case ErrAttemptNotActive:
		return "Pengerjaan ini tidak lagi aktif."
	case ErrUnknownQuestion:
		return "Pertanyaan tidak termasuk dalam pengerjaan ini."
	case ErrInvalidAnswer:
		return "Jawaban tidak sesuai dengan pertanyaan."
	case ErrSaveFailed:
		return "Jawaban gagal disimpan. Periksa koneksi Anda lalu kirim ulang."
	case ErrSubmitFailed:
		return "Pengerjaan gagal dikirim. Jawaban Anda aman, silakan kirim ulang."
	case ErrSessionClosed:
		return "Sesi pengerjaan ditutup. Sambungkan kembali untuk melanjutkan."

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
