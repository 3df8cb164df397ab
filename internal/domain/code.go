package domain

// Propositos registrados en el ledger de codigos de verificacion.
const (
	PurposeRegister = "register"
	PurposeGeneric  = "generic"
)

// VerifyCode es una fila del ledger de codigos de verificacion. Pueden
// coexistir varias filas por contacto; solo la mas reciente es autoritativa.
type VerifyCode struct {
	ID        int64
	Contact   string
	Code      string
	Purpose   string
	ExpiresAt int64 // epoch ms
	Attempts  int
	CreatedAt int64 // epoch ms
}

// ResetCode es una fila del ledger de restablecimiento de contrasena.
// A diferencia de VerifyCode se marca como usada, nunca se borra.
type ResetCode struct {
	ID        int64
	Email     string
	Code      string
	ExpiresAt int64 // epoch ms
	CreatedAt int64 // epoch ms
	Used      bool
}
