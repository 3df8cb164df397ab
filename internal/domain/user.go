package domain

import "time"

type User struct {
	ID          string  `json:"id"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone,omitempty"`
	Username    *string `json:"username"`
	DisplayName *string `json:"displayName"`
	About       *string `json:"about,omitempty"`
	AvatarURL   *string `json:"avatarUrl"`

	PasswordHash string `json:"-"`

	// Plan es el campo heredado: "free", "admin" o lista separada por comas
	// de tokens materia_tier.
	Plan string `json:"plan"`

	HistoryKZ    Entitlement `json:"historyKZ"`
	WorldHistory Entitlement `json:"worldHistory"`
	LawBasics    Entitlement `json:"lawBasics"`
	Chinese      Entitlement `json:"chinese"`

	// Cooldowns por campo, epoch en milisegundos. 0 = sin restriccion.
	AvatarChangeLimit      int64 `json:"-"`
	DisplayNameChangeLimit int64 `json:"-"`
	EmailChangeLimit       int64 `json:"-"`
	PasswordChangeLimit    int64 `json:"-"`

	EmailVerificationCode   *string `json:"-"`
	EmailVerificationExpiry *int64  `json:"-"`

	TelegramUserID   *int64  `json:"-"`
	TelegramUsername *string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
}

// EntitlementFor devuelve la tripleta de la materia indicada. El despacho es
// un switch cerrado sobre el enum, nunca nombres de columna armados por string.
func (u *User) EntitlementFor(subject Subject) *Entitlement {
	switch subject {
	case SubjectHistoryKZ:
		return &u.HistoryKZ
	case SubjectWorldHistory:
		return &u.WorldHistory
	case SubjectLawBasics:
		return &u.LawBasics
	case SubjectChinese:
		return &u.Chinese
	}
	return nil
}

// IsAdmin indica si el plan heredado otorga acceso administrativo.
func (u *User) IsAdmin() bool {
	return u.Plan == PlanAdmin
}
