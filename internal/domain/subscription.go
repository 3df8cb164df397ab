package domain

import (
	"encoding/json"
	"time"
)

// ExpiryNever marca una suscripcion sin vencimiento.
const ExpiryNever int64 = -1

const msPerDay = 24 * 60 * 60 * 1000

// Entitlement es la tripleta (plan, vencimiento, estado) de una materia.
// Expiry es epoch en milisegundos, o ExpiryNever.
type Entitlement struct {
	Plan   *string `json:"plan"`
	Expiry *int64  `json:"expiry"`
	Status *string `json:"status"`
}

// Visible indica si la suscripcion debe mostrarse: hay plan y no esta cancelada.
func (e Entitlement) Visible() bool {
	return e.Plan != nil && (e.Status == nil || *e.Status != StatusCancelled)
}

// Subscription es una entrada derivada para el listado de suscripciones.
type Subscription struct {
	Subject       Subject       `json:"subject"`
	Name          string        `json:"name"`
	Plan          string        `json:"plan"`
	Expiry        *int64        `json:"expiry"`
	DaysRemaining DaysRemaining `json:"daysRemaining"`
	Status        string        `json:"status,omitempty"`
}

// DaysRemaining serializa como null (sin vencimiento asignado), "infinity"
// o la cantidad entera de dias restantes (0 = vencida pero no limpiada).
type DaysRemaining struct {
	infinite bool
	days     *int64
}

func DaysInfinity() DaysRemaining {
	return DaysRemaining{infinite: true}
}

// DaysRemainingAt calcula los dias restantes de un vencimiento en un instante dado.
func DaysRemainingAt(expiry *int64, now time.Time) DaysRemaining {
	if expiry == nil {
		return DaysRemaining{}
	}
	if *expiry == ExpiryNever {
		return DaysInfinity()
	}
	diff := *expiry - now.UnixMilli()
	var days int64
	if diff > 0 {
		days = (diff + msPerDay - 1) / msPerDay
	}
	return DaysRemaining{days: &days}
}

// Infinite indica que la suscripcion nunca vence.
func (d DaysRemaining) Infinite() bool { return d.infinite }

// Days devuelve los dias restantes; ok=false si no hay vencimiento asignado.
func (d DaysRemaining) Days() (int64, bool) {
	if d.days == nil {
		return 0, false
	}
	return *d.days, true
}

func (d DaysRemaining) MarshalJSON() ([]byte, error) {
	if d.infinite {
		return json.Marshal("infinity")
	}
	if d.days == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*d.days)
}
