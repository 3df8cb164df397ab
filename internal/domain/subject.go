package domain

import "strings"

// Subject identifica una materia de la plataforma.
type Subject string

const (
	SubjectHistoryKZ    Subject = "historyKZ"
	SubjectWorldHistory Subject = "worldHistory"
	SubjectLawBasics    Subject = "lawBasics"
	SubjectChinese      Subject = "chinese"
)

// Subjects lista todas las materias en orden estable.
var Subjects = []Subject{
	SubjectHistoryKZ,
	SubjectWorldHistory,
	SubjectLawBasics,
	SubjectChinese,
}

var subjectNames = map[Subject]string{
	SubjectHistoryKZ:    "История Казахстана",
	SubjectWorldHistory: "Всемирная История",
	SubjectLawBasics:    "Основы права",
	SubjectChinese:      "Китайский язык",
}

// legacySubjectCodes mapea los codigos del campo plan heredado a materias.
var legacySubjectCodes = map[string]Subject{
	"histKZ":    SubjectHistoryKZ,
	"worldHist": SubjectWorldHistory,
	"lawBasics": SubjectLawBasics,
	"chinese":   SubjectChinese,
}

// ParseSubject valida un identificador de materia.
func ParseSubject(s string) (Subject, bool) {
	subject := Subject(s)
	_, ok := subjectNames[subject]
	return subject, ok
}

// DisplayName devuelve el nombre visible de la materia.
func (s Subject) DisplayName() string {
	return subjectNames[s]
}

const (
	PlanFree  = "free"
	PlanAdmin = "admin"
)

const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// LegacyPlanSubscriptions expande el campo plan heredado ("histKZ_pro,chinese_basic")
// en suscripciones sin vencimiento. Codigos desconocidos se descartan.
func LegacyPlanSubscriptions(plan string) []Subscription {
	if plan == "" || plan == PlanFree || plan == PlanAdmin {
		return nil
	}
	var subs []Subscription
	for _, token := range strings.Split(plan, ",") {
		token = strings.TrimSpace(token)
		code, tier, _ := strings.Cut(token, "_")
		subject, ok := legacySubjectCodes[code]
		if !ok {
			continue
		}
		expiry := int64(ExpiryNever)
		subs = append(subs, Subscription{
			Subject:       subject,
			Name:          subject.DisplayName(),
			Plan:          tier,
			Expiry:        &expiry,
			DaysRemaining: DaysInfinity(),
		})
	}
	return subs
}
