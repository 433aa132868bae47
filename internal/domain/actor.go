package domain

// ActorType роль уже аутентифицированной стороны запроса
type ActorType string

const (
	ActorUser     ActorType = "user"
	ActorPharmacy ActorType = "pharmacy"
)

// Actor идентичность, которую ядро получает извне; проверка учётных данных
// не входит в его задачи — только проверки владения ресурсом.
type Actor struct {
	ID   int64
	Type ActorType
}

func (a Actor) IsUser() bool     { return a.Type == ActorUser }
func (a Actor) IsPharmacy() bool { return a.Type == ActorPharmacy }
