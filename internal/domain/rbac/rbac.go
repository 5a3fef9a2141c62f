// Пакет rbac — роли покупателей и проверка доступа по роли.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleCustomer  = "customer"
	RolePublisher = "publisher"
	RoleAdmin     = "admin"
)

// DefaultRole — роль, назначаемая при регистрации.
const DefaultRole = RoleCustomer

// roleWeight — вес роли для сравнения.
var roleWeight = map[string]int{
	RoleCustomer:  1,
	RolePublisher: 2,
	RoleAdmin:     3,
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// Allowed проверяет, входит ли роль в набор разрешённых.
// Пустой набор не разрешает ничего.
func Allowed(role string, allowed ...string) bool {
	if !IsValidRole(role) {
		return false
	}
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}

// AtLeast сообщает, что роль не ниже min по привилегиям.
func AtLeast(role, min string) bool {
	w, ok := roleWeight[role]
	if !ok {
		return false
	}
	return w >= roleWeight[min]
}

// CanManageProducts — роли, которым доступно изменение каталога.
var CanManageProducts = []string{RolePublisher, RoleAdmin}
