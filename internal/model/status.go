package model

type transition struct {
	from, to OrderStatus
}

// Таблица допустимых переходов статусов: для каждого ребра перечислены роли,
// которым разрешено его инициировать. Переходов вне таблицы не существует.
var transitions = map[transition][]Role{
	{StatusAwaitingRestaurant, StatusAwaitingDriver}: {RoleRestaurant},
	{StatusAwaitingRestaurant, StatusCancelled}:      {RoleRestaurant, RoleClient},
	{StatusAwaitingDriver, StatusCancelled}:          {RoleClient},
	{StatusAwaitingDriver, StatusEnRoute}:            {RoleDriver},
	{StatusEnRoute, StatusPickedUp}:                  {RoleRestaurant},
	{StatusPickedUp, StatusDelivered}:                {RoleClient},
}

// CanTransition проверяет, разрешён ли переход from→to для указанной роли.
func CanTransition(from, to OrderStatus, role Role) bool {
	for _, r := range transitions[transition{from, to}] {
		if r == role {
			return true
		}
	}
	return false
}

// ClientMayCancel сообщает, может ли клиент отменить заказ в данном статусе.
// Отмена клиентом допустима, пока курьер не забрал заказ в ресторане.
func ClientMayCancel(s OrderStatus) bool {
	return s == StatusAwaitingRestaurant || s == StatusAwaitingDriver
}
