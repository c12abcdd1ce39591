// Package model содержит доменные сущности сервиса доставки.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Role описывает роль участника, инициирующего операцию над заказом.
type Role string

const (
	RoleClient     Role = "client"
	RoleRestaurant Role = "restaurant"
	RoleDriver     Role = "driver"
)

// OrderStatus описывает статус заказа в жизненном цикле доставки.
type OrderStatus string

const (
	StatusAwaitingRestaurant OrderStatus = "awaiting_restaurant"
	StatusAwaitingDriver     OrderStatus = "awaiting_driver"
	StatusEnRoute            OrderStatus = "en_route"
	StatusPickedUp           OrderStatus = "picked_up"
	StatusDelivered          OrderStatus = "delivered"
	StatusCancelled          OrderStatus = "cancelled"
)

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Order описывает заказ: один клиент, один ресторан, не более одного курьера.
// DriverRef заполняется только после принятия заказа курьером.
type Order struct {
	ID             uuid.UUID
	ClientRef      uuid.UUID
	RestaurantRef  uuid.UUID
	DriverRef      *uuid.UUID
	TotalCents     int64
	Status         OrderStatus
	CodeRestaurant string
	CodeClient     string
	CreatedAt      time.Time
	Lines          []OrderLine
}

// OrderLine описывает позицию заказа с ценой, зафиксированной на момент оформления.
type OrderLine struct {
	ID             uuid.UUID
	OrderRef       uuid.UUID
	ProductRef     uuid.UUID
	Quantity       int32
	UnitPriceCents int64
	SubtotalCents  int64
}

// FeedOrder — заказ, обогащённый названием и адресом ресторана и адресом
// доставки клиента. Используется в лентах курьеров.
type FeedOrder struct {
	Order
	RestaurantName    string
	RestaurantAddress string
	DeliveryAddress   string
}
