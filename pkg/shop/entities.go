// Package shop holds the store's entities and the specifications that query them.
package shop

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ammar0144/specstore/pkg/db"
	"github.com/ammar0144/specstore/pkg/repository"
)

type Product struct {
	repository.BaseEntity
	Name            string          `gorm:"size:100;not null" json:"name"`
	Description     string          `gorm:"size:500" json:"description"`
	Price           decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"price"`
	PictureURL      string          `json:"pictureUrl"`
	Type            string          `gorm:"size:50;index" json:"type"`
	Brand           string          `gorm:"size:50;index" json:"brand"`
	QuantityInStock int             `json:"quantityInStock"`
}

func (Product) TableName() string { return "products" }

type DeliveryMethod struct {
	repository.BaseEntity
	ShortName    string          `gorm:"size:50" json:"shortName"`
	DeliveryTime string          `gorm:"size:50" json:"deliveryTime"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"price"`
}

func (DeliveryMethod) TableName() string { return "delivery_methods" }

// RelatedTables lists orders, whose cached reads embed their delivery method
func (DeliveryMethod) RelatedTables() []string { return []string{"orders"} }

// OrderStatus is the payment state of an order
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "Pending"
	OrderStatusPaymentReceived OrderStatus = "PaymentReceived"
	OrderStatusPaymentFailed   OrderStatus = "PaymentFailed"
	OrderStatusPaymentMismatch OrderStatus = "PaymentMismatch"
)

type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type PaymentSummary struct {
	Last4    int    `json:"last4"`
	Brand    string `json:"brand"`
	ExpMonth int    `json:"expMonth"`
	ExpYear  int    `json:"expYear"`
}

type Order struct {
	repository.BaseEntity
	OrderDate        time.Time       `gorm:"index" json:"orderDate"`
	BuyerEmail       string          `gorm:"size:256;index;not null" json:"buyerEmail"`
	ShippingAddress  ShippingAddress `gorm:"embedded;embeddedPrefix:ship_" json:"shippingAddress"`
	DeliveryMethodID int             `json:"deliveryMethodId"`
	DeliveryMethod   *DeliveryMethod `json:"deliveryMethod,omitempty"`
	OrderItems       []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"orderItems"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"subtotal"`
	Status           OrderStatus     `gorm:"size:32;not null" json:"status"`
	PaymentSummary   PaymentSummary  `gorm:"embedded;embeddedPrefix:pay_" json:"paymentSummary"`
	PaymentIntentID  string          `gorm:"size:128;index" json:"paymentIntentId"`
}

func (Order) TableName() string { return "orders" }

// Total is the subtotal plus the price of the delivery method, when loaded
func (o Order) Total() decimal.Decimal {
	if o.DeliveryMethod == nil {
		return o.Subtotal
	}
	return o.Subtotal.Add(o.DeliveryMethod.Price)
}

// ProductItemOrdered is the product as it was when the order was placed
type ProductItemOrdered struct {
	ProductID   int    `json:"productId"`
	ProductName string `json:"productName"`
	PictureURL  string `json:"pictureUrl"`
}

type OrderItem struct {
	repository.BaseEntity
	OrderID     int                `gorm:"index" json:"-"`
	ItemOrdered ProductItemOrdered `gorm:"embedded;embeddedPrefix:item_" json:"itemOrdered"`
	Price       decimal.Decimal    `gorm:"type:decimal(18,2);not null" json:"price"`
	Quantity    int                `json:"quantity"`
}

func (OrderItem) TableName() string { return "order_items" }

// RelatedTables lists orders, whose cached reads embed their items
func (OrderItem) RelatedTables() []string { return []string{"orders"} }

// Models lists every entity in migration order
func Models() []db.Model {
	return []db.Model{&Product{}, &DeliveryMethod{}, &Order{}, &OrderItem{}}
}
