package intent

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/voice-agent/backend/internal/model/order"
)

// Label 表示可以在本地直接回答的意图。
type Label string

const (
	None         Label = ""
	OrderList    Label = "order_list"
	RecentOrder  Label = "recent_order"
	OrderStatus  Label = "order_status"
	DeliveryDate Label = "delivery_date"
)

// NoOrdersMessage is spoken when an order question arrives but nothing is cached.
const NoOrdersMessage = "I don't have any order details for you at the moment."

var (
	orderKeywords    = []string{"order", "product"}
	recentKeywords   = []string{"recent"}
	statusKeywords   = []string{"status"}
	deliveryKeywords = []string{"delivery date", "expected delivery"}
)

// Classify maps a transcript to a local intent using case-insensitive
// substring matching. Precedence follows recent, status, delivery date.
func Classify(transcript string) Label {
	normalized := strings.ToLower(strings.TrimSpace(transcript))
	if normalized == "" || !containsAny(normalized, orderKeywords) {
		return None
	}

	switch {
	case containsAny(normalized, recentKeywords):
		return RecentOrder
	case containsAny(normalized, statusKeywords):
		return OrderStatus
	case containsAny(normalized, deliveryKeywords):
		return DeliveryDate
	default:
		return OrderList
	}
}

// Answer 根据缓存的订单直接生成回复；ok 为 false 时应交给大模型处理。
// 相同输入总是得到相同输出，不产生副作用。
func Answer(transcript string, orders []order.Record) (string, bool) {
	label := Classify(transcript)
	if label == None {
		return "", false
	}
	if len(orders) == 0 {
		return NoOrdersMessage, true
	}

	switch label {
	case RecentOrder:
		recent := orders[len(orders)-1]
		return fmt.Sprintf("Your most recent order is: %s, Quantity: %d, Status: %s, Ordered on: %s.",
			recent.Product, recent.Quantity, recent.Status, recent.OrderDate), true
	case OrderStatus:
		lines := make([]string, 0, len(orders)+1)
		lines = append(lines, "Your order statuses:")
		for _, o := range orders {
			lines = append(lines, fmt.Sprintf("Order %s - Status: %s", o.OrderNumber, o.Status))
		}
		return strings.Join(lines, "\n"), true
	case DeliveryDate:
		lines := make([]string, 0, len(orders)+1)
		lines = append(lines, "The expected delivery dates for your orders:")
		for _, o := range orders {
			date := o.ExpectedDeliveryDate
			if strings.TrimSpace(date) == "" {
				date = "Not available"
			}
			lines = append(lines, fmt.Sprintf("%s - Expected Delivery Date: %s", o.OrderNumber, date))
		}
		return strings.Join(lines, "\n"), true
	default:
		lines := make([]string, 0, len(orders)+1)
		lines = append(lines, "Here are the products you ordered:")
		for _, o := range orders {
			lines = append(lines, "- "+o.Product)
		}
		return strings.Join(lines, "\n"), true
	}
}

func containsAny(text string, keywords []string) bool {
	for _, word := range keywords {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}
