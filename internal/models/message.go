package models

import (
	"fmt"
	"time"
)

// KitchenTicketMessage represents a confirmed order sent to the kitchen printer
type KitchenTicketMessage struct {
	Ticket  OrderTicket `json:"ticket"`
	EventID string      `json:"event_id"`
	Copies  int         `json:"copies"`
}

// ScarcityMessage announces that a limited item reached its critical threshold
type ScarcityMessage struct {
	EventID           string    `json:"event_id"`
	BusinessDay       string    `json:"business_day"`
	ItemKey           string    `json:"item_key"`
	Remaining         int       `json:"remaining"`
	CriticalThreshold int       `json:"critical_threshold"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewKitchenTicketMessage wraps a ticket for publishing
func NewKitchenTicketMessage(eventID string, ticket OrderTicket, copies int) *KitchenTicketMessage {
	return &KitchenTicketMessage{
		Ticket:  ticket,
		EventID: eventID,
		Copies:  copies,
	}
}

// NewScarcityMessages builds one alert per scarce counter touched by a sale
func NewScarcityMessages(eventID string, portions DailyPortions, keys []string) []*ScarcityMessage {
	var msgs []*ScarcityMessage
	for _, key := range keys {
		counter, ok := portions.Items[key]
		if !ok || !counter.Scarce() {
			continue
		}
		msgs = append(msgs, &ScarcityMessage{
			EventID:           eventID,
			BusinessDay:       portions.BusinessDay,
			ItemKey:           key,
			Remaining:         counter.Remaining,
			CriticalThreshold: counter.CriticalThreshold,
			Timestamp:         time.Now().UTC(),
		})
	}
	return msgs
}

// GenerateRoutingKey generates a routing key for kitchen ticket messages
func GenerateRoutingKey(eventID string, mode PaymentMode) string {
	return fmt.Sprintf("kitchen.%s.%s", eventID, mode)
}
