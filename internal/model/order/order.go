package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is one customer order as cached for the lifetime of a call.
type Record struct {
	OrderNumber          string  `json:"orderNumber"`
	Product              string  `json:"product"`
	Quantity             int     `json:"quantity"`
	PricePerUnit         float64 `json:"pricePerUnit"`
	TotalAmount          float64 `json:"totalAmount"`
	OrderDate            string  `json:"orderDate"`
	Status               string  `json:"status"`
	ShippingCity         string  `json:"shippingCity,omitempty"`
	ExpectedDeliveryDate string  `json:"expectedDeliveryDate,omitempty"`
}

// Summary groups the orders returned for one caller.
type Summary struct {
	CustomerName string   `json:"customerName,omitempty"`
	TotalOrders  int      `json:"totalOrders"`
	Records      []Record `json:"records"`
}

// DisplayDateLayout matches the short US date used when reading orders aloud.
const DisplayDateLayout = "Jan 2, 2006"

type apexProduct struct {
	Name  string   `json:"Name"`
	Price *float64 `json:"Price__c"`
}

type apexOrder struct {
	Name                 string       `json:"Name"`
	Product              *apexProduct `json:"Product_VB__r"`
	Quantity             *float64     `json:"Product_Quantity__c"`
	TotalAmount          *float64     `json:"Total_Amount__c"`
	OrderDate            string       `json:"Order_Date__c"`
	Status               string       `json:"Order_Status__c"`
	ShippingCity         string       `json:"Shipping_Address__City__s"`
	ExpectedDeliveryDate string       `json:"Expected_Delivery_Date__c"`
}

type apexCustomer struct {
	Name       string `json:"Name"`
	UserOrders *struct {
		TotalSize int         `json:"totalSize"`
		Records   []apexOrder `json:"records"`
	} `json:"UserOrders__r"`
}

// ParseSummary decodes the getOrderDetails Apex payload. The endpoint may return
// the customer array directly or as a JSON-encoded string; both are accepted.
// An empty or null payload yields an empty summary.
func ParseSummary(data []byte) (*Summary, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Summary{}, nil
	}

	switch trimmed[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("decode wrapped order payload: %w", err)
		}
		return ParseSummary([]byte(inner))
	case '[':
		var customers []apexCustomer
		if err := json.Unmarshal(trimmed, &customers); err != nil {
			return nil, fmt.Errorf("decode order payload: %w", err)
		}
		if len(customers) == 0 {
			return &Summary{}, nil
		}
		return customers[0].summary(), nil
	case '{':
		var customer apexCustomer
		if err := json.Unmarshal(trimmed, &customer); err != nil {
			return nil, fmt.Errorf("decode order payload: %w", err)
		}
		return customer.summary(), nil
	default:
		return nil, fmt.Errorf("unexpected order payload starting with %q", trimmed[0])
	}
}

func (c apexCustomer) summary() *Summary {
	s := &Summary{CustomerName: strings.TrimSpace(c.Name)}
	if c.UserOrders == nil {
		return s
	}

	s.TotalOrders = c.UserOrders.TotalSize
	s.Records = make([]Record, 0, len(c.UserOrders.Records))
	for _, o := range c.UserOrders.Records {
		s.Records = append(s.Records, o.record())
	}
	if s.TotalOrders == 0 {
		s.TotalOrders = len(s.Records)
	}
	return s
}

func (o apexOrder) record() Record {
	r := Record{
		OrderNumber:          strings.TrimSpace(o.Name),
		OrderDate:            FormatDate(o.OrderDate),
		Status:               strings.TrimSpace(o.Status),
		ShippingCity:         strings.TrimSpace(o.ShippingCity),
		ExpectedDeliveryDate: strings.TrimSpace(o.ExpectedDeliveryDate),
	}
	if o.Product != nil {
		r.Product = strings.TrimSpace(o.Product.Name)
		if o.Product.Price != nil {
			r.PricePerUnit = *o.Product.Price
		}
	}
	if o.Quantity != nil {
		r.Quantity = int(*o.Quantity)
	}
	if o.TotalAmount != nil {
		r.TotalAmount = *o.TotalAmount
	}
	return r
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z",
}

// FormatDate renders a Salesforce date as "Jan 2, 2006". Empty input yields
// "N/A"; unparseable input is returned unchanged.
func FormatDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "N/A"
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(DisplayDateLayout)
		}
	}
	return raw
}

// Format renders the summary as the plain-text block handed to the model.
func (s *Summary) Format() string {
	if s == nil || (s.CustomerName == "" && len(s.Records) == 0) {
		return "No order details received from the server."
	}

	var b strings.Builder
	name := s.CustomerName
	if name == "" {
		name = "Unknown Customer"
	}
	fmt.Fprintf(&b, "Order Summary for %s\n", name)
	fmt.Fprintf(&b, "Total Orders: %d\n\n", s.TotalOrders)

	if len(s.Records) == 0 {
		b.WriteString("No orders found for this customer.\n")
		return b.String()
	}

	b.WriteString("Order Details:\n")
	for i, r := range s.Records {
		fmt.Fprintf(&b, "Order %d:\n", i+1)
		fmt.Fprintf(&b, "  Product: %s\n", orNA(r.Product))
		fmt.Fprintf(&b, "  Quantity: %d\n", r.Quantity)
		fmt.Fprintf(&b, "  Price per Unit: $%.2f\n", r.PricePerUnit)
		fmt.Fprintf(&b, "  Total Amount: $%.2f\n", r.TotalAmount)
		fmt.Fprintf(&b, "  Order Date: %s\n", orNA(r.OrderDate))
		fmt.Fprintf(&b, "  Status: %s\n", orNA(r.Status))
		if r.ShippingCity != "" {
			fmt.Fprintf(&b, "  Shipping City: %s\n", r.ShippingCity)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func orNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return "N/A"
	}
	return v
}
