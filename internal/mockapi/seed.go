package mockapi

import (
	"fmt"

	"git.cscs.ch/openchami/backoffice/pkg/types"
)

// Seeded staff credentials.
const (
	SeedAdminEmail    = "admin@example.com"
	SeedAdminPassword = "admin123"
)

var seedProducts = []struct {
	name, description string
	price             float64
}{
	{"Desk lamp", "LED desk lamp with dimmer", 9.99},
	{"Light bulb", "E27 warm white, 9W", 5.00},
	{"Office chair", "Ergonomic mesh chair", 149.00},
	{"Standing desk", "Electric height-adjustable desk", 429.50},
	{"Monitor arm", "Single arm, VESA 75/100", 39.90},
	{"Keyboard", "Mechanical, brown switches", 89.00},
	{"Mouse", "Wireless, 3 buttons", 24.50},
	{"USB-C hub", "7-in-1 with HDMI", 34.99},
	{"Webcam", "1080p with privacy shutter", 59.00},
	{"Headset", "Noise cancelling, USB", 79.00},
	{"Notebook", "A5 dotted, 120 pages", 7.50},
	{"Pen set", "Gel pens, 12 colours", 11.20},
}

var seedCustomers = []types.UserDraft{
	{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com", Password: "engine42"},
	{Firstname: "Grace", Lastname: "Hopper", Email: "grace@example.com", Password: "cobol59"},
	{Firstname: "Alan", Lastname: "Turing", Email: "alan@example.com", Password: "enigma39"},
}

// Seed fills an empty store with staff, products, customers and orders.
func Seed(s *Store) error {
	if _, err := s.CreateUser(types.UserDraft{
		Firstname: "Back", Lastname: "Office", Email: SeedAdminEmail, Password: SeedAdminPassword,
	}, "admin"); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}

	for _, p := range seedProducts {
		if _, err := s.CreateProduct(p.name, p.description, p.price, ""); err != nil {
			return fmt.Errorf("seeding product %q: %w", p.name, err)
		}
	}

	for _, c := range seedCustomers {
		if _, err := s.CreateUser(c, "customer"); err != nil {
			return fmt.Errorf("seeding user %q: %w", c.Email, err)
		}
	}

	orders := []types.OrderDraft{
		{
			Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com",
			PhoneNumber: "+44 20 0000 0001", Address: "12 St James's Square, London",
			Lines: []types.LineItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}},
		},
		{
			Firstname: "Grace", Lastname: "Hopper", Email: "grace@example.com",
			PhoneNumber: "+1 202 000 0002", Address: "Arlington, VA", Status: types.OrderStatusDone,
			Lines: []types.LineItem{{ProductID: 3, Quantity: 1}},
		},
		{
			Firstname: "Alan", Lastname: "Turing", Email: "alan@example.com",
			PhoneNumber: "+44 1908 000003", Address: "Bletchley Park",
			Lines: []types.LineItem{{ProductID: 6, Quantity: 1}, {ProductID: 7, Quantity: 1}, {ProductID: 11, Quantity: 3}},
		},
	}
	for _, o := range orders {
		if _, err := s.CreateOrder(o); err != nil {
			return fmt.Errorf("seeding order for %s: %w", o.Email, err)
		}
	}
	return nil
}
