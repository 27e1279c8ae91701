package console

import (
	"git.cscs.ch/openchami/backoffice/internal/backoffice"
	"git.cscs.ch/openchami/backoffice/pkg/client"
)

// Screens binds the products, users and orders collections of c. All three
// share opts.Catalog, which is created when nil.
func Screens(c *client.Client, opts backoffice.Options) ([]Screen, *backoffice.Catalog, error) {
	if opts.Catalog == nil {
		opts.Catalog = backoffice.NewCatalog()
	}

	products, err := backoffice.NewProducts(c.Products(), opts)
	if err != nil {
		return nil, nil, err
	}
	users, err := backoffice.NewUsers(c.Users(), opts)
	if err != nil {
		return nil, nil, err
	}
	orders, err := backoffice.NewOrders(c.Orders(), opts)
	if err != nil {
		return nil, nil, err
	}
	return []Screen{products, users, orders}, opts.Catalog, nil
}
