// package app provides a composition based component framework for building
// a service out of distinct sub-applications.
//
// An example of an application is the document library or user auth.
package app

import (
	"fmt"

	"github.com/go-chi/chi/v5"
)

// Bindable items can bind their URL routes to a router.
type Bindable interface {
	Bind(r chi.Router)
}

// An App is a component that controls a part of the service.
type App interface {
	Bindable
	Name() string
	Migrate() error
}

// MigrateAll runs the migrations of each app in order.
func MigrateAll(apps ...App) error {
	for _, a := range apps {
		if err := a.Migrate(); err != nil {
			return fmt.Errorf("migrating %s: %w", a.Name(), err)
		}
	}
	return nil
}
