// Package storefront defines the DOM selector sets used to drive the
// storefront UI. The storefront ships obfuscated, build-dependent class
// names, so selectors live in data rather than code: a default set is
// embedded and an external file can override it when the storefront deploys
// a new build.
package storefront

import (
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// LabeledSelector pairs a CSS selector with the localized label texts that
// identify the wanted element among the selector's matches. An empty label
// list means the selector alone is sufficient.
type LabeledSelector struct {
	Selector string   `yaml:"selector"`
	Labels   []string `yaml:"labels,omitempty"`
}

// PointsShopSelectors describes the points-shop page and its purchase dialog.
type PointsShopSelectors struct {
	// Item matches every item card in the shop grid.
	Item string `yaml:"item"`
	// Price matches the price element inside an item card.
	Price string `yaml:"price"`
	// FreeLabels are the localized zero-cost price markers.
	FreeLabels []string `yaml:"free_labels"`
	// Dialog matches the purchase dialog container.
	Dialog string `yaml:"dialog"`
	// Confirm is the confirm-free-purchase control inside the dialog.
	Confirm LabeledSelector `yaml:"confirm"`
	// Equipped is the already-owned control inside the dialog.
	Equipped LabeledSelector `yaml:"equipped"`
	// Dismiss is the dismiss control inside (or after) the dialog.
	Dismiss LabeledSelector `yaml:"dismiss"`
	// ModalClose are fallback controls tried in order to close whatever
	// dialog is open.
	ModalClose []LabeledSelector `yaml:"modal_close"`
}

// ProductSelectors describes a product page and its claim affordances.
type ProductSelectors struct {
	// AgeGatePath is the URL path fragment marking the age interstitial.
	AgeGatePath string `yaml:"age_gate_path"`
	AgeYear     string `yaml:"age_year"`
	AgeMonth    string `yaml:"age_month"`
	AgeDay      string `yaml:"age_day"`
	AgeSubmit   string `yaml:"age_submit"`
	// Owned matches the "you already own this" affordance.
	Owned LabeledSelector `yaml:"owned"`
	// FreeLicenseForm matches the add-free-license form post target.
	FreeLicenseForm string `yaml:"free_license_form"`
	// AddToAccount is the anchor whose embedded cart-add call carries the
	// sub id.
	AddToAccount LabeledSelector `yaml:"add_to_account"`
	// BundleInput is the hidden form field carrying a bundle id.
	BundleInput string `yaml:"bundle_input"`
	// AddToLibrary is the UI-only library-add affordance.
	AddToLibrary LabeledSelector `yaml:"add_to_library"`
	// LibraryConfirm is the follow-up dialog dismiss after a library add.
	LibraryConfirm LabeledSelector `yaml:"library_confirm"`
	// Install is the install/download affordance (redirects, no dialog).
	Install LabeledSelector `yaml:"install"`
}

// Selectors is the full selector set for one storefront build.
type Selectors struct {
	PointsShop PointsShopSelectors `yaml:"points_shop"`
	Product    ProductSelectors    `yaml:"product"`
}

// Load reads a selector set from a filesystem path within fsys.
func Load(fsys fs.FS, name string) (*Selectors, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read selector file: %w", err)
	}
	return parse(data)
}

// LoadFile reads a selector set from a path on disk.
func LoadFile(path string) (*Selectors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selector file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Selectors, error) {
	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse selector file: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Selectors) validate() error {
	required := map[string]string{
		"points_shop.item":          s.PointsShop.Item,
		"points_shop.price":         s.PointsShop.Price,
		"points_shop.dialog":        s.PointsShop.Dialog,
		"product.free_license_form": s.Product.FreeLicenseForm,
		"product.age_year":          s.Product.AgeYear,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("selector %s is required", name)
		}
	}
	if len(s.PointsShop.FreeLabels) == 0 {
		return fmt.Errorf("points_shop.free_labels must not be empty")
	}
	return nil
}
