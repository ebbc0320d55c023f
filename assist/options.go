// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package assist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jcodagnone/geoassist/form"
	"github.com/jcodagnone/geoassist/mapassist"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLatitudeSelector  = ".latitude"
	DefaultLongitudeSelector = ".longitude"
	DefaultViewportSelector  = ".viewport"
	DefaultZoomSelector      = ".zoom"
	DefaultErrorSelector     = ".geocode-error"
	DefaultParent            = "form"
	// DefaultRequestTimeout is the address debounce delay in milliseconds.
	DefaultRequestTimeout = 800

	DefaultAddressLineSelector = ".address-line"
	DefaultLocalitySelector    = ".locality"
	DefaultPostalCodeSelector  = ".postal-code"
	DefaultCountryCodeSelector = ".country-code"
)

// MultipleFields switches a binding to structured address fields. In option
// files it is either the literal true (every selector defaulted) or an object
// overriding some of the selectors.
type MultipleFields struct {
	Enabled bool `yaml:"-" json:"-"`

	AddressLineSelector string `yaml:"addressLineSelector" json:"addressLineSelector" validate:"omitempty,selector"`
	LocalitySelector    string `yaml:"localitySelector" json:"localitySelector" validate:"omitempty,selector"`
	PostalCodeSelector  string `yaml:"postalCodeSelector" json:"postalCodeSelector" validate:"omitempty,selector"`
	CountryCodeSelector string `yaml:"countryCodeSelector" json:"countryCodeSelector" validate:"omitempty,selector"`
}

type multipleFieldsSelectors MultipleFields

// UnmarshalYAML accepts a boolean or a mapping.
func (m *MultipleFields) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var enabled bool
		if err := value.Decode(&enabled); err != nil {
			return fmt.Errorf("multipleFields: expected a boolean or a mapping: %w", err)
		}

		*m = MultipleFields{Enabled: enabled}

		return nil
	}

	var sel multipleFieldsSelectors
	if err := value.Decode(&sel); err != nil {
		return fmt.Errorf("multipleFields: %w", err)
	}

	*m = MultipleFields(sel)
	m.Enabled = true

	return nil
}

// UnmarshalJSON accepts a boolean or an object.
func (m *MultipleFields) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] != '{':
		var enabled bool
		if err := json.Unmarshal(data, &enabled); err != nil {
			return fmt.Errorf("multipleFields: expected a boolean or an object: %w", err)
		}

		*m = MultipleFields{Enabled: enabled}

		return nil
	}

	var sel multipleFieldsSelectors
	if err := json.Unmarshal(data, &sel); err != nil {
		return fmt.Errorf("multipleFields: %w", err)
	}

	*m = MultipleFields(sel)
	m.Enabled = true

	return nil
}

// MarshalJSON writes false for single-field bindings.
func (m MultipleFields) MarshalJSON() ([]byte, error) {
	if !m.Enabled {
		return []byte("false"), nil
	}

	return json.Marshal(multipleFieldsSelectors(m))
}

// Options configures one binding. Zero values take the documented defaults.
type Options struct {
	Map            *mapassist.Config `yaml:"map,omitempty" json:"map,omitempty"`
	MultipleFields MultipleFields    `yaml:"multipleFields" json:"multipleFields"`

	LatitudeSelector  string `yaml:"latitudeSelector" json:"latitudeSelector" validate:"selector"`
	LongitudeSelector string `yaml:"longitudeSelector" json:"longitudeSelector" validate:"selector"`
	ViewportSelector  string `yaml:"viewportSelector" json:"viewportSelector" validate:"selector"`
	ZoomSelector      string `yaml:"zoomSelector" json:"zoomSelector" validate:"selector"`
	ErrorSelector     string `yaml:"errorSelector" json:"errorSelector" validate:"selector"`
	Parent            string `yaml:"parent" json:"parent" validate:"selector"`
	// RequestTimeout is the address debounce delay in milliseconds.
	RequestTimeout int `yaml:"requestTimeout" json:"requestTimeout" validate:"gte=0"`
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}

// WithDefaults returns a copy of o with every unset field defaulted.
func (o Options) WithDefaults() Options {
	o.LatitudeSelector = orDefault(o.LatitudeSelector, DefaultLatitudeSelector)
	o.LongitudeSelector = orDefault(o.LongitudeSelector, DefaultLongitudeSelector)
	o.ViewportSelector = orDefault(o.ViewportSelector, DefaultViewportSelector)
	o.ZoomSelector = orDefault(o.ZoomSelector, DefaultZoomSelector)
	o.ErrorSelector = orDefault(o.ErrorSelector, DefaultErrorSelector)
	o.Parent = orDefault(o.Parent, DefaultParent)

	if o.RequestTimeout == 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}

	if o.MultipleFields.Enabled {
		mf := &o.MultipleFields
		mf.AddressLineSelector = orDefault(mf.AddressLineSelector, DefaultAddressLineSelector)
		mf.LocalitySelector = orDefault(mf.LocalitySelector, DefaultLocalitySelector)
		mf.PostalCodeSelector = orDefault(mf.PostalCodeSelector, DefaultPostalCodeSelector)
		mf.CountryCodeSelector = orDefault(mf.CountryCodeSelector, DefaultCountryCodeSelector)
	}

	if o.Map != nil {
		m := *o.Map
		if m.DefaultZoom == nil {
			zoom := m.Zoom()
			m.DefaultZoom = &zoom
		}

		if m.ProviderOptions == nil {
			m.ProviderOptions = map[string]any{}
		}

		o.Map = &m
	}

	return o
}

// Delay returns the address debounce delay.
func (o Options) Delay() time.Duration {
	return time.Duration(o.RequestTimeout) * time.Millisecond
}

// ErrInvalidOptions wraps every validation failure of Options.
var ErrInvalidOptions = errors.New("invalid binding options")

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("selector", func(fl validator.FieldLevel) bool {
		_, err := form.Compile(fl.Field().String())

		return err == nil
	}); err != nil {
		panic(err)
	}

	return v
}

// Validate checks o, which is expected to have its defaults applied.
func (o Options) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	return nil
}

var optionsValidator = newValidator()

// LoadOptions reads binding options from a YAML (or JSON) document.
func LoadOptions(r io.Reader) (Options, error) {
	var o Options

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&o); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, fmt.Errorf("decoding options: %w", err)
	}

	return o, nil
}
