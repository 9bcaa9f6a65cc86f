package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AnalysisResult is the raw output of a succeeded analyze operation
type AnalysisResult struct {
	APIVersion string              `json:"apiVersion,omitempty"`
	ModelID    string              `json:"modelId,omitempty"`
	Content    string              `json:"content,omitempty"`
	Documents  []*AnalyzedDocument `json:"documents"`
}

// AnalyzedDocument is one document recognized in the input.
// Fields are kept raw so each one can be decoded and rejected on its own.
type AnalyzedDocument struct {
	DocType    string                     `json:"docType"`
	Confidence float64                    `json:"confidence"`
	Fields     map[string]json.RawMessage `json:"fields"`
}

// DocumentField is a single extracted value
type DocumentField struct {
	Type          string                     `json:"type"`
	Content       string                     `json:"content,omitempty"`
	Confidence    *float64                   `json:"confidence,omitempty"`
	ValueString   *string                    `json:"valueString,omitempty"`
	ValueDate     *string                    `json:"valueDate,omitempty"`
	ValueNumber   *float64                   `json:"valueNumber,omitempty"`
	ValueCurrency *CurrencyValue             `json:"valueCurrency,omitempty"`
	ValueAddress  *AddressValue              `json:"valueAddress,omitempty"`
	ValueArray    []json.RawMessage          `json:"valueArray,omitempty"`
	ValueObject   map[string]json.RawMessage `json:"valueObject,omitempty"`
}

// CurrencyValue is a monetary amount
type CurrencyValue struct {
	Amount         float64 `json:"amount"`
	CurrencySymbol string  `json:"currencySymbol,omitempty"`
	CurrencyCode   string  `json:"currencyCode,omitempty"`
}

// AddressValue is a structured postal address
type AddressValue struct {
	HouseNumber   string `json:"houseNumber,omitempty"`
	Road          string `json:"road,omitempty"`
	StreetAddress string `json:"streetAddress,omitempty"`
	Unit          string `json:"unit,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	CountryRegion string `json:"countryRegion,omitempty"`
}

// DecodeField decodes a raw field value
func DecodeField(raw json.RawMessage) (*DocumentField, error) {
	var field *DocumentField
	if err := json.Unmarshal(raw, &field); err != nil {
		return nil, fmt.Errorf("decoding field: %w", err)
	}
	if field == nil {
		return nil, errors.New("decoding field: null value")
	}
	return field, nil
}
