package invoice

import "time"

// UploadedDocument is a file received for parsing
type UploadedDocument struct {
	Data        []byte
	ContentType string
	Size        int64
	Filename    string
}

// CurrencyValue is a monetary amount as decomposed by the extraction service
type CurrencyValue struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currencyCode,omitempty"`
}

// Field is an extracted value with its raw text and confidence
type Field struct {
	Content       string         `json:"content"`
	Value         string         `json:"value,omitempty"` // typed string or ISO date value
	ValueNumber   *float64       `json:"valueNumber,omitempty"`
	ValueCurrency *CurrencyValue `json:"valueCurrency,omitempty"`
	Confidence    float64        `json:"confidence"`
}

// Address is a structured postal address
type Address struct {
	StreetAddress string `json:"streetAddress,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	CountryRegion string `json:"countryRegion,omitempty"`
}

// AddressField is an extracted address
type AddressField struct {
	Content    string   `json:"content"`
	Value      *Address `json:"value,omitempty"`
	Confidence float64  `json:"confidence"`
}

// LineItem is one row of the invoice's item table
type LineItem struct {
	Description *Field `json:"Description,omitempty"`
	Quantity    *Field `json:"Quantity,omitempty"`
	Unit        *Field `json:"Unit,omitempty"`
	UnitPrice   *Field `json:"UnitPrice,omitempty"`
	ProductCode *Field `json:"ProductCode,omitempty"`
	Date        *Field `json:"Date,omitempty"`
	Tax         *Field `json:"Tax,omitempty"`
	Amount      *Field `json:"Amount,omitempty"`
}

// LineItems holds the ordered item table
type LineItems struct {
	Values []LineItem `json:"values"`
}

// ParsedInvoice is the normalized result of parsing one document.
// A nil slot means the field was not extracted.
type ParsedInvoice struct {
	DocType    string  `json:"docType,omitempty"`
	Confidence float64 `json:"confidence"`
	FileHash   string  `json:"fileHash"`
	FileName   string  `json:"fileName"`
	FileSize   int64   `json:"fileSize"`

	VendorName             *Field        `json:"VendorName,omitempty"`
	VendorAddress          *AddressField `json:"VendorAddress,omitempty"`
	VendorAddressRecipient *Field        `json:"VendorAddressRecipient,omitempty"`

	CustomerName             *Field        `json:"CustomerName,omitempty"`
	CustomerId               *Field        `json:"CustomerId,omitempty"`
	CustomerAddress          *AddressField `json:"CustomerAddress,omitempty"`
	CustomerAddressRecipient *Field        `json:"CustomerAddressRecipient,omitempty"`

	InvoiceId     *Field `json:"InvoiceId,omitempty"`
	InvoiceDate   *Field `json:"InvoiceDate,omitempty"`
	DueDate       *Field `json:"DueDate,omitempty"`
	InvoiceTotal  *Field `json:"InvoiceTotal,omitempty"`
	PurchaseOrder *Field `json:"PurchaseOrder,omitempty"`

	SubTotal              *Field `json:"SubTotal,omitempty"`
	TotalTax              *Field `json:"TotalTax,omitempty"`
	PreviousUnpaidBalance *Field `json:"PreviousUnpaidBalance,omitempty"`
	AmountDue             *Field `json:"AmountDue,omitempty"`

	BillingAddress             *AddressField `json:"BillingAddress,omitempty"`
	BillingAddressRecipient    *Field        `json:"BillingAddressRecipient,omitempty"`
	ShippingAddress            *AddressField `json:"ShippingAddress,omitempty"`
	ShippingAddressRecipient   *Field        `json:"ShippingAddressRecipient,omitempty"`
	ServiceAddress             *AddressField `json:"ServiceAddress,omitempty"`
	ServiceAddressRecipient    *Field        `json:"ServiceAddressRecipient,omitempty"`
	RemittanceAddress          *AddressField `json:"RemittanceAddress,omitempty"`
	RemittanceAddressRecipient *Field        `json:"RemittanceAddressRecipient,omitempty"`

	ServiceStartDate *Field `json:"ServiceStartDate,omitempty"`
	ServiceEndDate   *Field `json:"ServiceEndDate,omitempty"`

	Items LineItems `json:"Items"`
}

// Record is an archived parse result
type Record struct {
	ID          string         `json:"id"`
	Fingerprint string         `json:"fingerprint"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	PageCount   int            `json:"page_count"`
	Invoice     *ParsedInvoice `json:"invoice"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
