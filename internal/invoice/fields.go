package invoice

import "github.com/zombor/invoice-parser/internal/extraction"

const itemsField = "Items"

// descriptor binds a source field name to a slot on a target of type P
type descriptor[P any] struct {
	name    string
	assign  func(P, *extraction.DocumentField)
	present func(P) bool
}

func slot[P, T any](name string, ref func(P) **T, build func(*extraction.DocumentField) *T) descriptor[P] {
	return descriptor[P]{
		name:    name,
		assign:  func(p P, f *extraction.DocumentField) { *ref(p) = build(f) },
		present: func(p P) bool { return *ref(p) != nil },
	}
}

func text(name string, ref func(*ParsedInvoice) **Field) descriptor[*ParsedInvoice] {
	return slot(name, ref, newField)
}

func address(name string, ref func(*ParsedInvoice) **AddressField) descriptor[*ParsedInvoice] {
	return slot(name, ref, newAddressField)
}

func item(name string, ref func(*LineItem) **Field) descriptor[*LineItem] {
	return slot(name, ref, newField)
}

// invoiceFields lists every named slot copied from the analyzed document, in output order
var invoiceFields = []descriptor[*ParsedInvoice]{
	text("VendorName", func(p *ParsedInvoice) **Field { return &p.VendorName }),
	address("VendorAddress", func(p *ParsedInvoice) **AddressField { return &p.VendorAddress }),
	text("VendorAddressRecipient", func(p *ParsedInvoice) **Field { return &p.VendorAddressRecipient }),

	text("CustomerName", func(p *ParsedInvoice) **Field { return &p.CustomerName }),
	text("CustomerId", func(p *ParsedInvoice) **Field { return &p.CustomerId }),
	address("CustomerAddress", func(p *ParsedInvoice) **AddressField { return &p.CustomerAddress }),
	text("CustomerAddressRecipient", func(p *ParsedInvoice) **Field { return &p.CustomerAddressRecipient }),

	text("InvoiceId", func(p *ParsedInvoice) **Field { return &p.InvoiceId }),
	text("InvoiceDate", func(p *ParsedInvoice) **Field { return &p.InvoiceDate }),
	text("DueDate", func(p *ParsedInvoice) **Field { return &p.DueDate }),
	text("InvoiceTotal", func(p *ParsedInvoice) **Field { return &p.InvoiceTotal }),
	text("PurchaseOrder", func(p *ParsedInvoice) **Field { return &p.PurchaseOrder }),

	text("SubTotal", func(p *ParsedInvoice) **Field { return &p.SubTotal }),
	text("TotalTax", func(p *ParsedInvoice) **Field { return &p.TotalTax }),
	text("PreviousUnpaidBalance", func(p *ParsedInvoice) **Field { return &p.PreviousUnpaidBalance }),
	text("AmountDue", func(p *ParsedInvoice) **Field { return &p.AmountDue }),

	address("BillingAddress", func(p *ParsedInvoice) **AddressField { return &p.BillingAddress }),
	text("BillingAddressRecipient", func(p *ParsedInvoice) **Field { return &p.BillingAddressRecipient }),
	address("ShippingAddress", func(p *ParsedInvoice) **AddressField { return &p.ShippingAddress }),
	text("ShippingAddressRecipient", func(p *ParsedInvoice) **Field { return &p.ShippingAddressRecipient }),
	address("ServiceAddress", func(p *ParsedInvoice) **AddressField { return &p.ServiceAddress }),
	text("ServiceAddressRecipient", func(p *ParsedInvoice) **Field { return &p.ServiceAddressRecipient }),
	address("RemittanceAddress", func(p *ParsedInvoice) **AddressField { return &p.RemittanceAddress }),
	text("RemittanceAddressRecipient", func(p *ParsedInvoice) **Field { return &p.RemittanceAddressRecipient }),

	text("ServiceStartDate", func(p *ParsedInvoice) **Field { return &p.ServiceStartDate }),
	text("ServiceEndDate", func(p *ParsedInvoice) **Field { return &p.ServiceEndDate }),
}

// lineItemFields lists the slots copied from each Items element
var lineItemFields = []descriptor[*LineItem]{
	item("Description", func(l *LineItem) **Field { return &l.Description }),
	item("Quantity", func(l *LineItem) **Field { return &l.Quantity }),
	item("Unit", func(l *LineItem) **Field { return &l.Unit }),
	item("UnitPrice", func(l *LineItem) **Field { return &l.UnitPrice }),
	item("ProductCode", func(l *LineItem) **Field { return &l.ProductCode }),
	item("Date", func(l *LineItem) **Field { return &l.Date }),
	item("Tax", func(l *LineItem) **Field { return &l.Tax }),
	item("Amount", func(l *LineItem) **Field { return &l.Amount }),
}

// FieldNames returns the names of all named invoice slots
func FieldNames() []string {
	names := make([]string, len(invoiceFields))
	for i, d := range invoiceFields {
		names[i] = d.name
	}
	return names
}

// Populated returns the names of the slots present on p
func (p *ParsedInvoice) Populated() []string {
	var names []string
	for _, d := range invoiceFields {
		if d.present(p) {
			names = append(names, d.name)
		}
	}
	return names
}

func newField(f *extraction.DocumentField) *Field {
	field := &Field{
		Content:     f.Content,
		ValueNumber: f.ValueNumber,
		Confidence:  *f.Confidence,
	}
	switch {
	case f.ValueString != nil:
		field.Value = *f.ValueString
	case f.ValueDate != nil:
		field.Value = *f.ValueDate
	}
	if f.ValueCurrency != nil {
		field.ValueCurrency = &CurrencyValue{
			Amount:       f.ValueCurrency.Amount,
			CurrencyCode: f.ValueCurrency.CurrencyCode,
		}
	}
	return field
}

func newAddressField(f *extraction.DocumentField) *AddressField {
	field := &AddressField{
		Content:    f.Content,
		Confidence: *f.Confidence,
	}
	if a := f.ValueAddress; a != nil {
		field.Value = &Address{
			StreetAddress: a.StreetAddress,
			City:          a.City,
			State:         a.State,
			PostalCode:    a.PostalCode,
			CountryRegion: a.CountryRegion,
		}
	}
	return field
}
