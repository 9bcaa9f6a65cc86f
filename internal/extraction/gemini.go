package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/api/option"

	"github.com/zombor/invoice-parser/internal/imaging"
)

const DefaultGeminiModel = "gemini-2.5-pro"

// invoicePrompt asks for the analyzed-document JSON shape the mapper consumes
const invoicePrompt = `You are analyzing an invoice or receipt. Read every piece of text in the image and return ONLY a JSON object of this form:

{
  "docType": "invoice",
  "confidence": 0.0,
  "fields": {
    "<FieldName>": {"type": "string", "content": "<text as printed>", "valueString": "<value>", "confidence": 0.0}
  }
}

Use these field names when present: VendorName, VendorAddress, VendorAddressRecipient, CustomerName, CustomerId,
CustomerAddress, CustomerAddressRecipient, InvoiceId, InvoiceDate, DueDate, InvoiceTotal, PurchaseOrder, SubTotal,
TotalTax, PreviousUnpaidBalance, AmountDue, BillingAddress, BillingAddressRecipient, ShippingAddress,
ShippingAddressRecipient, ServiceAddress, ServiceAddressRecipient, RemittanceAddress, RemittanceAddressRecipient,
ServiceStartDate, ServiceEndDate, Items.

Rules:
- Dates use "type": "date" and "valueDate" in YYYY-MM-DD format
- Money uses "type": "currency" and "valueCurrency": {"amount": 0.00, "currencyCode": "USD"}
- Addresses use "type": "address" and "valueAddress" with streetAddress, city, state, postalCode, countryRegion
- Plain numbers use "type": "number" and "valueNumber"
- Items uses "type": "array" and "valueArray", each element {"type": "object", "valueObject": {...}} with
  Description, Quantity, Unit, UnitPrice, ProductCode, Date, Tax, Amount
- confidence is your certainty between 0 and 1
- Omit fields you cannot find
- Do not use markdown code blocks`

type geminiJob struct {
	cancel context.CancelFunc
	done   chan struct{}
	result *AnalysisResult
	err    error
}

// Gemini implements Backend using Google Gemini. Each submission runs in
// its own goroutine and is tracked until released.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	schema  *jsonschema.Schema
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]*geminiJob
}

// NewGemini creates a new Gemini backend. An empty apiKey yields a backend
// whose Submit reports ErrNotConfigured.
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	schema, err := compileDocumentSchema()
	if err != nil {
		return nil, err
	}

	g := &Gemini{
		schema:  schema,
		timeout: 2 * time.Minute,
		jobs:    make(map[string]*geminiJob),
	}
	if apiKey == "" {
		return g, nil
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	g.client = client
	g.model = client.GenerativeModel(modelName)
	return g, nil
}

// Submit starts analysis in the background and returns immediately
func (g *Gemini) Submit(ctx context.Context, data []byte, contentType string) (*Operation, error) {
	if g.client == nil {
		return nil, ErrNotConfigured
	}

	pngData, err := imaging.ToPNG(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("preparing document: %w", err)
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	job := &geminiJob{cancel: cancel, done: make(chan struct{})}
	op := &Operation{ID: uuid.NewString()}

	g.mu.Lock()
	g.jobs[op.ID] = job
	g.mu.Unlock()

	go func() {
		defer close(job.done)
		defer cancel()
		job.result, job.err = g.analyze(jobCtx, pngData)
		if job.err != nil {
			slog.Error("Gemini analysis failed", "operation", op.ID, "error", job.err)
		}
	}()

	return op, nil
}

func (g *Gemini) analyze(ctx context.Context, pngData []byte) (*AnalysisResult, error) {
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", pngData), genai.Text(invoicePrompt))
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	result, err := parseDocumentJSON(text.String(), g.schema)
	if err != nil {
		return nil, fmt.Errorf("parsing gemini output: %w", err)
	}
	return result, nil
}

// Status reports whether the background analysis has finished
func (g *Gemini) Status(ctx context.Context, op *Operation) (*OperationStatus, error) {
	g.mu.Lock()
	job, ok := g.jobs[op.ID]
	g.mu.Unlock()
	if !ok {
		return nil, &ServiceError{StatusCode: 404, Code: "NotFound", Message: fmt.Sprintf("unknown operation %s", op.ID)}
	}

	select {
	case <-job.done:
	default:
		return &OperationStatus{State: StateRunning}, nil
	}

	if job.err != nil {
		return &OperationStatus{
			State: StateFailed,
			Error: &OperationError{Code: "GenerationFailed", Message: job.err.Error()},
		}, nil
	}
	return &OperationStatus{State: StateSucceeded, Result: job.result}, nil
}

// Release cancels op if it is still running and forgets it
func (g *Gemini) Release(op *Operation) {
	g.mu.Lock()
	job, ok := g.jobs[op.ID]
	delete(g.jobs, op.ID)
	g.mu.Unlock()
	if ok {
		job.cancel()
	}
}

// Close cancels outstanding jobs and closes the Gemini client
func (g *Gemini) Close() error {
	g.mu.Lock()
	for id, job := range g.jobs {
		job.cancel()
		delete(g.jobs, id)
	}
	g.mu.Unlock()

	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
