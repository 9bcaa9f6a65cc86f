package extraction

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseDocumentJSON", func() {
	var (
		text   string
		result *AnalysisResult
		err    error
	)

	JustBeforeEach(func() {
		schema, compileErr := compileDocumentSchema()
		Expect(compileErr).NotTo(HaveOccurred())
		result, err = parseDocumentJSON(text, schema)
	})

	When("the output is a valid document", func() {
		BeforeEach(func() {
			text = "```json\n" + `{
				"docType": "invoice",
				"confidence": 0.8,
				"fields": {
					"InvoiceTotal": {"type": "currency", "content": "$10.00", "valueCurrency": {"amount": 10, "currencyCode": "USD"}, "confidence": 0.9}
				}
			}` + "\n```"
		})

		It("should wrap it as a single-document result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Documents).To(HaveLen(1))
			Expect(result.Documents[0].DocType).To(Equal("invoice"))
			Expect(result.Documents[0].Fields).To(HaveKey("InvoiceTotal"))
		})
	})

	When("the output is missing fields", func() {
		BeforeEach(func() {
			text = `{"docType": "invoice"}`
		})

		It("should fail schema validation", func() {
			Expect(err).To(MatchError(ContainSubstring("does not match schema")))
		})
	})

	When("a field is not an object", func() {
		BeforeEach(func() {
			text = `{"docType": "invoice", "fields": {"VendorName": "Acme"}}`
		})

		It("should fail schema validation", func() {
			Expect(err).To(MatchError(ContainSubstring("does not match schema")))
		})
	})

	When("there is no JSON object", func() {
		BeforeEach(func() {
			text = "I could not read this document."
		})

		It("should return an error", func() {
			Expect(err).To(MatchError("no JSON object found in response"))
		})
	})
})

var _ = Describe("Gemini", func() {
	var g *Gemini

	BeforeEach(func() {
		var err error
		g, err = NewGemini(context.Background(), "", "")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(g.Close()).To(Succeed())
	})

	When("no API key is configured", func() {
		It("should report ErrNotConfigured on submit", func() {
			_, err := g.Submit(context.Background(), []byte("data"), "image/png")
			Expect(err).To(MatchError(ErrNotConfigured))
		})
	})

	Describe("Status and Release", func() {
		var op *Operation

		BeforeEach(func() {
			op = &Operation{ID: "job-1"}
		})

		It("should report running until the job finishes", func() {
			job := &geminiJob{cancel: func() {}, done: make(chan struct{})}
			g.jobs[op.ID] = job

			status, err := g.Status(context.Background(), op)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(StateRunning))

			job.result = &AnalysisResult{}
			close(job.done)

			status, err = g.Status(context.Background(), op)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(StateSucceeded))
		})

		It("should report a failed job", func() {
			job := &geminiJob{cancel: func() {}, done: make(chan struct{}), err: errors.New("quota exceeded")}
			close(job.done)
			g.jobs[op.ID] = job

			status, err := g.Status(context.Background(), op)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(StateFailed))
			Expect(status.Error.Message).To(Equal("quota exceeded"))
		})

		It("should cancel and forget a released job", func() {
			cancelled := false
			g.jobs[op.ID] = &geminiJob{cancel: func() { cancelled = true }, done: make(chan struct{})}

			g.Release(op)

			Expect(cancelled).To(BeTrue())
			_, err := g.Status(context.Background(), op)
			var svcErr *ServiceError
			Expect(errors.As(err, &svcErr)).To(BeTrue())
			Expect(svcErr.StatusCode).To(Equal(404))
		})
	})
})
