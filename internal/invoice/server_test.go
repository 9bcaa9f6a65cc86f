package invoice

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-parser/internal/extraction"
)

// multipartUpload builds a form with a single "file" part of the given type
func multipartUpload(filename, contentType string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	ExpectWithOffset(1, writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeError(resp *http.Response) errorResponse {
	defer resp.Body.Close()
	var body errorResponse
	ExpectWithOffset(1, json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return body
}

var _ = Describe("Server", func() {
	var (
		parser      *mockParser
		db          *mockDB
		storage     *mockStorage
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, DefaultMaxSize, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		parser = &mockParser{}
		db = newMockDB()
		storage = newMockStorage()
		service = NewServiceWithDeps(parser, db, storage, &mockIDGenerator{id: "rec-1"}, &mockTimeSource{now: time.Now()})
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	upload := func(filename, contentType string, data []byte) *http.Response {
		body, formType := multipartUpload(filename, contentType, data)
		resp, err := http.Post(ghttpServer.URL()+"/api/invoices/parse", formType, body)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return resp
	}

	Describe("handleHealth", func() {
		It("should report ok without credentials", func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()

			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("handleParseInvoice", func() {
		When("the upload is valid", func() {
			It("should return the parsed invoice", func() {
				resp := upload("invoice.pdf", "application/pdf", []byte("%PDF-1.7"))
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var body struct {
					Success bool            `json:"success"`
					Data    json.RawMessage `json:"data"`
				}
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body.Success).To(BeTrue())

				var data map[string]any
				Expect(json.Unmarshal(body.Data, &data)).To(Succeed())
				Expect(data).To(HaveKeyWithValue("fileName", "invoice.pdf"))
				Expect(data).To(HaveKeyWithValue("fileHash", Fingerprint([]byte("%PDF-1.7"))))
				Expect(data).To(HaveKey("InvoiceId"))
				Expect(data).NotTo(HaveKey("VendorName"))
			})

			It("should archive the upload", func() {
				resp := upload("invoice.pdf", "application/pdf", []byte("%PDF-1.7"))
				resp.Body.Close()
				Expect(db.records).To(HaveKey("rec-1"))
			})
		})

		When("the part has no usable content type", func() {
			It("should infer it from the file extension", func() {
				resp := upload("scan.JPG", "application/octet-stream", []byte("jpeg-ish"))
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(db.records["rec-1"].ContentType).To(Equal("image/jpeg"))
			})
		})

		When("no file is provided", func() {
			It("should return 400 for a form without the file field", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("note", "hello")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/api/invoices/parse", writer.FormDataContentType(), body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp).Error).To(Equal("No file provided. Please include a file in the request."))
			})

			It("should return 400 for a request that is not multipart", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/invoices/parse", "application/json", bytes.NewBufferString("{}"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp).Error).To(HavePrefix("No file provided"))
			})
		})

		When("the file type is unsupported", func() {
			It("should return 400 naming the type", func() {
				resp := upload("notes.txt", "text/plain", []byte("hello"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				body := decodeError(resp)
				Expect(body.Error).To(HavePrefix("Invalid file type."))
				Expect(body.Error).To(HaveSuffix("Received: text/plain"))
				Expect(body.Details).To(BeEmpty())
			})
		})

		When("the file is empty", func() {
			It("should return 400", func() {
				resp := upload("empty.pdf", "application/pdf", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp).Error).To(Equal("File is empty. Please provide a valid file."))
			})
		})

		DescribeTable("pipeline failures",
			func(parseErr error, status int, message string) {
				parser.parseErr = parseErr
				resp := upload("invoice.pdf", "application/pdf", []byte("%PDF-1.7"))
				Expect(resp.StatusCode).To(Equal(status))
				body := decodeError(resp)
				Expect(body.Error).To(Equal(message))
				Expect(body.Details).To(Equal(parseErr.Error()))
				Expect(db.records).To(BeEmpty())
			},
			Entry("not configured",
				fmt.Errorf("submitting document: %w", extraction.ErrNotConfigured),
				http.StatusInternalServerError,
				"Document extraction service is not properly configured"),
			Entry("service rejected the request",
				fmt.Errorf("submitting document: %w", &extraction.ServiceError{StatusCode: 401, Code: "401", Message: "Access denied"}),
				http.StatusBadGateway,
				"Failed to process invoice with the document extraction service"),
			Entry("service unreachable",
				&extraction.TransportError{Op: "submitting document", Err: errors.New("connection refused")},
				http.StatusBadGateway,
				"Failed to process invoice with the document extraction service"),
			Entry("operation failed",
				fmt.Errorf("awaiting analysis: %w", &extraction.OperationFailedError{Code: "InvalidContent", Message: "corrupt file"}),
				http.StatusBadGateway,
				"Failed to process invoice with the document extraction service"),
			Entry("operation timed out",
				fmt.Errorf("awaiting analysis: %w", extraction.ErrPollTimeout),
				http.StatusBadGateway,
				"Failed to process invoice with the document extraction service"),
			Entry("no documents",
				ErrNoDocumentsFound,
				http.StatusUnprocessableEntity,
				"Could not extract invoice data from the provided file. Please ensure the file contains a valid invoice."),
			Entry("no invoice document",
				ErrNoInvoiceDocument,
				http.StatusUnprocessableEntity,
				"Could not extract invoice data from the provided file. Please ensure the file contains a valid invoice."),
			Entry("anything else",
				errors.New("unexpected"),
				http.StatusInternalServerError,
				"An error occurred while processing the invoice"),
		)

		When("the body exceeds the upload ceiling", func() {
			It("should return 400 TooLarge", func() {
				server = NewServerWithMux(service, auth, 1024, http.NewServeMux())
				body, formType := multipartUpload("big.pdf", "application/pdf", make([]byte, formOverhead+4096))
				req := httptest.NewRequest(http.MethodPost, "/api/invoices/parse", body)
				req.Header.Set("Content-Type", formType)
				rec := httptest.NewRecorder()

				server.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				var resp errorResponse
				Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
				Expect(resp.Error).To(HavePrefix("File size exceeds maximum allowed size of"))
				Expect(parser.calls).To(BeZero())
			})
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Invoice Parser"))
			resp.Body.Close()
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("middleware", func() {
		It("should generate a request ID", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("X-Request-ID")).NotTo(BeEmpty())
		})

		It("should echo a caller's request ID", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/health", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("X-Request-ID", "trace-123")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("X-Request-ID")).To(Equal("trace-123"))
		})

		It("should answer CORS preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/invoices/parse", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should turn a panic into a 500", func() {
			mux := http.NewServeMux()
			server = NewServerWithMux(service, auth, DefaultMaxSize, mux)
			mux.HandleFunc("GET /boom", func(w http.ResponseWriter, r *http.Request) {
				panic("boom")
			})
			rec := httptest.NewRecorder()

			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("archive routes", func() {
		BeforeEach(func() {
			db.records["rec-1"] = &Record{
				ID:          "rec-1",
				Filename:    "rec-1_invoice.png",
				ContentType: "image/png",
				Invoice:     &ParsedInvoice{FileName: "invoice.png", Items: LineItems{Values: []LineItem{}}},
			}
			storage.files["rec-1_invoice.png"] = []byte("png bytes")
		})

		It("should list records", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var records []Record
			Expect(json.NewDecoder(resp.Body).Decode(&records)).To(Succeed())
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal("rec-1"))
		})

		It("should get a record", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices/rec-1")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should return 404 for an unknown record", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices/nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(decodeError(resp).Error).To(Equal("Invoice not found"))
		})

		It("should serve the original file", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices/rec-1/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png bytes")))
		})

		It("should serve a PNG preview", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices/rec-1/preview")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
		})

		It("should delete a record", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/invoices/rec-1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.records).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		It("should export a workbook", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/export/invoices.xlsx")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("invoices.xlsx"))
		})

		It("should return 500 when the archive is unavailable", func() {
			db.listErr = errors.New("closed")
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			resp.Body.Close()
		})
	})
})
