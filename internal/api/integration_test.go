package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-ledger/internal/ingest"
	"github.com/zombor/invoice-ledger/internal/ledger"
)

var _ = Describe("Integration", func() {
	var (
		dbPath      string
		storagePath string
		db          *ingest.BoltStore
		storage     *ingest.LocalStorage
		scanner     *mockScanner
		queue       *ingest.Queue
		ghServer    *ghttp.Server
	)

	start := func() {
		var err error
		db, err = ingest.NewBoltStore(dbPath)
		Expect(err).NotTo(HaveOccurred())
		storage, err = ingest.NewLocalStorage(storagePath)
		Expect(err).NotTo(HaveOccurred())

		queue = ingest.NewQueue(scanner, ingest.Config{Store: db, Storage: storage})
		Expect(queue.Restore()).To(Succeed())

		exporter := ledger.NewExporterWithDeps(ledger.DefaultProfile(), &fixedTime{now: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)})
		server := NewServerWithMux(Options{Queue: queue, Scanner: scanner, Exporter: exporter}, http.NewServeMux())

		ghServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "DELETE"} {
			ghServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	stop := func() {
		if ghServer != nil {
			ghServer.Close()
			ghServer = nil
		}
		if db != nil {
			Expect(db.Close()).To(Succeed())
			db = nil
		}
	}

	listDocuments := func() []ingest.Record {
		resp, err := http.Get(ghServer.URL() + "/api/documents")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var records []ingest.Record
		Expect(json.NewDecoder(resp.Body).Decode(&records)).To(Succeed())
		return records
	}

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		dbPath = filepath.Join(dir, "test.db")
		storagePath = filepath.Join(dir, "documents")
		scanner = newMockScanner()
		start()
	})

	AfterEach(func() {
		stop()
	})

	It("uploads documents, extracts them, exports the ledger and survives a restart", func() {
		pdf := []byte("%PDF-1.4 fake invoice")
		body, contentType := multipartBody([]upload{
			{filename: "enero.pdf", contentType: "application/pdf", data: pdf},
			{filename: "febrero.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 another")},
		}, map[string]string{"providerCode": "400.12"})

		resp, err := http.Post(ghServer.URL()+"/api/documents", contentType, body)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

		Expect(queue.ProcessPending(context.Background())).To(Equal(2))

		records := listDocuments()
		Expect(records).To(HaveLen(2))
		Expect(records[0].Document.Filename).To(Equal("enero.pdf"))
		Expect(records[0].Status).To(Equal(ingest.StatusSucceeded))
		Expect(records[1].Status).To(Equal(ingest.StatusSucceeded))
		Expect(records[0].Document.ProviderCode).To(Equal("400.12"))

		resp, err = http.Get(ghServer.URL() + "/api/documents/" + records[0].ID + "/file")
		Expect(err).NotTo(HaveOccurred())
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(pdf))

		resp, err = http.Post(ghServer.URL()+"/api/documents/export", "application/json", strings.NewReader(`{"settings":{"providerAccountCodeDefault":"400.1"}}`))
		Expect(err).NotTo(HaveOccurred())
		exported, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring(`filename="IVS.xls"`))

		lines := strings.Split(strings.TrimPrefix(string(exported), "\ufeff"), "\r\n")
		Expect(lines).To(HaveLen(3))
		Expect(lines[1]).To(HavePrefix("1;"))
		Expect(lines[1]).To(ContainSubstring("F-enero.pdf"))
		Expect(lines[2]).To(HavePrefix("2;"))
		Expect(lines[2]).To(ContainSubstring("F-febrero.pdf"))

		stop()
		start()

		restored := listDocuments()
		Expect(restored).To(HaveLen(2))
		Expect(restored[0].ID).To(Equal(records[0].ID))
		Expect(restored[0].Status).To(Equal(ingest.StatusSucceeded))
		Expect(*restored[0].Fields.NumeroFactura).To(Equal("F-enero.pdf"))

		resp, err = http.Get(ghServer.URL() + "/api/documents/" + records[0].ID + "/file")
		Expect(err).NotTo(HaveOccurred())
		data, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(pdf))
	})

	It("removes stored files when the queue is cleared", func() {
		body, contentType := multipartBody([]upload{
			{filename: "marzo.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4")},
		}, nil)
		resp, err := http.Post(ghServer.URL()+"/api/documents", contentType, body)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		records := listDocuments()
		Expect(records).To(HaveLen(1))
		Expect(records[0].StoragePath).NotTo(BeEmpty())

		req, err := http.NewRequest("DELETE", ghServer.URL()+"/api/documents", nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err = http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(listDocuments()).To(BeEmpty())
		_, err = storage.Get(records[0].StoragePath)
		Expect(err).To(HaveOccurred())

		stop()
		start()
		Expect(listDocuments()).To(BeEmpty())
	})
})
