package extraction

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Extractor", func() {
	var extractor *Extractor

	BeforeEach(func() {
		extractor = NewExtractor()
	})

	Describe("Extract", func() {
		It("fails for missing files", func() {
			result := extractor.Extract("/nonexistent/receipt.pdf")

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("File not found"))
			Expect(result.FileType).To(Equal("unknown"))
			Expect(result.ExtractionMethod).To(Equal("none"))
		})

		It("rejects unsupported file types by sniffed content", func() {
			dir := GinkgoT().TempDir()
			// .png extension, but the content is plain text
			path := filepath.Join(dir, "receipt.png")
			Expect(os.WriteFile(path, []byte("just some text"), 0o644)).To(Succeed())

			result := extractor.Extract(path)

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("Unsupported file type"))
			Expect(result.Error).To(ContainSubstring("Supported: PDF, PNG, JPG, GIF, WEBP, HEIC."))
			Expect(result.ExtractionMethod).To(Equal("none"))
		})
	})
})
