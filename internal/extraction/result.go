package extraction

// Result is the outcome of text extraction from a receipt file.
type Result struct {
	Success          bool   `json:"success"`
	Text             string `json:"text"`
	FileType         string `json:"fileType"`
	ExtractionMethod string `json:"extractionMethod"`
	Error            string `json:"error,omitempty"`
}

// Failure creates a failed extraction result. fileType may be empty
// when the media type was never determined.
func Failure(err, fileType string) Result {
	if fileType == "" {
		fileType = "unknown"
	}
	return Result{
		Success:          false,
		FileType:         fileType,
		ExtractionMethod: "none",
		Error:            err,
	}
}
