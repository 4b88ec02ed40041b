package match

// Accepted media types for submitted documents.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Document is one file ready to be sent to the analysis service.
type Document struct {
	Name      string
	MediaType string
	Data      []byte
}

// Submission is a validated batch of documents plus the criteria text.
type Submission struct {
	Criteria  string
	Documents []Document
}

// Filenames returns the document names in submission order.
func (s Submission) Filenames() []string {
	names := make([]string, len(s.Documents))
	for i, d := range s.Documents {
		names[i] = d.Name
	}
	return names
}
