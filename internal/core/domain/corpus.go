package domain

// SourceDocument is one corpus file. URLs keeps every match in order of appearance, duplicates included.
type SourceDocument struct {
	Category string   `json:"category"`
	Source   string   `json:"source"`
	Text     string   `json:"-"`
	URLs     []string `json:"urls"`
}

// Segment is a blank-line-delimited block of a SourceDocument.
// URLs is the whole file's list, not only the URLs inside the block.
type Segment struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Index    int      `json:"index"`
	Category string   `json:"category"`
	Source   string   `json:"source"`
	URLs     []string `json:"urls"`
}

// Chunk is the unit that gets embedded and indexed.
type Chunk struct {
	ID       int      `json:"id"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Title    string   `json:"title"`
	Index    int      `json:"index"`
	Source   string   `json:"source"`
	URLs     []string `json:"urls,omitempty"`
}

type CorpusFile struct {
	Category string `json:"category"`
	Filename string `json:"filename"`
}

// Corpus is the result of one full corpus load.
type Corpus struct {
	Documents []SourceDocument
	Segments  []Segment
}
