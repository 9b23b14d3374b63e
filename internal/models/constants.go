package models

const (
	SectionRegex     = `(?mi)^[ \t]*((?:unit|module|week|chapter|lecture|part)[ \t]+[0-9ivx]+\b.*|(?:grading|assessment|prerequisites|course objectives|course outcomes|textbooks?|references|schedule)\b.*)$`
	ThinkTag         = `(?s)<think>.*?</think>`
	ContextSeparator = "\n\n---\n\n"
	SourceSeparator  = " | "

	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
	MinChunkLength      = 50
	DefaultTopK         = 4
	DefaultBatchSize    = 50
	DefaultDimension    = 384
	SourcePreviewLength = 60
)

var (
	SystemPrompt = `You are a helpful academic assistant that answers questions about course syllabi.
Use ONLY the provided context to answer. If the answer is not in the context, say so clearly.
Be concise, accurate, and student-friendly. Format lists and key info clearly.`

	UserPromptTemplate = `Context from the syllabus:
%s

Student Question: %s

Answer based on the syllabus context above:`

	SuggestedQuestions = []string{
		"What are the prerequisites for this course?",
		"What topics are covered in Unit 3?",
		"How is the final grade calculated?",
		"What are the assignment deadlines?",
	}
)
