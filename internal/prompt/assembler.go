// Package prompt assembles the message list sent to the chat model.
//
// Assembly is a pure function of (retrieved documents, question): identical
// inputs always produce an identical message list, which keeps the prompt
// testable with golden output.
package prompt

import (
	"fmt"
	"strings"

	"github.com/orgpedia/orgpedia/internal/llm"
)

// systemInstruction is sent on every turn. It forbids the model from adding
// knowledge beyond the supplied documents.
const systemInstruction = "You are a knowledge-base assistant. Answer the user's question using ONLY the " +
	"information in the provided documents. If the documents do not contain the answer, say that the " +
	"knowledge base does not cover the question. Do not use outside knowledge, do not speculate, and do " +
	"not invent facts."

// noContextNote replaces the document block when retrieval found nothing.
const noContextNote = "No documents were retrieved for this question. State that the knowledge base does " +
	"not contain relevant information; answering from general knowledge is NOT permitted."

// BuildMessages composes the final message list for the model. Documents
// must already be ordered by relevance; their order is preserved.
func BuildMessages(docs []string, question string) []llm.Message {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: systemInstruction},
	}

	if len(docs) == 0 {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleUser,
			Content: noContextNote + "\n\nQUESTION: " + question,
		})
		return msgs
	}

	var b strings.Builder
	b.WriteString("Use the following documents to answer the question.\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "\nDOCUMENT %d START\n%s\nDOCUMENT %d END\n", i+1, doc, i+1)
	}
	b.WriteString("\nQUESTION: ")
	b.WriteString(question)

	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: b.String()})
	return msgs
}
