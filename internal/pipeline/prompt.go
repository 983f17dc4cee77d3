package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Priority scales the answer length a client asks for.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// fileMaxTokens applies to every request that carries document text.
const fileMaxTokens = 1200

var priorityMaxTokens = map[Priority]int{
	PriorityLow:    300,
	PriorityNormal: 500,
	PriorityHigh:   800,
	PriorityUrgent: 1200,
}

// ParsePriority accepts the four known levels; empty means normal.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PriorityNormal, true
	}
	_, ok := priorityMaxTokens[p]
	return p, ok
}

func maxTokens(p Priority, hasFile bool) int {
	if hasFile {
		return fileMaxTokens
	}
	if n, ok := priorityMaxTokens[p]; ok {
		return n
	}
	return priorityMaxTokens[PriorityNormal]
}

// buildUserMessage lays out the user turn:
//
//	Contexte: <context>
//
//	Document: <file name>
//	Contenu:
//	<file text>
//
//	Question: <prompt>
//
// Blocks without content are omitted. With neither context nor file text the prompt is sent as is.
func buildUserMessage(prompt, context, fileName, fileText string) string {
	if context == "" && fileText == "" {
		return prompt
	}

	var blocks []string
	if context != "" {
		blocks = append(blocks, "Contexte: "+context)
	}
	if fileText != "" {
		name := fileName
		if name == "" {
			name = "document"
		}
		blocks = append(blocks, "Document: "+name+"\nContenu:\n"+fileText)
	}
	blocks = append(blocks, "Question: "+prompt)
	return strings.Join(blocks, "\n\n")
}

// contentDigest identifies the context and file content behind an answer. It is empty when
// there is no such content. The file name is not part of it: uploads with the same bytes share
// one cached answer even though the model saw the first upload's name.
func contentDigest(context, fileDigest, fileText string) string {
	if fileDigest == "" && fileText != "" {
		sum := sha256.Sum256([]byte(fileText))
		fileDigest = hex.EncodeToString(sum[:])
	}
	if context == "" && fileDigest == "" {
		return ""
	}
	sum := sha256.Sum256([]byte("context:" + context + "|file:" + fileDigest))
	return hex.EncodeToString(sum[:])
}
