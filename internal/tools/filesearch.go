package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

type fileSearchArgs struct {
	Query string `json:"query" jsonschema:"required,description=Natural-language query to run against the attached documents."`
}

// fileSearch resolves the assistant's vector store and runs an unattended
// semantic search there. vector_store_search is a legacy alias.
type fileSearch struct {
	vector store.VectorService
	name   string
}

func newFileSearch(vector store.VectorService, name string) *fileSearch {
	return &fileSearch{vector: vector, name: name}
}

func (f *fileSearch) Name() string { return f.name }

func (f *fileSearch) Definition() models.Tool {
	return definition(f.name,
		"Semantic search over the files attached to this assistant. Returns ranked passages as JSON.",
		fileSearchArgs{})
}

func (f *fileSearch) Execute(ctx context.Context, inv Invocation, _ EmitFunc) (string, error) {
	query := strings.TrimSpace(argString(inv.Args, "query"))
	if query == "" {
		return "", ValidationError("missing required argument %q; retry with the question to search the files for", "query")
	}

	storeID, err := f.vector.GetOrCreateFileSearchStore(ctx, inv.AssistantID)
	if err != nil {
		return "", fmt.Errorf("resolve file-search store: %w", err)
	}

	results, err := f.vector.UnattendedFileSearch(ctx, storeID, query)
	if err != nil {
		return "", fmt.Errorf("file search: %w", err)
	}
	return string(results), nil
}
