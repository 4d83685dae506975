package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// fakeWeb serves canned pages keyed by URL and records scratchpad state.
type fakeWeb struct {
	pages      map[string][]store.WebPage // url -> chunks, index = 0-based page
	serp       map[string]string          // serp url -> raw body
	scratch    map[string]string          // thread -> content
	readErr    error
	searchCall string
}

func newFakeWeb() *fakeWeb {
	return &fakeWeb{
		pages:   map[string][]store.WebPage{},
		serp:    map[string]string{},
		scratch: map[string]string{},
	}
}

func (f *fakeWeb) addDocument(url string, chunks ...string) {
	pages := make([]store.WebPage, len(chunks))
	for i, c := range chunks {
		pages[i] = store.WebPage{Content: c, Page: i + 1, TotalPages: len(chunks)}
	}
	f.pages[url] = pages
}

func (f *fakeWeb) WebRead(_ context.Context, url string) (*store.WebPage, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	pages, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no such page %s", url)
	}
	p := pages[0]
	return &p, nil
}

func (f *fakeWeb) WebScroll(_ context.Context, url string, page int) (*store.WebPage, error) {
	pages, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no such page %s", url)
	}
	if page < 0 || page >= len(pages) {
		return &store.WebPage{Page: page + 1, TotalPages: len(pages)}, nil
	}
	p := pages[page]
	return &p, nil
}

func (f *fakeWeb) WebSearch(_ context.Context, url string) (string, error) {
	f.searchCall = url
	return f.serp[url], nil
}

func (f *fakeWeb) ScratchpadRead(_ context.Context, threadID string) (string, error) {
	return f.scratch[threadID], nil
}

func (f *fakeWeb) ScratchpadUpdate(_ context.Context, threadID, content string) error {
	f.scratch[threadID] = content
	return nil
}

func (f *fakeWeb) ScratchpadAppend(_ context.Context, threadID, entry string) error {
	f.scratch[threadID] += "\n" + entry
	return nil
}

// fakeVector resolves one store and echoes queries back as results.
type fakeVector struct {
	storeID string
	results json.RawMessage
	queries []string
}

func (f *fakeVector) UnattendedFileSearch(_ context.Context, storeID, query string) (json.RawMessage, error) {
	if storeID != f.storeID {
		return nil, fmt.Errorf("unknown store %s", storeID)
	}
	f.queries = append(f.queries, query)
	return f.results, nil
}

func (f *fakeVector) GetOrCreateFileSearchStore(_ context.Context, _ string) (string, error) {
	return f.storeID, nil
}

// fakeSandbox replays a fixed chunk script.
type fakeSandbox struct {
	chunks   []store.ExecChunk
	lastCode string
	lastCmds []string
}

func (f *fakeSandbox) replay() <-chan store.ExecChunk {
	ch := make(chan store.ExecChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func (f *fakeSandbox) ExecuteCode(_ context.Context, _ string, code string) (<-chan store.ExecChunk, error) {
	f.lastCode = code
	return f.replay(), nil
}

func (f *fakeSandbox) RunCommands(_ context.Context, _ string, commands []string) (<-chan store.ExecChunk, error) {
	f.lastCmds = commands
	return f.replay(), nil
}

// fakeFiles serves base64 payloads by file id.
type fakeFiles struct {
	blobs map[string]string
}

func (f *fakeFiles) GetFileAsBase64(_ context.Context, fileID string) (string, error) {
	b, ok := f.blobs[fileID]
	if !ok {
		return "", fmt.Errorf("no such file %s", fileID)
	}
	return b, nil
}

// collectEmit gathers emitted events for assertions.
func collectEmit(sink *[]models.StreamEvent) EmitFunc {
	return func(ev models.StreamEvent) { *sink = append(*sink, ev) }
}

func inv(args map[string]any) Invocation {
	return Invocation{
		RunID:       "run_1",
		ThreadID:    "thread_1",
		AssistantID: "asst_1",
		ActionID:    "action_1",
		ToolCallID:  "call_deadbeef",
		Args:        args,
	}
}
