package app

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"documind-backend/internal/ai"
	"documind-backend/internal/model"
	"documind-backend/internal/platform/identity"
)

var errBoom = errors.New("boom")

type fakeDocs struct {
	mu          sync.Mutex
	docs        map[string]*model.Document
	chunks      map[string][]model.DocumentChunk
	createErr   error
	activateErr error
	activations []int
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[string]*model.Document{}, chunks: map[string][]model.DocumentChunk{}}
}

func (f *fakeDocs) Create(_ context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if utf8.RuneCountInString(doc.Title) > model.MaxTitleLength || utf8.RuneCountInString(doc.FileName) > model.MaxFileNameLength {
		return errors.New("value too long for type character varying(256)")
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocs) ListByUserID(_ context.Context, userID string) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDocs) GetByIDAndUserID(_ context.Context, id, userID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.UserID != userID {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) ActivateIndex(_ context.Context, documentID string, version int, embeddingModel string, chunks []model.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activateErr != nil {
		return f.activateErr
	}
	d, ok := f.docs[documentID]
	if !ok {
		return errors.New("document vanished")
	}
	d.IndexVersion = version
	d.EmbeddingModel = embeddingModel
	d.ChunkCount = len(chunks)
	d.Status = model.DocumentStatusReady
	f.chunks[documentID] = append([]model.DocumentChunk(nil), chunks...)
	f.activations = append(f.activations, version)
	return nil
}

func (f *fakeDocs) DeleteCascade(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	delete(f.chunks, id)
	return nil
}

func (f *fakeDocs) ListByDocumentID(_ context.Context, documentID string, limit int) ([]model.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := append([]model.DocumentChunk(nil), f.chunks[documentID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ChunkIndex < rows[j].ChunkIndex })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// put stores a ready document with chunk rows, bypassing ingestion.
func (f *fakeDocs) put(doc model.Document, contents ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.ChunkCount = len(contents)
	f.docs[doc.ID] = &doc
	rows := make([]model.DocumentChunk, len(contents))
	for i, c := range contents {
		rows[i] = model.DocumentChunk{DocumentID: doc.ID, ChunkIndex: i, IndexVersion: doc.IndexVersion, Content: c}
	}
	f.chunks[doc.ID] = rows
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
	deleted []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	f.objects[key] = append([]byte(nil), data...)
	return "https://files.test/bucket/" + key, nil
}

func (f *fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeIndex struct {
	mu            sync.Mutex
	points        map[string]map[int][]model.IndexedChunk
	upsertErr     error
	searchErr     error
	hits          []model.RetrievedChunk
	droppedVers   []int
	staleKeeps    []int
	deletedDocs   []string
	searchVersion int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: map[string]map[int][]model.IndexedChunk{}}
}

func (f *fakeIndex) Upsert(_ context.Context, documentID, _ string, version int, chunks []model.IndexedChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.points[documentID] == nil {
		f.points[documentID] = map[int][]model.IndexedChunk{}
	}
	f.points[documentID][version] = append(f.points[documentID][version], chunks...)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, version int, _ []float32, k int) ([]model.RetrievedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchVersion = version
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	hits := f.hits
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeIndex) DeleteDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.points, documentID)
	f.deletedDocs = append(f.deletedDocs, documentID)
	return nil
}

func (f *fakeIndex) DeleteVersion(_ context.Context, documentID string, version int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.points[documentID], version)
	f.droppedVers = append(f.droppedVers, version)
	return nil
}

func (f *fakeIndex) DeleteStale(_ context.Context, documentID string, keep int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for v := range f.points[documentID] {
		if v != keep {
			delete(f.points[documentID], v)
		}
	}
	f.staleKeeps = append(f.staleKeeps, keep)
	return nil
}

func (f *fakeIndex) versions(documentID string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for v := range f.points[documentID] {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

type fakeEmbedder struct {
	mu    sync.Mutex
	model string
	err   error
	calls int
}

func (f *fakeEmbedder) Model() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type fakeLLM struct {
	answer   string
	err      error
	calls    int
	messages []ai.ChatMessage
}

func (f *fakeLLM) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	f.calls++
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeTurns struct {
	mu        sync.Mutex
	turns     []model.ChatTurn
	createErr error
	listCalls int
}

func (f *fakeTurns) Create(_ context.Context, turn *model.ChatTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.turns = append(f.turns, *turn)
	return nil
}

func (f *fakeTurns) ListByDocument(_ context.Context, documentID, userID string) ([]model.ChatTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []model.ChatTurn
	for _, t := range f.turns {
		if t.DocumentID == documentID && t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeTurns) ListRecent(ctx context.Context, documentID, userID string, limit int) ([]model.ChatTurn, error) {
	all, err := f.ListByDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

type fakePublisher struct {
	jobs []model.CleanupJob
	err  error
}

func (f *fakePublisher) PublishCleanup(_ context.Context, job model.CleanupJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries map[string][]model.ChatTurn
	dirty   map[string]bool
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: map[string][]model.ChatTurn{}, dirty: map[string]bool{}}
}

func (f *fakeHistory) key(documentID, userID string) string { return documentID + "|" + userID }

func (f *fakeHistory) Load(_ context.Context, documentID, userID string) ([]model.ChatTurn, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(documentID, userID)
	if f.dirty[k] {
		return nil, false, nil
	}
	turns, ok := f.entries[k]
	return turns, ok, nil
}

func (f *fakeHistory) StoreUnlessDirty(_ context.Context, documentID, userID string, turns []model.ChatTurn) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(documentID, userID)
	if f.dirty[k] {
		return false, nil
	}
	f.entries[k] = turns
	return true, nil
}

func (f *fakeHistory) Invalidate(_ context.Context, documentID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(documentID, userID)
	f.dirty[k] = true
	delete(f.entries, k)
	return nil
}

func (f *fakeHistory) isDirty(documentID, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty[f.key(documentID, userID)]
}

func (f *fakeHistory) clearDirty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty = map[string]bool{}
}

type fakeVerifier struct {
	id  *identity.Identity
	err error
}

func (f *fakeVerifier) Verify(_ context.Context, _ string) (*identity.Identity, error) {
	return f.id, f.err
}

type fakeUsers struct {
	users map[string]model.User
	err   error
}

func (f *fakeUsers) Upsert(_ context.Context, user *model.User) error {
	if f.err != nil {
		return f.err
	}
	if f.users == nil {
		f.users = map[string]model.User{}
	}
	f.users[user.ID] = *user
	return nil
}

// docxBytes builds a minimal .docx whose body holds one paragraph per entry.
func docxBytes(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString("<w:p><w:r><w:t>" + p + "</w:t></w:r></w:p>")
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`))
	if err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
