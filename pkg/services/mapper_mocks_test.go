package services

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
)

// mockSchemaProvider returns a fixed catalog.
type mockSchemaProvider struct {
	props []models.TargetProperty
	err   error
	calls int
}

func (m *mockSchemaProvider) ListProperties(ctx context.Context) ([]models.TargetProperty, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.props, nil
}

type mockPropertyCreator struct {
	createFunc func(ctx context.Context, displayName string) error
	created    []string
}

func (m *mockPropertyCreator) CreateProperty(ctx context.Context, displayName string) error {
	m.created = append(m.created, displayName)
	if m.createFunc != nil {
		return m.createFunc(ctx, displayName)
	}
	return nil
}

// mockFeedbackSink keeps lexicons in memory, keyed by remote id.
type mockFeedbackSink struct {
	mu       sync.Mutex
	lexicons map[string]*models.Lexicon
	getErr   error
	patchErr error
	patches  map[string][]models.LexiconPatch
	getCalls int
}

func newMockFeedbackSink() *mockFeedbackSink {
	return &mockFeedbackSink{
		lexicons: map[string]*models.Lexicon{},
		patches:  map[string][]models.LexiconPatch{},
	}
}

func (m *mockFeedbackSink) GetLexicon(ctx context.Context, remoteID string) (*models.Lexicon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	lex, ok := m.lexicons[remoteID]
	if !ok {
		return &models.Lexicon{}, nil
	}
	copied := models.Lexicon{
		Synonyms: append([]string(nil), lex.Synonyms...),
		Antonyms: append([]string(nil), lex.Antonyms...),
	}
	return &copied, nil
}

func (m *mockFeedbackSink) PatchLexicon(ctx context.Context, remoteID string, patch models.LexiconPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.patchErr != nil {
		return m.patchErr
	}
	m.patches[remoteID] = append(m.patches[remoteID], patch)
	lex, ok := m.lexicons[remoteID]
	if !ok {
		lex = &models.Lexicon{}
		m.lexicons[remoteID] = lex
	}
	if patch.Synonyms != nil {
		lex.Synonyms = models.ParseTermList(*patch.Synonyms)
	}
	if patch.Antonyms != nil {
		lex.Antonyms = models.ParseTermList(*patch.Antonyms)
	}
	return nil
}

// mockSuggestionProvider records requests and returns a canned response.
type mockSuggestionProvider struct {
	suggestFunc func(ctx context.Context, req SuggestionRequest) (map[string]string, error)
	response    map[string]string
	requests    []SuggestionRequest
}

func (m *mockSuggestionProvider) Suggest(ctx context.Context, req SuggestionRequest) (map[string]string, error) {
	m.requests = append(m.requests, req)
	if m.suggestFunc != nil {
		return m.suggestFunc(ctx, req)
	}
	return m.response, nil
}

// mockIngestionClient records the steps it was driven through.
type mockIngestionClient struct {
	mu    sync.Mutex
	calls []string
	// failOn makes the named method fail for the named file ("" matches any file).
	failOn     map[string]string
	failErr    error
	uploadSeq  int
	jobSeq     int
	jobNames   []string
	attachedTo map[string]string
}

func newMockIngestionClient() *mockIngestionClient {
	return &mockIngestionClient{attachedTo: map[string]string{}}
}

func (m *mockIngestionClient) record(method, file string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method+":"+file)
	if f, ok := m.failOn[method]; ok && (f == "" || f == file) {
		return m.failErr
	}
	return nil
}

func (m *mockIngestionClient) ResumeUpload(ctx context.Context, fileName string, content []byte) (string, error) {
	if err := m.record("resume", fileName); err != nil {
		return "", err
	}
	m.uploadSeq++
	return "upload-" + fileName, nil
}

func (m *mockIngestionClient) CommitUpload(ctx context.Context, uploadID, fileName string, content []byte) error {
	return m.record("commit", fileName)
}

func (m *mockIngestionClient) MakeUploadAvailable(ctx context.Context, uploadID string) error {
	return m.record("publish", uploadID)
}

func (m *mockIngestionClient) FetchClassificationID(ctx context.Context) (string, error) {
	if err := m.record("classification", ""); err != nil {
		return "", err
	}
	return "CLASS-1", nil
}

func (m *mockIngestionClient) CreateLoaderJob(ctx context.Context, jobName, classificationID string) (string, error) {
	if err := m.record("job", classificationID); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobSeq++
	m.jobNames = append(m.jobNames, jobName)
	return "JOB-" + jobName, nil
}

func (m *mockIngestionClient) AttachFile(ctx context.Context, fileName, uploadID, jobID string) error {
	if err := m.record("attach", fileName); err != nil {
		return err
	}
	m.mu.Lock()
	m.attachedTo[fileName] = jobID
	m.mu.Unlock()
	return nil
}

func (m *mockIngestionClient) AttachWorkflow(ctx context.Context, jobID string) error {
	return m.record("workflow", jobID)
}

func testCatalog() []models.TargetProperty {
	return []models.TargetProperty{
		{DisplayName: "Line Number", LocalID: "LineNo", RemoteID: "p1"},
		{DisplayName: "Tag Number", Synonyms: []string{"Tag"}, Antonyms: []string{}, LocalID: "TagNo", RemoteID: "p2"},
		{DisplayName: "Description", LocalID: "Desc", RemoteID: "p3"},
		{DisplayName: "Quantity", Synonyms: []string{"Qty"}, LocalID: "Qty", RemoteID: "p4"},
		{DisplayName: "Material Grade", LocalID: "MatGrade", RemoteID: "p5"},
		{DisplayName: "Pressure Rating"},
	}
}
