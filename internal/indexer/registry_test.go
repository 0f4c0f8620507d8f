package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Appsum/JackettCore/internal/indexer/schema"
)

// fakeIndexer is a scriptable site scraper for registry and dispatcher tests.
type fakeIndexer struct {
	*BaseIndexer

	applyStatus ConfigurationStatus
	applyErr    error
	results     []ReleaseResult
	queryErr    error
	cleanCalls  int
}

func newFakeIndexer(id, name string) *fakeIndexer {
	return &fakeIndexer{
		BaseIndexer: NewBase(BaseConfig{
			ID:       id,
			Name:     name,
			SiteLink: "https://" + id + ".example/",
			Schema:   schema.MustNew(schema.Text("Username"), schema.Text("Password")),
			Logger:   zerolog.Nop(),
		}),
		applyStatus: StatusConfigured,
	}
}

func (f *fakeIndexer) ApplyConfiguration(ctx context.Context, payload schema.Payload) (ConfigurationStatus, error) {
	if err := f.LoadPayload(payload); err != nil {
		return StatusFailed, err
	}
	if f.applyErr != nil {
		return StatusFailed, f.applyErr
	}
	if err := f.ConfigureIfOK("session=fake", true, nil); err != nil {
		return StatusFailed, err
	}
	return f.applyStatus, nil
}

func (f *fakeIndexer) PerformQuery(ctx context.Context, query *Query) ([]ReleaseResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]ReleaseResult, len(f.results))
	copy(out, f.results)
	return out, nil
}

func (f *fakeIndexer) CleanLinks(results []ReleaseResult) []ReleaseResult {
	f.cleanCalls++
	return f.BaseIndexer.CleanLinks(results)
}

func (f *fakeIndexer) username() string {
	field, _ := f.ConfigSchema().Field("username")
	return field.Value
}

func newTestRegistry(t *testing.T, fakes ...*fakeIndexer) (*Registry, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "indexers")

	factory := func() ([]Indexer, error) {
		out := make([]Indexer, len(fakes))
		for i, f := range fakes {
			out[i] = f
		}
		return out, nil
	}

	r := NewRegistry(dir, factory, nil, zerolog.Nop())
	if err := r.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return r, dir
}

func userPayload(name string) schema.Payload {
	return schema.Payload{
		{ID: "username", Type: schema.TypeText, Value: name},
		{ID: "password", Type: schema.TypeText, Value: "secret"},
	}
}

func TestRegistryInitLoadsSavedConfiguration(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	dir := filepath.Join(t.TempDir(), "indexers")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	saved, _ := json.Marshal(schema.Payload{
		{ID: "username", Type: schema.TypeText, Value: "alice"},
		{ID: "cookieheader", Type: schema.TypeHidden, Value: "session=saved"},
	})
	if err := os.WriteFile(filepath.Join(dir, "alpha.json"), saved, 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(dir, func() ([]Indexer, error) { return []Indexer{fake}, nil }, nil, zerolog.Nop())
	if err := r.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ix, err := r.Get("alpha")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ix.IsConfigured() {
		t.Error("indexer with a saved configuration is not configured")
	}
	if fake.username() != "alice" {
		t.Errorf("username = %q, want alice", fake.username())
	}
	if fake.CookieHeader() != "session=saved" {
		t.Errorf("cookie = %q, want session=saved", fake.CookieHeader())
	}
}

func TestRegistryInitSurvivesCorruptConfig(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	dir := filepath.Join(t.TempDir(), "indexers")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "alpha.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(dir, func() ([]Indexer, error) { return []Indexer{fake}, nil }, nil, zerolog.Nop())
	if err := r.Init(); err != nil {
		t.Fatalf("Init failed on corrupt config: %v", err)
	}
	if fake.IsConfigured() {
		t.Error("indexer with a corrupt config reports configured")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r, _ := newTestRegistry(t, newFakeIndexer("alpha", "Alpha"))

	_, err := r.Get("nope")
	if !errors.Is(err, ErrUnknownIndexer) {
		t.Errorf("err = %v, want ErrUnknownIndexer", err)
	}
}

func TestRegistryListOrdering(t *testing.T) {
	r, _ := newTestRegistry(t,
		newFakeIndexer("z", "Zebra"),
		newFakeIndexer("a", "Aardvark"),
		newFakeIndexer("m", "Marmot"),
	)

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List returned %d indexers, want 3", len(list))
	}
	want := []string{"Aardvark", "Marmot", "Zebra"}
	for i, ix := range list {
		if ix.DisplayName() != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, ix.DisplayName(), want[i])
		}
	}
}

func TestRegistryConfigurePersists(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	r, dir := newTestRegistry(t, fake)

	if err := r.Configure(context.Background(), "alpha", userPayload("alice")); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	if !fake.IsConfigured() {
		t.Error("indexer is not configured after a successful apply")
	}
	if len(r.Configured()) != 1 {
		t.Errorf("Configured() has %d entries, want 1", len(r.Configured()))
	}

	data, err := os.ReadFile(filepath.Join(dir, "alpha.json"))
	if err != nil {
		t.Fatalf("config file was not written: %v", err)
	}
	var payload schema.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("config file is not valid JSON: %v", err)
	}
}

func TestRegistryConfigureRunsBrowseTest(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	fake.applyStatus = StatusRequiresTesting
	fake.results = []ReleaseResult{{Title: "Some.Release"}}
	r, dir := newTestRegistry(t, fake)

	if err := r.Configure(context.Background(), "alpha", userPayload("alice")); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "alpha.json")); err != nil {
		t.Errorf("config file missing after tested configure: %v", err)
	}
}

func TestRegistryConfigureRollsBackOnFailedTest(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	fake.applyStatus = StatusRequiresTesting
	fake.results = nil // browse finds nothing
	r, dir := newTestRegistry(t, fake)

	err := r.Configure(context.Background(), "alpha", userPayload("alice"))
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "alpha.json")); !errors.Is(err, os.ErrNotExist) {
		t.Error("config file written for an untrusted configuration")
	}
}

func TestRegistryConfigureRollbackSemantics(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	r, _ := newTestRegistry(t, fake)

	if err := r.Configure(context.Background(), "alpha", userPayload("alice")); err != nil {
		t.Fatalf("initial Configure failed: %v", err)
	}

	// A system failure rolls the schema back to the last good state.
	fake.applyErr = errors.New("connection reset")
	if err := r.Configure(context.Background(), "alpha", userPayload("mallory")); err == nil {
		t.Fatal("expected the apply error")
	}
	if fake.username() != "alice" {
		t.Errorf("username after rollback = %q, want alice", fake.username())
	}

	// A site-side rejection keeps the submitted values editable.
	fake.applyErr = NewConfigRejected(fake.ConfigSchema(), "bad credentials")
	err := r.Configure(context.Background(), "alpha", userPayload("mallory"))
	if _, ok := IsConfigRejected(err); !ok {
		t.Fatalf("err = %v, want a rejection", err)
	}
	if fake.username() != "mallory" {
		t.Errorf("username after rejection = %q, want mallory", fake.username())
	}
}

func TestRegistryTest(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	r, _ := newTestRegistry(t, fake)

	err := r.Test(context.Background(), "alpha")
	if !errors.Is(err, ErrNoResults) {
		t.Errorf("err = %v, want ErrNoResults for an empty browse", err)
	}

	fake.results = []ReleaseResult{{Title: "Some.Release"}}
	if err := r.Test(context.Background(), "alpha"); err != nil {
		t.Errorf("Test failed: %v", err)
	}
}

// fakeResultStore records what browse tests stash away.
type fakeResultStore struct {
	indexerID   string
	displayName string
	results     []ReleaseResult
	puts        int
}

func (s *fakeResultStore) Put(indexerID, displayName string, results []ReleaseResult) {
	s.indexerID = indexerID
	s.displayName = displayName
	s.results = results
	s.puts++
}

func TestRegistryTestCleansAndStoresResults(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	fake.results = []ReleaseResult{{Title: "Some.Release", Link: "  https://alpha.example/dl/1  "}}
	r, _ := newTestRegistry(t, fake)

	store := &fakeResultStore{}
	r.SetResultStore(store)

	if err := r.Test(context.Background(), "alpha"); err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if fake.cleanCalls != 1 {
		t.Errorf("CleanLinks ran %d times, want 1", fake.cleanCalls)
	}
	if store.puts != 1 {
		t.Fatalf("store received %d puts, want 1", store.puts)
	}
	if store.indexerID != "alpha" || store.displayName != "Alpha" {
		t.Errorf("stored under %q/%q, want alpha/Alpha", store.indexerID, store.displayName)
	}
	if len(store.results) != 1 || store.results[0].Link != "https://alpha.example/dl/1" {
		t.Errorf("stored results = %v, want the cleaned link", store.results)
	}
}

func TestRegistryTestEmptyBrowseStoresNothing(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	r, _ := newTestRegistry(t, fake)

	store := &fakeResultStore{}
	r.SetResultStore(store)

	if err := r.Test(context.Background(), "alpha"); !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
	if store.puts != 0 {
		t.Errorf("store received %d puts for an empty browse, want 0", store.puts)
	}
}

func TestRegistryConfigureStoresBrowseResults(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	fake.applyStatus = StatusRequiresTesting
	fake.results = []ReleaseResult{{Title: "Some.Release", Link: "https://alpha.example/dl/1"}}
	r, _ := newTestRegistry(t, fake)

	store := &fakeResultStore{}
	r.SetResultStore(store)

	if err := r.Configure(context.Background(), "alpha", userPayload("alice")); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if store.puts != 1 || store.indexerID != "alpha" {
		t.Errorf("store puts/id = %d/%q, want 1/alpha", store.puts, store.indexerID)
	}
}

func TestRegistryDeleteResetsIndexer(t *testing.T) {
	// Delete swaps in a fresh instance, so the factory must mint new ones.
	dir := filepath.Join(t.TempDir(), "indexers")
	factory := func() ([]Indexer, error) {
		return []Indexer{newFakeIndexer("alpha", "Alpha")}, nil
	}
	r := NewRegistry(dir, factory, nil, zerolog.Nop())
	if err := r.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := r.Configure(context.Background(), "alpha", userPayload("alice")); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	if err := r.Delete("alpha"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "alpha.json")); !errors.Is(err, os.ErrNotExist) {
		t.Error("config file still present after delete")
	}

	ix, err := r.Get("alpha")
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if ix.IsConfigured() {
		t.Error("indexer still configured after delete")
	}
}

func TestRegistrySetupPayloadMasksSecrets(t *testing.T) {
	fake := newFakeIndexer("alpha", "Alpha")
	r, _ := newTestRegistry(t, fake)

	if err := r.Configure(context.Background(), "alpha", userPayload("alice")); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	payload, err := r.SetupPayload("alpha")
	if err != nil {
		t.Fatalf("SetupPayload failed: %v", err)
	}
	for _, fv := range payload {
		switch fv.ID {
		case "password":
			if fv.Value != schema.PasswordMask {
				t.Errorf("password = %v, want the mask", fv.Value)
			}
		case "cookieheader":
			t.Error("setup payload exposes the session cookie")
		}
	}
}
