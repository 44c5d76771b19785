package usecases

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"supportbridge/internal/entities"
)

// fakeCRM is an in-memory CRM keyed by email with sequential ids.
type fakeCRM struct {
	mu        sync.Mutex
	nextID    int
	byEmail   map[string]string
	contacts  map[string]map[string]string
	creates   int
	updates   int
	lookupErr error
	createErr error
	getErr    error
	updateErr error

	// conflictOnCreate simulates a racing request that created the contact
	// between our lookup and our create.
	conflictOnCreate bool
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		nextID:   100,
		byEmail:  make(map[string]string),
		contacts: make(map[string]map[string]string),
	}
}

func (f *fakeCRM) insert(props map[string]string) string {
	f.nextID++
	id := strconv.Itoa(f.nextID)
	cp := make(map[string]string, len(props))
	for k, v := range props {
		cp[k] = v
	}
	f.contacts[id] = cp
	f.byEmail[props[entities.PropEmail]] = id
	return id
}

func (f *fakeCRM) LookupContactByEmail(ctx context.Context, email string) (entities.LookupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return entities.LookupResult{}, f.lookupErr
	}
	id, ok := f.byEmail[email]
	return entities.LookupResult{Found: ok, ContactID: id}, nil
}

func (f *fakeCRM) CreateContact(ctx context.Context, props map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.conflictOnCreate {
		f.insert(props)
		return "", &entities.UpstreamError{Service: "hubspot", Op: "create contact", Status: http.StatusConflict, Err: errors.New("Contact already exists")}
	}
	return f.insert(props), nil
}

func (f *fakeCRM) GetContact(ctx context.Context, id string, props ...string) (entities.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return entities.Contact{}, f.getErr
	}
	stored, ok := f.contacts[id]
	if !ok {
		return entities.Contact{}, &entities.UpstreamError{Service: "hubspot", Op: "get contact", Status: http.StatusNotFound, Err: entities.ErrNotFound}
	}
	out := entities.Contact{ID: id, Properties: map[string]string{}}
	for _, p := range props {
		if v, ok := stored[p]; ok {
			out.Properties[p] = v
		}
	}
	return out, nil
}

func (f *fakeCRM) UpdateContact(ctx context.Context, id string, props map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.contacts[id]
	if !ok {
		return fmt.Errorf("contact %s not found", id)
	}
	for k, v := range props {
		stored[k] = v
	}
	return nil
}

func (f *fakeCRM) property(id, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contacts[id][name]
}

// fakeChat records users and channels the way the provider would.
type fakeChat struct {
	mu          sync.Mutex
	users       map[string]entities.ChatUser
	channels    map[string]entities.Channel
	upsertCalls int
	tokens      int
	upsertErr   error
	channelErr  error
	tokenErr    error
	channelID   string // overrides the echoed channel id when set
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		users:    make(map[string]entities.ChatUser),
		channels: make(map[string]entities.Channel),
	}
}

func (f *fakeChat) UpsertUsers(ctx context.Context, users ...entities.ChatUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return nil
}

func (f *fakeChat) GetOrCreateChannel(ctx context.Context, typ, id string, members []string, createdBy string) (entities.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelErr != nil {
		return entities.Channel{}, f.channelErr
	}
	key := typ + ":" + id
	if ch, ok := f.channels[key]; ok {
		return ch, nil
	}
	ch := entities.Channel{ID: id, Type: typ, Members: append([]string(nil), members...)}
	if f.channelID != "" {
		ch.ID = f.channelID
	}
	f.channels[key] = ch
	return ch, nil
}

func (f *fakeChat) CreateToken(userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	f.tokens++
	return fmt.Sprintf("token-%s-%d", userID, f.tokens), nil
}

func (f *fakeChat) APIKey() string { return "api-key" }

type fakeLedger struct {
	seen    map[string]bool
	seenErr error
}

func (f *fakeLedger) Seen(ctx context.Context, id string) (bool, error) {
	if f.seenErr != nil {
		return false, f.seenErr
	}
	return f.seen[id], nil
}

func (f *fakeLedger) MarkProcessed(ctx context.Context, id, channelID string) error {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[id] = true
	return nil
}

type publishedEvent struct {
	Type string
	Data any
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, eventType string, data any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{Type: eventType, Data: data})
	return nil
}

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) NotifyRegistration(ctx context.Context, v entities.Visitor, reg entities.Registration) error {
	f.calls++
	return f.err
}
