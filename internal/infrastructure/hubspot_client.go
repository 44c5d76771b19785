package infrastructure

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"supportbridge/internal/entities"
)

const hubspotService = "hubspot"

// HubSpotClient talks to the HubSpot CRM v3 contacts API with a private-app token.
type HubSpotClient struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewHubSpotClient(httpClient *http.Client, baseURL, token string) *HubSpotClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.hubapi.com"
	}
	return &HubSpotClient{
		http:    defaultHTTPClient(httpClient),
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
	}
}

func (c *HubSpotClient) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

func (c *HubSpotClient) contactURL(id string, query url.Values) string {
	u := c.baseURL + "/crm/v3/objects/contacts"
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// LookupContactByEmail resolves a contact by its email id-property. A 404 is
// reported as Found=false, every other failure as an error.
func (c *HubSpotClient) LookupContactByEmail(ctx context.Context, email string) (entities.LookupResult, error) {
	const op = "lookup contact"
	u := c.contactURL(email, url.Values{"idProperty": {"email"}})

	status, body, err := doJSON(ctx, c.http, http.MethodGet, u, c.headers(), nil)
	if err != nil {
		return entities.LookupResult{}, transportError(hubspotService, op, err)
	}
	if status == http.StatusNotFound {
		return entities.LookupResult{Found: false}, nil
	}
	if !isSuccess(status) {
		return entities.LookupResult{}, upstreamError(hubspotService, op, status, body)
	}

	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return entities.LookupResult{}, &entities.UpstreamError{Service: hubspotService, Op: op, Status: status, Err: errors.New("response has no contact id")}
	}
	return entities.LookupResult{Found: true, ContactID: id}, nil
}

func (c *HubSpotClient) CreateContact(ctx context.Context, properties map[string]string) (string, error) {
	const op = "create contact"
	payload := map[string]any{"properties": properties}

	status, body, err := doJSON(ctx, c.http, http.MethodPost, c.contactURL("", nil), c.headers(), payload)
	if err != nil {
		return "", transportError(hubspotService, op, err)
	}
	if !isSuccess(status) {
		return "", upstreamError(hubspotService, op, status, body)
	}

	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", &entities.UpstreamError{Service: hubspotService, Op: op, Status: status, Err: errors.New("response has no contact id")}
	}
	return id, nil
}

// GetContact fetches a non-archived contact with the requested properties.
// Null properties are left out of the returned map.
func (c *HubSpotClient) GetContact(ctx context.Context, contactID string, properties ...string) (entities.Contact, error) {
	const op = "get contact"
	q := url.Values{"archived": {"false"}}
	if len(properties) > 0 {
		q.Set("properties", strings.Join(properties, ","))
	}

	status, body, err := doJSON(ctx, c.http, http.MethodGet, c.contactURL(contactID, q), c.headers(), nil)
	if err != nil {
		return entities.Contact{}, transportError(hubspotService, op, err)
	}
	if status == http.StatusNotFound {
		return entities.Contact{}, &entities.UpstreamError{Service: hubspotService, Op: op, Status: status, Err: entities.ErrNotFound}
	}
	if !isSuccess(status) {
		return entities.Contact{}, upstreamError(hubspotService, op, status, body)
	}

	contact := entities.Contact{
		ID:         gjson.GetBytes(body, "id").String(),
		Properties: make(map[string]string),
	}
	gjson.GetBytes(body, "properties").ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Null {
			contact.Properties[key.String()] = value.String()
		}
		return true
	})
	return contact, nil
}

// UpdateContact patches only the given properties.
func (c *HubSpotClient) UpdateContact(ctx context.Context, contactID string, properties map[string]string) error {
	const op = "update contact"
	payload := map[string]any{"properties": properties}

	status, body, err := doJSON(ctx, c.http, http.MethodPatch, c.contactURL(contactID, nil), c.headers(), payload)
	if err != nil {
		return transportError(hubspotService, op, err)
	}
	if !isSuccess(status) {
		return upstreamError(hubspotService, op, status, body)
	}
	return nil
}
